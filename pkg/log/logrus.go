package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	logFileName     = "posync.log"
	timestampFormat = "2006/01/02 15:04:05.000000"
)

// Fields rendered as a [tag] after the level instead of key=value. Server and
// client loggers set these, so interleaved output in one process stays readable.
var tagFields = []string{"role", "component"}

// Ensure logrusLogger implements the Logger interface
var _ Logger = (*logrusLogger)(nil)

// logrusLogger wraps logrus to satisfy the Logger interface
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a logger that writes to the console and, when
// logDir is set, appends to logDir/posync.log too.
func NewLogrusLogger(logLevel string, logDir string) (Logger, error) {
	var out io.Writer = os.Stdout

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory '%s': %w", logDir, err)
		}
		logFilePath := filepath.Join(logDir, logFileName)
		logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file '%s': %w", logFilePath, err)
		}
		// Console and file get the same lines
		out = io.MultiWriter(out, logFile)
	}

	return newLogger(logLevel, out), nil
}

// NewWriterLogger logs to w only.
func NewWriterLogger(logLevel string, w io.Writer) Logger {
	return newLogger(logLevel, w)
}

// NewNopLogger returns a Logger that discards everything. Constructors fall
// back to it when handed a nil Logger.
func NewNopLogger() Logger {
	return newLogger(logrus.PanicLevel.String(), io.Discard)
}

func newLogger(logLevel string, out io.Writer) *logrusLogger {
	l := logrus.New()
	l.SetLevel(parseLevel(logLevel))
	l.SetFormatter(&SimpleFormatter{TimestampFormat: timestampFormat})
	l.SetOutput(out)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// parseLevel accepts logrus level names; anything else means info.
func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// SimpleFormatter writes one line per entry:
//
//	2025/04/06 17:30:00.000000 [WAR] [server] Dropping datagram from 10.0.0.9:5000 size=7
type SimpleFormatter struct {
	TimestampFormat string
}

// Format implements the logrus.Formatter interface
func (f *SimpleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	format := f.TimestampFormat
	if format == "" {
		format = timestampFormat
	}
	b.WriteString(entry.Time.Format(format))

	// WARNING -> WAR
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 3 {
		level = level[:3]
	}
	fmt.Fprintf(b, " [%s] ", level)

	for _, key := range tagFields {
		if v, ok := entry.Data[key]; ok {
			fmt.Fprintf(b, "[%v] ", v)
		}
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if !isTagField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func isTagField(key string) bool {
	for _, k := range tagFields {
		if k == key {
			return true
		}
	}
	return false
}
