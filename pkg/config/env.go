package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file
const (
	EnvRole          = "POSYNC_ROLE"
	EnvServerAddress = "POSYNC_SERVER_ADDRESS"
	EnvPort          = "POSYNC_PORT"
	EnvTickHz        = "POSYNC_TICK_HZ"
	EnvLogLevel      = "POSYNC_LOG_LEVEL"
	EnvCodec         = "POSYNC_CODEC"
	EnvHTTPPort      = "POSYNC_HTTP_PORT"
)

// LoadEnvFile loads variables from a dotenv file into the process
// environment without overriding ones already set. A missing file is not an
// error; loaded reports whether it existed.
func LoadEnvFile(path string) (loaded bool, err error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("error loading env file '%s': %w", path, err)
	}
	return true, nil
}

// ApplyEnv overrides fields from POSYNC_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvRole); ok && v != "" {
		c.Session.Role = v
	}
	if v, ok := os.LookupEnv(EnvServerAddress); ok && v != "" {
		c.Session.ServerAddress = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvCodec); ok && v != "" {
		c.Codec.Format = v
	}

	for _, override := range []struct {
		name   string
		target *int
	}{
		{EnvPort, &c.Session.Port},
		{EnvTickHz, &c.Session.TickHz},
		{EnvHTTPPort, &c.API.HTTPPort},
	} {
		v, ok := os.LookupEnv(override.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", override.name, v, err)
		}
		*override.target = n
	}
	return nil
}
