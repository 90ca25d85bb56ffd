package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/profile"

	"github.com/posync/posync/pkg/api"
	"github.com/posync/posync/pkg/codec"
	"github.com/posync/posync/pkg/config"
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/registry"
	"github.com/posync/posync/pkg/session"
	"github.com/posync/posync/pkg/zeromq"
)

type flags struct {
	configPath  string
	envPath     string
	host        bool
	join        string
	port        int
	peerID      string
	profileMode string
	orbitRadius float64
	orbitPeriod time.Duration
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("posync", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to posync.yaml (defaults and environment only when empty)")
	fs.StringVar(&f.envPath, "env", ".env", "dotenv file loaded before reading the environment")
	fs.BoolVar(&f.host, "host", false, "host a session")
	fs.StringVar(&f.join, "join", "", "join the session hosted at host[:port]")
	fs.IntVar(&f.port, "port", 0, "session port (overrides config)")
	fs.StringVar(&f.peerID, "peer-id", "", "peer id declared when joining")
	fs.StringVar(&f.profileMode, "profile", "", "write a cpu or mem profile to the working directory")
	fs.Float64Var(&f.orbitRadius, "orbit-radius", 5, "radius of the demo player orbit, 0 to stand still")
	fs.DurationVar(&f.orbitPeriod, "orbit-period", 8*time.Second, "time for one demo orbit")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if f.host && f.join != "" {
		return flags{}, fmt.Errorf("-host and -join are mutually exclusive")
	}
	return f, nil
}

// loadConfig builds the effective configuration: file (or defaults), then
// environment, then command line flags.
func loadConfig(f flags) (*config.Config, error) {
	if _, err := config.LoadEnvFile(f.envPath); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if f.configPath != "" {
		loaded, err := config.ReadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
	}

	if f.host {
		cfg.Session.Role = string(session.RoleServer)
	}
	if f.join != "" {
		cfg.Session.Role = string(session.RoleClient)
		cfg.Session.ServerAddress = f.join
	}
	if f.port != 0 {
		cfg.Session.Port = f.port
	}
	if f.peerID != "" {
		cfg.Session.PeerID = f.peerID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func startProfile(mode string) (interface{ Stop() }, error) {
	switch mode {
	case "":
		return nil, nil
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	case "mem":
		return profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook), nil
	default:
		return nil, fmt.Errorf("unknown profile mode %q: must be cpu or mem", mode)
	}
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	prof, err := startProfile(f.profileMode)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if prof != nil {
		defer prof.Stop()
	}

	if err := run(cfg, f, logger); err != nil {
		logger.Errorf("posync exited with error: %v", err)
		if prof != nil {
			prof.Stop()
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, f flags, logger customlog.Logger) error {
	wireCodec, err := codec.ForName(cfg.Codec.Format)
	if err != nil {
		return err
	}

	var observers []session.Observer

	var hub *api.PeerStreamHub
	if cfg.API.Enabled {
		hub = api.NewPeerStreamHub(100*time.Millisecond, logger.WithField("component", "stream"))
		observers = append(observers, hub)
	}

	var zmqService *zeromq.ZeroMQService
	if cfg.ZeroMQ.PublishBindAddress != "" {
		zmqService, err = zeromq.NewZeroMQService(cfg.ZeroMQ.PublishBindAddress, 256, logger.WithField("component", "zeromq"))
		if err != nil {
			return fmt.Errorf("failed to create ZeroMQ service: %w", err)
		}
		if err := zmqService.Start(); err != nil {
			return fmt.Errorf("failed to start ZeroMQ service: %w", err)
		}
		defer zmqService.Stop()
		observers = append(observers, zeromq.NewEventPublisher(zmqService, uint64(cfg.Session.TickHz), logger))
	}

	// The demo player starts at a different angle on each process
	phase := float64(os.Getpid()%360) * math.Pi / 180
	opts := session.Options{
		Logger:          logger,
		Codec:           wireCodec,
		Source:          newOrbitSource(position.Zero, f.orbitRadius, f.orbitPeriod, phase),
		Observers:       observers,
		BindAddress:     cfg.Session.BindAddress,
		Port:            cfg.Session.Port,
		InboxSize:       cfg.Session.InboxSize,
		MaxDatagramSize: cfg.Session.MaxDatagramSize,
		PeerID:          cfg.Session.PeerID,
		HostPlayer:      cfg.Session.HostPlayer,
		PeerFactory: func(peerID string) registry.Handle {
			return newLoggingHandle(peerID, logger)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess *session.Session
	if cfg.Session.Role == string(session.RoleClient) {
		sess, err = session.StartAsClient(ctx, cfg.Session.ServerAddress, opts)
	} else {
		sess, err = session.StartAsServer(ctx, opts)
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	info := api.Info{
		Codec:      wireCodec.Name(),
		TickHz:     cfg.Session.TickHz,
		HostPlayer: cfg.Session.HostPlayer,
	}
	if client := sess.Client(); client != nil {
		info.PeerID = client.PeerID()
		info.ServerEndpoint = client.ServerEndpoint().String()
	}

	var app *fiber.App
	if cfg.API.Enabled {
		hub.Bind(sess)

		app = fiber.New(fiber.Config{
			AppName:               "posync",
			ErrorHandler:          api.ErrorHandler,
			DisableStartupMessage: true,
		})
		app.Use(recover.New())
		app.Use(fiberlogger.New())
		api.RegisterSessionRoutes(app, sess, info, logger)
		api.RegisterStreamRoutes(app, hub, logger)

		go func() {
			logger.Infof("Status API starting on port %d", cfg.API.HTTPPort)
			if err := app.Listen(":" + strconv.Itoa(cfg.API.HTTPPort)); err != nil {
				logger.Errorf("Status API stopped: %v", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- sess.Run(ctx, cfg.TickInterval())
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Received %v, shutting down...", sig)
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("session stopped: %w", err)
		}
	}

	cancel()

	if app != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warnf("Status API forced to shutdown: %v", err)
		}
	}

	stats := sess.Stats()
	logger.Infof("Session ended after %d ticks (%d peers, %d sends, %d send failures, %d dropped)",
		stats.Ticks, stats.Peers, stats.Sends, stats.SendFailures, stats.Dropped)
	return nil
}
