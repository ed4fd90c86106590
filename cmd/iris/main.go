package main

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"iris/internal/audio"
	"iris/internal/config"
	"iris/internal/ipc"
	"iris/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := cli.StringP("config", "c", "iris.yaml", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides config)")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS5 proxy address (overrides config)")
	cli.Parse()

	setLogger(config.LogInfo)
	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to read env file", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = config.LogLevel(*logLevel)
	}
	if *proxyAddr != "" {
		cfg.Network.Proxy = *proxyAddr
	}
	setLogger(cfg.LogLevel)

	config.LoadSecrets(cfg, os.Getenv)
	if err := config.CheckSecrets(cfg); err != nil {
		log.Error("Missing credentials", "err", err)
		return 1
	}

	pa := &audio.PortAudio{DeviceName: cfg.Audio.InputDevice}
	if err := pa.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		return 1
	}
	defer pa.Close()
	if err := pa.Probe(); err != nil {
		log.Error("No input device", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observe.Metrics
	if cfg.Control.MetricsAddr != "" {
		mp, shutdown, err := observe.InitProvider("iris", version)
		if err != nil {
			log.Error("Failed to init metrics", "err", err)
			return 1
		}
		defer shutdown(context.Background())
		if metrics, err = observe.NewMetrics(mp); err != nil {
			log.Error("Failed to create metrics", "err", err)
			return 1
		}
	}

	app, err := build(ctx, cfg, pa, metrics)
	if err != nil {
		log.Error("Failed to build pipeline", "err", err)
		return 1
	}
	defer app.Close()
	log.Info("Boot up - successful")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := ipc.NewServer(cfg.Control.Socket, func(_ context.Context, msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			if !app.manual.Fire() {
				return ipc.Reply{Error: "trigger already pending"}
			}
			return ipc.Reply{OK: true}
		case ipc.CmdStop:
			log.Info("Stop requested")
			cancel()
			return ipc.Reply{OK: true}
		case ipc.CmdStatus:
			st, err := json.Marshal(app.controller.Session().Snapshot())
			if err != nil {
				return ipc.Reply{Error: err.Error()}
			}
			return ipc.Reply{OK: true, Status: st}
		default:
			return ipc.Reply{Error: "unknown command " + msg.Cmd}
		}
	})
	if err := srv.Listen(); err != nil {
		log.Error("Failed ipc server", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return app.controller.Run(gctx)
	})
	g.Go(func() error { return srv.Serve(gctx) })
	if cfg.Control.MetricsAddr != "" {
		g.Go(func() error {
			return observe.Serve(gctx, cfg.Control.MetricsAddr, app.health)
		})
	}
	if app.bus != nil {
		g.Go(func() error { return app.bus.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("Stopped with error", "err", err)
		return 1
	}
	log.Info("Shut down")
	return 0
}

const version = "0.1.0"

func setLogger(level config.LogLevel) {
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level.Slog(),
	})))
}
