package main

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/QYUbit/revolute/internal/config"
	"github.com/QYUbit/revolute/internal/scene"
	slogadapter "github.com/QYUbit/revolute/pkg/axlog/slog_adapter"
	"github.com/QYUbit/revolute/pkg/debugfeed"
	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/physics"
	"github.com/QYUbit/revolute/pkg/render"
)

func main() {
	cfg := config.Load()
	logger := slogadapter.NewText(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := render.NewRecorder(120)
	hub := debugfeed.NewWebSocketHub(logger)
	defer hub.Close()

	sinks := []render.Sink{recorder, hub}

	var tlsConf *tls.Config
	if cfg.QUICAddr != "" || cfg.HTTP3Addr != "" {
		var err error
		if tlsConf, err = debugfeed.SelfSignedTLS(); err != nil {
			logger.Error("Failed to create TLS config", "err", err)
			os.Exit(1)
		}
	}

	if cfg.QUICAddr != "" {
		feed := debugfeed.NewQuicFeed(cfg.QUICAddr, tlsConf, logger)
		if err := feed.Start(ctx); err != nil {
			logger.Error("Failed to start QUIC feed", "addr", cfg.QUICAddr, "err", err)
			os.Exit(1)
		}
		defer feed.Close()
		sinks = append(sinks, feed)
	}

	var wtFeed *debugfeed.WebTransportFeed
	if cfg.HTTP3Addr != "" {
		wtFeed = debugfeed.NewWebTransportFeed(logger)
		defer wtFeed.Close()
		sinks = append(sinks, wtFeed)
	}

	physicsCfg := physics.DefaultConfig()
	physicsCfg.Timestep = cfg.Timestep().Seconds()
	physicsCfg.Substeps = max(cfg.Substeps, 1)

	renderSettings := render.DefaultSettings()
	renderSettings.Window = render.WindowDescriptor{
		Title:  cfg.WindowTitle,
		Width:  cfg.WindowWidth,
		Height: cfg.WindowHeight,
	}

	engine := ecs.NewEngine(
		ecs.WithLogger(logger),
		ecs.WithMaxTicks(cfg.MaxFrames),
	)
	engine.AddPlugin(
		render.Plugin(renderSettings),
		physics.Plugin(physicsCfg),
		render.DebugRenderPlugin(sinks...),
		scene.Plugin(),
	)

	server := debugfeed.NewServer(hub, recorder, logger)
	if wtFeed != nil {
		server.EnableWebTransport(wtFeed)
	}
	go func() {
		if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
			logger.Error("HTTP server stopped", "err", err)
			stop()
		}
	}()
	if cfg.HTTP3Addr != "" {
		go func() {
			if err := server.ListenAndServeHTTP3(ctx, cfg.HTTP3Addr, tlsConf); err != nil {
				logger.Error("HTTP/3 server stopped", "err", err)
			}
		}()
	}

	tickHz := int(time.Second / cfg.Timestep())
	logger.Info("Starting simulation", "tick_hz", tickHz, "max_frames", cfg.MaxFrames)
	if err := engine.Run(ctx, tickHz); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Simulation stopped", "err", err)
		os.Exit(1)
	}

	logger.Info("Shutting down", "frames", engine.CurrentTick())
}
