// Command streamd runs the stream engine behind an RTMP ingest and an HTTP
// control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/internal/api"
	"github.com/thesyncim/mediastream/internal/config"
	"github.com/thesyncim/mediastream/internal/devices"
	"github.com/thesyncim/mediastream/internal/ingest"
	"github.com/thesyncim/mediastream/internal/metrics"
)

const defaultConfigPath = "configs/streamd.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("streamd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("streamd stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-rootCtx.Done():
		}
	}()

	var (
		m   *metrics.Metrics
		rec mediastream.Recorder
	)
	if cfg.Metrics.Enabled {
		m = metrics.New()
		rec = m
	}

	loop := mediastream.NewLoop()
	page := mediastream.NewPage(logger)
	sessions := mediastream.NewSessionManager(logger)
	registry := mediastream.NewStreamRegistry(logger, rec)

	streamCfg := mediastream.Config{
		Queue:    loop,
		Registry: registry,
		Host:     page,
		Session:  sessions,
		Recorder: rec,
		Logger:   logger,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		return loop.Run(ctx)
	})

	if cfg.RTMP.Enabled {
		ln, err := net.Listen("tcp", cfg.RTMP.Address)
		if err != nil {
			return fmt.Errorf("rtmp listen %s: %w", cfg.RTMP.Address, err)
		}
		srv := newIngest(cfg, streamCfg, m, logger)
		g.Go(func() error {
			return srv.Serve(ctx, ln)
		})
	}

	if cfg.API.Enabled {
		apiCfg := api.Config{
			Loop:        loop,
			Registry:    registry,
			Page:        page,
			Sessions:    sessions,
			Devices:     newDevices(cfg.Devices, streamCfg),
			Metrics:     m,
			MetricsPath: cfg.Metrics.Path,
			CallTimeout: cfg.Loop.GetCallTimeoutDuration(),
			Logger:      logger,
		}
		apiSrv := api.NewServer(apiCfg)
		httpSrv := &http.Server{
			Addr:              cfg.API.Address,
			Handler:           apiSrv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("api listening", "address", cfg.API.Address)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return errors.Join(httpSrv.Shutdown(shutdownCtx), apiSrv.Close())
		})
	}

	logger.Info("streamd started",
		"rtmp_enabled", cfg.RTMP.Enabled,
		"api_enabled", cfg.API.Enabled,
		"metrics_enabled", cfg.Metrics.Enabled,
	)
	return g.Wait()
}

// newIngest wires RTMP publishers to streams on the loop.
func newIngest(cfg *config.Config, streamCfg mediastream.Config, m *metrics.Metrics, logger *slog.Logger) *ingest.Server {
	bridge := ingest.NewStreamBridge(streamCfg, cfg.Ingest.AutoProduce)
	ingestCfg := ingest.Config{
		BandwidthWindowSize: cfg.RTMP.BandwidthWindowSize,
		MTU:                 cfg.RTMP.MTU,
		Logger:              logger,
		OnPublish:           bridge.OnPublish,
		OnUnpublish:         bridge.OnUnpublish,
	}
	if m != nil {
		ingestCfg.Recorder = m
	}
	return ingest.NewServer(ingestCfg)
}

// newDevices returns nil when no virtual device is configured.
func newDevices(cfg config.DevicesConfig, streamCfg mediastream.Config) *mediastream.MediaDevices {
	if !cfg.Enabled() {
		return nil
	}
	convert := func(list []config.DeviceConfig) []devices.Device {
		out := make([]devices.Device, 0, len(list))
		for _, d := range list {
			out = append(out, devices.Device{ID: d.ID, Label: d.Label, MimeType: d.Codec})
		}
		return out
	}
	provider := devices.NewVirtualProvider(convert(cfg.Video), convert(cfg.Audio))
	return mediastream.NewMediaDevices(provider, streamCfg)
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}
