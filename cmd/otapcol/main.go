// Command otapcol is a thin entrypoint: it decodes a JSON configuration
// file into the component maps pkg/pipeline.BuildFromMap expects,
// registers every component factory this module ships, and runs the
// resulting pipelines until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/batchprocessor"
	"github.com/open-telemetry/otap-go/pkg/exporter/fileexporter"
	"github.com/open-telemetry/otap-go/pkg/exporter/otlpgrpcexporter"
	"github.com/open-telemetry/otap-go/pkg/exporter/segmentexporter"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
	"github.com/open-telemetry/otap-go/pkg/pipeline/pinned"
	"github.com/open-telemetry/otap-go/pkg/pipeline/pool"
	"github.com/open-telemetry/otap-go/pkg/receiver/otlpgrpc"
	"github.com/open-telemetry/otap-go/pkg/receiver/otlphttpreceiver"
	"github.com/open-telemetry/otap-go/pkg/receiver/syslogcef"
	"github.com/open-telemetry/otap-go/pkg/retryprocessor"
	"github.com/open-telemetry/otap-go/pkg/telemetry"
)

// fileConfig is the on-disk shape: pkg/pipeline's component maps plus
// the two ambient stanzas (logging, scheduler) that sit alongside them
// but aren't part of the pipeline data model itself.
type fileConfig struct {
	Logging   telemetry.LoggerConfig `json:"logging"`
	Scheduler string                 `json:"scheduler"` // "pool" (default) or "pinned"

	Receivers  map[string]any `json:"receivers"`
	Processors map[string]any `json:"processors"`
	Exporters  map[string]any `json:"exporters"`
	Extensions map[string]any `json:"extensions"`
	Service    map[string]any `json:"service"`
}

func (f fileConfig) asPipelineMap() map[string]any {
	return map[string]any{
		"receivers":  f.Receivers,
		"processors": f.Processors,
		"exporters":  f.Exporters,
		"extensions": f.Extensions,
		"service":    f.Service,
	}
}

func registry() *pipeline.Registry {
	r := pipeline.NewRegistry()

	r.RegisterReceiver("otlpgrpc", otlpgrpc.Factory)
	r.RegisterReceiver("otlphttp", otlphttpreceiver.Factory)
	r.RegisterReceiver("syslogcef", syslogcef.Factory)

	r.RegisterProcessor("batch", batchprocessor.Factory)
	r.RegisterProcessor("retry", retryprocessor.Factory)

	r.RegisterExporter("file", fileexporter.Factory)
	r.RegisterExporter("segment", segmentexporter.Factory)
	r.RegisterExporter("otlpgrpc", otlpgrpcexporter.Factory)

	return r
}

func buildScheduler(kind string, logger *zap.Logger) pipeline.Scheduler {
	if kind == "pinned" {
		return pinned.New(logger)
	}
	return pool.New(logger)
}

func main() {
	configPath := flag.String("config", "", "path to a JSON pipeline configuration file")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "max time to wait for graceful shutdown")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *shutdownTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "otapcol:", err)
		os.Exit(1)
	}
}

// run loads configPath, starts every declared pipeline, and blocks until
// ctx is cancelled (by an OS signal in main, or directly by a test),
// then shuts down within shutdownTimeout.
func run(ctx context.Context, configPath string, shutdownTimeout time.Duration) error {
	if configPath == "" {
		return fmt.Errorf("otapcol: -config is required")
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("otapcol: reading config: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("otapcol: decoding config: %w", err)
	}

	logger, err := telemetry.NewLogger(fc.Logging)
	if err != nil {
		return fmt.Errorf("otapcol: building logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := pipeline.BuildFromMap(fc.asPipelineMap())
	if err != nil {
		return fmt.Errorf("otapcol: invalid pipeline config: %w", err)
	}

	scheduler := buildScheduler(fc.Scheduler, logger)
	controller := pipeline.NewController(registry(), scheduler, logger)

	if err := controller.Start(ctx, cfg); err != nil {
		return fmt.Errorf("otapcol: starting pipelines: %w", err)
	}
	logger.Info("otapcol started", zap.Int("pipelines", len(cfg.Service.Pipelines)))

	<-ctx.Done()
	logger.Info("otapcol shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := controller.Shutdown(shutdownCtx, shutdownTimeout, "signal"); err != nil {
		return fmt.Errorf("otapcol: shutdown: %w", err)
	}
	return nil
}
