package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zendesk/clj-headlights/cmd/headlights/config"
	"github.com/zendesk/clj-headlights/internal/fsys"
	"github.com/zendesk/clj-headlights/internal/sink"
)

func cmdContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()
	return ctx
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, "["+prefix+"] ", log.LstdFlags)
}

// newSink configures the default filesystem registry from cfg and builds the
// sink on top of it.
func newSink(cfg *config.HeadlightsConfig, metrics *sink.Metrics) (*sink.PartitionedFileSink, error) {
	reg := fsys.Configure(cfg.Storage, newLogger("fsys"))
	opts := []sink.Option{
		sink.WithFileSystems(reg),
		sink.WithLogger(newLogger("sink")),
		sink.WithMetrics(metrics),
	}
	if cfg.Output.Compression != "" {
		opts = append(opts, sink.WithCompression(cfg.Output.Compression))
	}
	if cfg.Output.StrictPath {
		opts = append(opts, sink.WithStrictPath())
	}
	return sink.NewPartitionedFileSink(cfg.Output.BasePath, cfg.Output.Filename, opts...)
}
