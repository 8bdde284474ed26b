package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zendesk/clj-headlights/cmd/headlights/config"
	"github.com/zendesk/clj-headlights/internal/codec"
	"github.com/zendesk/clj-headlights/internal/compression"
	"github.com/zendesk/clj-headlights/internal/fsys"
	"github.com/zendesk/clj-headlights/internal/pardo"
	"github.com/zendesk/clj-headlights/internal/runner"
	"github.com/zendesk/clj-headlights/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read keyed records and write one file per partition key",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().String("input", "", "input records (JSON lines or CBOR, optionally compressed)")
	runCmd.Flags().String("format", "", "input format: jsonl or cbor (default: from the input file name)")
	runCmd.Flags().Bool("speculative", false, "race a duplicate attempt of every bundle")
	runCmd.Flags().StringSlice("transform", nil, "module/func transforms applied to each record, in order")

	viper.BindPFlag("input.path", runCmd.Flags().Lookup("input"))
	viper.BindPFlag("input.format", runCmd.Flags().Lookup("format"))
	viper.BindPFlag("runner.speculative", runCmd.Flags().Lookup("speculative"))
	viper.BindPFlag("transforms", runCmd.Flags().Lookup("transform"))
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Input.Path == "" {
		return fmt.Errorf("input.path must be set (check config/env/flags)")
	}

	ctx := cmdContext()
	metrics := &sink.Metrics{}
	s, err := newSink(cfg, metrics)
	if err != nil {
		return err
	}

	records, err := readInput(ctx, cfg.Input)
	if err != nil {
		return err
	}

	var fns []*pardo.DoFn
	for _, name := range cfg.Transforms {
		fn, err := pardo.Default().NewDoFn(name)
		if err != nil {
			return err
		}
		fns = append(fns, fn)
	}

	res, err := runner.New(s, fns, cfg.Runner, newLogger("runner")).Run(ctx, records)
	snap := metrics.Snapshot()
	fmt.Printf("partitions: %d, bundles: %d, attempts: %d, committed: %d\n",
		res.Partitions, res.Bundles, res.Attempts, len(res.Committed))
	fmt.Printf("temp files: %d, renames lost: %d, no-op commits: %d, write time: %s\n",
		snap.TempFilesWritten, snap.LostRaces, snap.NoopCommits, snap.WriteTime)
	return err
}

func readInput(ctx context.Context, in config.InputConfig) ([]codec.Record, error) {
	loc := in.Path
	if !strings.HasPrefix(loc, "/") && !strings.Contains(loc, "://") {
		abs, err := filepath.Abs(loc)
		if err != nil {
			return nil, err
		}
		loc = abs
	}
	format := in.Format
	if format == "" {
		format = codec.FormatFromPath(loc)
	}

	f, err := fsys.Open(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	r, err := compression.NewReader(f, compression.FromExtension(loc))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	records, err := codec.ReadAll(r, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", loc, err)
	}
	return records, nil
}
