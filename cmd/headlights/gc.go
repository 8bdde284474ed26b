package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zendesk/clj-headlights/cmd/headlights/config"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove temp directories left behind by failed or abandoned attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		s, err := newSink(cfg, nil)
		if err != nil {
			return err
		}
		report, err := s.CollectGarbage(cmdContext(), gcForce)
		if err != nil {
			return err
		}
		fmt.Printf("partitions: %d, removed: %d, kept (uncommitted): %d\n",
			report.Partitions, len(report.Removed), len(report.Kept))
		for _, k := range report.Kept {
			fmt.Printf("  kept %s\n", k)
		}
		return nil
	},
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "also remove temp directories of uncommitted partitions")
}
