package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zendesk/clj-headlights/internal/codec"
	"github.com/zendesk/clj-headlights/internal/fsys"
	"github.com/zendesk/clj-headlights/internal/pardo"
)

// Set with -ldflags "-X main.version=..." at release time.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print headlights version and the storage schemes, input formats and transform modules it was built with",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func printVersion(w io.Writer) {
	module, commit := "", gitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		module = info.Main.Path
		if commit == "" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}

	fmt.Fprintf(w, "headlights %s", version)
	if module != "" {
		fmt.Fprintf(w, " (%s)", module)
	}
	fmt.Fprintln(w)
	if commit != "" {
		fmt.Fprintf(w, "git commit: %s\n", commit)
	}
	if buildDate != "" {
		fmt.Fprintf(w, "build date: %s\n", buildDate)
	}
	fmt.Fprintf(w, "schemes: %s\n", strings.Join(fsys.RegisteredSchemes(), ", "))
	fmt.Fprintf(w, "formats: %s\n", strings.Join(codec.RegisteredFormats(), ", "))
	fmt.Fprintf(w, "modules: %s\n", strings.Join(pardo.Default().Modules(), ", "))
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
