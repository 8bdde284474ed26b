package config

import (
	"github.com/zendesk/clj-headlights/internal/fsys"
	"github.com/zendesk/clj-headlights/internal/runner"
)

type OutputConfig struct {
	BasePath    string `mapstructure:"base_path"`
	Filename    string `mapstructure:"filename"`
	Compression string `mapstructure:"compression"`
	StrictPath  bool   `mapstructure:"strict_path"`
}

type InputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type HeadlightsConfig struct {
	Output     OutputConfig   `mapstructure:"output"`
	Input      InputConfig    `mapstructure:"input"`
	Runner     runner.Options `mapstructure:"runner"`
	Transforms []string       `mapstructure:"transforms"`
	Storage    fsys.Config    `mapstructure:"storage"`
}
