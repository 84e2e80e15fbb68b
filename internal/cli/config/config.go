// Package config loads the evcodec command-line tool's dialect and
// writer settings from flags, an optional .evcodec.yaml file, and
// EVCODEC_-prefixed environment variables, and backs its --watch mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	ev "github.com/faceless2/evcodec"
)

// ReaderConfig mirrors the subset of evcodec.ReaderOptions a user would
// reasonably want to set from a config file or environment variable.
type ReaderConfig struct {
	AllowUnquotedKeys   bool `mapstructure:"allow_unquoted_keys"`
	AllowTrailingComma  bool `mapstructure:"allow_trailing_comma"`
	AllowComments       bool `mapstructure:"allow_comments"`
	AllowNaN            bool `mapstructure:"allow_nan"`
	BigDecimal          bool `mapstructure:"big_decimal"`
	MaxDepth            int  `mapstructure:"max_depth"`
	StrictDuplicateKeys bool `mapstructure:"strict_duplicate_keys"`
	StrictTags          bool `mapstructure:"strict_tags"`
}

// WriterConfig mirrors the subset of evcodec.WriterOptions a user would
// reasonably want to set from a config file or environment variable.
type WriterConfig struct {
	Sorted          bool   `mapstructure:"sorted"`
	Indent          uint32 `mapstructure:"indent"`
	SpaceAfterColon bool   `mapstructure:"space_after_colon"`
	SpaceAfterComma bool   `mapstructure:"space_after_comma"`
	AllowNaN        bool   `mapstructure:"allow_nan"`
}

// Config is the full decoded settings tree for the CLI.
type Config struct {
	Reader ReaderConfig `mapstructure:"reader"`
	Writer WriterConfig `mapstructure:"writer"`
}

// DefaultConfig mirrors evcodec.DefaultReaderOptions/DefaultWriterOptions.
func DefaultConfig() Config {
	return Config{
		Reader: ReaderConfig{MaxDepth: 1000},
	}
}

// Loader resolves Config from .evcodec.yaml (or an explicit --config
// path), layered under EVCODEC_-prefixed environment overrides.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader that looks for .evcodec.yaml in the current
// directory and the user's home directory.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName(".evcodec")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetEnvPrefix("EVCODEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("reader.max_depth", defaults.Reader.MaxDepth)
	v.SetDefault("writer.sorted", defaults.Writer.Sorted)

	return &Loader{v: v}
}

// Load reads the config file (explicitPath overrides the default search
// path when non-empty) and decodes it into Config. A missing file is not
// an error: Config is left at its defaults, then environment overrides
// are applied by viper regardless.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		l.v.SetConfigFile(explicitPath)
	}
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path actually read, or "" if none was found.
func (l *Loader) ConfigFileUsed() string { return l.v.ConfigFileUsed() }

// ToReaderOptions translates c onto the baseline dialect returned by
// evcodec.DefaultReaderOptions.
func (c ReaderConfig) ToReaderOptions() ev.ReaderOptions {
	opts := ev.DefaultReaderOptions()
	opts.AllowUnquotedKeys = c.AllowUnquotedKeys
	opts.AllowTrailingComma = c.AllowTrailingComma
	opts.AllowComments = c.AllowComments
	opts.AllowNaN = c.AllowNaN
	opts.BigDecimal = c.BigDecimal
	opts.StrictDuplicateKeys = c.StrictDuplicateKeys
	opts.StrictTags = c.StrictTags
	if c.MaxDepth != 0 {
		opts.MaxDepth = c.MaxDepth
	}
	return opts
}

// ToWriterOptions translates c onto the baseline returned by
// evcodec.DefaultWriterOptions.
func (c WriterConfig) ToWriterOptions() ev.WriterOptions {
	opts := ev.DefaultWriterOptions()
	opts.Sorted = c.Sorted
	opts.Indent = c.Indent
	opts.SpaceAfterColon = c.SpaceAfterColon
	opts.SpaceAfterComma = c.SpaceAfterComma
	opts.AllowNaN = c.AllowNaN
	return opts
}

// WatchFile watches path for writes/creates/renames and invokes onChange
// for each one, the same fsnotify-backed mechanism viper uses internally
// for WatchConfig, pointed at an arbitrary input file rather than a
// config file so "evcodec convert --watch" can re-run a conversion every
// time its input changes.
func WatchFile(path string, onChange func(fsnotify.Event)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		v.SetConfigType(ext)
	} else {
		v.SetConfigType("json")
	}
	v.OnConfigChange(onChange)
	v.WatchConfig()
	return nil
}
