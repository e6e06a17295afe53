package main

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/v2clash/internal/config"
	"github.com/John-Robertt/v2clash/internal/convert"
	"github.com/John-Robertt/v2clash/internal/metrics"
	"github.com/John-Robertt/v2clash/internal/template"
)

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly; otherwise flags alone may describe the run.
func loadConfig(cmd *cobra.Command, rf *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(rf.configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
			cfg = config.Default()
		} else {
			return nil, err
		}
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if rf.logLevel != "" {
		cfg.Log.Level = rf.logLevel
	}
	if rf.logFormat != "" {
		cfg.Log.Format = rf.logFormat
	}
	return cfg, nil
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// overrideSources replaces the configured sources when any of the source
// flags were given.
func overrideSources(cmd *cobra.Command, cfg *config.Config, links, subs, inbounds []string, email string) {
	if !cmd.Flags().Changed("links") && !cmd.Flags().Changed("sub") && !cmd.Flags().Changed("inbounds") {
		return
	}
	out := make([]config.SourceConfig, 0, len(links)+len(subs)+len(inbounds))
	for _, p := range links {
		out = append(out, config.SourceConfig{Type: config.SourceFile, Path: p})
	}
	for _, u := range subs {
		out = append(out, config.SourceConfig{Type: config.SourceSubscription, URL: u})
	}
	for _, p := range inbounds {
		out = append(out, config.SourceConfig{Type: config.SourceInbounds, Path: p, Email: email})
	}
	cfg.Sources = out
}

func newLogger(lc config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	switch strings.ToLower(lc.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// app is the wiring shared by serve and convert.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	metrics  *metrics.Metrics
	template template.Loader
	conv     *convert.Converter
}

func newApp(cfg *config.Config, logOut io.Writer, m *metrics.Metrics) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	tl := template.NewLoader(cfg.Template, cfg.FetchOptions(), log)
	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		template: tl,
		conv: &convert.Converter{
			Source:     cfg.BuildSource(log),
			Template:   tl,
			Merge:      cfg.MergeOptions(),
			OutputPath: cfg.Output,
			Timeout:    cfg.Timeouts.Convert,
			Logger:     log,
			Metrics:    m,
		},
	}, nil
}
