package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/v2clash/internal/source"
	"github.com/John-Robertt/v2clash/internal/template"
)

const fullConfig = `
listen: 0.0.0.0:8080
template: ./template.yaml
output: ./out/clash.yaml
selector:
  name: PROXY
  position: back
sources:
  - type: file
    path: ./links.txt
  - type: subscription
    url: https://sub.example.com/api/v1/client
  - type: inbounds
    path: ./inbounds.json
    email: alice
    domain: vpn.example.com
refresh: "@every 10m"
watch_template: true
timeouts:
  fetch: 5s
  convert: 30s
log:
  level: debug
  format: json
`

func mustParse(t *testing.T, text string) *Config {
	t.Helper()
	cfg, err := Parse("config.yaml", []byte(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestParse_Full(t *testing.T) {
	cfg := mustParse(t, fullConfig)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8080" || cfg.Output != "./out/clash.yaml" || !cfg.WatchTemplate {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Timeouts.Fetch != 5*time.Second || cfg.Timeouts.Convert != 30*time.Second {
		t.Fatalf("timeouts=%+v", cfg.Timeouts)
	}
	if len(cfg.Sources) != 3 || cfg.Sources[2].Email != "alice" || cfg.Sources[2].Domain != "vpn.example.com" {
		t.Fatalf("sources=%+v", cfg.Sources)
	}
	mo := cfg.MergeOptions()
	if mo.SelectorName != "PROXY" || mo.Position != template.PositionBack {
		t.Fatalf("merge options=%+v", mo)
	}
	if got := cfg.FetchOptions().Timeout; got != 5*time.Second {
		t.Fatalf("fetch timeout=%v", got)
	}
}

func TestParse_DefaultsKept(t *testing.T) {
	cfg := mustParse(t, "template: t.yaml\nsources:\n  - type: file\n    path: links.txt\n")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Fatalf("listen=%q, want=%q", cfg.Listen, DefaultListen)
	}
	if cfg.Selector.Name != template.DefaultSelectorName {
		t.Fatalf("selector=%q", cfg.Selector.Name)
	}
	if cfg.Timeouts.Fetch != DefaultFetchTimeout || cfg.Timeouts.Convert != DefaultConvertTimeout {
		t.Fatalf("timeouts=%+v", cfg.Timeouts)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestParse_EmptyDocumentKeepsDefaults(t *testing.T) {
	cfg := mustParse(t, "")
	if cfg.Listen != DefaultListen {
		t.Fatalf("listen=%q", cfg.Listen)
	}
}

func TestParse_Strict(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown top key", "template: t.yaml\nunknown_field: 1\n"},
		{"unknown nested key", "selector:\n  color: red\n"},
		{"multiple documents", "listen: a:1\n---\nlisten: b:2\n"},
		{"bad duration", "timeouts:\n  fetch: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("config.yaml", []byte(tt.in))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if pe.AppError.Code != "CONFIG_PARSE_ERROR" {
				t.Fatalf("code=%q, want=%q", pe.AppError.Code, "CONFIG_PARSE_ERROR")
			}
			if pe.AppError.Stage != "parse_config" {
				t.Fatalf("stage=%q, want=%q", pe.AppError.Stage, "parse_config")
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	base := "template: t.yaml\nsources:\n  - type: file\n    path: links.txt\n"
	tests := []struct {
		name string
		in   string
	}{
		{"no template", "sources:\n  - type: file\n    path: links.txt\n"},
		{"no sources", "template: t.yaml\n"},
		{"bad source type", "template: t.yaml\nsources:\n  - type: ftp\n    path: x\n"},
		{"file without path", "template: t.yaml\nsources:\n  - type: file\n"},
		{"subscription bad url", "template: t.yaml\nsources:\n  - type: subscription\n    url: ftp://x\n"},
		{"template bad url", "template: \"http://\"\nsources:\n  - type: file\n    path: a\n"},
		{"bad position", base + "selector:\n  position: middle\n"},
		{"empty selector", base + "selector:\n  name: \"\"\n"},
		{"bad cron", base + "output: o.yaml\nrefresh: every now and then\n"},
		{"refresh without output", base + "refresh: \"@every 1m\"\n"},
		{"negative timeout", base + "timeouts:\n  fetch: -1s\n"},
		{"bad log level", base + "log:\n  level: loud\n"},
		{"bad log format", base + "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustParse(t, tt.in)
			err := cfg.Validate()
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if pe.AppError.Code != "CONFIG_VALIDATE_ERROR" {
				t.Fatalf("code=%q, want=%q", pe.AppError.Code, "CONFIG_VALIDATE_ERROR")
			}
		})
	}
}

func TestValidate_SourceIndexInMessage(t *testing.T) {
	cfg := mustParse(t, "template: t.yaml\nsources:\n  - type: file\n    path: a\n  - type: inbounds\n")
	err := cfg.Validate()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if want := "sources[1]: inbounds 来源缺少 path"; pe.AppError.Message != want {
		t.Fatalf("message=%q, want=%q", pe.AppError.Message, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.AppError.Code != "CONFIG_READ_ERROR" {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist in chain")
	}
}

func TestLoad_File(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(fullConfig), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Refresh != "@every 10m" {
		t.Fatalf("refresh=%q", cfg.Refresh)
	}
}

func TestBuildSource(t *testing.T) {
	single := mustParse(t, "template: t.yaml\nsources:\n  - type: file\n    path: links.txt\n")
	if _, ok := single.BuildSource(nil).(source.FileSource); !ok {
		t.Fatalf("single source should not be wrapped, got %T", single.BuildSource(nil))
	}

	cfg := mustParse(t, fullConfig)
	m, ok := cfg.BuildSource(nil).(source.Multi)
	if !ok {
		t.Fatalf("got %T, want source.Multi", cfg.BuildSource(nil))
	}
	if len(m.Sources) != 3 {
		t.Fatalf("sources=%d, want=3", len(m.Sources))
	}
	sub, ok := m.Sources[1].(source.SubscriptionSource)
	if !ok || sub.URL != "https://sub.example.com/api/v1/client" || sub.Options.Timeout != 5*time.Second {
		t.Fatalf("subscription source=%+v", m.Sources[1])
	}
	ib, ok := m.Sources[2].(source.InboundFileSource)
	if !ok || ib.Email != "alice" || ib.Domain != "vpn.example.com" {
		t.Fatalf("inbound source=%+v", m.Sources[2])
	}
}
