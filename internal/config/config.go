// Package config loads the YAML file that describes where links come from,
// which template they are merged into and how the service runs.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/v2clash/internal/fetch"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/source"
	"github.com/John-Robertt/v2clash/internal/template"
)

const (
	SourceFile         = "file"
	SourceSubscription = "subscription"
	SourceInbounds     = "inbounds"
)

const (
	DefaultListen         = "127.0.0.1:25500"
	DefaultFetchTimeout   = 15 * time.Second
	DefaultConvertTimeout = 60 * time.Second
)

type Config struct {
	Listen        string         `yaml:"listen"`
	Template      string         `yaml:"template"`
	Output        string         `yaml:"output"`
	Selector      SelectorConfig `yaml:"selector"`
	Sources       []SourceConfig `yaml:"sources"`
	Refresh       string         `yaml:"refresh"`
	WatchTemplate bool           `yaml:"watch_template"`
	Timeouts      TimeoutConfig  `yaml:"timeouts"`
	Log           LogConfig      `yaml:"log"`
}

type SelectorConfig struct {
	Name     string `yaml:"name"`
	Position string `yaml:"position"` // front | back
}

type SourceConfig struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
	Email  string `yaml:"email"`
	Domain string `yaml:"domain"`
}

type TimeoutConfig struct {
	Fetch   time.Duration `yaml:"fetch"`
	Convert time.Duration `yaml:"convert"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		Listen:   DefaultListen,
		Selector: SelectorConfig{Name: template.DefaultSelectorName, Position: string(template.PositionFront)},
		Timeouts: TimeoutConfig{Fetch: DefaultFetchTimeout, Convert: DefaultConvertTimeout},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and parses path. The result is not validated; callers apply flag
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{
			AppError: model.AppError{
				Code:    "CONFIG_READ_ERROR",
				Message: "配置文件读取失败",
				Stage:   "parse_config",
				URL:     path,
			},
			Cause: err,
		}
	}
	return Parse(path, b)
}

// Parse decodes a config document over Default(). Unknown keys and
// multi-document input are rejected.
func Parse(name string, data []byte) (*Config, error) {
	cfg := Default()
	if err := yamlDecodeStrict(string(data), cfg); err != nil {
		return nil, &ParseError{
			AppError: model.AppError{
				Code:    "CONFIG_PARSE_ERROR",
				Message: "配置 YAML 解析失败",
				Stage:   "parse_config",
				URL:     name,
				Snippet: truncateSnippet(string(data), 200),
			},
			Cause: err,
		}
	}
	return cfg, nil
}

func yamlDecodeStrict(content string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		// An empty file keeps the defaults.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return invalid("listen 不能为空", "", "", nil)
	}
	if strings.TrimSpace(c.Template) == "" {
		return invalid("template 不能为空", "", "expected: 本地路径或 http(s) URL", nil)
	}
	if isRemote(c.Template) {
		if err := validateHTTPURL(c.Template); err != nil {
			return invalid("template URL 不合法", c.Template, "", err)
		}
	}
	if strings.TrimSpace(c.Selector.Name) == "" {
		return invalid("selector.name 不能为空", "", "", nil)
	}
	if _, err := template.ParsePosition(c.Selector.Position); err != nil {
		return invalid("selector.position 不合法", c.Selector.Position, "expected: front | back", err)
	}

	if len(c.Sources) == 0 {
		return invalid("sources 不能为空", "", "expected: 至少一个 file / subscription / inbounds 来源", nil)
	}
	for i, s := range c.Sources {
		if err := s.validate(); err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.AppError.Message = fmt.Sprintf("sources[%d]: %s", i, pe.AppError.Message)
			}
			return err
		}
	}

	if c.Refresh != "" {
		if _, err := cron.ParseStandard(c.Refresh); err != nil {
			return invalid("refresh 不是合法的 cron 表达式", c.Refresh, "expected: \"*/10 * * * *\" 或 \"@every 10m\"", err)
		}
		if c.Output == "" {
			return invalid("设置 refresh 时 output 不能为空", "", "", nil)
		}
	}
	if c.Timeouts.Fetch < 0 || c.Timeouts.Convert < 0 {
		return invalid("timeouts 不能为负数", "", "", nil)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level 不合法", c.Log.Level, "expected: debug | info | warn | error", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format 不合法", c.Log.Format, "expected: text | json", nil)
	}
	return nil
}

func (s SourceConfig) validate() error {
	switch s.Type {
	case SourceFile, SourceInbounds:
		if strings.TrimSpace(s.Path) == "" {
			return invalid(s.Type+" 来源缺少 path", "", "", nil)
		}
	case SourceSubscription:
		if err := validateHTTPURL(s.URL); err != nil {
			return invalid("subscription 来源 url 不合法", s.URL, "", err)
		}
	default:
		return invalid("来源类型不支持："+s.Type, s.Type, "supported: file, subscription, inbounds", nil)
	}
	return nil
}

// FetchOptions is what remote sources and templates are fetched with.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{Timeout: c.Timeouts.Fetch}
}

func (c *Config) MergeOptions() template.MergeOptions {
	pos, _ := template.ParsePosition(c.Selector.Position)
	return template.MergeOptions{SelectorName: c.Selector.Name, Position: pos}
}

// BuildSource turns the configured sources into one source.Source. A single
// entry is returned as is; several are combined with source.Multi.
func (c *Config) BuildSource(log logrus.FieldLogger) source.Source {
	out := make([]source.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		switch s.Type {
		case SourceFile:
			out = append(out, source.FileSource{Path: s.Path})
		case SourceSubscription:
			out = append(out, source.SubscriptionSource{URL: s.URL, Options: c.FetchOptions(), Logger: log})
		case SourceInbounds:
			out = append(out, source.InboundFileSource{Path: s.Path, Email: s.Email, Domain: s.Domain, Logger: log})
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return source.Multi{Sources: out, Logger: log}
}

func invalid(message, snippet, hint string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    "CONFIG_VALIDATE_ERROR",
			Message: message,
			Stage:   "parse_config",
			Snippet: snippet,
			Hint:    hint,
		},
		Cause: cause,
	}
}

func isRemote(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u == nil || !u.IsAbs() {
		return errors.New("url must be absolute")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http/https")
	}
	if u.Host == "" {
		return errors.New("url host is empty")
	}
	return nil
}

func truncateSnippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	for max > 0 && !utf8RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
