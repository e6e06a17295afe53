// Package source provides the link lists a conversion starts from: local
// files, remote subscriptions and 3x-ui inbound exports.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/compiler"
	"github.com/John-Robertt/v2clash/internal/fetch"
	"github.com/John-Robertt/v2clash/internal/inbound"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/userinfo"
)

// Source yields an ordered list of share links and the traffic counters that
// go with them.
type Source interface {
	Links(ctx context.Context) ([]string, model.SubscriptionUserInfo, error)
}

// ClientScoped is implemented by sources whose links depend on the client
// they are rendered for.
type ClientScoped interface {
	ForClient(email string) Source
}

// ForClient rescopes s to email when s supports it. An empty email or a
// source that does not care returns s unchanged.
func ForClient(s Source, email string) Source {
	if email == "" {
		return s
	}
	if cs, ok := s.(ClientScoped); ok {
		return cs.ForClient(email)
	}
	return s
}

const (
	CodeReadError    = "SOURCE_READ_ERROR"
	CodeBase64Decode = "SUB_BASE64_DECODE_ERROR"
)

type SourceError struct {
	AppError model.AppError
	Cause    error
}

func (e *SourceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

func newSourceError(code, message, where string, cause error) error {
	return &SourceError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "load_source",
			URL:     where,
		},
		Cause: cause,
	}
}

// FileSource reads newline-delimited links from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Links(ctx context.Context) ([]string, model.SubscriptionUserInfo, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, newSourceError(CodeReadError, "读取链接文件失败", s.Path, err)
	}
	links, err := splitBody(string(b))
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, newSourceError(CodeBase64Decode, "链接文件 base64 解码失败", s.Path, err)
	}
	return links, model.SubscriptionUserInfo{}, nil
}

// SubscriptionSource fetches a remote subscription. The upstream
// Subscription-Userinfo header, if any, is passed through.
type SubscriptionSource struct {
	URL     string
	Options fetch.Options
	Logger  logrus.FieldLogger
}

func (s SubscriptionSource) Links(ctx context.Context) ([]string, model.SubscriptionUserInfo, error) {
	resp, err := fetch.Fetch(ctx, fetch.KindSubscription, s.URL, s.Options)
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, err
	}
	links, err := splitBody(resp.Text)
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, newSourceError(CodeBase64Decode, "订阅 base64 解码失败", s.URL, err)
	}

	var info model.SubscriptionUserInfo
	if h := resp.Header.Get(userinfo.HeaderName); h != "" {
		info, err = userinfo.Parse(h)
		if err != nil {
			logger(s.Logger).WithError(err).WithField("url", s.URL).Warn("ignore malformed upstream userinfo")
			info = model.SubscriptionUserInfo{}
		}
	}
	return links, info, nil
}

// InboundFileSource renders links for one client from a saved 3x-ui inbound
// export. Domain fills the inbounds' public host.
type InboundFileSource struct {
	Path   string
	Email  string
	Domain string
	Logger logrus.FieldLogger
}

func (s InboundFileSource) Links(ctx context.Context) ([]string, model.SubscriptionUserInfo, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, newSourceError(CodeReadError, "读取 inbound 导出文件失败", s.Path, err)
	}
	list, err := inbound.ParseExport(b)
	if err != nil {
		return nil, model.SubscriptionUserInfo{}, err
	}
	if s.Domain != "" {
		for i := range list {
			if list[i].Domain == "" {
				list[i].Domain = s.Domain
			}
		}
	}
	return inbound.Links(list, s.Email, logger(s.Logger))
}

func (s InboundFileSource) ForClient(email string) Source {
	s.Email = email
	return s
}

// Multi concatenates sources in order and sums their counters. A failing
// source is logged and skipped; Multi fails only when every source fails.
type Multi struct {
	Sources []Source
	Logger  logrus.FieldLogger
}

func (m Multi) Links(ctx context.Context) ([]string, model.SubscriptionUserInfo, error) {
	log := logger(m.Logger)
	var (
		out  []string
		info model.SubscriptionUserInfo
		errs []error
	)
	for i, s := range m.Sources {
		if err := ctx.Err(); err != nil {
			return nil, model.SubscriptionUserInfo{}, err
		}
		links, ui, err := s.Links(ctx)
		if err != nil {
			log.WithError(err).WithField("source", i).Warn("source failed, skipping")
			errs = append(errs, err)
			continue
		}
		out = append(out, links...)
		info = info.Add(ui)
	}
	if len(m.Sources) > 0 && len(errs) == len(m.Sources) {
		return nil, model.SubscriptionUserInfo{}, errors.Join(errs...)
	}
	return out, info, nil
}

func (m Multi) ForClient(email string) Source {
	scoped := make([]Source, 0, len(m.Sources))
	for _, s := range m.Sources {
		scoped = append(scoped, ForClient(s, email))
	}
	return Multi{Sources: scoped, Logger: m.Logger}
}

// splitBody splits a link list. A body without any "://" is treated as a
// base64-encoded list first.
func splitBody(text string) ([]string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if s == "" || strings.Contains(s, "://") {
		return compiler.SplitLinks(s), nil
	}
	decoded, err := decodeBase64(s)
	if err != nil {
		return nil, err
	}
	return compiler.SplitLinks(string(decoded)), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
