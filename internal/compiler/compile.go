package compiler

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/link"
	"github.com/John-Robertt/v2clash/internal/model"
)

// LinkObserver receives one call per transcoded link. result is "ok" or the
// decode failure kind ("unsupported_scheme", "malformed", "incomplete").
type LinkObserver interface {
	ObserveLink(result string)
}

type Options struct {
	Logger   logrus.FieldLogger
	Observer LinkObserver
}

// Skip records one link that did not make it into the batch.
type Skip struct {
	Ordinal int
	Kind    link.Kind
	Snippet string
	Err     error
}

type Result struct {
	Proxies []model.Proxy
	Skipped []Skip
}

// Empty reports the "no valid proxies" condition. It is not an error: the
// caller decides whether an empty batch is a no-op or a 404.
func (r Result) Empty() bool { return len(r.Proxies) == 0 }

// Transcode decodes and normalizes every link in order. A failing link is
// logged and skipped; it never aborts the batch. The output keeps input order.
func Transcode(links []string, opt Options) Result {
	log := opt.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	res := Result{Proxies: make([]model.Proxy, 0, len(links))}
	for i, raw := range links {
		p, err := link.Decode(raw, i)
		if err != nil {
			kind := link.KindOf(err)
			snippet := link.Snippet(strings.TrimSpace(raw))
			res.Skipped = append(res.Skipped, Skip{Ordinal: i, Kind: kind, Snippet: snippet, Err: err})
			log.WithFields(logrus.Fields{
				"ordinal": i,
				"kind":    kind.String(),
				"snippet": snippet,
			}).WithError(err).Warn("skip link")
			observe(opt.Observer, kind.String())
			continue
		}
		res.Proxies = append(res.Proxies, Normalize(p))
		observe(opt.Observer, "ok")
	}

	log.WithFields(logrus.Fields{
		"total":   len(links),
		"proxies": len(res.Proxies),
		"skipped": len(res.Skipped),
	}).Debug("transcode done")
	return res
}

func observe(o LinkObserver, result string) {
	if o != nil {
		o.ObserveLink(result)
	}
}

// SplitLinks splits newline-delimited text into trimmed lines, dropping blank
// lines and "#" comments.
func SplitLinks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	// Strip UTF-8 BOM.
	text = strings.TrimPrefix(text, "\ufeff")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		out = append(out, ln)
	}
	return out
}
