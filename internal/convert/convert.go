// Package convert runs one batch end to end: collect links, transcode them,
// merge the result into the template and optionally write the artifact.
package convert

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/artifact"
	"github.com/John-Robertt/v2clash/internal/compiler"
	"github.com/John-Robertt/v2clash/internal/metrics"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/source"
	"github.com/John-Robertt/v2clash/internal/template"
)

type Converter struct {
	Source   source.Source
	Template template.Loader
	Merge    template.MergeOptions

	// OutputPath, when set, receives the merged YAML after every successful
	// conversion.
	OutputPath string
	// Timeout bounds a whole run. Zero means no extra bound.
	Timeout time.Duration

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Output struct {
	YAML     []byte
	Proxies  []model.Proxy
	Skipped  []compiler.Skip
	UserInfo model.SubscriptionUserInfo

	// Empty is set when no link decoded. YAML is nil and nothing was
	// written.
	Empty bool
}

// Request narrows a single run.
type Request struct {
	// Email rescopes client-scoped sources (inbound exports) to one client.
	Email string
	// SkipArtifact disables the artifact write for this run.
	SkipArtifact bool
}

func (c *Converter) Convert(ctx context.Context) (Output, error) {
	return c.ConvertRequest(ctx, Request{})
}

func (c *Converter) ConvertRequest(ctx context.Context, req Request) (out Output, err error) {
	log := c.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		switch {
		case err != nil:
			outcome = metrics.OutcomeError
		case out.Empty:
			outcome = metrics.OutcomeEmpty
		}
		c.Metrics.ObserveConversion(outcome, time.Since(start))
	}()

	src := source.ForClient(c.Source, req.Email)
	links, info, err := src.Links(ctx)
	if err != nil {
		return Output{}, err
	}
	out.UserInfo = info

	opt := compiler.Options{Logger: log}
	if c.Metrics != nil {
		opt.Observer = c.Metrics
	}
	res := compiler.Transcode(links, opt)
	out.Proxies = res.Proxies
	out.Skipped = res.Skipped
	if res.Empty() {
		log.WithFields(logrus.Fields{"links": len(links), "skipped": len(res.Skipped)}).Warn("no valid proxies")
		out.Empty = true
		return out, nil
	}

	// A template failure aborts the run before anything is written.
	doc, err := c.Template.Load(ctx)
	if err != nil {
		return Output{}, err
	}
	if err := template.Merge(doc, res.Proxies, c.Merge); err != nil {
		return Output{}, err
	}
	out.YAML, err = doc.Encode()
	if err != nil {
		return Output{}, err
	}

	if c.OutputPath != "" && !req.SkipArtifact {
		if err := artifact.WriteFile(c.OutputPath, out.YAML); err != nil {
			return Output{}, err
		}
	}

	log.WithFields(logrus.Fields{
		"proxies":    len(out.Proxies),
		"skipped":    len(out.Skipped),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("conversion done")
	return out, nil
}

// RefreshJob adapts Convert to an artifact.Refresher job.
func (c *Converter) RefreshJob() artifact.Job {
	return func(ctx context.Context) error {
		_, err := c.Convert(ctx)
		return err
	}
}
