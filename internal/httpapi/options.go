package httpapi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/convert"
	"github.com/John-Robertt/v2clash/internal/metrics"
)

// Options wires the HTTP surface to one converter.
type Options struct {
	Converter *convert.Converter

	// Metrics backs /metrics and the request/error counters. Nil disables
	// counting and /metrics answers 404.
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger

	// Version and NextRefresh only feed the status document at /.
	Version     string
	NextRefresh func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	return o
}
