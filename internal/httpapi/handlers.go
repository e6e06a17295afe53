package httpapi

import (
	"net/http"
	"time"

	"github.com/John-Robertt/v2clash/internal/link"
	"github.com/John-Robertt/v2clash/internal/model"
)

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}

type statusDoc struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Schemes     []string `json:"schemes"`
	Selector    string   `json:"selector,omitempty"`
	Artifact    string   `json:"artifact,omitempty"`
	NextRefresh string   `json:"next_refresh,omitempty"`
	Endpoints   []string `json:"endpoints"`
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	doc := statusDoc{
		Name:      "v2clash",
		Version:   s.opt.Version,
		Schemes:   link.Schemes(),
		Endpoints: []string{"GET /clash", "GET /healthz", "GET /metrics"},
	}
	if c := s.opt.Converter; c != nil {
		doc.Selector = c.Merge.SelectorName
		doc.Artifact = c.OutputPath
	}
	if s.opt.NextRefresh != nil {
		if t := s.opt.NextRefresh(); !t.IsZero() {
			doc.NextRefresh = t.UTC().Format(time.RFC3339)
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, doc)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.opt.Metrics == nil {
		s.writeError(w, http.StatusNotFound, model.AppError{
			Code:    "NOT_FOUND",
			Message: "metrics 未启用",
			Stage:   "validate_request",
		})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s.opt.Metrics.Handler().ServeHTTP(w, r)
}
