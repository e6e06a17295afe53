package httpapi

import "net/http"

func NewMux(opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	s := &server{opt: opt}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /clash", s.handleClash)
	return mux
}

type server struct {
	opt Options
}
