package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/v2clash/internal/convert"
	"github.com/John-Robertt/v2clash/internal/metrics"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/source"
	"github.com/John-Robertt/v2clash/internal/template"
)

const testTemplate = "mixed-port: 7890\nproxies: []\nproxy-groups: []\nrules:\n  - MATCH,DIRECT\n"

const testLinks = "vless://11111111-2222-3333-4444-555555555555@a.example.com:443?type=ws&security=tls&path=%2Fws#A\n" +
	"not-a-link\n" +
	"vmess://eyJhZGQiOiJiLmV4YW1wbGUuY29tIiwicG9ydCI6IjQ0MyIsImlkIjoidXVpZC1iIiwicHMiOiJCIn0=\n"

const testExport = `[{"id":1,"remark":"HK","enable":true,"listen":"","port":443,"protocol":"vless",` +
	`"settings":"{\"clients\":[{\"id\":\"uuid-a\",\"email\":\"alice\"},{\"id\":\"uuid-b\",\"email\":\"bob\"}]}",` +
	`"streamSettings":"{\"network\":\"tcp\",\"security\":\"none\"}",` +
	`"clientStats":[{"email":"alice","up":5,"down":6}]}]`

type fixture struct {
	dir     string
	conv    *convert.Converter
	metrics *metrics.Metrics
}

func writeTestFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newFixture(t *testing.T, src func(dir string) source.Source, templateText string) *fixture {
	t.Helper()
	dir := t.TempDir()
	tp := filepath.Join(dir, "template.yaml")
	if templateText != "" {
		writeTestFile(t, tp, templateText)
	}
	logger, _ := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		dir:     dir,
		metrics: m,
		conv: &convert.Converter{
			Source:     src(dir),
			Template:   template.NewStore(tp, logger),
			Merge:      template.MergeOptions{SelectorName: "PROXY"},
			OutputPath: filepath.Join(dir, "out.yaml"),
			Logger:     logger,
			Metrics:    m,
		},
	}
}

func fileSource(t *testing.T, text string) func(dir string) source.Source {
	return func(dir string) source.Source {
		p := filepath.Join(dir, "links.txt")
		writeTestFile(t, p, text)
		return source.FileSource{Path: p}
	}
}

func (f *fixture) handler() http.Handler {
	logger, _ := logtest.NewNullLogger()
	return NewHandler(Options{Converter: f.conv, Metrics: f.metrics, Logger: logger})
}

func doGET(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.AppError {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	return resp.Error
}

func TestClash_OK(t *testing.T) {
	f := newFixture(t, fileSource(t, testLinks), testTemplate)
	rr := doGET(t, f.handler(), "/clash")

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/yaml; charset=utf-8" {
		t.Fatalf("Content-Type=%q", got)
	}
	if got := rr.Header().Get("Subscription-Userinfo"); got != "upload=0; download=0; total=0; expire=0" {
		t.Fatalf("Subscription-Userinfo=%q", got)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="clash.yaml"`) {
		t.Fatalf("Content-Disposition=%q", cd)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("missing %s", RequestIDHeader)
	}

	var cfg struct {
		Proxies     []model.Proxy `yaml:"proxies"`
		ProxyGroups []model.Group `yaml:"proxy-groups"`
		Rules       []string      `yaml:"rules"`
	}
	if err := yaml.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("body is not YAML: %v", err)
	}
	if len(cfg.Proxies) != 2 || cfg.Proxies[0].Name != "A" || cfg.Proxies[1].Name != "B" {
		t.Fatalf("proxies=%+v", cfg.Proxies)
	}
	if len(cfg.ProxyGroups) != 1 || cfg.ProxyGroups[0].Name != "PROXY" || len(cfg.ProxyGroups[0].Members) != 2 {
		t.Fatalf("groups=%+v", cfg.ProxyGroups)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0] != "MATCH,DIRECT" {
		t.Fatalf("rules=%q", cfg.Rules)
	}

	// Requests without an email refresh the artifact.
	written, err := os.ReadFile(filepath.Join(f.dir, "out.yaml"))
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if string(written) != rr.Body.String() {
		t.Fatalf("artifact differs from response")
	}
}

func TestClash_FileNameQuery(t *testing.T) {
	f := newFixture(t, fileSource(t, testLinks), testTemplate)
	rr := doGET(t, f.handler(), "/clash?fileName=my%20nodes")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	cd := rr.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="my nodes.yaml"`) || !strings.Contains(cd, "filename*=UTF-8''my%20nodes.yaml") {
		t.Fatalf("Content-Disposition=%q", cd)
	}
}

func TestClash_EmptyResult404(t *testing.T) {
	f := newFixture(t, fileSource(t, "ss://abc\njunk\n"), testTemplate)
	rr := doGET(t, f.handler(), "/clash")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want=404 body=%s", rr.Code, rr.Body.String())
	}
	if e := decodeError(t, rr); e.Code != "NO_VALID_PROXIES" {
		t.Fatalf("code=%q, want=%q", e.Code, "NO_VALID_PROXIES")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "out.yaml")); !os.IsNotExist(err) {
		t.Fatalf("artifact should not exist, stat err=%v", err)
	}
}

func TestClash_TemplateUnreadable500(t *testing.T) {
	f := newFixture(t, fileSource(t, testLinks), "proxies: [\n")
	rr := doGET(t, f.handler(), "/clash")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=500 body=%s", rr.Code, rr.Body.String())
	}
	if e := decodeError(t, rr); e.Code != template.CodeUnreadable {
		t.Fatalf("code=%q, want=%q", e.Code, template.CodeUnreadable)
	}
}

func TestClash_TemplateMissing500(t *testing.T) {
	f := newFixture(t, fileSource(t, testLinks), "")
	rr := doGET(t, f.handler(), "/clash")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=500", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != template.CodeUnreadable || e.Stage != "load_template" {
		t.Fatalf("error=%+v", e)
	}
}

func TestClash_InvalidQuery(t *testing.T) {
	f := newFixture(t, fileSource(t, testLinks), testTemplate)
	tests := []string{
		"/clash?target=surge",
		"/clash?email=a&email=b",
		"/clash?fileName=a%2Fb",
	}
	for _, target := range tests {
		rr := doGET(t, f.handler(), target)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d, want=400", target, rr.Code)
		}
		if e := decodeError(t, rr); e.Code != "INVALID_ARGUMENT" || e.Stage != "validate_request" {
			t.Fatalf("%s: error=%+v", target, e)
		}
	}
}

func inboundSource(t *testing.T, email string) func(dir string) source.Source {
	return func(dir string) source.Source {
		p := filepath.Join(dir, "inbounds.json")
		writeTestFile(t, p, testExport)
		return source.InboundFileSource{Path: p, Email: email, Domain: "hk.example.com"}
	}
}

func TestClash_EmailSelectsClientAndSkipsArtifact(t *testing.T) {
	f := newFixture(t, inboundSource(t, ""), testTemplate)
	rr := doGET(t, f.handler(), "/clash?email=bob")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var cfg struct {
		Proxies []model.Proxy `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("body is not YAML: %v", err)
	}
	if len(cfg.Proxies) != 1 || cfg.Proxies[0].UUID != "uuid-b" || cfg.Proxies[0].Server != "hk.example.com" {
		t.Fatalf("proxies=%+v", cfg.Proxies)
	}
	if got := rr.Header().Get("Subscription-Userinfo"); got != "upload=5; download=6; total=0; expire=0" {
		t.Fatalf("Subscription-Userinfo=%q", got)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "out.yaml")); !os.IsNotExist(err) {
		t.Fatalf("per-client request must not write the artifact, stat err=%v", err)
	}
}

func TestClash_InboundWithoutEmail400(t *testing.T) {
	f := newFixture(t, inboundSource(t, ""), testTemplate)
	rr := doGET(t, f.handler(), "/clash")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=400 body=%s", rr.Code, rr.Body.String())
	}
	if e := decodeError(t, rr); e.Code != "CLIENT_REQUIRED" {
		t.Fatalf("code=%q", e.Code)
	}
}

func TestClash_SubscriptionUpstreamStatusKept(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer up.Close()

	f := newFixture(t, func(string) source.Source {
		return source.SubscriptionSource{URL: up.URL + "/sub"}
	}, testTemplate)
	rr := doGET(t, f.handler(), "/clash")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d, want=502 body=%s", rr.Code, rr.Body.String())
	}
	if e := decodeError(t, rr); e.Code != "FETCH_FAILED" || e.Stage != "fetch_sub" {
		t.Fatalf("error=%+v", e)
	}
}

func TestClash_NoConverter(t *testing.T) {
	rr := doGET(t, NewMux(Options{}), "/clash")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want=503", rr.Code)
	}
}
