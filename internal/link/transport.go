package link

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/v2clash/internal/model"
)

// transportFields is what both schemes carry for transport and SNI, whether
// it came from JSON fields (vmess) or query parameters (vless).
type transportFields struct {
	Network     string
	Host        string // ws Host header / h2 host
	Path        string
	ServiceName string
	SNI         string
}

var errUnsupportedNetwork = errors.New("unsupported network")

// applyTransport fills network, the matching *-opts record and servername.
// p.Server and p.TLS must already be set.
func applyTransport(p *model.Proxy, f transportFields) error {
	network := strings.ToLower(strings.TrimSpace(f.Network))
	if network == "" {
		network = model.NetworkTCP
	}
	p.Network = network

	switch network {
	case model.NetworkTCP:
	case model.NetworkWS:
		p.WSOpts = &model.WSOpts{
			Path:    firstNonEmpty(f.Path, "/"),
			Headers: model.WSHeaders{Host: firstNonEmpty(f.Host, p.Server)},
		}
	case model.NetworkH2:
		p.H2Opts = &model.H2Opts{
			Host: []string{firstNonEmpty(f.Host, p.Server)},
			Path: firstNonEmpty(f.Path, "/"),
		}
	case model.NetworkGRPC:
		p.GRPCOpts = &model.GRPCOpts{ServiceName: f.ServiceName}
	default:
		return errUnsupportedNetwork
	}

	switch {
	case f.SNI != "":
		p.ServerName = f.SNI
	case p.TLS:
		p.ServerName = firstNonEmpty(f.Host, p.Server)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parsePort accepts a decimal port. An empty string (or "0") means missing.
func parsePort(s string) (port int, present bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, err
	}
	if n < 1 || n > 65535 {
		return 0, true, errors.New("port out of range")
	}
	return n, true, nil
}

func parseBoolish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// decodeLabel URL-decodes a display label. Labels that are not valid
// percent-encoding are kept verbatim.
func decodeLabel(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	return strings.TrimSpace(s)
}
