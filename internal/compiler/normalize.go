package compiler

import (
	"strings"

	"github.com/John-Robertt/v2clash/internal/model"
)

// rule is one pruning step. Rules are applied in slice order and must not
// depend on anything but the record.
type rule struct {
	name  string
	apply func(p *model.Proxy)
}

// normalizeRules is ordered: TLS-off stripping runs before servername
// defaulting, and option pruning runs after every default is in place.
var normalizeRules = []rule{
	{"strip_tls_only", stripTLSOnly},
	{"default_servername", defaultServerName},
	{"prune_transport_opts", pruneTransportOpts},
	{"prune_reality_opts", pruneRealityOpts},
	{"drop_empty_flow", dropEmptyFlow},
}

// Normalize applies the pruning rules to a decoded record and returns the
// result. Normalize is idempotent.
func Normalize(p model.Proxy) model.Proxy {
	p = cloneProxy(p)
	for _, r := range normalizeRules {
		r.apply(&p)
	}
	return p
}

func stripTLSOnly(p *model.Proxy) {
	if p.TLS {
		return
	}
	p.ServerName = ""
	p.SkipCertVerify = false
	p.ClientFingerprint = ""
	p.RealityOpts = nil
}

func defaultServerName(p *model.Proxy) {
	if p.TLS && p.ServerName == "" {
		p.ServerName = p.Server
	}
}

func pruneTransportOpts(p *model.Proxy) {
	// Options that do not belong to the selected network are dropped too.
	if p.Network != model.NetworkWS || p.WSOpts.IsEmpty() {
		p.WSOpts = nil
	}
	if p.Network != model.NetworkH2 || p.H2Opts.IsEmpty() {
		p.H2Opts = nil
	}
	if p.Network != model.NetworkGRPC || p.GRPCOpts.IsEmpty() {
		p.GRPCOpts = nil
	}
}

func pruneRealityOpts(p *model.Proxy) {
	if p.RealityOpts.IsEmpty() {
		p.RealityOpts = nil
	}
}

func dropEmptyFlow(p *model.Proxy) {
	if strings.TrimSpace(p.Flow) == "" {
		p.Flow = ""
	}
}

// cloneProxy copies the option records so Normalize never mutates the
// caller's pointers.
func cloneProxy(p model.Proxy) model.Proxy {
	if p.AlterID != nil {
		v := *p.AlterID
		p.AlterID = &v
	}
	if p.WSOpts != nil {
		v := *p.WSOpts
		p.WSOpts = &v
	}
	if p.H2Opts != nil {
		v := *p.H2Opts
		v.Host = append([]string(nil), v.Host...)
		p.H2Opts = &v
	}
	if p.GRPCOpts != nil {
		v := *p.GRPCOpts
		p.GRPCOpts = &v
	}
	if p.RealityOpts != nil {
		v := *p.RealityOpts
		p.RealityOpts = &v
	}
	return p
}
