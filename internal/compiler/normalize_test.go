package compiler

import (
	"reflect"
	"testing"

	"github.com/John-Robertt/v2clash/internal/model"
)

func intPtr(v int) *int { return &v }

func TestNormalize_TLSOffStripsSecurityFields(t *testing.T) {
	in := model.Proxy{
		Name: "a", Type: model.TypeVMess, Server: "a.com", Port: 443, UUID: "u",
		TLS:               false,
		ServerName:        "sni.com",
		SkipCertVerify:    true,
		ClientFingerprint: "chrome",
		RealityOpts:       &model.RealityOpts{PublicKey: "k"},
		Network:           model.NetworkTCP,
	}

	got := Normalize(in)
	if got.ServerName != "" || got.SkipCertVerify || got.ClientFingerprint != "" || got.RealityOpts != nil {
		t.Fatalf("tls=false must strip security fields, got %+v", got)
	}
	if in.RealityOpts == nil || in.ServerName != "sni.com" {
		t.Fatalf("Normalize mutated its input")
	}
}

func TestNormalize_DefaultsServerNameOnlyWithTLS(t *testing.T) {
	got := Normalize(model.Proxy{Server: "a.com", TLS: true, Network: model.NetworkTCP})
	if got.ServerName != "a.com" {
		t.Fatalf("servername=%q, want=%q", got.ServerName, "a.com")
	}

	got = Normalize(model.Proxy{Server: "a.com", TLS: false, Network: model.NetworkTCP})
	if got.ServerName != "" {
		t.Fatalf("servername=%q, want empty", got.ServerName)
	}
}

func TestNormalize_PrunesEmptyOpts(t *testing.T) {
	tests := []struct {
		name string
		in   model.Proxy
		keep bool
	}{
		{"grpc empty service", model.Proxy{Network: model.NetworkGRPC, GRPCOpts: &model.GRPCOpts{}}, false},
		{"grpc service", model.Proxy{Network: model.NetworkGRPC, GRPCOpts: &model.GRPCOpts{ServiceName: "s"}}, true},
		{"ws default path kept", model.Proxy{Network: model.NetworkWS, WSOpts: &model.WSOpts{Path: "/"}}, true},
		{"ws empty", model.Proxy{Network: model.NetworkWS, WSOpts: &model.WSOpts{}}, false},
		{"h2 blank host", model.Proxy{Network: model.NetworkH2, H2Opts: &model.H2Opts{Host: []string{""}}}, false},
		{"ws opts on tcp", model.Proxy{Network: model.NetworkTCP, WSOpts: &model.WSOpts{Path: "/x"}}, false},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		has := got.WSOpts != nil || got.H2Opts != nil || got.GRPCOpts != nil
		if has != tt.keep {
			t.Fatalf("%s: opts present=%v, want=%v (%+v)", tt.name, has, tt.keep, got)
		}
	}
}

func TestNormalize_RealityAndFlow(t *testing.T) {
	got := Normalize(model.Proxy{
		Server: "a.com", TLS: true, Network: model.NetworkTCP,
		RealityOpts: &model.RealityOpts{},
		Flow:        "  ",
	})
	if got.RealityOpts != nil {
		t.Fatalf("empty reality-opts should be dropped")
	}
	if got.Flow != "" {
		t.Fatalf("flow=%q, want empty", got.Flow)
	}

	got = Normalize(model.Proxy{
		Server: "a.com", TLS: true, Network: model.NetworkTCP,
		RealityOpts: &model.RealityOpts{ShortID: "ab"},
		Flow:        "xtls-rprx-vision",
	})
	if got.RealityOpts == nil || got.RealityOpts.ShortID != "ab" {
		t.Fatalf("reality-opts=%+v, want short-id kept", got.RealityOpts)
	}
	if got.Flow != "xtls-rprx-vision" {
		t.Fatalf("flow=%q", got.Flow)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []model.Proxy{
		{Name: "a", Server: "a.com", Port: 1, UUID: "u", AlterID: intPtr(0), TLS: true, Network: model.NetworkWS, WSOpts: &model.WSOpts{Path: "/", Headers: model.WSHeaders{Host: "a.com"}}},
		{Name: "b", Server: "b.com", Port: 2, UUID: "u", TLS: false, ServerName: "x", Network: model.NetworkH2, H2Opts: &model.H2Opts{Host: []string{"h"}, Path: "/"}},
		{Name: "c", Server: "c.com", Port: 3, UUID: "u", TLS: true, Network: model.NetworkGRPC, GRPCOpts: &model.GRPCOpts{}, RealityOpts: &model.RealityOpts{PublicKey: "k"}},
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent:\nonce=%+v\ntwice=%+v", once, twice)
		}
	}
}
