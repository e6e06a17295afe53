package template

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"blank", "  \n\n"},
		{"comment only", "# nothing here\n"},
		{"scalar", "hello\n"},
		{"list", "- a\n- b\n"},
		{"broken yaml", "proxies: [a, b\n"},
		{"two docs", "a: 1\n---\nb: 2\n"},
	}
	for _, tt := range tests {
		_, err := Parse("t.yaml", []byte(tt.text))
		if !errors.Is(err, ErrUnreadable) {
			t.Fatalf("%s: err=%v, want ErrUnreadable", tt.name, err)
		}
		var te *TemplateError
		if !errors.As(err, &te) {
			t.Fatalf("%s: expected *TemplateError, got %T", tt.name, err)
		}
		if te.AppError.Code != CodeUnreadable || te.AppError.URL != "t.yaml" {
			t.Fatalf("%s: app error=%+v", tt.name, te.AppError)
		}
	}
}

func TestEncode_PreservesPassthroughOrderAndComments(t *testing.T) {
	text := "# head\nport: 7890\nallow-lan: false # inline\ndns:\n  enable: true\nrules:\n  - MATCH,DIRECT\n"
	doc := mustParse(t, text)
	if err := Merge(doc, sampleProxies(), MergeOptions{}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(out)

	order := []string{"# head", "port: 7890", "allow-lan: false # inline", "dns:", "rules:", "proxies:", "proxy-groups:"}
	last := -1
	for _, key := range order {
		i := strings.Index(s, key)
		if i < 0 {
			t.Fatalf("missing %q in:\n%s", key, s)
		}
		if i < last {
			t.Fatalf("%q out of order in:\n%s", key, s)
		}
		last = i
	}
}

func TestEncode_KeepsCRLF(t *testing.T) {
	doc := mustParse(t, "\ufeffmode: rule\r\nproxies: []\r\n")
	if err := Merge(doc, sampleProxies(), MergeOptions{}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	out, err := doc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(strings.ReplaceAll(string(out), "\r\n", ""), "\n") {
		t.Fatalf("output has bare LF: %q", out)
	}
}

func TestParse_IndependentDocuments(t *testing.T) {
	a := mustParse(t, baseTemplate)
	b := mustParse(t, baseTemplate)
	if err := Merge(a, sampleProxies(), MergeOptions{}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	out, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), "old.com") {
		t.Fatalf("merging one document changed another:\n%s", out)
	}
}
