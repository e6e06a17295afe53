package userinfo

import (
	"testing"

	"github.com/John-Robertt/v2clash/internal/model"
)

func TestFormat(t *testing.T) {
	got := Format(model.SubscriptionUserInfo{Upload: 1000, Download: 2000})
	want := "upload=1000; download=2000; total=0; expire=0"
	if got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
}

func TestFormat_PassesThroughOddValues(t *testing.T) {
	got := Format(model.SubscriptionUserInfo{Upload: -1, Download: 0, Total: 1 << 62, Expire: -5})
	want := "upload=-1; download=0; total=4611686018427387904; expire=-5"
	if got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	in := model.SubscriptionUserInfo{Upload: 1, Download: 2, Total: 3, Expire: 1700000000}
	got, err := Parse(Format(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != in {
		t.Fatalf("got=%+v, want=%+v", got, in)
	}
}

func TestParse_Lenient(t *testing.T) {
	got, err := Parse(" Upload=5;download=6.0 ; foo=bar; total=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.SubscriptionUserInfo{Upload: 5, Download: 6}
	if got != want {
		t.Fatalf("got=%+v, want=%+v", got, want)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"upload", "upload=abc"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}
