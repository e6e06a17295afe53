// Package link decodes vmess:// and vless:// share links into provisional
// Clash proxy records. Pruning of TLS-only and empty option fields is left to
// the compiler's normalizer.
package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/v2clash/internal/model"
)

// SnippetLen is how much of an offending link ends up in errors and logs.
const SnippetLen = 30

type Kind int

const (
	KindUnsupportedScheme Kind = iota + 1
	KindMalformed
	KindIncomplete
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedScheme:
		return "unsupported_scheme"
	case KindMalformed:
		return "malformed"
	case KindIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

func (k Kind) code() string {
	switch k {
	case KindUnsupportedScheme:
		return "LINK_UNSUPPORTED_SCHEME"
	case KindMalformed:
		return "LINK_MALFORMED"
	case KindIncomplete:
		return "LINK_INCOMPLETE"
	default:
		return "LINK_ERROR"
	}
}

var (
	ErrUnsupportedScheme = errors.New("unsupported link scheme")
	ErrMalformed         = errors.New("malformed link")
	ErrIncomplete        = errors.New("incomplete link")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnsupportedScheme:
		return ErrUnsupportedScheme
	case KindMalformed:
		return ErrMalformed
	case KindIncomplete:
		return ErrIncomplete
	default:
		return nil
	}
}

type DecodeError struct {
	Kind     Kind
	AppError model.AppError
	Cause    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Is lets callers match on the kind sentinels (ErrMalformed, ...).
func (e *DecodeError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the decode failure kind of err, or 0 if err is not a
// *DecodeError.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// Decoder turns one share link of a single scheme into a provisional record.
// ordinal is the zero-based position of the link in its batch and is only
// used to synthesize a name when the link carries none.
type Decoder interface {
	Scheme() string
	Decode(link string, ordinal int) (model.Proxy, error)
}

var decoders = []Decoder{
	vmessDecoder{},
	vlessDecoder{},
}

// Lookup returns the decoder registered for the link's scheme prefix.
func Lookup(link string) (Decoder, bool) {
	for _, d := range decoders {
		if hasSchemePrefix(link, d.Scheme()) {
			return d, true
		}
	}
	return nil, false
}

// Schemes lists the supported scheme names in lookup order.
func Schemes() []string {
	out := make([]string, 0, len(decoders))
	for _, d := range decoders {
		out = append(out, d.Scheme())
	}
	return out
}

// Decode dispatches on the scheme prefix. Failures are always *DecodeError.
func Decode(link string, ordinal int) (model.Proxy, error) {
	link = strings.TrimSpace(link)
	d, ok := Lookup(link)
	if !ok {
		return model.Proxy{}, newDecodeError(KindUnsupportedScheme, "", link, "不支持的链接协议", "expected: "+strings.Join(Schemes(), "://, ")+"://", nil)
	}
	return d.Decode(link, ordinal)
}

func hasSchemePrefix(link, scheme string) bool {
	prefix := scheme + "://"
	return len(link) >= len(prefix) && strings.EqualFold(link[:len(prefix)], prefix)
}

func defaultName(scheme string, ordinal int) string {
	return fmt.Sprintf("%s_%d", scheme, ordinal+1)
}

func newDecodeError(kind Kind, scheme, link, message, hint string, cause error) error {
	if scheme != "" {
		message = scheme + ": " + message
	}
	return &DecodeError{
		Kind: kind,
		AppError: model.AppError{
			Code:    kind.code(),
			Message: message,
			Stage:   "decode_link",
			Snippet: Snippet(link),
			Hint:    hint,
		},
		Cause: cause,
	}
}

// Snippet returns the first SnippetLen runes of s with line breaks removed.
func Snippet(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	n := 0
	for i := range s {
		if n == SnippetLen {
			return s[:i]
		}
		n++
	}
	return s
}
