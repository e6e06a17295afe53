package link

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/v2clash/internal/model"
)

// vmessDecoder handles vmess://<base64(json)>.
type vmessDecoder struct{}

func (vmessDecoder) Scheme() string { return model.TypeVMess }

// vmessPayload is the v2rayN share JSON. Numeric fields show up both as JSON
// numbers and as strings depending on the exporter.
type vmessPayload struct {
	PS            string     `json:"ps"`
	Add           string     `json:"add"`
	Port          flexString `json:"port"`
	ID            string     `json:"id"`
	Aid           flexString `json:"aid"`
	Scy           string     `json:"scy"`
	Security      string     `json:"security"`
	Net           string     `json:"net"`
	Host          string     `json:"host"`
	Path          string     `json:"path"`
	ServiceName   string     `json:"serviceName"`
	TLS           string     `json:"tls"`
	SNI           string     `json:"sni"`
	FP            string     `json:"fp"`
	SkipCert      flexString `json:"skip-cert-verify"`
	AllowInsecure flexString `json:"allowInsecure"`
}

func (d vmessDecoder) Decode(link string, ordinal int) (model.Proxy, error) {
	scheme := d.Scheme()
	if !hasSchemePrefix(link, scheme) {
		return model.Proxy{}, newDecodeError(KindUnsupportedScheme, scheme, link, "链接前缀不匹配", "expected: vmess://", nil)
	}
	encoded := strings.TrimSpace(link[len(scheme+"://"):])
	if encoded == "" {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "链接内容为空", "", nil)
	}

	raw, err := decodeB64ToBytes(encoded)
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "base64 解码失败", "", err)
	}
	if !utf8.Valid(raw) {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "base64 解码结果不是合法 UTF-8", "", nil)
	}

	body := bytes.TrimSpace(raw)
	if len(body) == 0 || body[0] != '{' {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "JSON 解析失败", "expected a JSON object", nil)
	}
	var v vmessPayload
	if err := json.Unmarshal(body, &v); err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "JSON 解析失败", "expected a JSON object", err)
	}

	server := strings.TrimSpace(v.Add)
	id := strings.TrimSpace(v.ID)
	port, hasPort, err := parsePort(string(v.Port))
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "端口不合法", "", err)
	}
	if server == "" || !hasPort || id == "" {
		return model.Proxy{}, newDecodeError(KindIncomplete, scheme, link, "缺少 add、port 或 id", "required: add, port, id", nil)
	}

	alterID := 0
	if s := strings.TrimSpace(string(v.Aid)); s != "" {
		alterID, err = strconv.Atoi(s)
		if err != nil {
			return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "aid 不是整数", "", err)
		}
	}

	name := decodeLabel(v.PS)
	if name == "" {
		name = defaultName(scheme, ordinal)
	}

	tls := strings.TrimSpace(v.TLS) == "tls"
	p := model.Proxy{
		Name:              name,
		Type:              model.TypeVMess,
		Server:            server,
		Port:              port,
		UUID:              id,
		AlterID:           &alterID,
		Cipher:            firstNonEmpty(strings.TrimSpace(v.Scy), strings.TrimSpace(v.Security), "auto"),
		UDP:               true,
		TLS:               tls,
		SkipCertVerify:    parseBoolish(string(v.SkipCert)) || parseBoolish(string(v.AllowInsecure)),
		ClientFingerprint: strings.TrimSpace(v.FP),
	}

	err = applyTransport(&p, transportFields{
		Network:     v.Net,
		Host:        strings.TrimSpace(v.Host),
		Path:        strings.TrimSpace(v.Path),
		ServiceName: firstNonEmpty(strings.TrimSpace(v.Path), strings.TrimSpace(v.ServiceName)),
		SNI:         strings.TrimSpace(v.SNI),
	})
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "不支持的传输协议："+v.Net, "supported: tcp, ws, h2, grpc", err)
	}
	return p, nil
}

// flexString accepts a JSON string, number, bool or null and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	case '{', '[':
		return errors.New("expected string, number or bool")
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			*f = flexString(n.String())
			return nil
		}
		var bv bool
		if err := json.Unmarshal(b, &bv); err != nil {
			return err
		}
		*f = flexString(strconv.FormatBool(bv))
		return nil
	}
}

func decodeB64ToBytes(s string) ([]byte, error) {
	// URL-safe alphabet is folded into the standard one; padding is optional.
	s = strings.NewReplacer("-", "+", "_", "/").Replace(removeSpaceTabCRLF(s))
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func removeSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
