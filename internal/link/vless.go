package link

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/v2clash/internal/model"
)

// vlessDecoder handles vless://<uuid>@<host>:<port>?<query>#<label>.
type vlessDecoder struct{}

func (vlessDecoder) Scheme() string { return model.TypeVLESS }

func (d vlessDecoder) Decode(link string, ordinal int) (model.Proxy, error) {
	scheme := d.Scheme()
	if !hasSchemePrefix(link, scheme) {
		return model.Proxy{}, newDecodeError(KindUnsupportedScheme, scheme, link, "链接前缀不匹配", "expected: vless://", nil)
	}

	u, err := url.Parse(link)
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "URI 解析失败", "", err)
	}

	server := u.Hostname()
	id := ""
	if u.User != nil {
		id = strings.TrimSpace(u.User.Username())
	}
	port, hasPort, err := parsePort(u.Port())
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "端口不合法", "", err)
	}
	if server == "" || !hasPort || id == "" {
		return model.Proxy{}, newDecodeError(KindIncomplete, scheme, link, "缺少 host、port 或 uuid", "expected: vless://uuid@host:port", nil)
	}

	q := u.Query()
	security := strings.ToLower(q.Get("security"))
	reality := security == "reality"

	// url.Parse already percent-decoded the fragment.
	name := strings.TrimSpace(u.Fragment)
	if name == "" {
		name = defaultName(scheme, ordinal)
	}

	p := model.Proxy{
		Name:              name,
		Type:              model.TypeVLESS,
		Server:            server,
		Port:              port,
		UUID:              id,
		UDP:               true,
		TLS:               security == "tls" || reality,
		SkipCertVerify:    parseBoolish(q.Get("allowInsecure")),
		ClientFingerprint: q.Get("fp"),
		Flow:              q.Get("flow"),
	}

	if aid := strings.TrimSpace(q.Get("aid")); aid != "" {
		n, err := strconv.Atoi(aid)
		if err != nil {
			return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "aid 不是整数", "", err)
		}
		p.AlterID = &n
	}

	err = applyTransport(&p, transportFields{
		Network:     q.Get("type"),
		Host:        q.Get("host"),
		Path:        q.Get("path"),
		ServiceName: firstNonEmpty(q.Get("serviceName"), q.Get("path")),
		SNI:         q.Get("sni"),
	})
	if err != nil {
		return model.Proxy{}, newDecodeError(KindMalformed, scheme, link, "不支持的传输协议："+q.Get("type"), "supported: tcp, ws, h2, grpc", err)
	}

	if reality {
		p.TLS = true
		p.ClientFingerprint = firstNonEmpty(p.ClientFingerprint, "chrome")
		p.RealityOpts = &model.RealityOpts{
			PublicKey: q.Get("pbk"),
			ShortID:   q.Get("sid"),
			SpiderX:   q.Get("spx"),
		}
	}
	return p, nil
}
