package inbound

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/model"
)

const gib = 1024 * 1024 * 1024

// Links renders one share link per enabled inbound that has a client with
// the given email, and sums upload/download over every client of every
// inbound. Inbounds without that client are skipped silently; unsupported
// protocols are skipped with a warning.
func Links(inbounds []Inbound, email string, log logrus.FieldLogger) ([]string, model.SubscriptionUserInfo, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var info model.SubscriptionUserInfo
	for _, in := range inbounds {
		for _, c := range in.clients() {
			info.Upload += c.Up
			info.Download += c.Down
		}
	}

	if strings.TrimSpace(email) == "" {
		return nil, info, ErrClientRequired
	}

	links := make([]string, 0, len(inbounds))
	for i := range inbounds {
		in := &inbounds[i]
		if !in.Enable {
			continue
		}
		var render func(*Inbound, client, streamSettings) (string, error)
		switch strings.ToLower(in.Protocol) {
		case model.TypeVLESS:
			render = renderVLESS
		case model.TypeVMess:
			render = renderVMess
		default:
			log.WithFields(logrus.Fields{"inbound": in.ID, "protocol": in.Protocol}).Warn("skip inbound with unsupported protocol")
			continue
		}

		var st settings
		if err := json.Unmarshal([]byte(in.Settings), &st); err != nil {
			return nil, info, newInboundError("INBOUND_PARSE_ERROR", "settings 解析失败", in, err)
		}
		c, ok := findClient(st.Clients, email)
		if !ok {
			continue
		}
		var ss streamSettings
		if strings.TrimSpace(in.StreamSettings) != "" {
			if err := json.Unmarshal([]byte(in.StreamSettings), &ss); err != nil {
				return nil, info, newInboundError("INBOUND_PARSE_ERROR", "streamSettings 解析失败", in, err)
			}
		}

		link, err := render(in, c, ss)
		if err != nil {
			return nil, info, err
		}
		links = append(links, link)
	}
	return links, info, nil
}

func findClient(clients []client, email string) (client, bool) {
	for _, c := range clients {
		if c.Email == email {
			return c, true
		}
	}
	return client{}, false
}

// serverAddress prefers the TLS server name, then the panel domain, then the
// listen address.
func serverAddress(in *Inbound, ss streamSettings) (string, error) {
	addr := in.Domain
	if addr == "" {
		addr = in.Listen
	}
	if ss.Security == "tls" && ss.TLSSettings.ServerName != "" {
		addr = ss.TLSSettings.ServerName
	}
	if addr == "" {
		return "", newInboundError("INBOUND_ADDRESS_MISSING", "服务器地址未定义，需要 domain 或 listen 字段", in, nil)
	}
	return addr, nil
}

// remark is "{remark}|{email}|{total GiB}GB|{YYYYMMDD}" with the expiry in UTC.
func remark(in *Inbound, c client) string {
	total := c.Total
	if total == 0 {
		total = c.TotalGB
	}
	expiry := time.UnixMilli(c.ExpiryTime).UTC().Format("20060102")
	return fmt.Sprintf("%s|%s|%dGB|%s", in.Remark, c.Email, total/gib, expiry)
}

// network maps the xray stream network onto the names Clash uses.
func network(ss streamSettings) string {
	switch ss.Network {
	case "":
		return model.NetworkTCP
	case "http":
		return model.NetworkH2
	default:
		return ss.Network
	}
}

func renderVLESS(in *Inbound, c client, ss streamSettings) (string, error) {
	addr, err := serverAddress(in, ss)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	nw := network(ss)
	q.Set("type", nw)
	switch ss.Security {
	case "reality":
		rs := ss.RealitySettings
		q.Set("security", "reality")
		if len(rs.ServerNames) > 0 {
			q.Set("sni", rs.ServerNames[0])
		}
		if pbk := firstNonEmpty(rs.PublicKey, rs.Settings.PublicKey); pbk != "" {
			q.Set("pbk", pbk)
		}
		if len(rs.ShortIDs) > 0 && rs.ShortIDs[0] != "" {
			q.Set("sid", rs.ShortIDs[0])
		}
		if rs.Settings.SpiderX != "" {
			q.Set("spx", rs.Settings.SpiderX)
		}
		q.Set("fp", firstNonEmpty(rs.Settings.Fingerprint, "chrome"))
	case "tls":
		q.Set("security", "tls")
		if ss.TLSSettings.ServerName != "" {
			q.Set("sni", ss.TLSSettings.ServerName)
		}
	}
	setTransportParams(q, nw, ss)
	if c.Flow != "" {
		q.Set("flow", c.Flow)
	}

	u := url.URL{
		Scheme:   model.TypeVLESS,
		User:     url.User(c.ID),
		Host:     joinHostPort(addr, in.Port),
		RawQuery: q.Encode(),
	}
	return u.String() + "#" + url.PathEscape(remark(in, c)), nil
}

func setTransportParams(q url.Values, nw string, ss streamSettings) {
	switch nw {
	case model.NetworkWS:
		q.Set("path", firstNonEmpty(ss.WSSettings.Path, "/"))
		if host := firstNonEmpty(ss.WSSettings.Headers.Host, ss.WSSettings.Host); host != "" {
			q.Set("host", host)
		}
	case model.NetworkGRPC:
		if ss.GRPCSettings.ServiceName != "" {
			q.Set("serviceName", ss.GRPCSettings.ServiceName)
		}
	case model.NetworkH2:
		if ss.HTTPSettings.Path != "" {
			q.Set("path", ss.HTTPSettings.Path)
		}
		if len(ss.HTTPSettings.Host) > 0 {
			q.Set("host", ss.HTTPSettings.Host[0])
		}
	}
}

// vmessShare is the v2rayN share JSON the vmess decoder reads back.
type vmessShare struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni,omitempty"`
}

func renderVMess(in *Inbound, c client, ss streamSettings) (string, error) {
	addr, err := serverAddress(in, ss)
	if err != nil {
		return "", err
	}

	nw := network(ss)
	share := vmessShare{
		V:    "2",
		PS:   remark(in, c),
		Add:  addr,
		Port: strconv.Itoa(in.Port),
		ID:   c.ID,
		Aid:  strconv.Itoa(c.AlterID),
		Scy:  "auto",
		Net:  nw,
		Type: "none",
	}
	switch nw {
	case model.NetworkWS:
		share.Path = firstNonEmpty(ss.WSSettings.Path, "/")
		share.Host = firstNonEmpty(ss.WSSettings.Headers.Host, ss.WSSettings.Host)
	case model.NetworkGRPC:
		share.Path = ss.GRPCSettings.ServiceName
	case model.NetworkH2:
		share.Path = ss.HTTPSettings.Path
		if len(ss.HTTPSettings.Host) > 0 {
			share.Host = ss.HTTPSettings.Host[0]
		}
	}
	if ss.Security == "tls" {
		share.TLS = "tls"
		share.SNI = ss.TLSSettings.ServerName
	}

	b, err := json.Marshal(share)
	if err != nil {
		return "", newInboundError("INBOUND_RENDER_ERROR", "vmess 链接生成失败", in, err)
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(b), nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
