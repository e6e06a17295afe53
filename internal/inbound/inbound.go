// Package inbound turns a 3x-ui inbound export into share links for one
// client, in the same vmess:// and vless:// shapes the link decoder reads.
package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/John-Robertt/v2clash/internal/model"
)

// Inbound is one entry of the panel's inbound list. Settings and
// StreamSettings are JSON documents embedded as strings.
type Inbound struct {
	ID             int             `json:"id"`
	Up             int64           `json:"up"`
	Down           int64           `json:"down"`
	Total          int64           `json:"total"`
	Remark         string          `json:"remark"`
	Enable         bool            `json:"enable"`
	ExpiryTime     int64           `json:"expiryTime"`
	Listen         string          `json:"listen"`
	Port           int             `json:"port"`
	Protocol       string          `json:"protocol"`
	Settings       string          `json:"settings"`
	StreamSettings string          `json:"streamSettings"`
	Tag            string          `json:"tag"`
	ClientStats    []ClientTraffic `json:"clientStats"`
	ClientInfo     []ClientTraffic `json:"clientInfo"`

	// Domain is the public host of the panel. It is not part of the export
	// and is filled in by the caller.
	Domain string `json:"domain,omitempty"`
}

type ClientTraffic struct {
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	ExpiryTime int64  `json:"expiryTime"`
}

// clients returns whichever traffic list the export carries.
func (in Inbound) clients() []ClientTraffic {
	if len(in.ClientStats) > 0 {
		return in.ClientStats
	}
	return in.ClientInfo
}

type settings struct {
	Clients []client `json:"clients"`
}

type client struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Flow       string `json:"flow"`
	AlterID    int    `json:"alterId"`
	Total      int64  `json:"total"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
}

type streamSettings struct {
	Network  string `json:"network"`
	Security string `json:"security"`

	TLSSettings struct {
		ServerName string `json:"serverName"`
	} `json:"tlsSettings"`

	RealitySettings struct {
		ServerNames []string `json:"serverNames"`
		ShortIDs    []string `json:"shortIds"`
		PublicKey   string   `json:"publicKey"`
		Settings    struct {
			PublicKey   string `json:"publicKey"`
			Fingerprint string `json:"fingerprint"`
			SpiderX     string `json:"spiderX"`
		} `json:"settings"`
	} `json:"realitySettings"`

	WSSettings struct {
		Path    string `json:"path"`
		Host    string `json:"host"`
		Headers struct {
			Host string `json:"Host"`
		} `json:"headers"`
	} `json:"wsSettings"`

	GRPCSettings struct {
		ServiceName string `json:"serviceName"`
	} `json:"grpcSettings"`

	HTTPSettings struct {
		Host []string `json:"host"`
		Path string   `json:"path"`
	} `json:"httpSettings"`
}

// ErrClientRequired is returned when no client email is given; links are
// always rendered for exactly one client.
var ErrClientRequired = errors.New("inbound: client email required")

type InboundError struct {
	AppError model.AppError
	Cause    error
}

func (e *InboundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *InboundError) Unwrap() error { return e.Cause }

func newInboundError(code, message string, in *Inbound, cause error) error {
	ae := model.AppError{
		Code:    code,
		Message: message,
		Stage:   "render_inbound",
	}
	if in != nil {
		ae.Snippet = fmt.Sprintf("inbound %d (%s)", in.ID, in.Remark)
	}
	return &InboundError{AppError: ae, Cause: cause}
}

type exportEnvelope struct {
	Success bool      `json:"success"`
	Msg     string    `json:"msg"`
	Obj     []Inbound `json:"obj"`
}

// ParseExport reads either the panel's {"success":..,"obj":[..]} response
// body or a bare inbound array.
func ParseExport(data []byte) ([]Inbound, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, newInboundError("INBOUND_PARSE_ERROR", "inbound 导出内容为空", nil, nil)
	}
	if data[0] == '[' {
		var list []Inbound
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, newInboundError("INBOUND_PARSE_ERROR", "inbound 列表 JSON 解析失败", nil, err)
		}
		return list, nil
	}

	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newInboundError("INBOUND_PARSE_ERROR", "inbound 导出 JSON 解析失败", nil, err)
	}
	if !env.Success {
		return nil, newInboundError("INBOUND_PARSE_ERROR", "面板返回失败："+env.Msg, nil, nil)
	}
	return env.Obj, nil
}
