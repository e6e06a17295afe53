package model

const (
	TypeVMess = "vmess"
	TypeVLESS = "vless"
)

const (
	NetworkTCP  = "tcp"
	NetworkWS   = "ws"
	NetworkH2   = "h2"
	NetworkGRPC = "grpc"
)

// Proxy is one Clash proxy entry produced from a share link.
//
// Field order matches the order Clash users expect to read; yaml.v3 keeps it
// when encoding. Optional fields use omitempty so the normalizer only has to
// clear a value to drop the key.
type Proxy struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Server string `yaml:"server" json:"server"`
	Port   int    `yaml:"port" json:"port"`
	UUID   string `yaml:"uuid" json:"uuid"`

	// AlterID is a pointer so vmess can emit an explicit 0 while vless omits it.
	AlterID *int   `yaml:"alterId,omitempty" json:"alterId,omitempty"`
	Cipher  string `yaml:"cipher,omitempty" json:"cipher,omitempty"`

	UDP bool `yaml:"udp" json:"udp"`
	TLS bool `yaml:"tls" json:"tls"`

	SkipCertVerify    bool   `yaml:"skip-cert-verify,omitempty" json:"skip-cert-verify,omitempty"`
	ServerName        string `yaml:"servername,omitempty" json:"servername,omitempty"`
	ClientFingerprint string `yaml:"client-fingerprint,omitempty" json:"client-fingerprint,omitempty"`

	Network string `yaml:"network" json:"network"`
	Flow    string `yaml:"flow,omitempty" json:"flow,omitempty"`

	WSOpts      *WSOpts      `yaml:"ws-opts,omitempty" json:"ws-opts,omitempty"`
	H2Opts      *H2Opts      `yaml:"h2-opts,omitempty" json:"h2-opts,omitempty"`
	GRPCOpts    *GRPCOpts    `yaml:"grpc-opts,omitempty" json:"grpc-opts,omitempty"`
	RealityOpts *RealityOpts `yaml:"reality-opts,omitempty" json:"reality-opts,omitempty"`
}

type WSOpts struct {
	Path    string    `yaml:"path,omitempty" json:"path,omitempty"`
	Headers WSHeaders `yaml:"headers,omitempty" json:"headers,omitempty"`
}

type WSHeaders struct {
	Host string `yaml:"Host,omitempty" json:"Host,omitempty"`
}

func (o *WSOpts) IsEmpty() bool {
	return o == nil || (o.Path == "" && o.Headers.Host == "")
}

type H2Opts struct {
	Host []string `yaml:"host,omitempty" json:"host,omitempty"`
	Path string   `yaml:"path,omitempty" json:"path,omitempty"`
}

func (o *H2Opts) IsEmpty() bool {
	if o == nil {
		return true
	}
	if o.Path != "" {
		return false
	}
	for _, h := range o.Host {
		if h != "" {
			return false
		}
	}
	return true
}

type GRPCOpts struct {
	ServiceName string `yaml:"grpc-service-name" json:"grpc-service-name"`
}

func (o *GRPCOpts) IsEmpty() bool {
	return o == nil || o.ServiceName == ""
}

type RealityOpts struct {
	PublicKey string `yaml:"public-key,omitempty" json:"public-key,omitempty"`
	ShortID   string `yaml:"short-id,omitempty" json:"short-id,omitempty"`
	SpiderX   string `yaml:"spider-x,omitempty" json:"spider-x,omitempty"`
}

func (o *RealityOpts) IsEmpty() bool {
	return o == nil || (o.PublicKey == "" && o.ShortID == "" && o.SpiderX == "")
}

// Names returns proxy names in order. Duplicates are kept.
func Names(proxies []Proxy) []string {
	out := make([]string, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, p.Name)
	}
	return out
}
