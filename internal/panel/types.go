// Package panel implements a typed client for the 3x-ui style proxy
// panel control API, with session management and primary/backup
// failover.
package panel

import (
	"encoding/json"
	"fmt"
)

// apiResponse is the envelope every panel endpoint returns.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Inbound mirrors a remote listener definition. The panel encodes the
// nested settings blocks as JSON strings, not objects.
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
	Sniffing       string          `json:"sniffing"`
	Allocate       string          `json:"allocate"`
	ClientStats    []ClientTraffic `json:"clientStats,omitempty"`
}

// DecodeStreamSettings parses the JSON-encoded streamSettings block.
func (i Inbound) DecodeStreamSettings() (StreamSettings, error) {
	var ss StreamSettings
	if i.StreamSettings == "" {
		return ss, nil
	}
	if err := json.Unmarshal([]byte(i.StreamSettings), &ss); err != nil {
		return ss, fmt.Errorf("decode stream settings of inbound %d: %w", i.ID, err)
	}
	return ss, nil
}

// ClientTraffic carries per-client counters as reported by the panel.
type ClientTraffic struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
}

// Traffic is the up/down pair consumed by the stats aggregator.
type Traffic struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

// StreamSettings is the decoded transport descriptor of an inbound.
type StreamSettings struct {
	Network         string           `json:"network"`
	Security        string           `json:"security"`
	TCPSettings     *TCPSettings     `json:"tcpSettings,omitempty"`
	WSSettings      *WSSettings      `json:"wsSettings,omitempty"`
	GRPCSettings    *GRPCSettings    `json:"grpcSettings,omitempty"`
	TLSSettings     *TLSSettings     `json:"tlsSettings,omitempty"`
	RealitySettings *RealitySettings `json:"realitySettings,omitempty"`
}

type TCPSettings struct {
	AcceptProxyProtocol bool      `json:"acceptProxyProtocol"`
	Header              TCPHeader `json:"header"`
}

type TCPHeader struct {
	Type string `json:"type"`
}

type WSSettings struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
}

type GRPCSettings struct {
	ServiceName string `json:"serviceName"`
	MultiMode   bool   `json:"multiMode"`
}

type TLSSettings struct {
	ServerName   string        `json:"serverName"`
	Fingerprint  string        `json:"fingerprint"`
	ALPN         []string      `json:"alpn"`
	Certificates []Certificate `json:"certificates"`
}

type Certificate struct {
	CertificateFile string `json:"certificateFile"`
	KeyFile         string `json:"keyFile"`
}

type RealitySettings struct {
	Show        bool     `json:"show"`
	XVer        int      `json:"xver"`
	Dest        string   `json:"dest"`
	ServerNames []string `json:"serverNames"`
	PrivateKey  string   `json:"privateKey"`
	PublicKey   string   `json:"publicKey"`
	ShortIDs    []string `json:"shortIds"`
	Fingerprint string   `json:"fingerprint"`
	SpiderX     string   `json:"spiderX"`
}

// InboundRequest is the payload for creating a new inbound. The nested
// blocks must be pre-encoded to JSON strings, matching the panel's wire
// format.
type InboundRequest struct {
	Up             int64  `json:"up"`
	Down           int64  `json:"down"`
	Total          int64  `json:"total"`
	Remark         string `json:"remark"`
	Enable         bool   `json:"enable"`
	ExpiryTime     int64  `json:"expiryTime"`
	Listen         string `json:"listen"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
	Sniffing       string `json:"sniffing"`
	Allocate       string `json:"allocate"`
}

// ClientConfig is one entry of the clients array pushed on add/update.
// VLESS/VMess clients carry ID, trojan clients carry Password.
type ClientConfig struct {
	ID         string `json:"id,omitempty"`
	Password   string `json:"password,omitempty"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
	Comment    string `json:"comment,omitempty"`
	Flow       string `json:"flow,omitempty"`
	AlterID    *int   `json:"alterId,omitempty"`
	LimitSpeed int    `json:"limitSpeed,omitempty"`
}

// X25519Cert is a freshly generated Reality key pair.
type X25519Cert struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// ServerStatus is the subset of the panel's status payload surfaced to
// admins; the rest is passed through untouched.
type ServerStatus struct {
	Raw json.RawMessage
}

// HealthStatus is the result of a bounded-wait panel probe.
type HealthStatus struct {
	Online bool   `json:"online"`
	URL    string `json:"url"`
}

func encodeClients(clients []ClientConfig) (string, error) {
	payload := struct {
		Clients []ClientConfig `json:"clients"`
	}{Clients: clients}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode clients: %w", err)
	}
	return string(data), nil
}
