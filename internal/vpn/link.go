package vpn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"vpn-backend/internal/panel"
)

// BuildShareLink renders the client-importable connection URL for a
// provisioned credential. The address precedence is the configured
// public host, then the inbound's listen address. Stream settings come
// from the inbound, never from caller input, so the link always
// reflects the listener's actual wire configuration.
func BuildShareLink(protocol, clientID string, inbound panel.Inbound, remark, publicHost string) string {
	address := publicHost
	if address == "" {
		address = inbound.Listen
	}
	if remark == "" {
		remark = inbound.Remark
	}
	if remark == "" {
		remark = "config"
	}

	stream, err := inbound.DecodeStreamSettings()
	if err != nil {
		stream = panel.StreamSettings{}
	}
	network := stream.Network
	if network == "" {
		network = "tcp"
	}
	security := stream.Security
	if security == "" {
		security = "none"
	}

	switch protocol {
	case "vless":
		return buildVlessLink(clientID, address, inbound.Port, network, security, stream, remark)
	case "vmess":
		return buildVmessLink(clientID, address, inbound.Port, network, security, stream, remark)
	case "trojan":
		return buildTrojanLink(clientID, address, inbound.Port, network, security, stream, remark)
	default:
		return fmt.Sprintf("%s://%s@%s:%d", protocol, clientID, address, inbound.Port)
	}
}

func buildVlessLink(clientID, address string, port int, network, security string, stream panel.StreamSettings, remark string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "vless://%s@%s:%d?type=%s&security=%s&encryption=none", clientID, address, port, network, security)

	if security == "tls" && stream.TLSSettings != nil {
		sni := stream.TLSSettings.ServerName
		if sni == "" {
			sni = address
		}
		fmt.Fprintf(&b, "&sni=%s", sni)
		if stream.TLSSettings.Fingerprint != "" {
			fmt.Fprintf(&b, "&fp=%s", stream.TLSSettings.Fingerprint)
		}
		if len(stream.TLSSettings.ALPN) > 0 {
			fmt.Fprintf(&b, "&alpn=%s", url.QueryEscape(strings.Join(stream.TLSSettings.ALPN, ",")))
		}
	}
	if security == "reality" && stream.RealitySettings != nil {
		rs := stream.RealitySettings
		sni, sid := "", ""
		if len(rs.ServerNames) > 0 {
			sni = rs.ServerNames[0]
		}
		if len(rs.ShortIDs) > 0 {
			sid = rs.ShortIDs[0]
		}
		fp := rs.Fingerprint
		if fp == "" {
			fp = "chrome"
		}
		fmt.Fprintf(&b, "&sni=%s&pbk=%s&sid=%s&fp=%s&type=%s", sni, rs.PublicKey, sid, fp, network)
	}
	if network == "ws" && stream.WSSettings != nil {
		path := stream.WSSettings.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(&b, "&path=%s", url.QueryEscape(path))
		if host := stream.WSSettings.Headers["Host"]; host != "" {
			fmt.Fprintf(&b, "&host=%s", url.QueryEscape(host))
		}
	}
	if network == "grpc" && stream.GRPCSettings != nil {
		fmt.Fprintf(&b, "&serviceName=%s", stream.GRPCSettings.ServiceName)
	}

	fmt.Fprintf(&b, "#%s", url.QueryEscape(remark))
	return b.String()
}

func buildVmessLink(clientID, address string, port int, network, security string, stream panel.StreamSettings, remark string) string {
	tls := ""
	if security == "tls" {
		tls = "tls"
	}
	payload := map[string]any{
		"v":    "2",
		"ps":   remark,
		"add":  address,
		"port": port,
		"id":   clientID,
		"aid":  0,
		"net":  network,
		"type": "none",
		"host": "",
		"path": "",
		"tls":  tls,
	}
	if network == "ws" && stream.WSSettings != nil {
		path := stream.WSSettings.Path
		if path == "" {
			path = "/"
		}
		payload["path"] = path
		payload["host"] = stream.WSSettings.Headers["Host"]
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(data)
}

func buildTrojanLink(password, address string, port int, network, security string, stream panel.StreamSettings, remark string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trojan://%s@%s:%d?type=%s&security=%s", password, address, port, network, security)
	if security == "tls" && stream.TLSSettings != nil {
		sni := stream.TLSSettings.ServerName
		if sni == "" {
			sni = address
		}
		fmt.Fprintf(&b, "&sni=%s", sni)
	}
	fmt.Fprintf(&b, "#%s", url.QueryEscape(remark))
	return b.String()
}
