package vpn

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vpn-backend/internal/panel"
)

const (
	portRangeMin     = 10000
	portRangeMax     = 65000
	portAttemptLimit = 50
)

// AllocRequest describes the listener a config wants to land on. Port
// zero means "pick any free port".
type AllocRequest struct {
	Protocol    string
	Security    string
	Network     string
	SNI         string
	Fingerprint string
	Port        int
	Remark      string
}

// Allocation is the resolved target: either an existing inbound whose
// stream settings override the request, or a freshly created one built
// from the request.
type Allocation struct {
	Inbound          panel.Inbound
	Port             int
	Network          string
	Security         string
	SNI              string
	Fingerprint      string
	RealityPublicKey string
	Reused           bool
}

// Allocator decides whether a config reuses an existing remote
// listener or creates a new one, and owns the port selection and
// stream-settings construction for the create path.
type Allocator struct {
	panel *panel.Client
	log   *logrus.Entry

	// randInt is swapped in tests to make port selection deterministic.
	randInt func(n int) int
}

func NewAllocator(client *panel.Client, log *logrus.Entry) *Allocator {
	return &Allocator{panel: client, log: log, randInt: rand.Intn}
}

// Allocate resolves an inbound for the request. An explicit port
// occupied by a matching protocol is reused with its own stream
// settings adopted wholesale; occupied by any other protocol it is a
// hard conflict. Without an explicit port a free one is drawn at
// random. A new inbound is created and re-fetched when nothing
// reusable exists.
func (a *Allocator) Allocate(ctx context.Context, req AllocRequest) (Allocation, error) {
	inbounds, err := a.panel.ListInbounds(ctx)
	if err != nil {
		return Allocation{}, fmt.Errorf("list inbounds: %w", err)
	}

	if req.Port > 0 {
		for _, ib := range inbounds {
			if ib.Port != req.Port {
				continue
			}
			if ib.Protocol != req.Protocol {
				return Allocation{}, &PortConflictError{Port: req.Port, Protocol: ib.Protocol}
			}
			return a.adopt(ib, req), nil
		}
		return a.create(ctx, req, req.Port)
	}

	port, err := a.pickFreePort(inbounds)
	if err != nil {
		return Allocation{}, err
	}
	return a.create(ctx, req, port)
}

// adopt reuses an existing inbound. Its stream settings win over the
// caller's: a listener's wire configuration cannot differ per client.
func (a *Allocator) adopt(ib panel.Inbound, req AllocRequest) Allocation {
	alloc := Allocation{
		Inbound:     ib,
		Port:        ib.Port,
		Network:     req.Network,
		Security:    req.Security,
		SNI:         req.SNI,
		Fingerprint: req.Fingerprint,
		Reused:      true,
	}

	stream, err := ib.DecodeStreamSettings()
	if err != nil {
		a.log.WithError(err).WithField("inbound", ib.ID).Warn("failed to parse existing inbound stream settings")
		return alloc
	}

	if stream.Network != "" {
		alloc.Network = stream.Network
	}
	alloc.Security = stream.Security
	if alloc.Security == "" {
		alloc.Security = "none"
	}
	switch {
	case alloc.Security == "tls" && stream.TLSSettings != nil:
		if stream.TLSSettings.ServerName != "" {
			alloc.SNI = stream.TLSSettings.ServerName
		}
		if stream.TLSSettings.Fingerprint != "" {
			alloc.Fingerprint = stream.TLSSettings.Fingerprint
		}
	case alloc.Security == "reality" && stream.RealitySettings != nil:
		if len(stream.RealitySettings.ServerNames) > 0 {
			alloc.SNI = stream.RealitySettings.ServerNames[0]
		}
		if stream.RealitySettings.Fingerprint != "" {
			alloc.Fingerprint = stream.RealitySettings.Fingerprint
		}
		alloc.RealityPublicKey = stream.RealitySettings.PublicKey
	}
	return alloc
}

func (a *Allocator) pickFreePort(inbounds []panel.Inbound) (int, error) {
	occupied := make(map[int]bool, len(inbounds))
	for _, ib := range inbounds {
		occupied[ib.Port] = true
	}
	for attempt := 0; attempt < portAttemptLimit; attempt++ {
		port := portRangeMin + a.randInt(portRangeMax-portRangeMin)
		if !occupied[port] {
			return port, nil
		}
	}
	return 0, ErrNoFreePort
}

// create builds and submits a new inbound, then re-fetches the list to
// resolve its assigned identifier. The create response itself cannot be
// trusted to carry the ID across panel versions.
func (a *Allocator) create(ctx context.Context, req AllocRequest, port int) (Allocation, error) {
	alloc := Allocation{
		Port:        port,
		Network:     req.Network,
		Security:    req.Security,
		SNI:         req.SNI,
		Fingerprint: req.Fingerprint,
	}

	var reality *panel.RealitySettings
	if req.Security == "reality" {
		reality = a.generateRealitySettings(ctx, req)
		if reality != nil {
			alloc.RealityPublicKey = reality.PublicKey
		}
	}

	streamJSON, err := json.Marshal(buildStreamSettings(req, reality))
	if err != nil {
		return Allocation{}, fmt.Errorf("encode stream settings: %w", err)
	}

	err = a.panel.AddInbound(ctx, panel.InboundRequest{
		Remark:         fmt.Sprintf("%s-%s", req.Remark, req.Protocol),
		Enable:         true,
		Port:           port,
		Protocol:       req.Protocol,
		Settings:       `{"clients":[],"decryption":"none","fallbacks":[]}`,
		StreamSettings: string(streamJSON),
		Sniffing:       `{"enabled":true,"destOverride":["http","tls","quic","fakedns"],"metadataOnly":false,"routeOnly":false}`,
		Allocate:       `{"strategy":"always","refresh":5,"concurrency":3}`,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("create inbound: %w", err)
	}

	refreshed, err := a.panel.ListInbounds(ctx)
	if err != nil {
		return Allocation{}, fmt.Errorf("refresh inbounds after create: %w", err)
	}
	for _, ib := range refreshed {
		if ib.Port == port {
			alloc.Inbound = ib
			return alloc, nil
		}
	}
	return Allocation{}, fmt.Errorf("created inbound on port %d not found in refreshed list", port)
}

// generateRealitySettings asks the panel for a fresh key pair. A failed
// generation degrades to empty keys rather than aborting: the operation
// completes and the resulting link carries no Reality material.
func (a *Allocator) generateRealitySettings(ctx context.Context, req AllocRequest) *panel.RealitySettings {
	cert, err := a.panel.NewX25519Cert(ctx)
	if err != nil {
		a.log.WithError(err).Warn("reality key generation failed, proceeding without keys")
		return nil
	}
	shortID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	rs := realityDefaults(req)
	rs.PrivateKey = cert.PrivateKey
	rs.PublicKey = cert.PublicKey
	rs.ShortIDs = []string{shortID}
	return &rs
}

func realityDefaults(req AllocRequest) panel.RealitySettings {
	dest := "www.google.com:443"
	serverName := "www.google.com"
	if req.SNI != "" {
		dest = req.SNI + ":443"
		serverName = req.SNI
	}
	fp := req.Fingerprint
	if fp == "" {
		fp = "chrome"
	}
	return panel.RealitySettings{
		Dest:        dest,
		ServerNames: []string{serverName},
		ShortIDs:    []string{""},
		Fingerprint: fp,
		SpiderX:     "/",
	}
}

func buildStreamSettings(req AllocRequest, reality *panel.RealitySettings) panel.StreamSettings {
	stream := panel.StreamSettings{Network: req.Network, Security: req.Security}

	switch req.Network {
	case "tcp":
		stream.TCPSettings = &panel.TCPSettings{Header: panel.TCPHeader{Type: "none"}}
	case "ws":
		stream.WSSettings = &panel.WSSettings{Path: "/", Headers: map[string]string{}}
	case "grpc":
		stream.GRPCSettings = &panel.GRPCSettings{}
	}

	switch req.Security {
	case "tls":
		fp := req.Fingerprint
		if fp == "" {
			fp = "chrome"
		}
		stream.TLSSettings = &panel.TLSSettings{
			ServerName:   req.SNI,
			Fingerprint:  fp,
			ALPN:         []string{"h2", "http/1.1"},
			Certificates: []panel.Certificate{{}},
		}
	case "reality":
		if reality != nil {
			stream.RealitySettings = reality
		} else {
			rs := realityDefaults(req)
			stream.RealitySettings = &rs
		}
	}

	return stream
}
