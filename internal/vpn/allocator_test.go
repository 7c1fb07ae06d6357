package vpn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vpn-backend/internal/panel"
)

func newTestAllocator(t *testing.T, stub *panelStub) *Allocator {
	return NewAllocator(newStubClient(t, stub.srv.URL), testLog())
}

func realityInbound(id, port int) panel.Inbound {
	stream := panel.StreamSettings{
		Network:  "tcp",
		Security: "reality",
		RealitySettings: &panel.RealitySettings{
			Dest:        "cdn.example.com:443",
			ServerNames: []string{"cdn.example.com"},
			PublicKey:   "existing-public-key",
			ShortIDs:    []string{"abcd1234"},
			Fingerprint: "firefox",
		},
	}
	raw, _ := json.Marshal(stream)
	return panel.Inbound{ID: id, Port: port, Protocol: "vless", StreamSettings: string(raw)}
}

func TestAllocateExplicitPortProtocolMismatchIsHardConflict(t *testing.T) {
	stub := newPanelStub(t)
	stub.addInbound(panel.Inbound{ID: 7, Port: 12000, Protocol: "trojan"})
	alloc := newTestAllocator(t, stub)

	_, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "none", Network: "tcp", Port: 12000, Remark: "test",
	})

	var conflict *PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PortConflictError, got %v", err)
	}
	if conflict.Port != 12000 || conflict.Protocol != "trojan" {
		t.Fatalf("conflict should name the offending port and protocol, got %+v", conflict)
	}
	if addInbound, _, _, _ := stub.counts(); addInbound != 0 {
		t.Fatalf("conflict must not create an inbound, got %d creates", addInbound)
	}
}

func TestAllocateExplicitPortReusesInboundAndAdoptsItsStreamSettings(t *testing.T) {
	stub := newPanelStub(t)
	stub.addInbound(realityInbound(3, 443))
	alloc := newTestAllocator(t, stub)

	// Caller asks for ws+tls, but the listener is tcp+reality; the
	// listener wins.
	got, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "tls", Network: "ws",
		SNI: "caller.example.com", Fingerprint: "chrome",
		Port: 443, Remark: "test",
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if !got.Reused || got.Inbound.ID != 3 {
		t.Fatalf("expected reuse of inbound 3, got %+v", got)
	}
	if got.Network != "tcp" || got.Security != "reality" {
		t.Fatalf("expected adopted settings tcp/reality, got %s/%s", got.Network, got.Security)
	}
	if got.SNI != "cdn.example.com" || got.Fingerprint != "firefox" {
		t.Fatalf("expected adopted sni/fingerprint, got %s/%s", got.SNI, got.Fingerprint)
	}
	if got.RealityPublicKey != "existing-public-key" {
		t.Fatalf("expected adopted reality key, got %q", got.RealityPublicKey)
	}
	if addInbound, _, _, _ := stub.counts(); addInbound != 0 {
		t.Fatalf("reuse must not create an inbound")
	}
}

func TestAllocateRandomPortAvoidsOccupiedPorts(t *testing.T) {
	stub := newPanelStub(t)
	stub.addInbound(panel.Inbound{ID: 1, Port: 10000, Protocol: "vless"})
	stub.addInbound(panel.Inbound{ID: 2, Port: 10001, Protocol: "vless"})
	alloc := newTestAllocator(t, stub)

	// First two draws land on occupied ports, third is free.
	draws := []int{0, 1, 2}
	alloc.randInt = func(n int) int {
		d := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return d
	}

	got, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "none", Network: "tcp", Remark: "test",
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got.Port != 10002 {
		t.Fatalf("expected port 10002, got %d", got.Port)
	}
	if got.Port == 10000 || got.Port == 10001 {
		t.Fatalf("assigned port collides with existing inbound")
	}
}

func TestAllocateRandomPortExhaustionFailsCleanly(t *testing.T) {
	stub := newPanelStub(t)
	stub.addInbound(panel.Inbound{ID: 1, Port: 10000, Protocol: "vless"})
	alloc := newTestAllocator(t, stub)
	alloc.randInt = func(n int) int { return 0 } // always the occupied port

	_, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "none", Network: "tcp", Remark: "test",
	})
	if !errors.Is(err, ErrNoFreePort) {
		t.Fatalf("expected ErrNoFreePort, got %v", err)
	}
}

func TestAllocateCreatesRealityInboundWithGeneratedKeys(t *testing.T) {
	stub := newPanelStub(t)
	alloc := newTestAllocator(t, stub)
	alloc.randInt = func(n int) int { return 5000 }

	got, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "reality", Network: "tcp",
		SNI: "cdn.example.com", Remark: "mycfg",
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	stub.mu.Lock()
	certCalls := stub.certCalls
	stub.mu.Unlock()
	if certCalls != 1 {
		t.Fatalf("expected one key generation call, got %d", certCalls)
	}
	if got.RealityPublicKey != "stub-public-key" {
		t.Fatalf("expected generated public key, got %q", got.RealityPublicKey)
	}
	if got.Inbound.ID == 0 {
		t.Fatalf("allocation must resolve the created inbound id")
	}
	if got.Port != 15000 {
		t.Fatalf("expected port 15000, got %d", got.Port)
	}

	stream, err := got.Inbound.DecodeStreamSettings()
	if err != nil {
		t.Fatalf("decode created stream settings: %v", err)
	}
	rs := stream.RealitySettings
	if rs == nil || rs.PrivateKey != "stub-private-key" || len(rs.ShortIDs) != 1 || len(rs.ShortIDs[0]) != 8 {
		t.Fatalf("created inbound carries wrong reality settings: %+v", rs)
	}
	if rs.Dest != "cdn.example.com:443" {
		t.Fatalf("expected dest derived from sni, got %q", rs.Dest)
	}
}

func TestAllocateRealityKeyFailureDegradesToEmptyKeys(t *testing.T) {
	stub := newPanelStub(t)
	stub.failCert = true
	alloc := newTestAllocator(t, stub)
	alloc.randInt = func(n int) int { return 1 }

	got, err := alloc.Allocate(context.Background(), AllocRequest{
		Protocol: "vless", Security: "reality", Network: "tcp", Remark: "test",
	})
	if err != nil {
		t.Fatalf("key failure must not abort allocation: %v", err)
	}
	if got.RealityPublicKey != "" {
		t.Fatalf("expected empty public key after degraded generation, got %q", got.RealityPublicKey)
	}

	stream, err := got.Inbound.DecodeStreamSettings()
	if err != nil {
		t.Fatalf("decode stream settings: %v", err)
	}
	if stream.RealitySettings == nil || stream.RealitySettings.PrivateKey != "" {
		t.Fatalf("expected reality block with empty keys, got %+v", stream.RealitySettings)
	}
}
