package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakePanel is a minimal scripted panel: /login always succeeds, and
// API responses come from the reply function.
type fakePanel struct {
	srv    *httptest.Server
	calls  atomic.Int64
	logins atomic.Int64
	reply  func(callNum int64, w http.ResponseWriter, r *http.Request)
}

func newFakePanel(t *testing.T, reply func(int64, http.ResponseWriter, *http.Request)) *fakePanel {
	f := &fakePanel{reply: reply}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			f.logins.Add(1)
			w.Header().Set("Set-Cookie", "3x-ui=tok; Path=/")
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
			return
		}
		f.reply(f.calls.Add(1), w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func okEnvelope(w http.ResponseWriter, obj any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "obj": obj})
}

func newTestClient(t *testing.T, url string) *Client {
	m := NewSessionManager(Credentials{URL: url, Username: "a", Password: "b"}, testLog())
	return NewClient(m, testLog())
}

func TestClientRetriesOnceAfterSessionExpiry(t *testing.T) {
	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		okEnvelope(w, []Inbound{{ID: 1, Port: 8080, Protocol: "vless"}})
	})
	c := newTestClient(t, f.srv.URL)

	inbounds, err := c.ListInbounds(context.Background())
	if err != nil {
		t.Fatalf("ListInbounds: %v", err)
	}
	if len(inbounds) != 1 || inbounds[0].ID != 1 {
		t.Fatalf("unexpected inbounds: %+v", inbounds)
	}
	if got := f.logins.Load(); got != 2 {
		t.Fatalf("expected initial login plus one re-auth, got %d", got)
	}
}

func TestClientFailsOverToBackupOnTransportError(t *testing.T) {
	backup := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		okEnvelope(w, []Inbound{{ID: 42, Port: 9999, Protocol: "vless"}})
	})

	m := NewSessionManager(Credentials{URL: "http://127.0.0.1:1", Username: "a", Password: "b"}, testLog())
	m.SetBackup(Credentials{URL: backup.srv.URL, Username: "a", Password: "b"})
	c := NewClient(m, testLog())

	inbounds, err := c.ListInbounds(context.Background())
	if err != nil {
		t.Fatalf("expected backup to serve the call: %v", err)
	}
	if len(inbounds) != 1 || inbounds[0].ID != 42 {
		t.Fatalf("unexpected inbounds: %+v", inbounds)
	}
	if !m.UsingBackup() {
		t.Fatalf("session manager must have failed over")
	}
}

func TestClientReturnsUnreachableWithoutBackup(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.ListInbounds(context.Background())
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableError, got %v", err)
	}
	if unreachable.Backup != nil {
		t.Fatalf("no backup configured, backup reason must be nil")
	}
}

func TestClientCombinesBothFailureReasons(t *testing.T) {
	m := NewSessionManager(Credentials{URL: "http://127.0.0.1:1", Username: "a", Password: "b"}, testLog())
	m.SetBackup(Credentials{URL: "http://127.0.0.1:2", Username: "a", Password: "b"})
	c := NewClient(m, testLog())

	_, err := c.ListInbounds(context.Background())
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableError, got %v", err)
	}
	if unreachable.Primary == nil || unreachable.Backup == nil {
		t.Fatalf("combined error must name both reasons: %+v", unreachable)
	}
}

func TestClientAPIRefusalIsNotRetried(t *testing.T) {
	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "port in use"})
	})
	c := newTestClient(t, f.srv.URL)

	err := c.AddInbound(context.Background(), InboundRequest{Port: 8080})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Msg != "port in use" {
		t.Fatalf("unexpected message: %q", apiErr.Msg)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("refusal must not be retried, got %d calls", got)
	}
}

func TestDeleteClientMapsNotFoundToErrClientMissing(t *testing.T) {
	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "Client Not Found in inbound"})
	})
	c := newTestClient(t, f.srv.URL)

	err := c.DeleteClient(context.Background(), 3, "client-id")
	if !errors.Is(err, ErrClientMissing) {
		t.Fatalf("expected ErrClientMissing, got %v", err)
	}
}

func TestClientIPsHandlesNoIPRecordString(t *testing.T) {
	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		okEnvelope(w, "No IP Record")
	})
	c := newTestClient(t, f.srv.URL)

	ips, err := c.ClientIPs(context.Background(), "someone")
	if err != nil {
		t.Fatalf("ClientIPs: %v", err)
	}
	if len(ips) != 0 {
		t.Fatalf("expected empty list, got %v", ips)
	}
}

func TestClientIPsHandlesDoubleEncodedArray(t *testing.T) {
	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {
		okEnvelope(w, `["1.2.3.4","5.6.7.8"]`)
	})
	c := newTestClient(t, f.srv.URL)

	ips, err := c.ClientIPs(context.Background(), "someone")
	if err != nil {
		t.Fatalf("ClientIPs: %v", err)
	}
	if len(ips) != 2 || ips[0] != "1.2.3.4" {
		t.Fatalf("expected decoded array, got %v", ips)
	}
}

func TestHealthCheckReportsOfflinePanel(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	status := c.HealthCheck(context.Background(), "http://127.0.0.1:1")
	if status.Online {
		t.Fatalf("dead panel must be offline")
	}

	f := newFakePanel(t, func(call int64, w http.ResponseWriter, r *http.Request) {})
	status = c.HealthCheck(context.Background(), f.srv.URL)
	if !status.Online {
		t.Fatalf("live panel must be online")
	}
}
