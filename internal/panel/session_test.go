package panel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func loginServer(t *testing.T, logins *atomic.Int64) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			http.NotFound(w, r)
			return
		}
		logins.Add(1)
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "good" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "bad credentials"})
			return
		}
		w.Header().Set("Set-Cookie", "3x-ui=session-token; Path=/; HttpOnly")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginStoresFirstCookieSegment(t *testing.T) {
	var logins atomic.Int64
	srv := loginServer(t, &logins)
	m := NewSessionManager(Credentials{URL: srv.URL, Username: "admin", Password: "good"}, testLog())

	ep, err := m.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ep.Cookie != "3x-ui=session-token" {
		t.Fatalf("expected first cookie segment, got %q", ep.Cookie)
	}
	if ep.Backup {
		t.Fatalf("primary session must not be marked backup")
	}
}

func TestLoginFailurePropagates(t *testing.T) {
	var logins atomic.Int64
	srv := loginServer(t, &logins)
	m := NewSessionManager(Credentials{URL: srv.URL, Username: "admin", Password: "wrong"}, testLog())

	if _, err := m.Login(context.Background()); err == nil {
		t.Fatalf("expected login failure")
	}
	if m.Active().Cookie != "" {
		t.Fatalf("failed login must not store a cookie")
	}
}

func TestEnsureSessionLogsInOnlyWhenCookieMissing(t *testing.T) {
	var logins atomic.Int64
	srv := loginServer(t, &logins)
	m := NewSessionManager(Credentials{URL: srv.URL, Username: "admin", Password: "good"}, testLog())

	if _, err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if _, err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("expected exactly one login, got %d", got)
	}

	m.Invalidate()
	if _, err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession after invalidate: %v", err)
	}
	if got := logins.Load(); got != 2 {
		t.Fatalf("expected re-login after invalidate, got %d", got)
	}
}

func TestFailoverFlipsExactlyOnce(t *testing.T) {
	m := NewSessionManager(Credentials{URL: "http://primary"}, testLog())

	if m.Failover() {
		t.Fatalf("failover without a backup must be a no-op")
	}

	m.SetBackup(Credentials{URL: "http://backup"})
	if !m.Failover() {
		t.Fatalf("first failover with backup must succeed")
	}
	if !m.UsingBackup() {
		t.Fatalf("backup must be active after failover")
	}
	if m.Failover() {
		t.Fatalf("repeated failover must be a no-op")
	}
	if m.Active().URL != "http://backup" || !m.Active().Backup {
		t.Fatalf("active endpoint must be the backup, got %+v", m.Active())
	}
}

func TestSetBackupWithEmptyURLClearsBackup(t *testing.T) {
	m := NewSessionManager(Credentials{URL: "http://primary"}, testLog())
	m.SetBackup(Credentials{URL: "http://backup"})
	if !m.HasBackup() {
		t.Fatalf("backup should be configured")
	}

	m.SetBackup(Credentials{URL: "  "})
	if m.HasBackup() {
		t.Fatalf("empty URL must clear the backup")
	}
	if m.Failover() {
		t.Fatalf("failover must be impossible after clearing backup")
	}
}
