package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Credentials identify one remote panel.
type Credentials struct {
	URL      string
	Username string
	Password string
}

// Endpoint is a read snapshot of the currently active panel session.
type Endpoint struct {
	URL    string
	Cookie string
	Backup bool
}

type endpointState struct {
	creds  Credentials
	cookie string
}

// SessionManager owns authentication state for a primary and an
// optional backup panel. Exactly one panel is active at a time; the
// failover transition from primary to backup happens at most once per
// process lifetime (operator action or restart returns to primary).
type SessionManager struct {
	mu          sync.RWMutex
	primary     endpointState
	backup      *endpointState
	usingBackup bool

	httpClient *http.Client
	log        *logrus.Entry
}

func NewSessionManager(primary Credentials, log *logrus.Entry) *SessionManager {
	return &SessionManager{
		primary:    endpointState{creds: primary},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// SetBackup installs (or replaces) backup panel credentials. Clearing
// the URL removes the backup entirely.
func (m *SessionManager) SetBackup(creds Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(creds.URL) == "" {
		m.backup = nil
		m.usingBackup = false
		return
	}
	m.backup = &endpointState{creds: creds}
}

// PrimaryURL is the primary panel's base URL, independent of which
// panel is currently active.
func (m *SessionManager) PrimaryURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.creds.URL
}

func (m *SessionManager) HasBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backup != nil
}

func (m *SessionManager) UsingBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usingBackup
}

// Active returns a snapshot of the active endpoint. The cookie may be
// empty if no session has been established yet.
func (m *SessionManager) Active() Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.activeLocked()
	return Endpoint{URL: st.creds.URL, Cookie: st.cookie, Backup: m.usingBackup}
}

func (m *SessionManager) activeLocked() *endpointState {
	if m.usingBackup && m.backup != nil {
		return m.backup
	}
	return &m.primary
}

// EnsureSession guarantees a non-empty session cookie for the active
// panel, logging in if necessary. Safe for concurrent callers: two
// simultaneous logins both succeed and the last stored cookie wins.
func (m *SessionManager) EnsureSession(ctx context.Context) (Endpoint, error) {
	ep := m.Active()
	if ep.Cookie != "" {
		return ep, nil
	}
	return m.Login(ctx)
}

// Login authenticates against the active panel and stores the session
// cookie. A failed login is returned to the caller, never retried here.
func (m *SessionManager) Login(ctx context.Context) (Endpoint, error) {
	m.mu.RLock()
	creds := m.activeLocked().creds
	backup := m.usingBackup
	m.mu.RUnlock()

	cookie, err := m.doLogin(ctx, creds)
	if err != nil {
		return Endpoint{}, err
	}

	m.mu.Lock()
	// The active panel may have flipped while we were logging in; store
	// the cookie on the panel we actually authenticated against.
	if backup && m.backup != nil {
		m.backup.cookie = cookie
	} else if !backup {
		m.primary.cookie = cookie
	}
	ep := Endpoint{URL: creds.URL, Cookie: cookie, Backup: backup}
	m.mu.Unlock()

	return ep, nil
}

func (m *SessionManager) doLogin(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.URL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("panel login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("panel login: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("panel login: invalid response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("panel login failed: %s", out.Msg)
	}

	cookie := ""
	if setCookie := resp.Header.Get("Set-Cookie"); setCookie != "" {
		cookie = strings.SplitN(setCookie, ";", 2)[0]
	}
	if cookie == "" {
		return "", fmt.Errorf("panel login: no session cookie issued")
	}
	return cookie, nil
}

// Invalidate clears the active panel's cookie so the next call
// re-authenticates.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeLocked().cookie = ""
}

// Failover flips the active panel from primary to backup. It returns
// false when no backup is configured or the backup is already active;
// repeated calls after a completed failover are no-ops.
func (m *SessionManager) Failover() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usingBackup || m.backup == nil {
		return false
	}
	m.usingBackup = true
	m.backup.cookie = ""
	if m.log != nil {
		m.log.WithField("backup", m.backup.creds.URL).Warn("primary panel failed, switching to backup")
	}
	return true
}
