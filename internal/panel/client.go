package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const healthProbeTimeout = 5 * time.Second

// Client executes panel API operations against the session manager's
// active endpoint. Each call is one logical operation: an expired
// session is re-established and the call retried once; a transport
// failure triggers failover to the backup panel (when configured) and
// one retry there. An API-level refusal is surfaced as *APIError and
// never retried.
type Client struct {
	sessions   *SessionManager
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(sessions *SessionManager, log *logrus.Entry) *Client {
	return &Client{
		sessions:   sessions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// ─── Inbound Operations ───

func (c *Client) ListInbounds(ctx context.Context) ([]Inbound, error) {
	resp, err := c.call(ctx, http.MethodGet, "/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, err
	}
	var inbounds []Inbound
	if err := json.Unmarshal(resp.Obj, &inbounds); err != nil {
		return nil, fmt.Errorf("decode inbound list: %w", err)
	}
	return inbounds, nil
}

func (c *Client) AddInbound(ctx context.Context, req InboundRequest) error {
	_, err := c.call(ctx, http.MethodPost, "/panel/api/inbounds/add", req)
	return err
}

func (c *Client) AddClient(ctx context.Context, inboundID int, clients []ClientConfig) error {
	settings, err := encodeClients(clients)
	if err != nil {
		return err
	}
	body := map[string]any{"id": inboundID, "settings": settings}
	_, err = c.call(ctx, http.MethodPost, "/panel/api/inbounds/addClient", body)
	return err
}

func (c *Client) UpdateClient(ctx context.Context, clientID string, inboundID int, clients []ClientConfig) error {
	settings, err := encodeClients(clients)
	if err != nil {
		return err
	}
	body := map[string]any{"id": inboundID, "settings": settings}
	_, err = c.call(ctx, http.MethodPost, "/panel/api/inbounds/updateClient/"+clientID, body)
	return err
}

// DeleteClient removes a client from an inbound. A panel refusal whose
// message indicates the client no longer exists is reported as
// ErrClientMissing so delete paths can treat it as already done.
func (c *Client) DeleteClient(ctx context.Context, inboundID int, clientID string) error {
	path := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, clientID)
	_, err := c.call(ctx, http.MethodPost, path, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Msg), "not found") {
		return fmt.Errorf("%w: %s", ErrClientMissing, apiErr.Msg)
	}
	return err
}

// ─── Per-Client Queries ───

func (c *Client) ClientTraffic(ctx context.Context, email string) (ClientTraffic, error) {
	resp, err := c.call(ctx, http.MethodGet, "/panel/api/inbounds/getClientTraffics/"+email, nil)
	if err != nil {
		return ClientTraffic{}, err
	}
	var traffic ClientTraffic
	if len(resp.Obj) > 0 && string(resp.Obj) != "null" {
		if err := json.Unmarshal(resp.Obj, &traffic); err != nil {
			return ClientTraffic{}, fmt.Errorf("decode client traffic: %w", err)
		}
	}
	return traffic, nil
}

// ClientIPs lists the source addresses recently seen for a client. The
// panel answers either a JSON array or the literal string
// "No IP Record"; the latter maps to an empty slice.
func (c *Client) ClientIPs(ctx context.Context, email string) ([]string, error) {
	resp, err := c.call(ctx, http.MethodPost, "/panel/api/inbounds/clientIps/"+email, nil)
	if err != nil {
		return nil, err
	}
	return decodeIPList(resp.Obj)
}

func decodeIPList(obj json.RawMessage) ([]string, error) {
	if len(obj) == 0 || string(obj) == "null" {
		return nil, nil
	}
	var ips []string
	if err := json.Unmarshal(obj, &ips); err == nil {
		return ips, nil
	}
	var s string
	if err := json.Unmarshal(obj, &s); err != nil {
		return nil, fmt.Errorf("decode client ips: unexpected payload %q", string(obj))
	}
	if s == "" || strings.EqualFold(s, "No IP Record") {
		return nil, nil
	}
	// Some panel builds double-encode the array inside the string.
	if err := json.Unmarshal([]byte(s), &ips); err == nil {
		return ips, nil
	}
	return []string{s}, nil
}

func (c *Client) OnlineClients(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, http.MethodPost, "/panel/api/inbounds/onlines", nil)
	if err != nil {
		return nil, err
	}
	var emails []string
	if len(resp.Obj) > 0 && string(resp.Obj) != "null" {
		if err := json.Unmarshal(resp.Obj, &emails); err != nil {
			return nil, fmt.Errorf("decode online clients: %w", err)
		}
	}
	return emails, nil
}

// ─── Server Operations ───

func (c *Client) ServerStatus(ctx context.Context) (ServerStatus, error) {
	resp, err := c.call(ctx, http.MethodPost, "/panel/api/server/status", nil)
	if err != nil {
		return ServerStatus{}, err
	}
	return ServerStatus{Raw: resp.Obj}, nil
}

func (c *Client) NewX25519Cert(ctx context.Context) (X25519Cert, error) {
	resp, err := c.call(ctx, http.MethodPost, "/panel/api/server/getNewX25519Cert", nil)
	if err != nil {
		return X25519Cert{}, err
	}
	var cert X25519Cert
	if err := json.Unmarshal(resp.Obj, &cert); err != nil {
		return X25519Cert{}, fmt.Errorf("decode x25519 cert: %w", err)
	}
	return cert, nil
}

// HealthCheck probes a panel URL with a bounded-wait HEAD request. It
// never authenticates and never affects session state; any response at
// all counts as online.
func (c *Client) HealthCheck(ctx context.Context, url string) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	url = strings.TrimRight(url, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url+"/login", nil)
	if err != nil {
		return HealthStatus{Online: false, URL: url}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{Online: false, URL: url}
	}
	resp.Body.Close()
	return HealthStatus{Online: true, URL: url}
}

// ─── Request Core ───

// call runs one authenticated operation against the active panel.
// Retry ladder: expired session → re-login and retry once on the same
// panel; transport or decode failure → failover to the backup (at most
// once) and retry there. Anything past that is an UnreachableError.
func (c *Client) call(ctx context.Context, method, path string, body any) (apiResponse, error) {
	resp, err := c.callActive(ctx, method, path, body)
	if err == nil {
		return resp, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// The panel answered and said no; retrying elsewhere cannot help.
		return resp, err
	}

	primaryErr := err
	if !c.sessions.Failover() {
		return apiResponse{}, &UnreachableError{Primary: primaryErr}
	}

	resp, err = c.callActive(ctx, method, path, body)
	if err == nil {
		return resp, nil
	}
	if errors.As(err, &apiErr) {
		return resp, err
	}
	return apiResponse{}, &UnreachableError{Primary: primaryErr, Backup: err}
}

// callActive performs the request against the current active endpoint,
// absorbing one session-expiry round trip.
func (c *Client) callActive(ctx context.Context, method, path string, body any) (apiResponse, error) {
	ep, err := c.sessions.EnsureSession(ctx)
	if err != nil {
		return apiResponse{}, err
	}

	resp, err := c.do(ctx, ep, method, path, body)
	if errors.Is(err, errSessionExpired) {
		c.sessions.Invalidate()
		if ep, err = c.sessions.Login(ctx); err != nil {
			return apiResponse{}, err
		}
		resp, err = c.do(ctx, ep, method, path, body)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, ep Endpoint, method, path string, body any) (apiResponse, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.URL+path, reader)
	if err != nil {
		return apiResponse{}, fmt.Errorf("panel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", ep.Cookie)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("panel %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apiResponse{}, errSessionExpired
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("panel %s %s: invalid response: %w", method, path, err)
	}
	if !out.Success {
		return out, &APIError{Msg: out.Msg}
	}
	return out, nil
}
