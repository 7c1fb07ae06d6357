package vpn

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"vpn-backend/internal/panel"
)

// panelStub fakes the remote panel control API over httptest. All
// mutable knobs are guarded by mu so concurrent fan-out reads are safe.
type panelStub struct {
	srv *httptest.Server

	mu            sync.Mutex
	inbounds      []panel.Inbound
	nextInboundID int

	loginCalls      int
	addInboundCalls int
	addClientCalls  int
	updateCalls     int
	deleteCalls     int
	certCalls       int

	lastClients []panel.ClientConfig

	failAddClient    bool
	failUpdateClient bool
	failCert         bool
	deleteClientMsg  string

	onlines []string
	traffic map[string]panel.ClientTraffic
}

func newPanelStub(t *testing.T) *panelStub {
	s := &panelStub{nextInboundID: 1, traffic: map[string]panel.ClientTraffic{}}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *panelStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/login":
		s.loginCalls++
		w.Header().Set("Set-Cookie", "3x-ui=stub-session; Path=/")
		writeEnvelope(w, true, "", nil)

	case path == "/panel/api/inbounds/list":
		writeEnvelope(w, true, "", s.inbounds)

	case path == "/panel/api/inbounds/add":
		s.addInboundCalls++
		var req panel.InboundRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ib := panel.Inbound{
			ID:             s.nextInboundID,
			Remark:         req.Remark,
			Enable:         req.Enable,
			Port:           req.Port,
			Protocol:       req.Protocol,
			Settings:       req.Settings,
			StreamSettings: req.StreamSettings,
			Sniffing:       req.Sniffing,
			Allocate:       req.Allocate,
		}
		s.nextInboundID++
		s.inbounds = append(s.inbounds, ib)
		writeEnvelope(w, true, "", nil)

	case path == "/panel/api/inbounds/addClient":
		s.addClientCalls++
		if s.failAddClient {
			writeEnvelope(w, false, "add client rejected", nil)
			return
		}
		s.lastClients = decodeClientsBody(r.Body)
		writeEnvelope(w, true, "", nil)

	case strings.HasPrefix(path, "/panel/api/inbounds/updateClient/"):
		s.updateCalls++
		if s.failUpdateClient {
			writeEnvelope(w, false, "update rejected", nil)
			return
		}
		s.lastClients = decodeClientsBody(r.Body)
		writeEnvelope(w, true, "", nil)

	case strings.Contains(path, "/delClient/"):
		s.deleteCalls++
		if s.deleteClientMsg != "" {
			writeEnvelope(w, false, s.deleteClientMsg, nil)
			return
		}
		writeEnvelope(w, true, "", nil)

	case strings.HasPrefix(path, "/panel/api/inbounds/getClientTraffics/"):
		email := strings.TrimPrefix(path, "/panel/api/inbounds/getClientTraffics/")
		if traffic, ok := s.traffic[email]; ok {
			writeEnvelope(w, true, "", traffic)
		} else {
			writeEnvelope(w, true, "", nil)
		}

	case strings.HasPrefix(path, "/panel/api/inbounds/clientIps/"):
		writeEnvelope(w, true, "", "No IP Record")

	case path == "/panel/api/inbounds/onlines":
		writeEnvelope(w, true, "", s.onlines)

	case path == "/panel/api/server/getNewX25519Cert":
		s.certCalls++
		if s.failCert {
			writeEnvelope(w, false, "cert generation failed", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]string{
			"privateKey": "stub-private-key",
			"publicKey":  "stub-public-key",
		})

	case path == "/panel/api/server/status":
		writeEnvelope(w, true, "", map[string]any{"cpu": 1})

	default:
		writeEnvelope(w, false, "unknown path "+path, nil)
	}
}

func writeEnvelope(w http.ResponseWriter, success bool, msg string, obj any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "msg": msg, "obj": obj})
}

func decodeClientsBody(body io.Reader) []panel.ClientConfig {
	var req struct {
		ID       int    `json:"id"`
		Settings string `json:"settings"`
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil
	}
	var wrapper struct {
		Clients []panel.ClientConfig `json:"clients"`
	}
	if err := json.Unmarshal([]byte(req.Settings), &wrapper); err != nil {
		return nil
	}
	return wrapper.Clients
}

func (s *panelStub) addInbound(ib panel.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ib.ID == 0 {
		ib.ID = s.nextInboundID
	}
	if ib.ID >= s.nextInboundID {
		s.nextInboundID = ib.ID + 1
	}
	s.inbounds = append(s.inbounds, ib)
}

func (s *panelStub) counts() (addInbound, addClient, update, del int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addInboundCalls, s.addClientCalls, s.updateCalls, s.deleteCalls
}

func (s *panelStub) sentClients() []panel.ClientConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClients
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newStubClient(t *testing.T, url string) *panel.Client {
	sessions := panel.NewSessionManager(panel.Credentials{
		URL:      url,
		Username: "admin",
		Password: "admin",
	}, testLog())
	return panel.NewClient(sessions, testLog())
}
