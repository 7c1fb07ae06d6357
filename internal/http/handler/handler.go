// Package handler implements the HTTP endpoints and background jobs.
// Authentication and admin authorization run in middleware upstream of
// this package; handlers trust the user identifier in the path.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vpn-backend/internal/panel"
	"vpn-backend/internal/store/repo"
	"vpn-backend/internal/vpn"
)

type Handler struct {
	repo     *repo.Repository
	svc      *vpn.Service
	panel    *panel.Client
	sessions *panel.SessionManager
	log      *logrus.Entry

	upgrader websocket.Upgrader

	jobsMu      sync.Mutex
	jobsStarted bool
	jobsCancel  context.CancelFunc
	jobsWG      sync.WaitGroup
}

func New(r *repo.Repository, svc *vpn.Service, client *panel.Client, sessions *panel.SessionManager, log *logrus.Entry) *Handler {
	return &Handler{
		repo:     r,
		svc:      svc,
		panel:    client,
		sessions: sessions,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeError maps the orchestration error taxonomy onto HTTP statuses.
// Panel unreachability is a 503: service degradation, never the user's
// fault.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validation  *vpn.ValidationError
		quota       *vpn.QuotaError
		restriction *vpn.RestrictionError
		conflict    *vpn.PortConflictError
		unreachable *panel.UnreachableError
		apiErr      *panel.APIError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &quota):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &restriction):
		writeJSON(w, http.StatusForbidden, errorBody{Error: restriction.Error(), Details: restriction.Violations})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Error()})
	case errors.Is(err, vpn.ErrUserNotFound), errors.Is(err, vpn.ErrConfigNotFound), errors.Is(err, vpn.ErrTemplateNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &unreachable):
		h.log.WithError(err).Error("panel unreachable")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "VPN panel is temporarily unavailable, please try again later"})
	case errors.As(err, &apiErr):
		h.log.WithError(err).Error("panel rejected request")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: apiErr.Error()})
	default:
		h.log.WithError(err).Error("internal error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}
