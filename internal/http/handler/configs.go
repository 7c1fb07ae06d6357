package handler

import (
	"net/http"

	"vpn-backend/internal/vpn"
)

// ─── User Config Endpoints ───

func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	var req vpn.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Create(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":          "Config created successfully",
		"config":           result.Config,
		"shareUrl":         result.Config.ShareURL,
		"realityPublicKey": result.RealityPublicKey,
	})
}

func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	result, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetConfigDetail(w http.ResponseWriter, r *http.Request) {
	userID, okU := pathID(r, "userID")
	configID, okC := pathID(r, "configID")
	if !okU || !okC {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	view, err := h.svc.Detail(r.Context(), userID, configID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateConfig renames a config, rotates its credential, or both, per
// the request body.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	userID, okU := pathID(r, "userID")
	configID, okC := pathID(r, "configID")
	if !okU || !okC {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	var req struct {
		Name         string `json:"name"`
		RegenerateID bool   `json:"regenerateId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Name != "" {
		if _, err := h.svc.Rename(r.Context(), userID, configID, req.Name); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.RegenerateID {
		if _, err := h.svc.Rotate(r.Context(), userID, configID); err != nil {
			h.writeError(w, err)
			return
		}
	}

	cfg, err := h.svc.Detail(r.Context(), userID, configID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Config updated", "config": cfg})
}

func (h *Handler) ToggleConfig(w http.ResponseWriter, r *http.Request) {
	userID, okU := pathID(r, "userID")
	configID, okC := pathID(r, "configID")
	if !okU || !okC {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	// Ownership check before the unscoped toggle.
	if _, err := h.svc.Detail(r.Context(), userID, configID); err != nil {
		h.writeError(w, err)
		return
	}
	cfg, err := h.svc.Toggle(r.Context(), configID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg := "Config disabled"
	if cfg.Enabled {
		msg = "Config enabled"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "config": cfg})
}

func (h *Handler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	userID, okU := pathID(r, "userID")
	configID, okC := pathID(r, "configID")
	if !okU || !okC {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	if err := h.svc.Remove(r.Context(), userID, configID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Config deleted successfully"})
}

func (h *Handler) GetUserRestrictions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	user, err := h.repo.GetUser(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restrictions": user.Restrictions})
}

// ─── Premade Templates (user side) ───

func (h *Handler) ListPremadeForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	user, err := h.repo.GetUser(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "user not found"})
		return
	}

	premades, err := h.repo.ListEnabledPremade(user.Plan != "FREE")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"premades": premades, "userPlan": user.Plan})
}

func (h *Handler) ActivatePremade(w http.ResponseWriter, r *http.Request) {
	userID, okU := pathID(r, "userID")
	premadeID, okP := pathID(r, "premadeID")
	if !okU || !okP {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return
	}

	result, err := h.svc.ActivateTemplate(r.Context(), userID, premadeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":          "Config activated from premade template",
		"config":           result.Config,
		"realityPublicKey": result.RealityPublicKey,
	})
}

// ─── Notices ───

func (h *Handler) ListNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := h.repo.ListNotices(true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}
