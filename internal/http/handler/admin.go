package handler

import (
	"net/http"
	"time"

	"vpn-backend/internal/panel"
	"vpn-backend/internal/store/model"
)

// ─── User Administration ───

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		Plan         string `json:"plan"`
		MaxConfigs   int    `json:"maxConfigs"`
		AllowedMaxGB int    `json:"allowedMaxGb"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name and email are required"})
		return
	}

	settings, err := h.repo.GetSettings()
	if err != nil {
		h.writeError(w, err)
		return
	}

	user := &model.User{
		Name:         req.Name,
		Email:        req.Email,
		Plan:         req.Plan,
		MaxConfigs:   req.MaxConfigs,
		AllowedMaxGB: req.AllowedMaxGB,
		Restrictions: settings.Restrictions,
		SpeedLimit:   0,
		CreatedTime:  time.Now().UnixMilli(),
	}
	if user.Plan == "" {
		user.Plan = "FREE"
	}
	if user.MaxConfigs <= 0 {
		user.MaxConfigs = settings.DefaultMaxConfigs
	}
	if user.AllowedMaxGB <= 0 {
		user.AllowedMaxGB = settings.DefaultMaxGB
	}

	if err := h.repo.CreateUser(user); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created", "user": user})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) UpdateUserRestrictions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	var req struct {
		Restrictions model.Restrictions `json:"restrictions"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.repo.UpdateUserRestrictions(userID, req.Restrictions); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Restrictions updated", "restrictions": req.Restrictions})
}

func (h *Handler) UpdateUserSpeedLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	var req struct {
		SpeedLimit int `json:"speedLimit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SpeedLimit < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "speed limit cannot be negative"})
		return
	}

	if err := h.repo.UpdateUserSpeedLimit(userID, req.SpeedLimit); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Speed limit updated", "speedLimit": req.SpeedLimit})
}

func (h *Handler) UpdateUserPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	var req struct {
		Plan         *string `json:"plan"`
		PlanExpiry   *int64  `json:"planExpiry"`
		MaxConfigs   *int    `json:"maxConfigs"`
		AllowedMaxGB *int    `json:"allowedMaxGb"`
		SpeedLimit   *int    `json:"speedLimit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.repo.UpdateUserPlan(userID, req.Plan, req.PlanExpiry, req.MaxConfigs, req.AllowedMaxGB, req.SpeedLimit); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.repo.GetUser(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Plan updated", "user": user})
}

func (h *Handler) GetUserUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return
	}

	samples, err := h.repo.ListUsageSamples(userID, 48)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

// Admin toggle and delete skip the ownership scope.

func (h *Handler) AdminToggleConfig(w http.ResponseWriter, r *http.Request) {
	configID, ok := pathID(r, "configID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid config id"})
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

func (h *Handler) AdminDeleteConfig(w http.ResponseWriter, r *http.Request) {
	configID, ok := pathID(r, "configID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid config id"})
		return
	}

	if err := h.svc.Remove(r.Context(), 0, configID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Config deleted successfully"})
}

// ─── Premade Templates (admin side) ───

func (h *Handler) CreatePremade(w http.ResponseWriter, r *http.Request) {
	var p model.PremadeConfig
	if !decodeBody(w, r, &p) {
		return
	}
	if p.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Name is required"})
		return
	}
	applyPremadeDefaults(&p)
	p.ID = 0
	p.Enabled = true
	p.CreatedTime = time.Now().UnixMilli()

	if err := h.repo.CreatePremade(&p); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Premade config created", "premade": p})
}

func applyPremadeDefaults(p *model.PremadeConfig) {
	if p.Protocol == "" {
		p.Protocol = "vless"
	}
	if p.Security == "" {
		p.Security = "reality"
	}
	if p.Network == "" {
		p.Network = "tcp"
	}
	if p.Fingerprint == "" {
		p.Fingerprint = "chrome"
	}
	if p.DataGB <= 0 {
		p.DataGB = 10
	}
	if p.DurationDays <= 0 {
		p.DurationDays = 30
	}
}

func (h *Handler) ListPremadeAdmin(w http.ResponseWriter, r *http.Request) {
	premades, err := h.repo.ListPremade()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"premades": premades})
}

func (h *Handler) UpdatePremade(w http.ResponseWriter, r *http.Request) {
	premadeID, ok := pathID(r, "premadeID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid premade id"})
		return
	}

	existing, err := h.repo.GetPremade(premadeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "premade config not found"})
		return
	}

	// Decode over the existing row so omitted fields keep their values.
	if !decodeBody(w, r, existing) {
		return
	}
	existing.ID = premadeID

	if err := h.repo.UpdatePremade(existing); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Premade config updated", "premade": existing})
}

func (h *Handler) DeletePremade(w http.ResponseWriter, r *http.Request) {
	premadeID, ok := pathID(r, "premadeID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid premade id"})
		return
	}
	if err := h.repo.DeletePremade(premadeID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Premade config deleted"})
}

// ─── Notices (admin side) ───

func (h *Handler) CreateNotice(w http.ResponseWriter, r *http.Request) {
	var n model.Notice
	if !decodeBody(w, r, &n) {
		return
	}
	if n.Title == "" || n.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "title and content are required"})
		return
	}
	n.ID = 0
	n.Enabled = true
	n.CreatedTime = time.Now().UnixMilli()

	if err := h.repo.CreateNotice(&n); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Notice created", "notice": n})
}

func (h *Handler) ListNoticesAdmin(w http.ResponseWriter, r *http.Request) {
	notices, err := h.repo.ListNotices(false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

func (h *Handler) UpdateNotice(w http.ResponseWriter, r *http.Request) {
	noticeID, ok := pathID(r, "noticeID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid notice id"})
		return
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Enabled bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.repo.UpdateNotice(noticeID, req.Title, req.Content, req.Enabled, time.Now().UnixMilli()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Notice updated"})
}

func (h *Handler) DeleteNotice(w http.ResponseWriter, r *http.Request) {
	noticeID, ok := pathID(r, "noticeID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid notice id"})
		return
	}
	if err := h.repo.DeleteNotice(noticeID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Notice deleted"})
}

// ─── Global Settings ───

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DefaultMaxConfigs *int                `json:"defaultMaxConfigs"`
		DefaultMaxGB      *int                `json:"defaultMaxGb"`
		DefaultSpeedLimit *int                `json:"defaultSpeedLimit"`
		Restrictions      *model.Restrictions `json:"restrictions"`
		ShowLiveUsers     *bool               `json:"showLiveUsers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	settings, err := h.repo.UpdateSettings(req.DefaultMaxConfigs, req.DefaultMaxGB, req.DefaultSpeedLimit, req.Restrictions, req.ShowLiveUsers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Settings updated", "settings": settings})
}

// UpdateBackupPanel stores new backup panel credentials and installs
// them on the live session manager, so failover targets the new panel
// without a restart.
func (h *Handler) UpdateBackupPanel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BackupPanelURL  string `json:"backupPanelUrl"`
		BackupPanelUser string `json:"backupPanelUser"`
		BackupPanelPass string `json:"backupPanelPass"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	settings, err := h.repo.UpdateBackupPanel(req.BackupPanelURL, req.BackupPanelUser, req.BackupPanelPass)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.sessions.SetBackup(panel.Credentials{
		URL:      req.BackupPanelURL,
		Username: req.BackupPanelUser,
		Password: req.BackupPanelPass,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Backup panel updated", "settings": settings})
}

// ─── Panel Operations ───

func (h *Handler) PanelHealth(w http.ResponseWriter, r *http.Request) {
	primary := h.panel.HealthCheck(r.Context(), h.sessions.PrimaryURL())

	backup := panel.HealthStatus{}
	settings, err := h.repo.GetSettings()
	if err == nil && settings.BackupPanelURL != "" {
		backup = h.panel.HealthCheck(r.Context(), settings.BackupPanelURL)
	}

	active := "primary"
	if h.sessions.UsingBackup() {
		active = "backup"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"primary":     primary,
		"backup":      backup,
		"activePanel": active,
	})
}

func (h *Handler) PanelStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.panel.ServerStatus(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status.Raw})
}

func (h *Handler) GenerateRealityKeys(w http.ResponseWriter, r *http.Request) {
	cert, err := h.panel.NewX25519Cert(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": cert})
}
