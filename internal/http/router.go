// Package http wires the handler methods onto the route table.
package http

import (
	"net/http"

	"vpn-backend/internal/http/handler"
)

func NewRouter(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	// User-facing config lifecycle. Authentication middleware upstream
	// is expected to have verified the userID path segment.
	mux.HandleFunc("POST /api/users/{userID}/configs", h.CreateConfig)
	mux.HandleFunc("GET /api/users/{userID}/configs", h.ListConfigs)
	mux.HandleFunc("GET /api/users/{userID}/configs/{configID}", h.GetConfigDetail)
	mux.HandleFunc("PUT /api/users/{userID}/configs/{configID}", h.UpdateConfig)
	mux.HandleFunc("POST /api/users/{userID}/configs/{configID}/toggle", h.ToggleConfig)
	mux.HandleFunc("DELETE /api/users/{userID}/configs/{configID}", h.DeleteConfig)
	mux.HandleFunc("GET /api/users/{userID}/restrictions", h.GetUserRestrictions)

	mux.HandleFunc("GET /api/users/{userID}/premade", h.ListPremadeForUser)
	mux.HandleFunc("POST /api/users/{userID}/premade/{premadeID}/activate", h.ActivatePremade)

	mux.HandleFunc("GET /api/notices", h.ListNotices)
	mux.HandleFunc("GET /api/live", h.LiveFeed)

	// Admin surface.
	mux.HandleFunc("POST /api/admin/users", h.CreateUser)
	mux.HandleFunc("GET /api/admin/users", h.ListUsers)
	mux.HandleFunc("PUT /api/admin/users/{userID}/restrictions", h.UpdateUserRestrictions)
	mux.HandleFunc("PUT /api/admin/users/{userID}/speed-limit", h.UpdateUserSpeedLimit)
	mux.HandleFunc("PUT /api/admin/users/{userID}/plan", h.UpdateUserPlan)
	mux.HandleFunc("GET /api/admin/users/{userID}/usage", h.GetUserUsage)

	mux.HandleFunc("POST /api/admin/configs/{configID}/toggle", h.AdminToggleConfig)
	mux.HandleFunc("DELETE /api/admin/configs/{configID}", h.AdminDeleteConfig)

	mux.HandleFunc("POST /api/admin/premade", h.CreatePremade)
	mux.HandleFunc("GET /api/admin/premade", h.ListPremadeAdmin)
	mux.HandleFunc("PUT /api/admin/premade/{premadeID}", h.UpdatePremade)
	mux.HandleFunc("DELETE /api/admin/premade/{premadeID}", h.DeletePremade)

	mux.HandleFunc("POST /api/admin/notices", h.CreateNotice)
	mux.HandleFunc("GET /api/admin/notices", h.ListNoticesAdmin)
	mux.HandleFunc("PUT /api/admin/notices/{noticeID}", h.UpdateNotice)
	mux.HandleFunc("DELETE /api/admin/notices/{noticeID}", h.DeleteNotice)

	mux.HandleFunc("GET /api/admin/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/admin/settings", h.UpdateSettings)
	mux.HandleFunc("PUT /api/admin/settings/backup-panel", h.UpdateBackupPanel)

	mux.HandleFunc("GET /api/admin/panel/health", h.PanelHealth)
	mux.HandleFunc("GET /api/admin/panel/status", h.PanelStatus)
	mux.HandleFunc("POST /api/admin/panel/reality-keys", h.GenerateRealityKeys)

	return mux
}
