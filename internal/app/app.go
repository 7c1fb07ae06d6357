package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vpn-backend/internal/config"
	httpserver "vpn-backend/internal/http"
	"vpn-backend/internal/http/handler"
	"vpn-backend/internal/panel"
	"vpn-backend/internal/store/repo"
	"vpn-backend/internal/vpn"
)

type App struct {
	cfg    config.Config
	server *http.Server
	repo   *repo.Repository
	h      *handler.Handler
	log    *logrus.Entry
}

func New(cfg config.Config, log *logrus.Entry) (*App, error) {
	var (
		r   *repo.Repository
		err error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "", "sqlite":
		r, err = repo.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	case "postgres", "postgresql":
		r, err = repo.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}

	sessions := panel.NewSessionManager(panel.Credentials{
		URL:      cfg.Panel.URL,
		Username: cfg.Panel.Username,
		Password: cfg.Panel.Password,
	}, log.WithField("component", "panel-session"))
	loadBackupPanel(r, sessions, log)

	client := panel.NewClient(sessions, log.WithField("component", "panel-client"))
	alloc := vpn.NewAllocator(client, log.WithField("component", "allocator"))
	stats := vpn.NewTrafficCache()
	svc := vpn.NewService(r, client, alloc, stats, cfg.PublicHost, log.WithField("component", "orchestrator"))

	h := handler.New(r, svc, client, sessions, log.WithField("component", "http"))
	router := httpserver.NewRouter(h)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{cfg: cfg, server: s, repo: r, h: h, log: log}, nil
}

// loadBackupPanel installs stored backup panel credentials on the
// session manager at startup. A missing or empty settings row simply
// leaves failover unconfigured.
func loadBackupPanel(r *repo.Repository, sessions *panel.SessionManager, log *logrus.Entry) {
	settings, err := r.GetSettings()
	if err != nil {
		log.WithError(err).Warn("could not load backup panel settings")
		return
	}
	if settings.BackupPanelURL == "" {
		return
	}
	sessions.SetBackup(panel.Credentials{
		URL:      settings.BackupPanelURL,
		Username: settings.BackupPanelUser,
		Password: settings.BackupPanelPass,
	})
	log.WithField("backup", settings.BackupPanelURL).Info("backup panel configured")
}

func (a *App) Run() error {
	if a.h != nil {
		a.h.StartBackgroundJobs()
	}
	a.log.WithField("addr", a.cfg.Addr).Info("server listening")
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.h != nil {
		a.h.StopBackgroundJobs()
	}
	shutdownErr := a.server.Shutdown(ctx)
	closeErr := a.repo.Close()
	if shutdownErr != nil {
		return shutdownErr
	}
	return closeErr
}
