package vpn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vpn-backend/internal/panel"
	"vpn-backend/internal/store/model"
	"vpn-backend/internal/store/repo"
)

const (
	gib              = int64(1 << 30)
	defaultLeaseDays = 30
	defaultLimitIP   = 2
)

// Swapped in tests for deterministic credentials and clocks.
var (
	newClientIDFn = uuid.NewString
	nowMillisFn   = func() int64 { return time.Now().UnixMilli() }
)

var validProtocols = map[string]bool{"vless": true, "vmess": true, "trojan": true}
var validSecurity = map[string]bool{"none": true, "tls": true, "reality": true}

// Service is the config lifecycle orchestrator. Every multi-step
// operation is ordered so the remote call gates the local write for
// create, toggle and rotate, while delete always completes locally
// regardless of remote outcome.
type Service struct {
	repo       *repo.Repository
	panel      *panel.Client
	alloc      *Allocator
	stats      *TrafficCache
	publicHost string
	log        *logrus.Entry
}

func NewService(r *repo.Repository, client *panel.Client, alloc *Allocator, stats *TrafficCache, publicHost string, log *logrus.Entry) *Service {
	return &Service{
		repo:       r,
		panel:      client,
		alloc:      alloc,
		stats:      stats,
		publicHost: publicHost,
		log:        log,
	}
}

// CreateRequest is a user-supplied config specification. Zero Port
// means a random free port; empty Protocol/Security/Network take the
// defaults vless/none/tcp.
type CreateRequest struct {
	Name        string `json:"name"`
	Protocol    string `json:"protocol"`
	Security    string `json:"security"`
	Network     string `json:"network"`
	SNI         string `json:"sni"`
	Fingerprint string `json:"fingerprint"`
	Port        int    `json:"port"`
}

// CreateResult is a freshly provisioned config. RealityPublicKey is
// set only for reality-secured listeners whose key material exists.
type CreateResult struct {
	Config           *model.Config `json:"config"`
	RealityPublicKey string        `json:"realityPublicKey,omitempty"`
}

// ConfigView is a config merged with its live remote stats. Live
// fields are zero when the panel is degraded.
type ConfigView struct {
	ID              int64    `json:"id"`
	UserID          int64    `json:"userId"`
	Name            string   `json:"name"`
	Protocol        string   `json:"protocol"`
	Security        string   `json:"security"`
	Network         string   `json:"network"`
	Port            int      `json:"port"`
	SNI             string   `json:"sni,omitempty"`
	Fingerprint     string   `json:"fingerprint,omitempty"`
	ShareURL        string   `json:"shareUrl"`
	Enabled         bool     `json:"enabled"`
	ExpiryTime      int64    `json:"expiryTime"`
	CreatedTime     int64    `json:"createdTime"`
	TrafficUp       int64    `json:"trafficUp"`
	TrafficDown     int64    `json:"trafficDown"`
	SpeedUp         float64  `json:"speedUp"`
	SpeedDown       float64  `json:"speedDown"`
	TotalUsageBytes int64    `json:"totalUsageBytes"`
	IsOnline        bool     `json:"isOnline"`
	ConnectedIPs    []string `json:"connectedIps"`
	Degraded        bool     `json:"degraded,omitempty"`
}

// ListResult is every config of one owner plus an account-level
// summary. Degraded marks a fully unreachable panel; the local rows
// are still present with zeroed live fields.
type ListResult struct {
	Configs  []ConfigView `json:"configs"`
	Summary  Summary      `json:"summary"`
	Degraded bool         `json:"degraded,omitempty"`
}

type Summary struct {
	TotalConfigs    int   `json:"totalConfigs"`
	MaxConfigs      int   `json:"maxConfigs"`
	TotalUsageBytes int64 `json:"totalUsageBytes"`
	AllowedMaxGB    int   `json:"allowedMaxGb"`
	OnlineCount     int   `json:"onlineCount"`
}

// ─── Create ───

// Create provisions a new config: local validation and quota checks
// first, then inbound allocation, then the remote client add, and only
// after remote success the local record and counter write.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (*CreateResult, error) {
	applyRequestDefaults(&req)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.CurrentConfigs >= user.MaxConfigs {
		return nil, &QuotaError{Msg: fmt.Sprintf("Config limit reached (%d)", user.MaxConfigs)}
	}
	if user.CurrentGB >= user.AllowedMaxGB {
		return nil, &QuotaError{Msg: fmt.Sprintf("Data limit reached (%d GB). Cannot create more configs.", user.AllowedMaxGB)}
	}
	if violations := CheckRestrictions(user.Restrictions, req.Protocol, req.Security, req.Network, req.Port); len(violations) > 0 {
		return nil, &RestrictionError{Violations: violations}
	}

	alloc, err := s.alloc.Allocate(ctx, AllocRequest{
		Protocol:    req.Protocol,
		Security:    req.Security,
		Network:     req.Network,
		SNI:         req.SNI,
		Fingerprint: req.Fingerprint,
		Port:        req.Port,
		Remark:      req.Name,
	})
	if err != nil {
		return nil, err
	}

	maxConfigs := user.MaxConfigs
	if maxConfigs < 1 {
		maxConfigs = 1
	}
	totalBytes := int64(user.AllowedMaxGB) * gib / int64(maxConfigs)
	expiry := nowMillisFn() + defaultLeaseDays*24*int64(time.Hour/time.Millisecond)

	cfg, err := s.provision(ctx, user, alloc, req.Name, req.Name, totalBytes, expiry)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AdjustUserCounters(userID, 1, 0); err != nil {
		return nil, err
	}
	return &CreateResult{Config: cfg, RealityPublicKey: alloc.RealityPublicKey}, nil
}

// ActivateTemplate instantiates an admin-defined blueprint through the
// same creation machinery. Non-promotional templates charge the
// template's data allowance against the owner up front.
func (s *Service) ActivateTemplate(ctx context.Context, userID, templateID int64) (*CreateResult, error) {
	premade, err := s.repo.GetPremade(templateID)
	if err != nil {
		return nil, err
	}
	if premade == nil || !premade.Enabled {
		return nil, ErrTemplateNotFound
	}

	user, err := s.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if premade.PaidOnly && user.Plan == "FREE" {
		return nil, &RestrictionError{Violations: []string{"This config requires a paid plan"}}
	}
	if user.CurrentConfigs >= user.MaxConfigs {
		return nil, &QuotaError{Msg: fmt.Sprintf("Config limit reached (%d)", user.MaxConfigs)}
	}
	if user.CurrentGB+premade.DataGB > user.AllowedMaxGB {
		return nil, &QuotaError{Msg: fmt.Sprintf("Not enough data allowance. Need %dGB, have %dGB remaining",
			premade.DataGB, user.AllowedMaxGB-user.CurrentGB)}
	}

	configName := fmt.Sprintf("%s-%s", premade.Name, strconv.FormatInt(nowMillisFn(), 36))
	alloc, err := s.alloc.Allocate(ctx, AllocRequest{
		Protocol:    premade.Protocol,
		Security:    premade.Security,
		Network:     premade.Network,
		SNI:         premade.SNI,
		Fingerprint: premade.Fingerprint,
		Port:        premade.Port,
		Remark:      configName,
	})
	if err != nil {
		return nil, err
	}

	totalBytes := int64(premade.DataGB) * gib
	expiry := nowMillisFn() + int64(premade.DurationDays)*24*int64(time.Hour/time.Millisecond)

	cfg, err := s.provision(ctx, user, alloc, configName, premade.Name, totalBytes, expiry)
	if err != nil {
		return nil, err
	}

	gbDelta := 0
	if !premade.Promotional {
		gbDelta = premade.DataGB
	}
	if err := s.repo.AdjustUserCounters(userID, 1, gbDelta); err != nil {
		return nil, err
	}
	return &CreateResult{Config: cfg, RealityPublicKey: alloc.RealityPublicKey}, nil
}

// provision pushes the remote client add and, on success, persists the
// local record. identityName feeds the branded identity; configName is
// what the row and link remark carry.
func (s *Service) provision(ctx context.Context, user *model.User, alloc Allocation, configName, identityName string, totalBytes, expiryMs int64) (*model.Config, error) {
	clientID := newClientIDFn()
	email := BuildClientEmail(user, identityName)
	entry := buildClientEntry(alloc, clientID, email, configName, totalBytes, expiryMs, s.resolveSpeedLimitKBs(user))

	if err := s.panel.AddClient(ctx, alloc.Inbound.ID, []panel.ClientConfig{entry}); err != nil {
		return nil, fmt.Errorf("add client: %w", err)
	}

	cfg := &model.Config{
		UserID:       user.ID,
		XrayClientID: clientID,
		InboundID:    alloc.Inbound.ID,
		Name:         configName,
		Protocol:     alloc.Inbound.Protocol,
		Security:     alloc.Security,
		Network:      alloc.Network,
		Port:         alloc.Port,
		SNI:          alloc.SNI,
		Fingerprint:  alloc.Fingerprint,
		ClientEmail:  email,
		ShareURL:     BuildShareLink(alloc.Inbound.Protocol, clientID, alloc.Inbound, configName, s.publicHost),
		Enabled:      true,
		ExpiryTime:   expiryMs,
		CreatedTime:  nowMillisFn(),
	}
	if err := s.repo.CreateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildClientEntry(alloc Allocation, clientID, email, comment string, totalBytes, expiryMs int64, speedKBs int) panel.ClientConfig {
	entry := panel.ClientConfig{
		Email:      email,
		LimitIP:    defaultLimitIP,
		TotalGB:    totalBytes,
		ExpiryTime: expiryMs,
		Enable:     true,
		Comment:    comment,
	}
	protocol := alloc.Inbound.Protocol
	if protocol == "trojan" {
		entry.Password = clientID
	} else {
		entry.ID = clientID
	}
	if protocol == "vless" && alloc.Security == "reality" {
		entry.Flow = "xtls-rprx-vision"
	}
	if protocol == "vmess" {
		zero := 0
		entry.AlterID = &zero
	}
	if speedKBs > 0 {
		entry.LimitSpeed = speedKBs
	}
	return entry
}

// resolveSpeedLimitKBs converts the effective Mbps cap to the KB/s
// unit the panel expects (1 Mbps = 128 KB/s). Owner override wins,
// then the global default; zero means unlimited.
func (s *Service) resolveSpeedLimitKBs(user *model.User) int {
	if user.SpeedLimit > 0 {
		return user.SpeedLimit * 128
	}
	settings, err := s.repo.GetSettings()
	if err == nil && settings.DefaultSpeedLimit > 0 {
		return settings.DefaultSpeedLimit * 128
	}
	return 0
}

func applyRequestDefaults(req *CreateRequest) {
	if req.Protocol == "" {
		req.Protocol = "vless"
	}
	if req.Security == "" {
		req.Security = "none"
	}
	if req.Network == "" {
		req.Network = "tcp"
	}
}

func validateRequest(req CreateRequest) error {
	if req.Name == "" {
		return &ValidationError{Msg: "Config name is required"}
	}
	if !validProtocols[req.Protocol] {
		return &ValidationError{Msg: "Invalid protocol"}
	}
	if !validSecurity[req.Security] {
		return &ValidationError{Msg: "Invalid security"}
	}
	return nil
}

// ─── Read ───

// List returns every config of one owner enriched with live stats.
// Per-config remote queries run concurrently and degrade to zero
// values individually; only a fully unreachable panel flips the
// Degraded flag, and even then the local rows come back.
func (s *Service) List(ctx context.Context, userID int64) (*ListResult, error) {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	configs, err := s.repo.ListConfigsByUser(userID)
	if err != nil {
		return nil, err
	}

	onlineEmails, unreachable := s.onlineOrEmpty(ctx)

	views := make([]ConfigView, len(configs))
	if unreachable {
		for i := range configs {
			views[i] = baseView(&configs[i])
		}
	} else {
		online := make(map[string]bool, len(onlineEmails))
		for _, email := range onlineEmails {
			online[email] = true
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := range configs {
			g.Go(func() error {
				views[i] = s.enrich(gctx, &configs[i], online)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &ListResult{
		Configs:  views,
		Degraded: unreachable,
		Summary: Summary{
			TotalConfigs: len(configs),
			MaxConfigs:   user.MaxConfigs,
			AllowedMaxGB: user.AllowedMaxGB,
		},
	}
	for _, v := range views {
		result.Summary.TotalUsageBytes += v.TotalUsageBytes
		if v.IsOnline {
			result.Summary.OnlineCount++
		}
	}
	return result, nil
}

// Detail returns one config with live stats, degrading the same way
// List does.
func (s *Service) Detail(ctx context.Context, userID, configID int64) (*ConfigView, error) {
	cfg, err := s.repo.GetUserConfig(userID, configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	onlineEmails, unreachable := s.onlineOrEmpty(ctx)
	if unreachable {
		view := baseView(cfg)
		view.Degraded = true
		return &view, nil
	}

	online := make(map[string]bool, len(onlineEmails))
	for _, email := range onlineEmails {
		online[email] = true
	}
	view := s.enrich(ctx, cfg, online)
	return &view, nil
}

func (s *Service) enrich(ctx context.Context, cfg *model.Config, online map[string]bool) ConfigView {
	email := LookupEmail(cfg)
	view := baseView(cfg)

	traffic := s.trafficOrZero(ctx, email)
	rate := s.stats.Observe(email, traffic.Up, traffic.Down)

	view.TrafficUp = traffic.Up
	view.TrafficDown = traffic.Down
	view.SpeedUp = rate.Up
	view.SpeedDown = rate.Down
	view.TotalUsageBytes = traffic.Up + traffic.Down
	view.IsOnline = online[email]
	view.ConnectedIPs = s.ipsOrEmpty(ctx, email)
	return view
}

func baseView(cfg *model.Config) ConfigView {
	return ConfigView{
		ID:           cfg.ID,
		UserID:       cfg.UserID,
		Name:         cfg.Name,
		Protocol:     cfg.Protocol,
		Security:     cfg.Security,
		Network:      cfg.Network,
		Port:         cfg.Port,
		SNI:          cfg.SNI,
		Fingerprint:  cfg.Fingerprint,
		ShareURL:     cfg.ShareURL,
		Enabled:      cfg.Enabled,
		ExpiryTime:   cfg.ExpiryTime,
		CreatedTime:  cfg.CreatedTime,
		ConnectedIPs: []string{},
	}
}

// The three live sub-queries are independently best-effort: each
// defaults to its zero value on failure so a partially degraded panel
// still yields usable data.

func (s *Service) trafficOrZero(ctx context.Context, email string) panel.Traffic {
	stats, err := s.panel.ClientTraffic(ctx, email)
	if err != nil {
		s.log.WithError(err).WithField("client", email).Debug("traffic query failed")
		return panel.Traffic{}
	}
	return panel.Traffic{Up: stats.Up, Down: stats.Down}
}

func (s *Service) ipsOrEmpty(ctx context.Context, email string) []string {
	ips, err := s.panel.ClientIPs(ctx, email)
	if err != nil || ips == nil {
		return []string{}
	}
	return ips
}

// onlineOrEmpty reports the online identity list, or an empty list
// plus the unreachable flag when both panels are down.
func (s *Service) onlineOrEmpty(ctx context.Context) ([]string, bool) {
	emails, err := s.panel.OnlineClients(ctx)
	if err != nil {
		var unreachable *panel.UnreachableError
		if errors.As(err, &unreachable) {
			s.log.WithError(err).Warn("panel unreachable, serving local data only")
			return nil, true
		}
		s.log.WithError(err).Debug("online query failed")
		return nil, false
	}
	return emails, false
}

// ─── Toggle / Rotate / Rename ───

// Toggle flips a config's enable flag. The remote update gates the
// local write: a failed push leaves the stored flag untouched and no
// transition occurs.
func (s *Service) Toggle(ctx context.Context, configID int64) (*model.Config, error) {
	cfg, err := s.repo.GetConfig(configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	enabled := !cfg.Enabled
	entry := credentialEntry(cfg, cfg.XrayClientID, enabled)
	if err := s.panel.UpdateClient(ctx, cfg.XrayClientID, cfg.InboundID, []panel.ClientConfig{entry}); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}

	if err := s.repo.SetConfigEnabled(configID, enabled); err != nil {
		return nil, err
	}
	cfg.Enabled = enabled
	return cfg, nil
}

// Rotate swaps the config's remote credential for a fresh one,
// preserving the branded identity. The new identifier is committed
// locally only after the remote update succeeded; the share link is
// rebuilt from the re-fetched inbound on a best-effort basis.
func (s *Service) Rotate(ctx context.Context, userID, configID int64) (*model.Config, error) {
	cfg, err := s.repo.GetUserConfig(userID, configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	newID := newClientIDFn()
	entry := credentialEntry(cfg, newID, true)
	if err := s.panel.UpdateClient(ctx, cfg.XrayClientID, cfg.InboundID, []panel.ClientConfig{entry}); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}

	shareURL := cfg.ShareURL
	if inbounds, err := s.panel.ListInbounds(ctx); err == nil {
		for _, ib := range inbounds {
			if ib.ID == cfg.InboundID {
				shareURL = BuildShareLink(cfg.Protocol, newID, ib, cfg.Name, s.publicHost)
				break
			}
		}
	} else {
		s.log.WithError(err).Warn("could not refresh inbound for rotated link")
	}

	if err := s.repo.UpdateConfigCredential(configID, newID, shareURL); err != nil {
		return nil, err
	}
	cfg.XrayClientID = newID
	cfg.ShareURL = shareURL
	return cfg, nil
}

// Rename updates the local display name only; the remote identity is
// the branded email and never changes.
func (s *Service) Rename(ctx context.Context, userID, configID int64, name string) (*model.Config, error) {
	if name == "" {
		return nil, &ValidationError{Msg: "Config name is required"}
	}
	cfg, err := s.repo.GetUserConfig(userID, configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	if err := s.repo.RenameConfig(configID, name); err != nil {
		return nil, err
	}
	cfg.Name = name
	return cfg, nil
}

// credentialEntry builds the minimal client payload for enable and
// credential updates: identifier, branded identity, flag.
func credentialEntry(cfg *model.Config, clientID string, enabled bool) panel.ClientConfig {
	entry := panel.ClientConfig{Email: LookupEmail(cfg), Enable: enabled}
	if cfg.Protocol == "trojan" {
		entry.Password = clientID
	} else {
		entry.ID = clientID
	}
	return entry
}

// ─── Delete ───

// Remove deletes a config. The remote delete is attempted first, but
// local deletion and the counter decrement happen regardless of its
// outcome: an owner is never stuck with an undeletable config, at the
// cost of a possible orphaned remote listener. userID zero skips the
// ownership scope (admin path).
func (s *Service) Remove(ctx context.Context, userID, configID int64) error {
	var cfg *model.Config
	var err error
	if userID > 0 {
		cfg, err = s.repo.GetUserConfig(userID, configID)
	} else {
		cfg, err = s.repo.GetConfig(configID)
	}
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrConfigNotFound
	}

	if err := s.panel.DeleteClient(ctx, cfg.InboundID, cfg.XrayClientID); err != nil {
		if errors.Is(err, panel.ErrClientMissing) {
			s.log.WithField("client", cfg.XrayClientID).Warn("remote client already gone, deleting locally")
		} else {
			s.log.WithError(err).WithField("client", cfg.XrayClientID).Warn("remote delete failed, deleting locally anyway")
		}
	}

	if err := s.repo.DeleteConfig(configID); err != nil {
		return err
	}
	return s.repo.AdjustUserCounters(cfg.UserID, -1, 0)
}

// ─── Maintenance ───

// DisableExpired pushes a disable to every enabled config past its
// expiry and persists the flag per config only after its remote update
// succeeded. Returns how many configs were disabled.
func (s *Service) DisableExpired(ctx context.Context) (int, error) {
	now := nowMillisFn()
	expired, err := s.repo.ListExpiredEnabledConfigs(now)
	if err != nil {
		return 0, err
	}

	disabled := 0
	for _, exp := range expired {
		cfg := &model.Config{
			ID:           exp.ID,
			UserID:       exp.UserID,
			XrayClientID: exp.XrayClientID,
			InboundID:    exp.InboundID,
			ClientEmail:  exp.ClientEmail,
			Protocol:     exp.Protocol,
		}
		entry := credentialEntry(cfg, exp.XrayClientID, false)
		if err := s.panel.UpdateClient(ctx, exp.XrayClientID, exp.InboundID, []panel.ClientConfig{entry}); err != nil {
			s.log.WithError(err).WithField("config", exp.ID).Warn("could not disable expired config remotely")
			continue
		}
		if err := s.repo.SetConfigEnabled(exp.ID, false); err != nil {
			s.log.WithError(err).WithField("config", exp.ID).Warn("could not persist disabled flag")
			continue
		}
		disabled++
	}
	return disabled, nil
}
