// Package model defines GORM model structs for all database tables,
// providing a single source of truth for the schema that works
// transparently with both SQLite and PostgreSQL.
package model

import "database/sql"

// ─── Core Business Tables ────────────────────────────────────────────

// Restrictions carries per-user allow/deny rules, stored as a JSON
// column on the user row.
type Restrictions struct {
	PortDisabled     bool     `json:"portDisabled,omitempty"`
	ProtocolLocked   string   `json:"protocolLocked,omitempty"`
	SecurityLocked   string   `json:"securityLocked,omitempty"`
	NetworkLocked    string   `json:"networkLocked,omitempty"`
	BlockedProtocols []string `json:"blockedProtocols,omitempty"`
	BlockedSecurity  []string `json:"blockedSecurity,omitempty"`
}

// User maps to the "user" table. PostgreSQL treats "user" as a reserved
// word, so TableName() is required for correct quoting.
type User struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string        `gorm:"type:varchar(100);not null" json:"name"`
	Email          string        `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	Plan           string        `gorm:"type:varchar(20);not null;default:'FREE'" json:"plan"`
	PlanExpiry     sql.NullInt64 `gorm:"column:plan_expiry" json:"-"`
	SpeedLimit     int           `gorm:"column:speed_limit;not null;default:0" json:"speedLimit"`
	MaxConfigs     int           `gorm:"column:max_configs;not null" json:"maxConfigs"`
	CurrentConfigs int           `gorm:"column:current_configs;not null;default:0" json:"currentConfigs"`
	AllowedMaxGB   int           `gorm:"column:allowed_max_gb;not null" json:"allowedMaxGb"`
	CurrentGB      int           `gorm:"column:current_gb;not null;default:0" json:"currentGb"`
	Restrictions   Restrictions  `gorm:"type:text;serializer:json" json:"restrictions"`
	CreatedTime    int64         `gorm:"column:created_time;not null" json:"createdTime"`
	UpdatedTime    sql.NullInt64 `gorm:"column:updated_time" json:"-"`
}

func (User) TableName() string { return "user" }

// Config maps to the "config" table. XrayClientID and InboundID are
// foreign keys into remote panel state, not local tables; the panel may
// lose them independently, so no referential integrity is enforced.
type Config struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64  `gorm:"column:user_id;not null;index" json:"userId"`
	XrayClientID string `gorm:"column:xray_client_id;type:varchar(100);not null" json:"xrayClientId"`
	InboundID    int    `gorm:"column:inbound_id;not null" json:"inboundId"`
	Name         string `gorm:"type:varchar(100);not null" json:"name"`
	Protocol     string `gorm:"type:varchar(20);not null" json:"protocol"`
	Security     string `gorm:"type:varchar(20);not null;default:'none'" json:"security"`
	Network      string `gorm:"type:varchar(20);not null;default:'tcp'" json:"network"`
	Port         int    `gorm:"not null" json:"port"`
	SNI          string `gorm:"column:sni;type:varchar(200);not null;default:''" json:"sni,omitempty"`
	Fingerprint  string `gorm:"type:varchar(50);not null;default:''" json:"fingerprint,omitempty"`
	ClientEmail  string `gorm:"column:client_email;type:varchar(200);not null;default:''" json:"clientEmail"`
	ShareURL     string `gorm:"column:share_url;type:text;not null;default:''" json:"shareUrl"`
	Enabled      bool   `gorm:"not null;default:true" json:"enabled"`
	ExpiryTime   int64  `gorm:"column:expiry_time;not null" json:"expiryTime"`
	CreatedTime  int64  `gorm:"column:created_time;not null" json:"createdTime"`
}

func (Config) TableName() string { return "config" }

// PremadeConfig is an admin-defined blueprint users can activate into a
// real Config through the same creation machinery.
type PremadeConfig struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"type:varchar(100);not null" json:"name"`
	Description  string `gorm:"type:text;not null;default:''" json:"description,omitempty"`
	Protocol     string `gorm:"type:varchar(20);not null;default:'vless'" json:"protocol"`
	Port         int    `gorm:"not null;default:0" json:"port"`
	Security     string `gorm:"type:varchar(20);not null;default:'reality'" json:"security"`
	Network      string `gorm:"type:varchar(20);not null;default:'tcp'" json:"network"`
	SNI          string `gorm:"column:sni;type:varchar(200);not null;default:''" json:"sni,omitempty"`
	Fingerprint  string `gorm:"type:varchar(50);not null;default:'chrome'" json:"fingerprint"`
	DataGB       int    `gorm:"column:data_gb;not null;default:10" json:"dataGb"`
	DurationDays int    `gorm:"column:duration_days;not null;default:30" json:"durationDays"`
	PaidOnly     bool   `gorm:"column:paid_only;not null;default:false" json:"paidOnly"`
	Promotional  bool   `gorm:"not null;default:false" json:"promotional"`
	Enabled      bool   `gorm:"not null;default:true" json:"enabled"`
	CreatedTime  int64  `gorm:"column:created_time;not null" json:"createdTime"`
}

func (PremadeConfig) TableName() string { return "premade_config" }

type Notice struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string        `gorm:"type:varchar(200);not null" json:"title"`
	Content     string        `gorm:"type:text;not null" json:"content"`
	Enabled     bool          `gorm:"not null;default:true" json:"enabled"`
	CreatedTime int64         `gorm:"column:created_time;not null" json:"createdTime"`
	UpdatedTime sql.NullInt64 `gorm:"column:updated_time" json:"updatedTime,omitempty"`
}

func (Notice) TableName() string { return "notice" }

// AdminSettings is a singleton row (id = 1) of global defaults,
// including backup-panel credentials for session failover.
type AdminSettings struct {
	ID                int64        `gorm:"primaryKey" json:"-"`
	DefaultMaxConfigs int          `gorm:"column:default_max_configs;not null;default:2" json:"defaultMaxConfigs"`
	DefaultMaxGB      int          `gorm:"column:default_max_gb;not null;default:10" json:"defaultMaxGb"`
	DefaultSpeedLimit int          `gorm:"column:default_speed_limit;not null;default:0" json:"defaultSpeedLimit"`
	Restrictions      Restrictions `gorm:"type:text;serializer:json" json:"restrictions"`
	ShowLiveUsers     bool         `gorm:"column:show_live_users;not null;default:true" json:"showLiveUsers"`
	BackupPanelURL    string       `gorm:"column:backup_panel_url;type:text;not null;default:''" json:"backupPanelUrl"`
	BackupPanelUser   string       `gorm:"column:backup_panel_user;type:varchar(100);not null;default:''" json:"backupPanelUser"`
	BackupPanelPass   string       `gorm:"column:backup_panel_pass;type:varchar(100);not null;default:''" json:"-"`
}

func (AdminSettings) TableName() string { return "admin_settings" }

// UsageSample records an hourly per-user traffic observation taken by
// the background stats job.
type UsageSample struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64  `gorm:"column:user_id;not null;index" json:"userId"`
	Flow        int64  `gorm:"not null" json:"flow"`
	TotalFlow   int64  `gorm:"column:total_flow;not null" json:"totalFlow"`
	Time        string `gorm:"type:varchar(100);not null" json:"time"`
	CreatedTime int64  `gorm:"column:created_time;not null" json:"-"`
}

func (UsageSample) TableName() string { return "usage_sample" }

type SchemaVersion struct {
	Version int `gorm:"not null;default:0"`
}

func (SchemaVersion) TableName() string { return "schema_version" }

// ─── View Structs (used by Repository, not GORM models) ─────────────

// UserRecord is a minimal user view used by the stats job.
type UserRecord struct {
	ID         int64
	Name       string
	Plan       string
	MaxConfigs int
}

// ExpiredConfig holds minimal info for an enabled config past expiry.
type ExpiredConfig struct {
	ID           int64
	UserID       int64
	XrayClientID string
	InboundID    int
	ClientEmail  string
	Protocol     string
}
