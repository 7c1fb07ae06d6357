package repo

import (
	"testing"

	"vpn-backend/internal/store/model"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestOpenMigratesAndSeedsSettings(t *testing.T) {
	r := newTestRepo(t)

	var v model.SchemaVersion
	if err := r.db.Take(&v).Error; err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if v.Version != currentSchemaVersion {
		t.Fatalf("schema version = %d, want %d", v.Version, currentSchemaVersion)
	}

	s, err := r.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if s.ID != 1 {
		t.Fatalf("settings ID = %d, want 1", s.ID)
	}
	if s.DefaultMaxConfigs != 2 || s.DefaultMaxGB != 10 {
		t.Fatalf("unexpected seeded defaults: %+v", s)
	}
	if !s.ShowLiveUsers {
		t.Fatal("ShowLiveUsers should default to true")
	}

	// Re-running migration must not duplicate the singleton.
	if err := migrateSchema(r.db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var count int64
	if err := r.db.Model(&model.AdminSettings{}).Count(&count).Error; err != nil {
		t.Fatalf("count settings: %v", err)
	}
	if count != 1 {
		t.Fatalf("settings rows = %d, want 1", count)
	}
}

func TestAdjustUserCountersFloorsAtZero(t *testing.T) {
	r := newTestRepo(t)
	u := &model.User{
		Name:         "Bob",
		Email:        "bob@example.com",
		Plan:         "FREE",
		MaxConfigs:   2,
		AllowedMaxGB: 10,
		CreatedTime:  1000,
	}
	if err := r.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := r.AdjustUserCounters(u.ID, 1, 4); err != nil {
		t.Fatalf("AdjustUserCounters: %v", err)
	}
	got, err := r.GetUser(u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.CurrentConfigs != 1 || got.CurrentGB != 4 {
		t.Fatalf("counters = (%d, %d), want (1, 4)", got.CurrentConfigs, got.CurrentGB)
	}

	// Decrementing past zero clamps instead of going negative.
	if err := r.AdjustUserCounters(u.ID, -5, -100); err != nil {
		t.Fatalf("AdjustUserCounters: %v", err)
	}
	got, err = r.GetUser(u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.CurrentConfigs != 0 || got.CurrentGB != 0 {
		t.Fatalf("counters = (%d, %d), want (0, 0)", got.CurrentConfigs, got.CurrentGB)
	}
}

func TestGetUserReturnsNilWhenMissing(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.GetUser(999)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing user, got %+v", got)
	}
}

func TestListExpiredEnabledConfigs(t *testing.T) {
	r := newTestRepo(t)
	now := int64(1_700_000_000_000)

	rows := []model.Config{
		{UserID: 1, XrayClientID: "a", Name: "expired", Protocol: "vless", Enabled: true, ExpiryTime: now - 1, CreatedTime: now},
		{UserID: 1, XrayClientID: "b", Name: "active", Protocol: "vless", Enabled: true, ExpiryTime: now + 10_000, CreatedTime: now},
		{UserID: 1, XrayClientID: "c", Name: "already-off", Protocol: "vless", Enabled: false, ExpiryTime: now - 1, CreatedTime: now},
		{UserID: 1, XrayClientID: "d", Name: "no-expiry", Protocol: "vless", Enabled: true, ExpiryTime: 0, CreatedTime: now},
	}
	for i := range rows {
		if err := r.CreateConfig(&rows[i]); err != nil {
			t.Fatalf("CreateConfig %q: %v", rows[i].Name, err)
		}
	}

	expired, err := r.ListExpiredEnabledConfigs(now)
	if err != nil {
		t.Fatalf("ListExpiredEnabledConfigs: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired rows = %d, want 1", len(expired))
	}
	if expired[0].XrayClientID != "a" {
		t.Fatalf("expired client = %q, want %q", expired[0].XrayClientID, "a")
	}
}

func TestGetLastUsageTotal(t *testing.T) {
	r := newTestRepo(t)

	got, err := r.GetLastUsageTotal(7)
	if err != nil {
		t.Fatalf("GetLastUsageTotal: %v", err)
	}
	if got.Valid {
		t.Fatalf("expected invalid total with no samples, got %d", got.Int64)
	}

	if err := r.CreateUsageSample(7, 100, 100, "2026-08-30 10:00", 1000); err != nil {
		t.Fatalf("CreateUsageSample: %v", err)
	}
	if err := r.CreateUsageSample(7, 50, 150, "2026-08-30 11:00", 2000); err != nil {
		t.Fatalf("CreateUsageSample: %v", err)
	}

	got, err = r.GetLastUsageTotal(7)
	if err != nil {
		t.Fatalf("GetLastUsageTotal: %v", err)
	}
	if !got.Valid || got.Int64 != 150 {
		t.Fatalf("last total = %+v, want valid 150", got)
	}
}

func TestUpdateSettingsPartial(t *testing.T) {
	r := newTestRepo(t)

	maxGB := 25
	show := false
	s, err := r.UpdateSettings(nil, &maxGB, nil, nil, &show)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if s.DefaultMaxGB != 25 {
		t.Fatalf("DefaultMaxGB = %d, want 25", s.DefaultMaxGB)
	}
	if s.ShowLiveUsers {
		t.Fatal("ShowLiveUsers should be false after update")
	}
	// Untouched field keeps its seeded value.
	if s.DefaultMaxConfigs != 2 {
		t.Fatalf("DefaultMaxConfigs = %d, want 2", s.DefaultMaxConfigs)
	}
}
