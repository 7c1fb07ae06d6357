package vpn

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"vpn-backend/internal/store/model"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// BuildClientEmail derives the branded identity string attached to
// every remote client: plan tier, a sanitized owner-name fragment, a
// sanitized config-name fragment, and a short random suffix. The
// suffix is regenerated on every call, so retries produce distinct
// identities; the string is a lookup key and watermark, never a
// uniqueness constraint.
func BuildClientEmail(user *model.User, configName string) string {
	plan := strings.ToLower(user.Plan)
	if plan == "" {
		plan = "free"
	}
	name := truncate(nonAlphanumeric.ReplaceAllString(user.Name, ""), 8)
	cfg := truncate(nonAlphanumeric.ReplaceAllString(configName, ""), 10)
	if cfg == "" {
		cfg = "cfg"
	}
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("nextbit%s-%s-%s-%s", plan, strings.ToLower(name), strings.ToLower(cfg), suffix)
}

// LookupEmail resolves the identity used for traffic/online/IP queries.
// The stored value wins; rows predating identity storage fall back to
// the historical owner-plus-name derivation.
func LookupEmail(cfg *model.Config) string {
	if cfg.ClientEmail != "" {
		return cfg.ClientEmail
	}
	derived := fmt.Sprintf("%d-%s", cfg.UserID, cfg.Name)
	return strings.ToLower(whitespaceRun.ReplaceAllString(derived, "-"))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
