package vpn

import (
	"fmt"
	"strings"

	"vpn-backend/internal/store/model"
)

// CheckRestrictions evaluates a creation request against the owner's
// rule set and returns every violation, in rule order. An empty slice
// means the request is allowed.
func CheckRestrictions(r model.Restrictions, protocol, security, network string, customPort int) []string {
	var violations []string

	if r.PortDisabled && customPort > 0 {
		violations = append(violations, "Custom port selection is disabled for your account")
	}
	if r.ProtocolLocked != "" && protocol != r.ProtocolLocked {
		violations = append(violations, fmt.Sprintf("You can only use %s protocol", strings.ToUpper(r.ProtocolLocked)))
	}
	if r.SecurityLocked != "" && security != r.SecurityLocked {
		violations = append(violations, fmt.Sprintf("You can only use %s security", r.SecurityLocked))
	}
	if r.NetworkLocked != "" && network != r.NetworkLocked {
		violations = append(violations, fmt.Sprintf("You can only use %s network", r.NetworkLocked))
	}
	for _, blocked := range r.BlockedProtocols {
		if protocol == blocked {
			violations = append(violations, fmt.Sprintf("%s protocol is blocked for your account", strings.ToUpper(blocked)))
		}
	}
	for _, blocked := range r.BlockedSecurity {
		if security == blocked {
			violations = append(violations, fmt.Sprintf("%s security is blocked for your account", blocked))
		}
	}

	return violations
}
