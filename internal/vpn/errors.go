// Package vpn contains the config provisioning core: port and inbound
// allocation against the remote panel, the config lifecycle state
// machine, and live traffic aggregation.
package vpn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrConfigNotFound   = errors.New("config not found")
	ErrTemplateNotFound = errors.New("premade config not found or disabled")

	// ErrNoFreePort means random allocation exhausted its attempt
	// budget without finding an unoccupied port.
	ErrNoFreePort = errors.New("could not find a free port")
)

// ValidationError rejects malformed input before any remote call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// QuotaError rejects an operation that would exceed the owner's config
// count or data allowance. Checked locally, before any remote call.
type QuotaError struct {
	Msg string
}

func (e *QuotaError) Error() string { return e.Msg }

// RestrictionError carries every violated per-user rule; the first one
// is the primary message.
type RestrictionError struct {
	Violations []string
}

func (e *RestrictionError) Error() string {
	if len(e.Violations) == 0 {
		return "request violates account restrictions"
	}
	return e.Violations[0]
}

// PortConflictError reports an explicit port already occupied by an
// inbound of a different protocol. Never resolved by picking another
// port.
type PortConflictError struct {
	Port     int
	Protocol string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already in use by %s", e.Port, strings.ToUpper(e.Protocol))
}
