package auth

import (
	"strings"
)

// PolicyService controls access to destructive API operations.
type PolicyService struct {
	adminKeys map[string]bool // admin API keys; if empty, gating is disabled
}

// NewPolicyService creates a new PolicyService from a comma-separated
// list of admin API keys.
func NewPolicyService(adminKeysStr string) *PolicyService {
	adminKeys := make(map[string]bool)

	if adminKeysStr != "" {
		for _, key := range strings.Split(adminKeysStr, ",") {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				adminKeys[trimmed] = true
			}
		}
	}

	return &PolicyService{adminKeys: adminKeys}
}

// GateEnabled reports whether admin gating is configured at all.
func (p *PolicyService) GateEnabled() bool {
	return len(p.adminKeys) > 0
}

// IsAdmin checks whether the presented key grants admin access. When no
// keys are configured the gate is open and every caller is an admin.
func (p *PolicyService) IsAdmin(key string) bool {
	if !p.GateEnabled() {
		return true
	}
	return p.adminKeys[key]
}

// CanReindex reports whether the presented key may trigger a reindex.
// Force reindex wipes the vector index, so it stays behind the gate.
func (p *PolicyService) CanReindex(key string) bool {
	return p.IsAdmin(key)
}
