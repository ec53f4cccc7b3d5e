package domain

import "strings"

// ResourceAccessPolicy describes who may read a content resource.
// An empty RequiredRole means the resource names no role.
type ResourceAccessPolicy struct {
	ResourceID   string `json:"resource_id" yaml:"id"`
	Path         string `json:"path" yaml:"path"`
	Unlocked     bool   `json:"unlocked" yaml:"unlocked"`
	RequiredRole string `json:"required_role,omitempty" yaml:"required_role"`
}

// Validate validates the ResourceAccessPolicy
func (p *ResourceAccessPolicy) Validate() error {
	if strings.TrimSpace(p.ResourceID) == "" {
		return NewValidationError("INVALID_RESOURCE_ID", "Resource ID is required", map[string]interface{}{"field": "id"})
	}
	if p.Path != "" && !strings.HasPrefix(p.Path, "/") {
		return NewValidationError("INVALID_RESOURCE_PATH", "Resource path must start with /", map[string]interface{}{
			"field": "path",
			"value": p.Path,
		})
	}
	return nil
}

// HasRequiredRole reports whether the policy names a role.
func (p *ResourceAccessPolicy) HasRequiredRole() bool {
	return p.RequiredRole != ""
}
