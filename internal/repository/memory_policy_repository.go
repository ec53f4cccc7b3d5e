package repository

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// memoryPolicyRepository keeps policies in memory, indexed by ID and path.
type memoryPolicyRepository struct {
	byID   map[string]*domain.ResourceAccessPolicy
	byPath map[string]string
	mutex  sync.RWMutex
}

// NewMemoryPolicyRepository creates a repository holding policies.
func NewMemoryPolicyRepository(policies ...*domain.ResourceAccessPolicy) (PolicyRepository, error) {
	r := &memoryPolicyRepository{}
	if err := r.Replace(context.Background(), policies); err != nil {
		return nil, err
	}
	return r, nil
}

// GetByID retrieves a policy by resource ID
func (r *memoryPolicyRepository) GetByID(_ context.Context, resourceID string) (*domain.ResourceAccessPolicy, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	policy, exists := r.byID[resourceID]
	if !exists {
		return nil, fmt.Errorf("policy for resource %q: %w", resourceID, ErrNotFound)
	}
	copied := *policy
	return &copied, nil
}

// GetByPath retrieves a policy by resource path
func (r *memoryPolicyRepository) GetByPath(ctx context.Context, p string) (*domain.ResourceAccessPolicy, error) {
	key := NormalizePath(p)

	r.mutex.RLock()
	id, exists := r.byPath[key]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("policy for path %q: %w", key, ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// List returns all policies
func (r *memoryPolicyRepository) List(_ context.Context) ([]*domain.ResourceAccessPolicy, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	policies := make([]*domain.ResourceAccessPolicy, 0, len(r.byID))
	for _, policy := range r.byID {
		copied := *policy
		policies = append(policies, &copied)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].ResourceID < policies[j].ResourceID
	})
	return policies, nil
}

// Save creates or replaces a policy
func (r *memoryPolicyRepository) Save(_ context.Context, policy *domain.ResourceAccessPolicy) error {
	if policy == nil {
		return domain.NewValidationError("INVALID_POLICY", "Policy is required", nil)
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored := normalized(policy)
	if stored.Path != "" {
		if owner, taken := r.byPath[stored.Path]; taken && owner != stored.ResourceID {
			return domain.NewValidationError("DUPLICATE_RESOURCE_PATH", "Path is already used by another resource", map[string]interface{}{
				"path":     stored.Path,
				"resource": owner,
			})
		}
	}

	if previous, exists := r.byID[stored.ResourceID]; exists && previous.Path != "" {
		delete(r.byPath, previous.Path)
	}
	r.byID[stored.ResourceID] = stored
	if stored.Path != "" {
		r.byPath[stored.Path] = stored.ResourceID
	}
	return nil
}

// Delete removes a policy
func (r *memoryPolicyRepository) Delete(_ context.Context, resourceID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	policy, exists := r.byID[resourceID]
	if !exists {
		return fmt.Errorf("policy for resource %q: %w", resourceID, ErrNotFound)
	}
	delete(r.byID, resourceID)
	if policy.Path != "" {
		delete(r.byPath, policy.Path)
	}
	return nil
}

// Replace validates policies and swaps them in. The previous set is kept on error.
func (r *memoryPolicyRepository) Replace(_ context.Context, policies []*domain.ResourceAccessPolicy) error {
	byID := make(map[string]*domain.ResourceAccessPolicy, len(policies))
	byPath := make(map[string]string, len(policies))

	for i, policy := range policies {
		if policy == nil {
			return fmt.Errorf("policy %d: %w", i, domain.NewValidationError("INVALID_POLICY", "Policy is required", nil))
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("policy %d: %w", i, err)
		}
		stored := normalized(policy)
		if _, dup := byID[stored.ResourceID]; dup {
			return fmt.Errorf("policy %d: duplicate resource id %q", i, stored.ResourceID)
		}
		if stored.Path != "" {
			if owner, dup := byPath[stored.Path]; dup {
				return fmt.Errorf("policy %d: path %q already used by %q", i, stored.Path, owner)
			}
			byPath[stored.Path] = stored.ResourceID
		}
		byID[stored.ResourceID] = stored
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.byID = byID
	r.byPath = byPath
	return nil
}

func normalized(policy *domain.ResourceAccessPolicy) *domain.ResourceAccessPolicy {
	copied := *policy
	copied.ResourceID = strings.TrimSpace(copied.ResourceID)
	copied.RequiredRole = strings.TrimSpace(copied.RequiredRole)
	if copied.Path != "" {
		copied.Path = NormalizePath(copied.Path)
	}
	return &copied
}

// NormalizePath cleans a URL path so "/a/b/", "/a//b" and "a/b" all match.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
