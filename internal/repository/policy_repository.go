// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// PolicyRepository defines the interface for resource access policy data operations.
type PolicyRepository interface {
	// GetByID returns the policy of a resource.
	GetByID(ctx context.Context, resourceID string) (*domain.ResourceAccessPolicy, error)

	// GetByPath returns the policy of the resource served at path.
	GetByPath(ctx context.Context, path string) (*domain.ResourceAccessPolicy, error)

	// List returns every policy ordered by resource ID.
	List(ctx context.Context) ([]*domain.ResourceAccessPolicy, error)

	// Save creates or replaces a policy.
	Save(ctx context.Context, policy *domain.ResourceAccessPolicy) error

	// Delete removes a policy.
	Delete(ctx context.Context, resourceID string) error

	// Replace swaps the whole policy set atomically.
	Replace(ctx context.Context, policies []*domain.ResourceAccessPolicy) error
}
