package repository

import (
	"errors"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// ErrNotFound is a sentinel error for not found conditions
var ErrNotFound = errors.New("not found")

// IsNotFound checks if an error represents a "not found" condition,
// either the repository sentinel or a domain not-found error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || domain.IsNotFound(err)
}
