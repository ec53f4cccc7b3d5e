// Package gate decides whether a user may read a gated resource.
package gate

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/repository"
)

// Gate answers access questions from resource policies.
type Gate struct {
	policies repository.PolicyRepository
	logger   *slog.Logger
}

// New creates a Gate over policies.
func New(policies repository.PolicyRepository, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{policies: policies, logger: logger}
}

// policy returns the policy of resourceID. Unknown resources get the zero
// policy, which is locked and names no role.
func (g *Gate) policy(ctx context.Context, resourceID string) (domain.ResourceAccessPolicy, bool) {
	policy, err := g.policies.GetByID(ctx, resourceID)
	if err != nil {
		if !repository.IsNotFound(err) {
			g.logger.ErrorContext(ctx, "policy lookup failed",
				slog.String("resource_id", resourceID),
				slog.String("error", err.Error()))
		}
		return domain.ResourceAccessPolicy{ResourceID: resourceID}, false
	}
	return *policy, true
}

// IsUnlocked reports whether resourceID is readable without logging in.
func (g *Gate) IsUnlocked(ctx context.Context, resourceID string) bool {
	if resourceID == "" {
		return false
	}
	policy, _ := g.policy(ctx, resourceID)
	return policy.Unlocked
}

// RequiredRole returns the role resourceID requires, if it names one.
func (g *Gate) RequiredRole(ctx context.Context, resourceID string) (string, bool) {
	if resourceID == "" {
		return "", false
	}
	policy, _ := g.policy(ctx, resourceID)
	return policy.RequiredRole, policy.HasRequiredRole()
}

// CheckAccess reports whether user may read resourceID: the resource is
// unlocked or the user holds its required role. A locked resource without a
// required role denies everyone. An empty resourceID admits any known user.
func (g *Gate) CheckAccess(ctx context.Context, resourceID string, user *domain.UserProfile) bool {
	if resourceID == "" {
		return user != nil
	}

	policy, _ := g.policy(ctx, resourceID)
	if policy.Unlocked {
		return true
	}
	if !policy.HasRequiredRole() {
		return false
	}
	return user.HasRole(policy.RequiredRole)
}

// ResolveURL maps a URL (absolute or site-relative) to the resource served
// at its path. Absolute URLs must point at siteHost; an empty siteHost skips
// the host check.
func (g *Gate) ResolveURL(ctx context.Context, rawURL, siteHost string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Host != "" && siteHost != "" && !SameHost(u.Host, siteHost) {
		g.logger.DebugContext(ctx, "url is not on this site",
			slog.String("host", u.Host),
			slog.String("site_host", siteHost))
		return "", false
	}

	policy, err := g.policies.GetByPath(ctx, u.Path)
	if err != nil {
		if !repository.IsNotFound(err) {
			g.logger.ErrorContext(ctx, "policy lookup failed",
				slog.String("path", u.Path),
				slog.String("error", err.Error()))
		}
		return "", false
	}
	return policy.ResourceID, true
}

// SameHost compares two host[:port] values case-insensitively. A missing port
// on either side matches any port.
func SameHost(a, b string) bool {
	ah, ap := splitHost(a)
	bh, bp := splitHost(b)
	if !strings.EqualFold(ah, bh) {
		return false
	}
	return ap == "" || bp == "" || ap == bp
}

func splitHost(hostport string) (string, string) {
	u := url.URL{Host: hostport}
	return strings.TrimSuffix(u.Hostname(), "."), u.Port()
}
