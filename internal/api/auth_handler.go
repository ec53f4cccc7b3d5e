package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api/middleware"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// forgetter is implemented by clients that cache profiles per token.
type forgetter interface {
	Forget(ctx context.Context, token string)
}

// User handles GET /oauth/user: the profile behind the token cookie.
func (h *LoginHandler) User(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.errors.Respond(c, domain.AsOAuthError(err))
		return
	}
	if user == nil {
		h.errors.Respond(c, domain.NewOAuthError(http.StatusUnauthorized, "Not authenticated", nil))
		return
	}
	c.JSON(http.StatusOK, user)
}

// Access handles GET /oauth/access?resource=<id> or ?redirectUri=<url>.
// A URL that maps to no resource only requires a signed in user.
func (h *LoginHandler) Access(c *gin.Context) {
	resourceID := strings.TrimSpace(c.Query(ResourceParam))
	if resourceID == "" {
		if redirectURI := strings.TrimSpace(c.Query(RedirectURIParam)); redirectURI != "" {
			resourceID, _ = h.gate.ResolveURL(c.Request.Context(), redirectURI, h.SiteHost(c.Request))
		}
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.IsAuthenticated(c, resourceID),
	})
}

// Logout handles GET|POST /oauth/logout. Both cookies are expired; the
// provider token itself stays valid until it expires.
func (h *LoginHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if token, ok := h.store.Token(c.Request); ok {
		client, err := h.clients.ForLocale(h.settings.CurrentLocale(c.Request))
		if err == nil {
			if f, ok := client.(forgetter); ok {
				f.Forget(ctx, token)
			}
		}
	}
	h.store.Clear(c.Writer)

	h.logger.InfoContext(ctx, "session cleared",
		slog.String("request_id", middleware.GetRequestID(c)))

	if redirectURI := h.bindLoginParams(c).RedirectURI; redirectURI != "" {
		c.Redirect(http.StatusFound, redirectURI)
		return
	}
	c.Status(http.StatusNoContent)
}
