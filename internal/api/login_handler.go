package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api/middleware"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/metrics"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/oauth"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/session"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

// ClientSource hands out the OAuth client of a locale.
type ClientSource interface {
	ForLocale(locale string) (oauth.Client, error)
}

// AccessGate answers access questions about resources.
type AccessGate interface {
	IsUnlocked(ctx context.Context, resourceID string) bool
	RequiredRole(ctx context.Context, resourceID string) (string, bool)
	CheckAccess(ctx context.Context, resourceID string, user *domain.UserProfile) bool
	ResolveURL(ctx context.Context, rawURL, siteHost string) (string, bool)
}

// Recorder counts login outcomes and access checks.
type Recorder interface {
	RecordLogin(outcome string)
	RecordAccess(allowed bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string) {}
func (nopRecorder) RecordAccess(bool)  {}

// LoginHandlerConfig holds the dependencies of a LoginHandler.
type LoginHandlerConfig struct {
	Clients  ClientSource
	Settings settings.Provider
	Gate     AccessGate
	Store    *session.Store
	Recorder Recorder
	Logger   *slog.Logger
	// PublicBaseURL is the scheme and host the provider redirects back to.
	// Empty derives it from each request.
	PublicBaseURL string
	// ClearDestinationOnUse expires the destination cookie once the visitor
	// has been redirected there.
	ClearDestinationOnUse bool
}

// LoginHandler runs the login flow and the session endpoints around it.
type LoginHandler struct {
	clients       ClientSource
	settings      settings.Provider
	gate          AccessGate
	store         *session.Store
	recorder      Recorder
	logger        *slog.Logger
	errors        *ErrorSanitizer
	publicBaseURL string
	clearOnUse    bool
}

// NewLoginHandler creates a new login handler.
func NewLoginHandler(cfg LoginHandlerConfig) *LoginHandler {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LoginHandler{
		clients:       cfg.Clients,
		settings:      cfg.Settings,
		gate:          cfg.Gate,
		store:         cfg.Store,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		errors:        NewErrorSanitizer(cfg.Logger),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		clearOnUse:    cfg.ClearDestinationOnUse,
	}
}

// RegisterRoutes registers the login routes on group, which is mounted at
// RoutePrefix.
func (h *LoginHandler) RegisterRoutes(group gin.IRoutes) {
	group.GET(LoginRoute, h.Login)
	group.POST(LoginRoute, h.Login)
	group.GET(LogoutRoute, h.Logout)
	group.POST(LogoutRoute, h.Logout)
}

// RegisterJSONRoutes registers the endpoints page scripts call.
func (h *LoginHandler) RegisterJSONRoutes(group gin.IRoutes) {
	group.GET(UserRoute, h.User)
	group.GET(AccessRoute, h.Access)
	group.OPTIONS(UserRoute, preflight)
	group.OPTIONS(AccessRoute, preflight)
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

type loginParams struct {
	RedirectURI string `form:"redirectUri" json:"redirectUri"`
	Code        string `form:"code" json:"code"`
}

// bindLoginParams reads redirectUri and code from the body or the query
// string. Unparseable input is treated as absent.
func (h *LoginHandler) bindLoginParams(c *gin.Context) loginParams {
	var p loginParams
	if err := c.ShouldBind(&p); err != nil {
		h.logger.DebugContext(c.Request.Context(), "ignoring unreadable login parameters",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("error", err.Error()))
		p = loginParams{}
	}

	if p.RedirectURI == "" {
		p.RedirectURI = c.Query(RedirectURIParam)
	}
	if p.Code == "" {
		p.Code = c.Query(CodeParam)
	}

	p.RedirectURI = strings.TrimSpace(p.RedirectURI)
	p.Code = strings.TrimSpace(p.Code)
	if p.RedirectURI != "" {
		if _, err := url.Parse(p.RedirectURI); err != nil {
			h.logger.DebugContext(c.Request.Context(), "ignoring malformed redirect uri",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("error", err.Error()))
			p.RedirectURI = ""
		}
	}
	return p
}

// Login handles GET|POST /oauth/login.
//
// An unlocked redirectUri is passed straight through. Otherwise the
// destination is remembered, the user is resolved from the token cookie or
// the authorization code, and the visitor is sent to the provider's login
// screen, back to the destination, or handed their profile.
func (h *LoginHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	params := h.bindLoginParams(c)
	cookies := h.store.ForRequest(c.Writer, c.Request)

	resourceID, known := h.gate.ResolveURL(ctx, params.RedirectURI, h.SiteHost(c.Request))
	if known && h.gate.IsUnlocked(ctx, resourceID) {
		h.recorder.RecordLogin(metrics.OutcomeUnlocked)
		c.Redirect(http.StatusFound, params.RedirectURI)
		return
	}

	if params.RedirectURI != "" {
		if _, err := cookies.SetDestination(params.RedirectURI); err != nil {
			h.errors.Respond(c, domain.NewInternalError("DESTINATION_NOT_SAVED", "Failed to save auth destination", err))
			return
		}
	}

	locale := h.settings.CurrentLocale(c.Request)
	client, err := h.clients.ForLocale(locale)
	if err != nil {
		h.errors.Respond(c, domain.NewInternalError("OAUTH_CLIENT_UNAVAILABLE", "No OAuth client for locale", err))
		return
	}
	callback := h.CallbackURI(c.Request)

	user, err := h.ResolveUser(ctx, cookies, client, params.Code, callback)
	if err != nil {
		h.recorder.RecordLogin(metrics.OutcomeProviderError)
		h.errors.Respond(c, err)
		return
	}

	if user == nil {
		role := h.loginRole(ctx, resourceID, known, locale)
		h.recorder.RecordLogin(metrics.OutcomeRedirectLogin)
		h.logger.DebugContext(ctx, "redirecting to provider login",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("locale", locale),
			slog.String("required_role", role))
		c.Redirect(http.StatusFound, client.LoginURL(callback, role))
		return
	}

	if destination, ok := cookies.Destination(); ok {
		if h.clearOnUse {
			cookies.ClearDestination()
		}
		h.recorder.RecordLogin(metrics.OutcomeDestination)
		c.Redirect(http.StatusFound, destination)
		return
	}

	h.recorder.RecordLogin(metrics.OutcomeProfile)
	c.JSON(http.StatusOK, user)
}

// ResolveUser finds the user of the request. A token cookie wins; without
// one, code is exchanged once and the token is stored before the profile is
// fetched. With neither it returns (nil, nil). Errors are *domain.OAuthError.
func (h *LoginHandler) ResolveUser(
	ctx context.Context,
	cookies *session.Cookies,
	client oauth.Client,
	code string,
	callback string,
) (*domain.UserProfile, error) {
	token, ok := cookies.Token()
	if !ok {
		if code == "" {
			return nil, nil
		}

		exchanged, err := client.ExchangeCode(ctx, callback, code)
		if err != nil {
			return nil, domain.AsOAuthError(err)
		}
		if _, err := cookies.SetToken(exchanged); err != nil {
			return nil, domain.NewOAuthError(http.StatusInternalServerError, "Failed to persist access token", err)
		}
		token = exchanged
	}

	user, err := client.GetUser(ctx, token)
	if err != nil {
		return nil, domain.AsOAuthError(err)
	}
	return user, nil
}

// loginRole is the role the provider should ask for: the resource's own,
// else the locale default.
func (h *LoginHandler) loginRole(ctx context.Context, resourceID string, known bool, locale string) string {
	if known {
		if role, ok := h.gate.RequiredRole(ctx, resourceID); ok {
			return role
		}
	}
	return h.settings.DefaultRequiredRole(locale)
}

// CallbackURI is the absolute URL of the login route, used as the OAuth
// redirect_uri.
func (h *LoginHandler) CallbackURI(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + LoginPath
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		proto := strings.ToLower(strings.TrimSpace(strings.Split(forwarded, ",")[0]))
		if proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host + LoginPath
}

// SiteHost is the host of this site: the host of PublicBaseURL, else the
// request's Host header. URLs on any other host map to no resource.
func (h *LoginHandler) SiteHost(r *http.Request) string {
	if h.publicBaseURL != "" {
		if u, err := url.Parse(h.publicBaseURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return r.Host
}

// IsAuthenticated reports whether the request's token cookie belongs to a
// user allowed to read resourceID. It never exchanges codes and writes no
// cookies. An empty resourceID only requires a valid token.
func (h *LoginHandler) IsAuthenticated(c *gin.Context, resourceID string) bool {
	ctx := c.Request.Context()

	user, err := h.currentUser(c)
	if err != nil {
		h.logger.DebugContext(ctx, "token did not resolve to a user",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("error", err.Error()))
	}
	if user == nil {
		h.recorder.RecordAccess(false)
		return false
	}

	allowed := h.gate.CheckAccess(ctx, resourceID, user)
	h.recorder.RecordAccess(allowed)
	return allowed
}

// currentUser resolves the user from the token cookie only.
func (h *LoginHandler) currentUser(c *gin.Context) (*domain.UserProfile, error) {
	token, ok := h.store.Token(c.Request)
	if !ok {
		return nil, nil
	}
	client, err := h.clients.ForLocale(h.settings.CurrentLocale(c.Request))
	if err != nil {
		return nil, err
	}
	return client.GetUser(c.Request.Context(), token)
}
