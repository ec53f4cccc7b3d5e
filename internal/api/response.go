// Package api provides the gateway's HTTP handlers.
//
// Error responses have the shape {"error": message}. Handlers report failures
// through ErrorSanitizer so the full error is logged with the request ID while
// the client only sees a safe message.
package api

// Route layout, mounted under RoutePrefix.
const (
	RoutePrefix = "/wp-json/bp-wa-oauth/v1"
	LoginRoute  = "/oauth/login"
	UserRoute   = "/oauth/user"
	AccessRoute = "/oauth/access"
	LogoutRoute = "/oauth/logout"

	// LoginPath is the OAuth callback the provider redirects back to.
	LoginPath = RoutePrefix + LoginRoute
)

// Request parameters.
const (
	RedirectURIParam = "redirectUri"
	CodeParam        = "code"
	ResourceParam    = "resource"
)
