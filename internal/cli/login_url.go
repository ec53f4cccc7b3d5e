package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/oauth"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

func init() {
	rootCmd.AddCommand(loginURLCmd)

	loginURLCmd.Flags().String("locale", "", "locale whose provider to use (default: the default locale)")
	loginURLCmd.Flags().String("role", "", "role to ask the provider for (default: the locale's required role)")
	loginURLCmd.Flags().String("base-url", "", "public scheme and host of the gateway (default: the profile's server)")
}

var loginURLCmd = &cobra.Command{
	Use:   "login-url",
	Short: "Print the provider login URL the gateway redirects to",
	Long: `Print the provider login URL the gateway would send a visitor to, built
from the locale settings file. Useful to check credentials and the
registered callback URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		locale, _ := cmd.Flags().GetString("locale")
		role, _ := cmd.Flags().GetString("role")
		baseURL, _ := cmd.Flags().GetString("base-url")

		if baseURL == "" {
			if profile, err := GetCurrentProfile(); err == nil {
				baseURL = profile.ServerURL
			}
		}
		if baseURL == "" {
			return fmt.Errorf("--base-url is required when no profile is configured")
		}

		provider, err := settings.Load(settingsFile())
		if err != nil {
			return err
		}

		loginURL, err := BuildLoginURL(provider, locale, role, baseURL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), loginURL)
		return err
	},
}

// BuildLoginURL builds the provider login URL for locale, asking for role
// (the locale default when empty), with the gateway at baseURL as callback.
func BuildLoginURL(provider *settings.FileProvider, locale, role, baseURL string) (string, error) {
	if locale == "" {
		locale = provider.DefaultLocale()
	}

	creds, err := provider.Credentials(locale)
	if err != nil {
		return "", err
	}
	if role == "" {
		role = provider.DefaultRequiredRole(locale)
	}

	callback := strings.TrimRight(baseURL, "/") + api.LoginPath
	return oauth.NewProviderClient(creds).LoginURL(callback, role), nil
}
