package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(profileCmd)

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileSelectCmd)
	profileCmd.AddCommand(profileShowCmd)

	for _, cmd := range []*cobra.Command{healthCmd, whoamiCmd, accessCmd} {
		cmd.Flags().StringP("server", "s", "", "gateway URL (default: the profile's server)")
	}
	for _, cmd := range []*cobra.Command{whoamiCmd, accessCmd} {
		cmd.Flags().StringP("token", "t", "", "access token (default: the profile's token)")
	}

	profileCreateCmd.Flags().StringP("server", "s", "", "Gateway URL")
	profileCreateCmd.Flags().StringP("token", "t", "", "Access token sent as the gateway cookie")
	profileCreateCmd.Flags().Bool("prompt-token", false, "Read the access token from the terminal")
	profileCreateCmd.Flags().String("settings-file", "", "Locale settings file for this profile")
	profileCreateCmd.Flags().String("policy-file", "", "Policy file for this profile")
	_ = profileCreateCmd.MarkFlagRequired("server")
}

const requestTimeout = 15 * time.Second

// clientFor builds a gateway client from the --server and --token flags,
// falling back to the current profile.
func clientFor(cmd *cobra.Command) (*GatewayClient, error) {
	server, _ := cmd.Flags().GetString("server")
	token := ""
	if cmd.Flags().Lookup("token") != nil {
		token, _ = cmd.Flags().GetString("token")
	}

	if server == "" || token == "" {
		if profile, err := GetCurrentProfile(); err == nil {
			if server == "" {
				server = profile.ServerURL
			}
			if token == "" {
				token = profile.Token
			}
		}
	}
	if server == "" {
		return nil, errors.New("no gateway URL: pass --server or create a profile")
	}
	return NewGatewayClient(server, token), nil
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the health of a running gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFor(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		report, err := client.Health(ctx)
		if report != nil {
			if renderErr := RenderHealth(cmd.OutOrStdout(), report, viper.GetString("output")); renderErr != nil {
				return renderErr
			}
		}
		return err
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user behind an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFor(cmd)
		if err != nil {
			return err
		}
		if client.Token == "" {
			return errors.New("no access token: pass --token or store one in the profile")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		user, err := client.User(ctx)
		if err != nil {
			return err
		}
		return RenderUser(cmd.OutOrStdout(), user, viper.GetString("output"))
	},
}

var accessCmd = &cobra.Command{
	Use:   "access <resource-id|url>",
	Short: "Ask a running gateway whether a token may read a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFor(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		allowed, err := client.Access(ctx, args[0])
		if err != nil {
			return err
		}
		if allowed {
			Success(cmd.OutOrStdout(), "Access granted to %s", args[0])
			return nil
		}
		Warning(cmd.OutOrStdout(), "Access denied to %s", args[0])
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage gateway profiles",
	Long:  `Manage profiles pointing gatewayctl at different gateway deployments.`,
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all profiles",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		profiles, err := ListProfiles()
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}
		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured")
			return nil
		}

		return RenderProfiles(cmd.OutOrStdout(), profiles, config.DefaultProfile, viper.GetString("output"))
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		prompt, _ := cmd.Flags().GetBool("prompt-token")
		settingsPath, _ := cmd.Flags().GetString("settings-file")
		policyPath, _ := cmd.Flags().GetString("policy-file")

		if prompt && token == "" {
			read, err := readSecret(cmd, "Access token: ")
			if err != nil {
				return err
			}
			token = read
		}

		profile := Profile{
			Name:         args[0],
			ServerURL:    strings.TrimRight(serverURL, "/"),
			Token:        token,
			SettingsFile: settingsPath,
			PolicyFile:   policyPath,
		}
		if err := ValidateProfile(&profile); err != nil {
			return fmt.Errorf("invalid profile: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		if err := NewGatewayClientFromProfile(&profile).TestConnection(ctx); err != nil {
			Warning(cmd.OutOrStdout(), "Gateway at %s did not answer: %v", profile.ServerURL, err)
		}

		if err := AddProfile(profile); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Profile '%s' created successfully", profile.Name)
		return nil
	},
}

// readSecret reads a line from the terminal without echo.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", errors.New("--prompt-token needs an interactive terminal")
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

var profileDeleteCmd = &cobra.Command{
	Use:     "delete [name]",
	Short:   "Delete a profile",
	Aliases: []string{"remove", "rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := RemoveProfile(args[0]); err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Profile '%s' deleted", args[0])
		return nil
	},
}

var profileSelectCmd = &cobra.Command{
	Use:     "select [name]",
	Short:   "Select a profile as default",
	Aliases: []string{"switch", "use"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := SetCurrentProfile(args[0]); err != nil {
			return fmt.Errorf("failed to select profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Profile '%s' selected as default", args[0])
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show profile details",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var profile *Profile

		if len(args) == 0 {
			current, err := GetCurrentProfile()
			if err != nil {
				return fmt.Errorf("failed to get current profile: %w", err)
			}
			profile = current
		} else {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			p, exists := config.Profiles[args[0]]
			if !exists {
				return fmt.Errorf("profile '%s' not found", args[0])
			}
			profile = &p
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile: %s\n", profile.Name)
		fmt.Fprintf(out, "Server: %s\n", profile.ServerURL)
		fmt.Fprintf(out, "Token: %s\n", orDash(maskToken(profile.Token)))
		fmt.Fprintf(out, "Settings: %s\n", orDash(profile.SettingsFile))
		fmt.Fprintf(out, "Policies: %s\n", orDash(profile.PolicyFile))
		return nil
	},
}
