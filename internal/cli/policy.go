package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/gate"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/repository"
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyCheckCmd)
	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyRemoveCmd)
	policyCmd.AddCommand(policyValidateCmd)

	policyCheckCmd.Flags().StringSlice("roles", nil, "roles of the simulated user (comma separated)")
	policyCheckCmd.Flags().String("site-host", "", "host absolute URLs must point at (default: the profile server's host)")

	policySetCmd.Flags().String("id", "", "resource ID")
	policySetCmd.Flags().String("path", "", "URL path the resource is served at")
	policySetCmd.Flags().Bool("unlocked", false, "let everyone read the resource")
	policySetCmd.Flags().String("role", "", "role required to read the resource")
	_ = policySetCmd.MarkFlagRequired("id")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit resource access policies",
	Long: `Inspect and edit the resource policy file the gateway reads at startup.
Send the gateway SIGHUP after editing to reload it.`,
}

var policyListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List resource policies",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository.NewFilePolicyRepository(policyFile())
		if err != nil {
			return err
		}
		policies, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}
		return RenderPolicies(cmd.OutOrStdout(), policies, viper.GetString("output"))
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a user with the given roles may read a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, _ := cmd.Flags().GetStringSlice("roles")
		siteHost, _ := cmd.Flags().GetString("site-host")
		if siteHost == "" {
			siteHost = profileHost()
		}

		repo, err := repository.NewFilePolicyRepository(policyFile())
		if err != nil {
			return err
		}
		check := CheckPolicy(cmd.Context(), repo, args[0], siteHost, roles)
		return RenderPolicyCheck(cmd.OutOrStdout(), check, viper.GetString("output"))
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a resource policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		path, _ := cmd.Flags().GetString("path")
		unlocked, _ := cmd.Flags().GetBool("unlocked")
		role, _ := cmd.Flags().GetString("role")

		filename := policyFile()
		err := updatePolicyFile(cmd.Context(), filename, func(ctx context.Context, repo repository.PolicyRepository) error {
			return repo.Save(ctx, &domain.ResourceAccessPolicy{
				ResourceID:   id,
				Path:         path,
				Unlocked:     unlocked,
				RequiredRole: role,
			})
		})
		if err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "Policy '%s' saved to %s", id, filename)
		if !unlocked && role == "" {
			Warning(cmd.OutOrStdout(), "Policy '%s' is locked and names no role: nobody can read it", id)
		}
		return nil
	},
}

var policyRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Short:   "Remove a resource policy",
	Aliases: []string{"rm", "delete"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := policyFile()
		err := updatePolicyFile(cmd.Context(), filename, func(ctx context.Context, repo repository.PolicyRepository) error {
			return repo.Delete(ctx, args[0])
		})
		if err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "Policy '%s' removed from %s", args[0], filename)
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the policy file",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := policyFile()
		repo, err := repository.NewFilePolicyRepository(filename)
		if err != nil {
			return err
		}
		policies, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "%s: %d policies", filename, len(policies))
		for _, p := range policies {
			if !p.Unlocked && !p.HasRequiredRole() {
				Warning(cmd.OutOrStdout(), "Policy '%s' is locked and names no role", p.ResourceID)
			}
			if p.Path == "" {
				Warning(cmd.OutOrStdout(), "Policy '%s' has no path and cannot be matched from a URL", p.ResourceID)
			}
		}
		return nil
	},
}

// CheckPolicy evaluates rawURL for a signed in user holding roles, the way
// the gateway's access endpoint would. Absolute URLs must point at siteHost
// unless it is empty.
func CheckPolicy(
	ctx context.Context,
	repo repository.PolicyRepository,
	rawURL, siteHost string,
	roles []string,
) PolicyCheck {
	g := gate.New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	user := &domain.UserProfile{Roles: roles}

	check := PolicyCheck{URL: rawURL, Roles: roles}
	if check.Roles == nil {
		check.Roles = []string{}
	}

	resourceID, known := g.ResolveURL(ctx, rawURL, siteHost)
	if known {
		check.Known = true
		check.ResourceID = resourceID
		check.Unlocked = g.IsUnlocked(ctx, resourceID)
		check.RequiredRole, _ = g.RequiredRole(ctx, resourceID)
	}
	check.Allowed = g.CheckAccess(ctx, resourceID, user)
	return check
}

// profileHost is the host of the current profile's server, or empty.
func profileHost() string {
	profile, err := GetCurrentProfile()
	if err != nil {
		return ""
	}
	u, err := url.Parse(profile.ServerURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// updatePolicyFile loads filename, applies change and writes the result back.
// A missing file starts out empty.
func updatePolicyFile(
	ctx context.Context,
	filename string,
	change func(context.Context, repository.PolicyRepository) error,
) error {
	var policies []*domain.ResourceAccessPolicy
	if _, err := os.Stat(filename); err == nil {
		policies, err = repository.LoadPolicyFile(filename)
		if err != nil {
			return err
		}
	}

	repo, err := repository.NewMemoryPolicyRepository(policies...)
	if err != nil {
		return err
	}
	if err := change(ctx, repo); err != nil {
		return err
	}

	updated, err := repo.List(ctx)
	if err != nil {
		return err
	}
	return writePolicyFile(filename, updated)
}

// writePolicyFile replaces filename atomically.
func writePolicyFile(filename string, policies []*domain.ResourceAccessPolicy) error {
	var buf bytes.Buffer
	if err := repository.EncodePolicies(&buf, policies); err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".policies-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary policy file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil { //nolint:gosec // policies are not secret
		return fmt.Errorf("failed to set policy file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to replace policy file: %w", err)
	}
	return nil
}
