// Package cli provides gatewayctl, the operator tool for wa-oauth-gateway.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	applicationName = "gatewayctl"
	version         = "1.0.0"

	defaultSettingsFile = "config/settings.yaml"
	defaultPolicyFile   = "config/policies.yaml"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   applicationName,
	Short: "gatewayctl - operate a wa-oauth-gateway",
	Long: `gatewayctl inspects and edits the resource policies of a wa-oauth-gateway,
builds provider login URLs from the locale settings and queries a running
gateway for its health and for the session behind a token.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gatewayctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml, csv)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("settings", "", "locale settings file (default "+defaultSettingsFile+")")
	rootCmd.PersistentFlags().String("policies", "", "resource policy file (default "+defaultPolicyFile+")")
	rootCmd.PersistentFlags().String("profile", "", "profile to use instead of the default one")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("settings_file", rootCmd.PersistentFlags().Lookup("settings"))
	_ = viper.BindPFlag("policy_file", rootCmd.PersistentFlags().Lookup("policies"))
	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gatewayctl")
	}

	// GATEWAYCTL_SETTINGS_FILE, GATEWAYCTL_POLICY_FILE, ...
	viper.SetEnvPrefix("GATEWAYCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	if cfgFile != "" {
		absPath, err := filepath.Abs(cfgFile)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path for config file: %w", err)
		}
		return absPath, nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".gatewayctl.yaml"), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: both UserHomeDir and UserConfigDir failed")
	}

	return filepath.Join(configDir, ".gatewayctl.yaml"), nil
}
