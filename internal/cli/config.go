package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration
type Config struct {
	DefaultProfile string             `json:"default_profile" yaml:"default_profile"`
	Profiles       map[string]Profile `json:"profiles" yaml:"profiles"`
}

// Profile points gatewayctl at one gateway deployment.
type Profile struct {
	Name      string `json:"name" yaml:"name"`
	ServerURL string `json:"server_url" yaml:"server_url"`
	// Token is a provider access token, sent as the gateway's token cookie.
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	SettingsFile string `json:"settings_file,omitempty" yaml:"settings_file,omitempty"`
	PolicyFile   string `json:"policy_file,omitempty" yaml:"policy_file,omitempty"`
}

// validateConfigPath validates that the config path is safe
func validateConfigPath(path string) error {
	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid config path: path traversal not allowed")
	}

	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("invalid config path: must be absolute path")
	}

	return nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	config := &Config{
		Profiles: make(map[string]Profile),
	}

	if validateErr := validateConfigPath(configPath); validateErr != nil {
		return nil, fmt.Errorf("config path validation failed: %w", validateErr)
	}

	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		return config, nil
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // Path is validated by validateConfigPath
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Profiles == nil {
		config.Profiles = make(map[string]Profile)
	}

	return config, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(config *Config) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if validateErr := validateConfigPath(configPath); validateErr != nil {
		return fmt.Errorf("config path validation failed: %w", validateErr)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(configPath), 0750); mkdirErr != nil {
		return fmt.Errorf("failed to create config directory: %w", mkdirErr)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file can hold access tokens.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetCurrentProfile returns the current active profile
func GetCurrentProfile() (*Profile, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	profileName := config.DefaultProfile
	if profileName == "" {
		profileName = "default"
	}

	if override := viper.GetString("profile"); override != "" {
		profileName = override
	}

	profile, exists := config.Profiles[profileName]
	if !exists {
		return nil, fmt.Errorf("profile '%s' not found", profileName)
	}

	return &profile, nil
}

// SetCurrentProfile sets the default profile
func SetCurrentProfile(profileName string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	if _, exists := config.Profiles[profileName]; !exists {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	config.DefaultProfile = profileName
	return SaveConfig(config)
}

// AddProfile adds a new profile to the configuration
func AddProfile(profile Profile) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	config.Profiles[profile.Name] = profile

	if config.DefaultProfile == "" {
		config.DefaultProfile = profile.Name
	}

	return SaveConfig(config)
}

// RemoveProfile removes a profile from the configuration
func RemoveProfile(profileName string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	if _, exists := config.Profiles[profileName]; !exists {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	delete(config.Profiles, profileName)

	if config.DefaultProfile == profileName {
		config.DefaultProfile = ""
		names := profileNames(config)
		if len(names) > 0 {
			config.DefaultProfile = names[0]
		}
	}

	return SaveConfig(config)
}

// ListProfiles returns all available profiles sorted by name.
func ListProfiles() ([]Profile, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(config.Profiles))
	for _, name := range profileNames(config) {
		profiles = append(profiles, config.Profiles[name])
	}

	return profiles, nil
}

func profileNames(config *Config) []string {
	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateProfile validates a profile configuration
func ValidateProfile(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name is required")
	}

	if profile.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}

	if !strings.HasPrefix(profile.ServerURL, "http://") && !strings.HasPrefix(profile.ServerURL, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://")
	}

	return nil
}

// GetConfigAsJSON returns configuration as JSON string for debugging
func GetConfigAsJSON() (string, error) {
	config, err := LoadConfig()
	if err != nil {
		return "", err
	}

	maskedConfig := *config
	maskedConfig.Profiles = make(map[string]Profile)

	for name, profile := range config.Profiles {
		maskedProfile := profile
		maskedProfile.Token = maskToken(profile.Token)
		maskedConfig.Profiles[name] = maskedProfile
	}

	data, err := json.MarshalIndent(maskedConfig, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// maskToken keeps the first and last four characters of long tokens.
func maskToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 12:
		return "***masked***"
	default:
		return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
	}
}

// settingsFile resolves the locale settings file: flag or environment, then
// the current profile, then the default.
func settingsFile() string {
	return resolveFile("settings_file", defaultSettingsFile, func(p *Profile) string { return p.SettingsFile })
}

// policyFile resolves the resource policy file like settingsFile.
func policyFile() string {
	return resolveFile("policy_file", defaultPolicyFile, func(p *Profile) string { return p.PolicyFile })
}

func resolveFile(key, fallback string, fromProfile func(*Profile) string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	if profile, err := GetCurrentProfile(); err == nil {
		if v := fromProfile(profile); v != "" {
			return v
		}
	}
	return fallback
}
