package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/health"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatYML  = "yml"
	formatCSV  = "csv"
)

// PolicyCheck is the outcome of checking a URL against the policy file.
type PolicyCheck struct {
	URL          string   `json:"url" yaml:"url"`
	ResourceID   string   `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Known        bool     `json:"known" yaml:"known"`
	Unlocked     bool     `json:"unlocked" yaml:"unlocked"`
	RequiredRole string   `json:"required_role,omitempty" yaml:"required_role,omitempty"`
	Roles        []string `json:"roles" yaml:"roles"`
	Allowed      bool     `json:"allowed" yaml:"allowed"`
}

// RenderPolicies renders resource policies in the specified format
func RenderPolicies(w io.Writer, policies []*domain.ResourceAccessPolicy, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, policies)
	case formatYAML, formatYML:
		return renderYAML(w, policies)
	case formatCSV:
		return renderPoliciesCSV(w, policies)
	default:
		return renderPoliciesTable(w, policies)
	}
}

// RenderPolicyCheck renders the result of a policy check
func RenderPolicyCheck(w io.Writer, check PolicyCheck, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, check)
	case formatYAML, formatYML:
		return renderYAML(w, check)
	}

	t := newTable(w)
	t.AppendRow(table.Row{"URL", check.URL})
	if check.Known {
		t.AppendRow(table.Row{"Resource", check.ResourceID})
		t.AppendRow(table.Row{"Unlocked", yesNo(check.Unlocked)})
		t.AppendRow(table.Row{"Required role", orDash(check.RequiredRole)})
	} else {
		t.AppendRow(table.Row{"Resource", "no policy (any signed in user)"})
	}
	t.AppendRow(table.Row{"Roles", orDash(strings.Join(check.Roles, ", "))})
	t.AppendRow(table.Row{"Allowed", yesNo(check.Allowed)})
	t.Render()
	return nil
}

// RenderProfiles renders CLI profiles, marking the default one
func RenderProfiles(w io.Writer, profiles []Profile, defaultProfile, format string) error {
	masked := make([]Profile, len(profiles))
	for i, p := range profiles {
		p.Token = maskToken(p.Token)
		masked[i] = p
	}

	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, masked)
	case formatYAML, formatYML:
		return renderYAML(w, masked)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"", "Name", "Server", "Token", "Settings", "Policies"})
	for _, p := range masked {
		marker := ""
		if p.Name == defaultProfile {
			marker = "*"
		}
		t.AppendRow(table.Row{marker, p.Name, p.ServerURL, orDash(p.Token), orDash(p.SettingsFile), orDash(p.PolicyFile)})
	}
	t.Render()
	return nil
}

// RenderHealth renders a gateway health report
func RenderHealth(w io.Writer, report *health.Response, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, report)
	case formatYAML, formatYML:
		return renderYAML(w, report)
	}

	fmt.Fprintf(w, "Status: %s\n", report.Status)
	fmt.Fprintf(w, "Version: %s (%s)\n", report.Version, report.Environment)
	fmt.Fprintf(w, "Uptime: %s\n", report.Uptime.Round(time.Second))

	if len(report.Checks) == 0 {
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Check", "Status", "Message", "Duration"})
	for _, check := range report.Checks {
		message := check.Message
		if check.Error != "" {
			message = check.Error
		}
		t.AppendRow(table.Row{check.Name, string(check.Status), orDash(message), check.Duration.String()})
	}
	t.Render()
	return nil
}

// RenderUser renders a user profile
func RenderUser(w io.Writer, user *domain.UserProfile, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, user)
	case formatYAML, formatYML:
		return renderYAML(w, user)
	}

	t := newTable(w)
	t.AppendRow(table.Row{"ID", user.ID})
	t.AppendRow(table.Row{"Email", orDash(user.Email)})
	t.AppendRow(table.Row{"Username", orDash(user.Username)})
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	t.AppendRow(table.Row{"Name", orDash(name)})
	t.AppendRow(table.Row{"Roles", orDash(strings.Join(user.Roles, ", "))})
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderPoliciesTable(w io.Writer, policies []*domain.ResourceAccessPolicy) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Path", "Unlocked", "Required Role"})
	for _, p := range policies {
		t.AppendRow(table.Row{p.ResourceID, orDash(p.Path), yesNo(p.Unlocked), orDash(p.RequiredRole)})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(policies)})
	t.Render()
	return nil
}

func renderPoliciesCSV(w io.Writer, policies []*domain.ResourceAccessPolicy) error {
	writer := csv.NewWriter(w)

	_ = writer.Write([]string{"id", "path", "unlocked", "required_role"})
	for _, p := range policies {
		_ = writer.Write([]string{p.ResourceID, p.Path, strconv.FormatBool(p.Unlocked), p.RequiredRole})
	}

	writer.Flush()
	return writer.Error()
}

func renderJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func renderYAML(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Success prints a success message with a checkmark
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}

// Warning prints a warning message
func Warning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "⚠ "+format+"\n", args...)
}
