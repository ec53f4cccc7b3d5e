package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyYAML = `resources:
  - id: "1"
    path: /free-article
    unlocked: true
  - id: "2"
    path: /locked-article
    required_role: subscriber
`

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o600))
	return filename
}

func TestLoadPolicyFile(t *testing.T) {
	policies, err := LoadPolicyFile(writePolicyFile(t, policyYAML))
	require.NoError(t, err)
	require.Len(t, policies, 2)

	assert.Equal(t, "1", policies[0].ResourceID)
	assert.True(t, policies[0].Unlocked)
	assert.Equal(t, "subscriber", policies[1].RequiredRole)
	assert.False(t, policies[1].Unlocked)
}

func TestLoadPolicyFile_Errors(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPolicyFile(writePolicyFile(t, "resources:\n  - id: \"1\"\n    locked: true\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestDecodePolicies_Empty(t *testing.T) {
	policies, err := DecodePolicies(nil)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestEncodePolicies_RoundTrip(t *testing.T) {
	policies, err := DecodePolicies([]byte(policyYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodePolicies(&buf, policies))

	decoded, err := DecodePolicies(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, policies, decoded)
}

func TestReloadPolicyFile(t *testing.T) {
	ctx := context.Background()
	filename := writePolicyFile(t, policyYAML)

	repo, err := NewFilePolicyRepository(filename)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filename, []byte("resources:\n  - id: \"7\"\n    path: /new\n"), 0o600))
	count, err := ReloadPolicyFile(ctx, repo, filename)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	policy, err := repo.GetByPath(ctx, "/new")
	require.NoError(t, err)
	assert.Equal(t, "7", policy.ResourceID)

	require.NoError(t, os.WriteFile(filename, []byte("resources: [\n"), 0o600))
	_, err = ReloadPolicyFile(ctx, repo, filename)
	assert.Error(t, err)

	_, err = repo.GetByID(ctx, "7")
	assert.NoError(t, err, "failed reload keeps the previous policies")
}
