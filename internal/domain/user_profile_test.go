package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserProfile_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expectedID string
		roles      []string
	}{
		{
			name:       "numeric id",
			input:      `{"id": 4211, "roles": ["subscriber"]}`,
			expectedID: "4211",
			roles:      []string{"subscriber"},
		},
		{
			name:       "string id",
			input:      `{"id": "u-17", "roles": ["subscriber", "editor"]}`,
			expectedID: "u-17",
			roles:      []string{"subscriber", "editor"},
		},
		{
			name:       "numeric id beyond float precision",
			input:      `{"id": 9007199254740993, "roles": []}`,
			expectedID: "9007199254740993",
			roles:      []string{},
		},
		{
			name:       "missing roles",
			input:      `{"id": 1}`,
			expectedID: "1",
			roles:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var profile UserProfile
			require.NoError(t, json.Unmarshal([]byte(tt.input), &profile))
			assert.Equal(t, tt.expectedID, profile.ID)
			assert.Equal(t, tt.roles, profile.Roles)
		})
	}
}

func TestUserProfile_UnmarshalJSON_RejectsObjectID(t *testing.T) {
	var profile UserProfile
	err := json.Unmarshal([]byte(`{"id": {"nested": true}}`), &profile)
	assert.Error(t, err)
}

func TestUserProfile_MarshalJSON_EchoesProviderDocument(t *testing.T) {
	input := `{"id":7,"roles":["subscriber"],"newsletter":true}`

	var profile UserProfile
	require.NoError(t, json.Unmarshal([]byte(input), &profile))

	out, err := json.Marshal(profile)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestUserProfile_MarshalJSON_WithoutProviderDocument(t *testing.T) {
	out, err := json.Marshal(UserProfile{ID: "3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"3","roles":[]}`, string(out))
}

func TestUserProfile_HasRole(t *testing.T) {
	user := &UserProfile{ID: "1", Roles: []string{"subscriber", "staff"}}

	assert.True(t, user.HasRole("subscriber"))
	assert.True(t, user.HasRole("staff"))
	assert.False(t, user.HasRole("admin"))
	assert.False(t, user.HasRole(""))

	var nilUser *UserProfile
	assert.False(t, nilUser.HasRole("subscriber"))
}
