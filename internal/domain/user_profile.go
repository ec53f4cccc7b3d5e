package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// UserProfile is the current user as reported by the OAuth provider.
// It lives for a request (or a short cache window) and is never persisted.
type UserProfile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email,omitempty"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Roles     []string `json:"roles"`

	raw json.RawMessage
}

// HasRole reports whether the user holds role. The empty role is never held.
func (u *UserProfile) HasRole(role string) bool {
	if u == nil || role == "" {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// UnmarshalJSON decodes a provider profile, accepting numeric or string ids,
// and keeps the original document for MarshalJSON.
func (u *UserProfile) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID        interface{} `json:"id"`
		Email     string      `json:"email"`
		Username  string      `json:"username"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
		Roles     []string    `json:"roles"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	switch id := aux.ID.(type) {
	case nil:
		u.ID = ""
	case string:
		u.ID = id
	case json.Number:
		u.ID = id.String()
	default:
		return fmt.Errorf("unsupported user id type %T", aux.ID)
	}

	u.Email = aux.Email
	u.Username = aux.Username
	u.FirstName = aux.FirstName
	u.LastName = aux.LastName
	u.Roles = aux.Roles
	if u.Roles == nil {
		u.Roles = []string{}
	}
	u.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON echoes the provider's document when one was decoded, so fields
// the gateway does not model still reach the client.
func (u UserProfile) MarshalJSON() ([]byte, error) {
	if len(u.raw) > 0 {
		return u.raw, nil
	}
	type plain UserProfile
	p := plain(u)
	if p.Roles == nil {
		p.Roles = []string{}
	}
	return json.Marshal(p)
}
