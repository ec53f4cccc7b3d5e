package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

type policyFile struct {
	Resources []*domain.ResourceAccessPolicy `yaml:"resources"`
}

// LoadPolicyFile reads policies from a YAML file of the form
//
//	resources:
//	  - id: "42"
//	    path: /locked-article
//	    unlocked: false
//	    required_role: subscriber
func LoadPolicyFile(filename string) ([]*domain.ResourceAccessPolicy, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", filename, err)
	}
	policies, err := DecodePolicies(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", filename, err)
	}
	return policies, nil
}

// DecodePolicies decodes a policy document. Unknown fields are rejected.
func DecodePolicies(data []byte) ([]*domain.ResourceAccessPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc policyFile
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}
	return doc.Resources, nil
}

// EncodePolicies writes policies in the policy file format.
func EncodePolicies(w io.Writer, policies []*domain.ResourceAccessPolicy) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(policyFile{Resources: policies}); err != nil {
		return fmt.Errorf("failed to encode policies: %w", err)
	}
	return enc.Close()
}

// NewFilePolicyRepository loads filename into a memory repository.
func NewFilePolicyRepository(filename string) (PolicyRepository, error) {
	policies, err := LoadPolicyFile(filename)
	if err != nil {
		return nil, err
	}
	return NewMemoryPolicyRepository(policies...)
}

// ReloadPolicyFile replaces the contents of repo with filename. On error repo
// is left untouched.
func ReloadPolicyFile(ctx context.Context, repo PolicyRepository, filename string) (int, error) {
	policies, err := LoadPolicyFile(filename)
	if err != nil {
		return 0, err
	}
	if err := repo.Replace(ctx, policies); err != nil {
		return 0, err
	}
	return len(policies), nil
}
