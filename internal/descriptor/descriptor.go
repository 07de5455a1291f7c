// Package descriptor models the ordered list of downstream API endpoints a data
// source calls, and the rules for deriving the OAuth2 scope each one needs.
package descriptor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultScopeSuffix is appended to an endpoint origin when no explicit scope is configured.
const DefaultScopeSuffix = "/user_impersonation"

// Method is the HTTP verb used for a descriptor.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodOptions Method = "OPTIONS"
	MethodPatch   Method = "PATCH"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
)

var validMethods = map[Method]bool{
	MethodGet:     true,
	MethodPost:    true,
	MethodOptions: true,
	MethodPatch:   true,
	MethodPut:     true,
	MethodDelete:  true,
}

var (
	ErrEmptyURL      = errors.New("descriptor url is required")
	ErrInvalidMethod = errors.New("invalid http method")
	ErrNoOrigin      = errors.New("url has no scheme and host to derive a scope from")
)

// Resource describes one downstream endpoint.
type Resource struct {
	URL           string `mapstructure:"url" json:"url" yaml:"url"`
	Method        Method `mapstructure:"method" json:"method,omitempty" yaml:"method,omitempty"`
	ClientID      string `mapstructure:"clientId" json:"clientId,omitempty" yaml:"clientId,omitempty"`
	ResourceScope string `mapstructure:"resourceScope" json:"resourceScope,omitempty" yaml:"resourceScope,omitempty"`
}

// Normalize upper-cases the method, defaulting it to GET, and trims whitespace.
func (r Resource) Normalize() Resource {
	r.URL = strings.TrimSpace(r.URL)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.ResourceScope = strings.TrimSpace(r.ResourceScope)
	r.Method = Method(strings.ToUpper(strings.TrimSpace(string(r.Method))))
	if r.Method == "" {
		r.Method = MethodGet
	}
	return r
}

// Validate checks the descriptor invariants.
func (r Resource) Validate() error {
	if r.URL == "" {
		return ErrEmptyURL
	}
	if !validMethods[r.Method] {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, r.Method)
	}
	if r.ResourceScope == "" {
		if _, err := DefaultScope(r.URL); err != nil {
			return err
		}
	}
	return nil
}

// Scope returns the configured resource scope or, when empty, the scope
// derived from the URL origin.
func (r Resource) Scope() (string, error) {
	if r.ResourceScope != "" {
		return r.ResourceScope, nil
	}
	return DefaultScope(r.URL)
}

// DefaultScope builds scheme://host/user_impersonation from an endpoint URL.
func DefaultScope(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoOrigin, rawURL)
	}
	return u.Scheme + "://" + u.Host + DefaultScopeSuffix, nil
}

// Prepare normalizes and validates a descriptor list, returning a fresh slice.
// An empty list is valid.
func Prepare(list []Resource) ([]Resource, error) {
	out := make([]Resource, 0, len(list))
	for i, r := range list {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
