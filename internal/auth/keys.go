// Package auth holds the token lifecycle primitives: memoized auth configs and
// login requests, the process-wide client registry, and silent acquisition.
package auth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

var (
	// ErrNoAccount means the client has no cached session for the login hint.
	ErrNoAccount = errors.New("no cached account for login hint")
	// ErrEmptyToken means the auth library answered without an access token.
	ErrEmptyToken = errors.New("received empty access token")
)

// ClientKey identifies an application registration (client id).
type ClientKey string

// RequestKey identifies a login request template.
type RequestKey struct {
	Client ClientKey
	Scope  string
}

func (k RequestKey) String() string {
	return string(k.Client) + " " + k.Scope
}

// Client is an authentication library client bound to one client id.
type Client interface {
	// AcquireTokenSilent obtains a token without user interaction.
	AcquireTokenSilent(ctx context.Context, req *LoginRequest) (*oauth2.Token, error)
}

// AccountChecker is implemented by clients that keep user sessions.
type AccountChecker interface {
	HasAccount(ctx context.Context, loginHint string) (bool, error)
}

// InteractiveClient is implemented by clients that can establish a user
// session, after which silent acquisition succeeds.
type InteractiveClient interface {
	LoginWithDeviceCode(ctx context.Context, scopes []string, prompt func(message string)) (*oauth2.Token, error)
}
