package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"golang.org/x/oauth2"
)

// PublicClient acquires delegated tokens through an MSAL public client.
type PublicClient struct {
	app      public.Client
	clientID ClientKey
}

// NewPublicClient builds an MSAL public client for cfg. Extra options (token
// cache, HTTP client) are passed through.
func NewPublicClient(cfg *AuthConfig, opts ...public.Option) (*PublicClient, error) {
	options := append([]public.Option{public.WithAuthority(cfg.Authority)}, opts...)

	app, err := public.New(string(cfg.ClientID), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create public client: %w", err)
	}

	return &PublicClient{app: app, clientID: cfg.ClientID}, nil
}

// AcquireTokenSilent returns a token for req from the cached session of the
// account matching req.LoginHint.
func (c *PublicClient) AcquireTokenSilent(ctx context.Context, req *LoginRequest) (*oauth2.Token, error) {
	account, err := c.account(ctx, req.LoginHint)
	if err != nil {
		return nil, err
	}

	result, err := c.app.AcquireTokenSilent(ctx, req.Scopes, public.WithSilentAccount(account))
	if err != nil {
		return nil, fmt.Errorf("silent acquisition failed: %w", err)
	}

	return &oauth2.Token{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		Expiry:      result.ExpiresOn,
	}, nil
}

// HasAccount reports whether a cached account matches loginHint.
func (c *PublicClient) HasAccount(ctx context.Context, loginHint string) (bool, error) {
	_, err := c.account(ctx, loginHint)
	if errors.Is(err, ErrNoAccount) {
		return false, nil
	}
	return err == nil, err
}

// LoginWithDeviceCode runs the device code flow. prompt receives the message
// telling the user where to enter the code.
func (c *PublicClient) LoginWithDeviceCode(ctx context.Context, scopes []string, prompt func(message string)) (*oauth2.Token, error) {
	dc, err := c.app.AcquireTokenByDeviceCode(ctx, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to start device code flow: %w", err)
	}

	prompt(dc.Result.Message)

	result, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code login failed: %w", err)
	}

	return &oauth2.Token{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		Expiry:      result.ExpiresOn,
	}, nil
}

func (c *PublicClient) account(ctx context.Context, loginHint string) (public.Account, error) {
	accounts, err := c.app.Accounts(ctx)
	if err != nil {
		return public.Account{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	return matchAccount(accounts, loginHint)
}

// matchAccount picks the account whose username equals the hint. With no hint
// a single cached account is used.
func matchAccount(accounts []public.Account, loginHint string) (public.Account, error) {
	if loginHint == "" {
		if len(accounts) == 1 {
			return accounts[0], nil
		}
		return public.Account{}, ErrNoAccount
	}
	for _, a := range accounts {
		if strings.EqualFold(a.PreferredUsername, loginHint) {
			return a, nil
		}
	}
	return public.Account{}, ErrNoAccount
}
