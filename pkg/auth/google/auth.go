package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// ProviderID is the identity-provider name for Google federated sign-in.
const ProviderID = "google.com"

// Client drives the Google authorization-code flow that backs "Sign up with
// Google". The consent page plays the role of the sign-in popup; Exchange
// turns the callback code into a validated Google ID token.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	validate   func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewClient returns a client for the given OAuth credentials
func NewClient(clientID, clientSecret, redirectURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		httpClient: httpClient,
		validate:   idtoken.Validate,
	}
}

// AuthCodeURL returns the consent page URL carrying the given state
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for a Google ID token and checks that
// the token was issued for this client.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	if c.config.ClientID == "" {
		return "", errors.New("GOOGLE_CLIENT_ID not set")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return "", errors.New("token response has no id_token")
	}

	if _, err := c.validate(ctx, rawIDToken, c.config.ClientID); err != nil {
		return "", fmt.Errorf("validate id token: %w", err)
	}

	return rawIDToken, nil
}
