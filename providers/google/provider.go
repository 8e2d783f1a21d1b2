package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

const (
	ProviderID  = "google"
	Issuer      = "https://accounts.google.com"
	UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	ScopeOpenID  = oidc.ScopeOpenID
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

var fieldMapping = map[core.FieldFlag]core.FieldPath{
	core.FieldID:         "sub",
	core.FieldName:       "name",
	core.FieldFirstName:  "given_name",
	core.FieldLastName:   "family_name",
	core.FieldEmail:      "email",
	core.FieldPictureURL: "picture",
	core.FieldLocale:     "locale",
}

var scopes = map[core.Scope][]string{
	core.ScopeDefault:     {ScopeOpenID, ScopeProfile},
	core.ScopeFullProfile: {ScopeOpenID, ScopeProfile},
	core.ScopeEmail:       {ScopeOpenID, ScopeProfile, ScopeEmail},
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	// Verifier, when set, checks the id_token returned with the access
	// token and merges its claims into the profile payload.
	Verifier   *oidc.IDTokenVerifier
	StateStore core.OAuthStateStore
	StateTTL   time.Duration
	HTTPClient *http.Client
	Logger     core.Logger
}

func DefaultConfig() Config {
	return Config{
		AuthURL:     googleoauth.Endpoint.AuthURL,
		TokenURL:    googleoauth.Endpoint.TokenURL,
		UserInfoURL: UserInfoURL,
	}
}

func SupportedFields() core.FieldSet {
	flags := make([]core.FieldFlag, 0, len(fieldMapping))
	for flag := range fieldMapping {
		flags = append(flags, flag)
	}
	return core.NewFieldSet(flags...)
}

// NewIDTokenVerifier discovers issuer and returns a verifier bound to
// clientID.
func NewIDTokenVerifier(ctx context.Context, issuer string, clientID string) (*oidc.IDTokenVerifier, error) {
	if strings.TrimSpace(issuer) == "" {
		issuer = Issuer
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: oidc discovery failed: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

func New(cfg Config) (*providers.OAuth2Module, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaults.UserInfoURL
	}

	var enrich providers.ProfileEnricher
	if cfg.Verifier != nil {
		enrich = idTokenEnricher(cfg.Verifier)
	}

	return providers.NewOAuth2Module(providers.OAuth2ModuleConfig{
		ID:           ProviderID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes:          scopes,
		SupportedFields: SupportedFields(),
		FieldMapping:    fieldMapping,
		ProfileURL:      cfg.UserInfoURL,
		EnrichProfile:   enrich,
		UsePKCE:         true,
		AuthCodeOptions: []oauth2.AuthCodeOption{oauth2.AccessTypeOnline},
		StateStore:      cfg.StateStore,
		StateTTL:        cfg.StateTTL,
		HTTPClient:      cfg.HTTPClient,
		Logger:          cfg.Logger,
	})
}

func idTokenEnricher(verifier *oidc.IDTokenVerifier) providers.ProfileEnricher {
	return func(ctx context.Context, token *oauth2.Token, payload map[string]any) error {
		rawIDToken, _ := token.Extra("id_token").(string)
		if strings.TrimSpace(rawIDToken) == "" {
			return core.NewProviderError(ProviderID, "missing_id_token", nil)
		}
		idToken, err := verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return core.NewProviderError(ProviderID, "invalid_id_token", err)
		}
		if sub, ok := payload["sub"].(string); ok && sub != "" && sub != idToken.Subject {
			return core.NewProviderError(ProviderID, "subject_mismatch", fmt.Errorf("userinfo subject %q does not match id token", sub))
		}
		claims := map[string]any{}
		if err := idToken.Claims(&claims); err != nil {
			return core.NewProviderError(ProviderID, "id_token_claims", err)
		}
		for key, value := range claims {
			if _, exists := payload[key]; !exists {
				payload[key] = value
			}
		}
		return nil
	}
}
