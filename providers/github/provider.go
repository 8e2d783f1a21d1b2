package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const (
	ProviderID = "github"
	APIBaseURL = "https://api.github.com"

	maxEmailsResponseBytes = 256 << 10
)

var fieldMapping = map[core.FieldFlag]core.FieldPath{
	core.FieldID:         "id",
	core.FieldUsername:   "login",
	core.FieldName:       "name",
	core.FieldEmail:      "email",
	core.FieldPictureURL: "avatar_url",
	core.FieldProfileURL: "html_url",
	core.FieldLocation:   "location",
	core.FieldSummary:    "bio",
}

var scopes = map[core.Scope][]string{
	core.ScopeDefault:     {"read:user"},
	core.ScopeFullProfile: {"read:user"},
	core.ScopeEmail:       {"read:user", "user:email"},
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	StateStore   core.OAuthStateStore
	StateTTL     time.Duration
	HTTPClient   *http.Client
	Logger       core.Logger
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    githuboauth.Endpoint.AuthURL,
		TokenURL:   githuboauth.Endpoint.TokenURL,
		APIBaseURL: APIBaseURL,
	}
}

func SupportedFields() core.FieldSet {
	flags := make([]core.FieldFlag, 0, len(fieldMapping))
	for flag := range fieldMapping {
		flags = append(flags, flag)
	}
	return core.NewFieldSet(flags...)
}

func New(cfg Config) (*providers.OAuth2Module, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
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
		ProfileURL:      apiBase + "/user",
		ProfileHeaders:  map[string]string{"Accept": "application/vnd.github+json"},
		EnrichProfile:   primaryEmailEnricher(apiBase, httpClient),
		StateStore:      cfg.StateStore,
		StateTTL:        cfg.StateTTL,
		HTTPClient:      httpClient,
		Logger:          cfg.Logger,
	})
}

type userEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// primaryEmailEnricher fills a missing public email from /user/emails. Users
// with a private email return null on /user.
func primaryEmailEnricher(apiBase string, httpClient *http.Client) providers.ProfileEnricher {
	return func(ctx context.Context, token *oauth2.Token, payload map[string]any) error {
		if email, _ := payload["email"].(string); strings.TrimSpace(email) != "" {
			return nil
		}
		clientCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		client := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(token))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/user/emails", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		response, err := client.Do(req)
		if err != nil {
			return core.NewNetworkError(ProviderID, fmt.Errorf("emails request failed: %w", err))
		}
		defer response.Body.Close()

		switch {
		case response.StatusCode == http.StatusNotFound, response.StatusCode == http.StatusForbidden:
			// The token lacks user:email; email stays absent.
			return nil
		case response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices:
			return core.NewProviderError(ProviderID, fmt.Sprintf("emails_http_%d", response.StatusCode), nil)
		}

		body, err := io.ReadAll(io.LimitReader(response.Body, maxEmailsResponseBytes))
		if err != nil {
			return core.NewNetworkError(ProviderID, err)
		}
		var emails []userEmail
		if err := json.Unmarshal(body, &emails); err != nil {
			return core.NewProviderError(ProviderID, "emails_decode", err)
		}
		for _, candidate := range emails {
			if candidate.Primary && candidate.Verified && strings.TrimSpace(candidate.Email) != "" {
				payload["email"] = candidate.Email
				return nil
			}
		}
		return nil
	}
}
