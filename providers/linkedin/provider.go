package linkedin

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
	"golang.org/x/oauth2"
)

const (
	ProviderID = "linkedin"
	AuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	TokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	ProfileURL = "https://api.linkedin.com/v1/people/~"
)

// selectors maps field flags to v1 people field selectors.
var selectors = map[core.FieldFlag]string{
	core.FieldID:         "id",
	core.FieldFirstName:  "first-name",
	core.FieldLastName:   "last-name",
	core.FieldName:       "formatted-name",
	core.FieldEmail:      "email-address",
	core.FieldHeadline:   "headline",
	core.FieldPictureURL: "picture-url",
	core.FieldProfileURL: "public-profile-url",
	core.FieldLocation:   "location",
	core.FieldIndustry:   "industry",
	core.FieldSummary:    "summary",
}

var fieldMapping = map[core.FieldFlag]core.FieldPath{
	core.FieldID:         "id",
	core.FieldFirstName:  "firstName",
	core.FieldLastName:   "lastName",
	core.FieldName:       "formattedName",
	core.FieldEmail:      "emailAddress",
	core.FieldHeadline:   "headline",
	core.FieldPictureURL: "pictureUrl",
	core.FieldProfileURL: "publicProfileUrl",
	core.FieldLocation:   "location.name",
	core.FieldIndustry:   "industry",
	core.FieldSummary:    "summary",
}

var scopes = map[core.Scope][]string{
	core.ScopeDefault:     {"r_basicprofile"},
	core.ScopeFullProfile: {"r_basicprofile", "r_fullprofile"},
	core.ScopeEmail:       {"r_basicprofile", "r_emailaddress"},
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	StateStore   core.OAuthStateStore
	StateTTL     time.Duration
	HTTPClient   *http.Client
	Logger       core.Logger
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		ProfileURL: ProfileURL,
	}
}

// SupportedFields lists every field flag LinkedIn can resolve.
func SupportedFields() core.FieldSet {
	flags := make([]core.FieldFlag, 0, len(selectors))
	for flag := range selectors {
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
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = defaults.ProfileURL
	}
	supported := SupportedFields()
	profileURL := strings.TrimRight(strings.TrimSpace(cfg.ProfileURL), "/")

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
		SupportedFields: supported,
		FieldMapping:    fieldMapping,
		ProfileURLBuilder: func(providerCfg core.ProviderConfig) string {
			return BuildProfileURL(profileURL, providerCfg.RequestedFields, supported)
		},
		ProfileHeaders: map[string]string{"x-li-format": "json"},
		StateStore:     cfg.StateStore,
		StateTTL:       cfg.StateTTL,
		HTTPClient:     cfg.HTTPClient,
		Logger:         cfg.Logger,
	})
}

// BuildProfileURL appends the field selector for requested to base. An
// empty request selects every supported field.
func BuildProfileURL(base string, requested core.FieldSet, supported core.FieldSet) string {
	if requested.IsEmpty() {
		requested = supported
	}
	parts := make([]string, 0, requested.Len())
	for _, flag := range requested.Flags() {
		if selector, ok := selectors[flag]; ok {
			parts = append(parts, selector)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, selectors[core.FieldID])
	}
	query := url.Values{}
	query.Set("format", "json")
	return base + ":(" + strings.Join(parts, ",") + ")?" + query.Encode()
}
