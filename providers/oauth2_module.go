package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-socialengine/core"
	"golang.org/x/oauth2"
)

const (
	defaultHTTPTimeout       = 30 * time.Second
	maxProfileResponseBytes  = 1 << 20 // 1 MiB
	metadataLoginType        = "login_type"
	loginTypeLoggedIn        = "logined"
	loginTypeCanceled        = "canceled"
	missingAuthorizationCode = "missing_code"
)

// DefaultCancelCodes are the OAuth error codes treated as the user
// backing out of the consent screen.
var DefaultCancelCodes = []string{"access_denied", "user_cancelled_login", "user_cancelled_authorize"}

// ProfileEnricher may add claims to the fetched profile payload.
type ProfileEnricher func(ctx context.Context, token *oauth2.Token, payload map[string]any) error

type OAuth2ModuleConfig struct {
	ID           string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint

	// Scopes maps each supported scope to the vendor permission strings it
	// requests.
	Scopes          map[core.Scope][]string
	SupportedFields core.FieldSet
	FieldMapping    map[core.FieldFlag]core.FieldPath

	ProfileURL        string
	ProfileURLBuilder func(cfg core.ProviderConfig) string
	ProfileHeaders    map[string]string
	EnrichProfile     ProfileEnricher

	UsePKCE         bool
	AuthCodeOptions []oauth2.AuthCodeOption
	RevokeURL       string
	CancelCodes     []string

	StateStore core.OAuthStateStore
	StateTTL   time.Duration
	HTTPClient *http.Client
	Logger     core.Logger
}

type pendingAuthorization struct {
	state    string
	reporter core.AttemptReporter
	config   core.ProviderConfig
}

// Callback carries the query parameters a provider sends back to the
// redirect URL.
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackFromQuery reads a Callback from redirect query parameters.
func CallbackFromQuery(values url.Values) Callback {
	return Callback{
		State:            strings.TrimSpace(values.Get("state")),
		Code:             strings.TrimSpace(values.Get("code")),
		Error:            strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
}

// OAuth2Module drives an authorization code flow for one provider. The
// orchestrator calls Authorize to obtain the consent URL; the host
// application routes the provider redirect to HandleCallback.
type OAuth2Module struct {
	cfg         OAuth2ModuleConfig
	httpClient  *http.Client
	states      core.OAuthStateStore
	cancelCodes map[string]struct{}
	logger      core.Logger

	mu         sync.Mutex
	configured *core.ProviderConfig
	pending    map[string]pendingAuthorization
	token      *oauth2.Token
}

func NewOAuth2Module(cfg OAuth2ModuleConfig) (*OAuth2Module, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.Endpoint.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.Endpoint.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.ID)
	}
	if len(cfg.Scopes) == 0 {
		return nil, fmt.Errorf("providers: scope mapping is required for provider %q", cfg.ID)
	}
	for scope := range cfg.Scopes {
		if !scope.IsValid() {
			return nil, fmt.Errorf("providers: invalid scope %q for provider %q", scope, cfg.ID)
		}
	}
	if cfg.SupportedFields.IsEmpty() {
		return nil, fmt.Errorf("providers: supported fields are required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.ProfileURL) == "" && cfg.ProfileURLBuilder == nil {
		return nil, fmt.Errorf("providers: profile url is required for provider %q", cfg.ID)
	}
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURL = strings.TrimSpace(cfg.RedirectURL)
	cfg.RevokeURL = strings.TrimSpace(cfg.RevokeURL)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	states := cfg.StateStore
	if states == nil {
		states = core.NewMemoryOAuthStateStore(cfg.StateTTL)
	}
	codes := cfg.CancelCodes
	if len(codes) == 0 {
		codes = DefaultCancelCodes
	}
	cancelCodes := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
			cancelCodes[code] = struct{}{}
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}

	return &OAuth2Module{
		cfg:         cfg,
		httpClient:  httpClient,
		states:      states,
		cancelCodes: cancelCodes,
		logger:      logger,
		pending:     map[string]pendingAuthorization{},
	}, nil
}

func (m *OAuth2Module) ID() string {
	if m == nil {
		return ""
	}
	return m.cfg.ID
}

func (m *OAuth2Module) SupportedScopes() []core.Scope {
	if m == nil {
		return []core.Scope{}
	}
	scopes := make([]core.Scope, 0, len(m.cfg.Scopes))
	for scope := range m.cfg.Scopes {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes
}

func (m *OAuth2Module) SupportedFields() core.FieldSet {
	if m == nil {
		return core.FieldSet{}
	}
	return m.cfg.SupportedFields
}

func (m *OAuth2Module) FieldMapping() map[core.FieldFlag]core.FieldPath {
	if m == nil || len(m.cfg.FieldMapping) == 0 {
		return nil
	}
	out := make(map[core.FieldFlag]core.FieldPath, len(m.cfg.FieldMapping))
	for flag, path := range m.cfg.FieldMapping {
		out[flag] = path
	}
	return out
}

func (m *OAuth2Module) Configure(_ context.Context, cfg core.ProviderConfig) error {
	if m == nil {
		return fmt.Errorf("providers: oauth2 module is nil")
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, ok := m.cfg.Scopes[cfg.Scope]; !ok {
		return fmt.Errorf("providers: scope %q is not supported by provider %q", cfg.Scope, m.cfg.ID)
	}
	if unsupported := cfg.RequestedFields.Difference(m.cfg.SupportedFields); !unsupported.IsEmpty() {
		return fmt.Errorf("providers: field %s not supported by provider %q", unsupported, m.cfg.ID)
	}
	cloned := cfg.Clone()
	m.mu.Lock()
	m.configured = &cloned
	m.mu.Unlock()
	return nil
}

// Configured returns the last configuration accepted by Configure.
func (m *OAuth2Module) Configured() (core.ProviderConfig, bool) {
	if m == nil {
		return core.ProviderConfig{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configured == nil {
		return core.ProviderConfig{}, false
	}
	return m.configured.Clone(), true
}

func (m *OAuth2Module) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.Handoff, error) {
	if m == nil {
		return core.Handoff{}, fmt.Errorf("providers: oauth2 module is nil")
	}
	attemptID := strings.TrimSpace(req.AttemptID)
	if attemptID == "" {
		return core.Handoff{}, fmt.Errorf("providers: attempt id is required")
	}
	if req.Reporter == nil {
		return core.Handoff{}, fmt.Errorf("providers: attempt reporter is required")
	}
	cfg := req.Config.Normalize()

	state, err := core.GenerateOAuthState()
	if err != nil {
		return core.Handoff{}, err
	}
	options := append([]oauth2.AuthCodeOption(nil), m.cfg.AuthCodeOptions...)
	verifier := ""
	if m.cfg.UsePKCE {
		verifier = oauth2.GenerateVerifier()
		options = append(options, oauth2.S256ChallengeOption(verifier))
	}

	if err := m.states.Save(ctx, core.OAuthStateRecord{
		State:        state,
		ProviderID:   m.cfg.ID,
		AttemptID:    attemptID,
		RedirectURI:  m.cfg.RedirectURL,
		CodeVerifier: verifier,
		Metadata:     req.Metadata,
	}); err != nil {
		return core.Handoff{}, err
	}

	m.mu.Lock()
	m.pending[attemptID] = pendingAuthorization{state: state, reporter: req.Reporter, config: cfg.Clone()}
	m.mu.Unlock()

	authURL := m.oauthConfig(cfg.Scope).AuthCodeURL(state, options...)
	m.logger.Debug("authorization started", "provider_id", m.cfg.ID, "attempt_id", attemptID, "scope", string(cfg.Scope))

	return core.Handoff{
		URL:   authURL,
		State: state,
		Metadata: map[string]any{
			"provider_id": m.cfg.ID,
			"scope":       string(cfg.Scope),
			"scopes":      m.vendorScopes(cfg.Scope),
		},
	}, nil
}

// HandleCallback completes the pending attempt bound to cb.State. Errors
// returned here describe the callback itself; provider failures are
// reported to the attempt and also returned.
func (m *OAuth2Module) HandleCallback(ctx context.Context, cb Callback) error {
	if m == nil {
		return fmt.Errorf("providers: oauth2 module is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record, err := m.states.Consume(ctx, cb.State)
	if err != nil {
		return fmt.Errorf("providers: invalid oauth state: %w", err)
	}

	m.mu.Lock()
	pending, ok := m.pending[record.AttemptID]
	if ok {
		delete(m.pending, record.AttemptID)
	}
	m.mu.Unlock()
	if !ok || pending.state != record.State {
		return fmt.Errorf("%w: %s", core.ErrAttemptNotPending, record.AttemptID)
	}

	if code := strings.ToLower(strings.TrimSpace(cb.Error)); code != "" {
		if _, canceled := m.cancelCodes[code]; canceled {
			return m.report(ctx, pending.reporter, core.Signal{
				Kind:     core.SignalCancel,
				Metadata: map[string]any{metadataLoginType: loginTypeCanceled},
			})
		}
		var cause error
		if description := strings.TrimSpace(cb.ErrorDescription); description != "" {
			cause = errors.New(description)
		}
		return m.fail(ctx, pending.reporter, core.NewProviderError(m.cfg.ID, code, cause))
	}
	if strings.TrimSpace(cb.Code) == "" {
		return m.fail(ctx, pending.reporter, core.NewProviderError(m.cfg.ID, missingAuthorizationCode, nil))
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	var options []oauth2.AuthCodeOption
	if record.CodeVerifier != "" {
		options = append(options, oauth2.VerifierOption(record.CodeVerifier))
	}
	token, err := m.oauthConfig(pending.config.Scope).Exchange(exchangeCtx, strings.TrimSpace(cb.Code), options...)
	if err != nil {
		return m.fail(ctx, pending.reporter, m.classifyExchangeError(err))
	}

	payload, err := m.fetchProfile(exchangeCtx, token, pending.config)
	if err != nil {
		return m.fail(ctx, pending.reporter, err)
	}
	if m.cfg.EnrichProfile != nil {
		if err := m.cfg.EnrichProfile(ctx, token, payload); err != nil {
			return m.fail(ctx, pending.reporter, err)
		}
	}

	m.mu.Lock()
	previous := m.token
	m.token = token
	m.mu.Unlock()

	err = m.report(ctx, pending.reporter, core.Signal{
		Kind:     core.SignalSuccess,
		Payload:  payload,
		Metadata: map[string]any{metadataLoginType: loginTypeLoggedIn},
	})
	if errors.Is(err, core.ErrAttemptNotPending) {
		// The attempt ended first; keep the session it left behind.
		m.mu.Lock()
		if m.token == token {
			m.token = previous
		}
		m.mu.Unlock()
	}
	return err
}

// Cancel drops the pending authorization for attemptID. A late callback
// for the same state is rejected afterwards.
func (m *OAuth2Module) Cancel(ctx context.Context, attemptID string) error {
	if m == nil {
		return fmt.Errorf("providers: oauth2 module is nil")
	}
	attemptID = strings.TrimSpace(attemptID)
	m.mu.Lock()
	pending, ok := m.pending[attemptID]
	if ok {
		delete(m.pending, attemptID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := m.states.Consume(ctx, pending.state); err != nil {
		m.logger.Debug("discard oauth state on cancel", "provider_id", m.cfg.ID, "attempt_id", attemptID, "error", err)
	}
	return nil
}

// Logout forgets the held token, revoking it first when a revoke URL is
// configured.
func (m *OAuth2Module) Logout(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("providers: oauth2 module is nil")
	}
	m.mu.Lock()
	token := m.token
	m.token = nil
	m.mu.Unlock()
	if token == nil || m.cfg.RevokeURL == "" {
		return nil
	}
	return m.revoke(ctx, token)
}

// Token returns the token obtained by the last successful login.
func (m *OAuth2Module) Token() (*oauth2.Token, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, false
	}
	copied := *m.token
	return &copied, true
}

// PendingCount reports how many authorizations await a callback.
func (m *OAuth2Module) PendingCount() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CallbackHandler returns an http.Handler for the provider redirect URL.
func (m *OAuth2Module) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid callback", http.StatusBadRequest)
			return
		}
		cb := CallbackFromQuery(r.Form)
		if err := m.HandleCallback(r.Context(), cb); err != nil {
			mapped := core.MapError(err)
			m.logger.Warn("oauth callback failed", "provider_id", m.ID(), "error", err, "text_code", mapped.TextCode)
			http.Error(w, mapped.Message, mapped.Code)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "authentication complete, you can close this window\n")
	})
}

func (m *OAuth2Module) oauthConfig(scope core.Scope) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		Endpoint:     m.cfg.Endpoint,
		RedirectURL:  m.cfg.RedirectURL,
		Scopes:       m.vendorScopes(scope),
	}
}

func (m *OAuth2Module) vendorScopes(scope core.Scope) []string {
	scopes := m.cfg.Scopes[scope]
	if len(scopes) == 0 {
		scopes = m.cfg.Scopes[core.ScopeDefault]
	}
	return append([]string(nil), scopes...)
}

func (m *OAuth2Module) profileURL(cfg core.ProviderConfig) string {
	if m.cfg.ProfileURLBuilder != nil {
		return m.cfg.ProfileURLBuilder(cfg)
	}
	return m.cfg.ProfileURL
}

func (m *OAuth2Module) fetchProfile(ctx context.Context, token *oauth2.Token, cfg core.ProviderConfig) (map[string]any, error) {
	endpoint := strings.TrimSpace(m.profileURL(cfg))
	if endpoint == "" {
		return nil, fmt.Errorf("providers: profile url is required for provider %q", m.cfg.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range m.cfg.ProfileHeaders {
		req.Header.Set(key, value)
	}

	client := m.oauthConfig(cfg.Scope).Client(ctx, token)
	response, err := client.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(m.cfg.ID, fmt.Errorf("profile request failed: %w", err))
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxProfileResponseBytes+1))
	if err != nil {
		return nil, core.NewNetworkError(m.cfg.ID, fmt.Errorf("read profile response: %w", err))
	}
	if len(body) > maxProfileResponseBytes {
		return nil, core.NewProviderError(m.cfg.ID, "profile_too_large", fmt.Errorf("profile response exceeds %d bytes", maxProfileResponseBytes))
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, core.NewProviderError(
			m.cfg.ID,
			fmt.Sprintf("profile_http_%d", response.StatusCode),
			errors.New(strings.TrimSpace(string(body))),
		)
	}

	payload := map[string]any{}
	if len(strings.TrimSpace(string(body))) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, core.NewProviderError(m.cfg.ID, "profile_decode", err)
	}
	return payload, nil
}

func (m *OAuth2Module) revoke(ctx context.Context, token *oauth2.Token) error {
	form := url.Values{}
	form.Set("token", token.AccessToken)
	form.Set("client_id", m.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.cfg.ClientSecret != "" {
		req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	}
	response, err := m.httpClient.Do(req)
	if err != nil {
		return core.NewNetworkError(m.cfg.ID, fmt.Errorf("revoke request failed: %w", err))
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxProfileResponseBytes))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.NewProviderError(m.cfg.ID, fmt.Sprintf("revoke_http_%d", response.StatusCode), nil)
	}
	return nil
}

func (m *OAuth2Module) classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := strings.TrimSpace(retrieveErr.ErrorCode)
		if code == "" && retrieveErr.Response != nil {
			code = fmt.Sprintf("token_http_%d", retrieveErr.Response.StatusCode)
		}
		return core.NewProviderError(m.cfg.ID, code, err)
	}
	if core.ErrorKindOf(err) == core.ErrorKindNetwork {
		return core.NewNetworkError(m.cfg.ID, err)
	}
	return core.NewProviderError(m.cfg.ID, "token_exchange", err)
}

func (m *OAuth2Module) fail(ctx context.Context, reporter core.AttemptReporter, err error) error {
	m.logger.Warn("authorization failed", "provider_id", m.cfg.ID, "attempt_id", reporter.AttemptID(), "error", err)
	if reportErr := reporter.Fail(ctx, err); reportErr != nil {
		return errors.Join(err, reportErr)
	}
	return err
}

func (m *OAuth2Module) report(ctx context.Context, reporter core.AttemptReporter, signal core.Signal) error {
	if signalReporter, ok := reporter.(core.SignalReporter); ok {
		return signalReporter.Signal(ctx, signal)
	}
	switch signal.Kind {
	case core.SignalCancel:
		return reporter.Cancel(ctx)
	default:
		return reporter.Succeed(ctx, signal.Payload)
	}
}

var (
	_ core.ProviderModule = (*OAuth2Module)(nil)
	_ core.FieldMapper    = (*OAuth2Module)(nil)
)
