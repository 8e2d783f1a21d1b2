package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
)

const (
	// ProviderPathValue is the path wildcard ServeHTTP reads the provider
	// id from, as in "GET /auth/{provider}/callback".
	ProviderPathValue = "provider"

	defaultClaimTTL = 10 * time.Minute
)

// CallbackHandler completes the authorization a redirect belongs to.
// *providers.OAuth2Module implements it.
type CallbackHandler interface {
	ID() string
	HandleCallback(ctx context.Context, cb providers.Callback) error
}

type CallbackRequest struct {
	ProviderID string
	Callback   providers.Callback
	Headers    http.Header
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Verifier interface {
	Verify(ctx context.Context, req CallbackRequest) error
}

type VerifierFunc func(ctx context.Context, req CallbackRequest) error

func (f VerifierFunc) Verify(ctx context.Context, req CallbackRequest) error {
	return f(ctx, req)
}

// ClaimStore guards a callback key against concurrent or repeated delivery.
type ClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type Dispatcher struct {
	Verifier Verifier
	Store    ClaimStore
	ClaimTTL time.Duration
	Logger   core.Logger

	mu       sync.RWMutex
	handlers map[string]CallbackHandler
}

func NewDispatcher(verifier Verifier, store ClaimStore) *Dispatcher {
	return &Dispatcher{
		Verifier: verifier,
		Store:    store,
		ClaimTTL: defaultClaimTTL,
		Logger:   glog.Nop(),
		handlers: map[string]CallbackHandler{},
	}
}

func (d *Dispatcher) Register(handler CallbackHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	providerID := normalizeProviderID(handler.ID())
	if providerID == "" {
		return inboundBadInput("inbound: handler provider id is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]CallbackHandler{}
	}
	if _, exists := d.handlers[providerID]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for provider %q", providerID),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.SocialErrorBadInput,
			map[string]any{"provider_id": providerID},
		)
	}
	d.handlers[providerID] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req CallbackRequest) (Result, error) {
	if d == nil {
		return Result{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req.ProviderID = normalizeProviderID(req.ProviderID)
	req.Callback.State = strings.TrimSpace(req.Callback.State)
	if req.ProviderID == "" {
		return Result{}, inboundBadInput("inbound: provider id is required", nil)
	}
	metadata := map[string]any{"provider_id": req.ProviderID}
	if req.Callback.State == "" {
		return Result{}, inboundError(
			"inbound: callback state is required",
			goerrors.CategoryAuth,
			http.StatusBadRequest,
			core.SocialErrorOAuthStateInvalid,
			metadata,
		)
	}

	handler := d.handlerFor(req.ProviderID)
	if handler == nil {
		return Result{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for provider %q", req.ProviderID),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.SocialErrorProviderNotFound,
			metadata,
		)
	}

	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return Result{
				StatusCode: http.StatusUnauthorized,
				Metadata:   map[string]any{"provider_id": req.ProviderID, "rejected": true},
			}, inboundWrapError(
				err,
				goerrors.CategoryAuth,
				"inbound: callback verification failed",
				http.StatusUnauthorized,
				core.SocialErrorOAuthStateInvalid,
				metadata,
			)
		}
	}

	claimID := ""
	if d.Store != nil {
		var accepted bool
		var err error
		claimID, accepted, err = d.Store.Claim(ctx, req.ProviderID+":"+req.Callback.State, d.claimTTL())
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: callback claim failed",
				http.StatusInternalServerError,
				core.SocialErrorInternal,
				metadata,
			)
		}
		if !accepted {
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   map[string]any{"provider_id": req.ProviderID, "deduped": true},
			}, nil
		}
	}

	if err := handler.HandleCallback(ctx, req.Callback); err != nil {
		d.logger().Warn("callback handling failed", "provider_id", req.ProviderID, "error", err)
		callbackErr := handlerError(err, metadata)
		if d.Store != nil && claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err); failErr != nil {
				return Result{}, errors.Join(
					callbackErr,
					inboundWrapError(
						failErr,
						goerrors.CategoryOperation,
						"inbound: release callback claim",
						http.StatusInternalServerError,
						core.SocialErrorInternal,
						map[string]any{"provider_id": req.ProviderID, "claim_id": claimID},
					),
				)
			}
		}
		return Result{}, callbackErr
	}
	if d.Store != nil && claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: complete callback claim",
				http.StatusInternalServerError,
				core.SocialErrorInternal,
				map[string]any{"provider_id": req.ProviderID, "claim_id": claimID},
			)
		}
	}
	return Result{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

// ServeHTTP dispatches a redirect. The provider id comes from the
// ProviderPathValue wildcard, or from a "provider" form value when the
// handler is mounted without one.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}
	providerID := r.PathValue(ProviderPathValue)
	if providerID == "" {
		providerID = r.Form.Get(ProviderPathValue)
	}
	_, err := d.Dispatch(r.Context(), CallbackRequest{
		ProviderID: providerID,
		Callback:   providers.CallbackFromQuery(r.Form),
		Headers:    r.Header,
	})
	if err != nil {
		status := http.StatusInternalServerError
		message := "callback failed"
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			if rich.Code != 0 {
				status = rich.Code
			}
			message = rich.Message
		}
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("authentication complete, you can close this window\n"))
}

func (d *Dispatcher) Providers() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (d *Dispatcher) claimTTL() time.Duration {
	if d != nil && d.ClaimTTL > 0 {
		return d.ClaimTTL
	}
	return defaultClaimTTL
}

func (d *Dispatcher) logger() core.Logger {
	if d == nil || d.Logger == nil {
		return glog.Nop()
	}
	return d.Logger
}

func (d *Dispatcher) handlerFor(providerID string) CallbackHandler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeProviderID(providerID)]
}

func normalizeProviderID(id string) string {
	return strings.TrimSpace(strings.ToLower(id))
}

var _ CallbackHandler = (*providers.OAuth2Module)(nil)
