package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SocialErrorBadInput              = "SOCIAL_BAD_INPUT"
	SocialErrorProviderNotFound      = "SOCIAL_PROVIDER_NOT_FOUND"
	SocialErrorProviderNotConfigured = "SOCIAL_PROVIDER_NOT_CONFIGURED"
	SocialErrorAlreadyInProgress     = "SOCIAL_ALREADY_IN_PROGRESS"
	SocialErrorAttemptNotPending     = "SOCIAL_ATTEMPT_NOT_PENDING"
	SocialErrorAttemptNotFound       = "SOCIAL_ATTEMPT_NOT_FOUND"
	SocialErrorAttemptTimeout        = "SOCIAL_ATTEMPT_TIMEOUT"
	SocialErrorAttemptCanceled       = "SOCIAL_ATTEMPT_CANCELED"
	SocialErrorProvider              = "SOCIAL_PROVIDER_ERROR"
	SocialErrorNetwork               = "SOCIAL_NETWORK_ERROR"
	SocialErrorFieldUnsupported      = "SOCIAL_PROFILE_FIELD_UNSUPPORTED"
	SocialErrorOAuthStateInvalid     = "SOCIAL_OAUTH_STATE_INVALID"
	SocialErrorInternal              = "SOCIAL_INTERNAL_ERROR"
)

const statusClientClosedRequest = 499

var (
	ErrProviderNotFound      = errors.New("core: provider not found")
	ErrProviderNotConfigured = errors.New("core: provider not configured")
	ErrAlreadyInProgress     = errors.New("core: authentication already in progress")
	ErrAttemptNotPending     = errors.New("core: attempt is not pending")
	ErrAttemptTimeout        = errors.New("core: authentication attempt timed out")
	ErrAttemptCanceled       = errors.New("core: authentication attempt canceled")
	ErrOrchestratorClosed    = errors.New("core: orchestrator is closed")
	ErrAttemptRecordNotFound = errors.New("core: attempt record not found")
)

// ProviderError marks an opaque vendor failure.
type ProviderError struct {
	ProviderID string
	Code       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{"core: provider error"}
	if e.ProviderID != "" {
		parts = append(parts, e.ProviderID)
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	msg := strings.Join(parts, ": ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewProviderError(providerID string, code string, err error) *ProviderError {
	return &ProviderError{
		ProviderID: strings.TrimSpace(providerID),
		Code:       strings.TrimSpace(code),
		Err:        err,
	}
}

// NetworkError marks a transport failure talking to the provider.
type NetworkError struct {
	ProviderID string
	Err        error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	msg := "core: network error"
	if e.ProviderID != "" {
		msg += ": " + e.ProviderID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewNetworkError(providerID string, err error) *NetworkError {
	return &NetworkError{ProviderID: strings.TrimSpace(providerID), Err: err}
}

// ErrorKindOf classifies an error reported by a provider module. Anything
// that is not recognizably a timeout, cancellation or transport failure is
// treated as an opaque provider error.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var providerErr *ProviderError
	var networkErr *NetworkError
	switch {
	case errors.Is(err, ErrAlreadyInProgress):
		return ErrorKindAlreadyInProgress
	case errors.Is(err, ErrAttemptTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrAttemptCanceled), errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	case errors.As(err, &networkErr):
		return ErrorKindNetwork
	case errors.As(err, &providerErr):
		return ErrorKindProvider
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorKindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindNetwork
	}
	return ErrorKindProvider
}

func socialErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSocialErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrProviderNotFound):
		return wrapSocialError(err, goerrors.CategoryNotFound, SocialErrorProviderNotFound, http.StatusNotFound)
	case errors.Is(err, ErrProviderNotConfigured):
		return wrapSocialError(err, goerrors.CategoryBadInput, SocialErrorProviderNotConfigured, http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyInProgress):
		return wrapSocialError(err, goerrors.CategoryConflict, SocialErrorAlreadyInProgress, http.StatusConflict)
	case errors.Is(err, ErrAttemptNotPending):
		return wrapSocialError(err, goerrors.CategoryConflict, SocialErrorAttemptNotPending, http.StatusConflict)
	case errors.Is(err, ErrAttemptRecordNotFound):
		return wrapSocialError(err, goerrors.CategoryNotFound, SocialErrorAttemptNotFound, http.StatusNotFound)
	case errors.Is(err, ErrOrchestratorClosed):
		return wrapSocialError(err, goerrors.CategoryOperation, SocialErrorInternal, http.StatusServiceUnavailable)
	}

	switch ErrorKindOf(err) {
	case ErrorKindTimeout:
		return wrapSocialError(err, goerrors.CategoryOperation, SocialErrorAttemptTimeout, http.StatusGatewayTimeout)
	case ErrorKindCanceled:
		return wrapSocialError(err, goerrors.CategoryOperation, SocialErrorAttemptCanceled, statusClientClosedRequest)
	case ErrorKindNetwork:
		return wrapSocialError(err, goerrors.CategoryExternal, SocialErrorNetwork, http.StatusServiceUnavailable)
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return wrapSocialError(err, goerrors.CategoryExternal, SocialErrorProvider, http.StatusBadGateway)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "oauth state"):
		return newSocialError(err.Error(), goerrors.CategoryAuth, SocialErrorOAuthStateInvalid)
	case strings.Contains(msg, "field") && strings.Contains(msg, "not supported"):
		return newSocialError(err.Error(), goerrors.CategoryValidation, SocialErrorFieldUnsupported)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newSocialError(err.Error(), goerrors.CategoryBadInput, SocialErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSocialErrorEnvelope(mapped)
}

// MapError converts any error into the social error envelope.
func MapError(err error) *goerrors.Error {
	return socialErrorMapper(err)
}

func wrapSocialError(err error, category goerrors.Category, textCode string, code int) *goerrors.Error {
	return ensureSocialErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithCode(code).
			WithTextCode(textCode),
	)
}

func newSocialError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSocialErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSocialErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = socialHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSocialTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSocialTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SocialErrorBadInput
	case goerrors.CategoryNotFound:
		return SocialErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SocialErrorOAuthStateInvalid
	case goerrors.CategoryConflict:
		return SocialErrorAlreadyInProgress
	case goerrors.CategoryExternal:
		return SocialErrorProvider
	default:
		return SocialErrorInternal
	}
}

func socialHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
