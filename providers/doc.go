// Package providers contains the generic OAuth2 provider module used by the
// built-in social providers.
package providers
