package model

import (
	"errors"

	"github.com/devassist/agentcore/pkg/orcherr"
)

// ErrRateLimited indicates a provider rejected a request for exceeding its
// rate limit (HTTP 429 or the SDK's equivalent). Provider adapters wrap it
// onto the returned error so middleware (see pkg/model/middleware) can react
// to it with errors.Is without depending on provider-specific error types.
var ErrRateLimited = errors.New("model: rate limited")

// ErrAuthFailed indicates a provider rejected a request as unauthenticated
// or unauthorized (HTTP 401/403 or the SDK's equivalent). Provider adapters
// wrap it onto the returned error so the Gateway can classify the failure
// as orcherr.KindProviderAuth rather than a retryable transport error.
var ErrAuthFailed = errors.New("model: authentication failed")

func errMissingTemplate(promptType string) error {
	return orcherr.Newf(orcherr.KindConfiguration, "no prompt template registered for %q", promptType)
}

func errNoCandidates(usage string) error {
	return orcherr.Newf(orcherr.KindConfiguration, "no model candidates configured for usage %q", usage)
}

// errAllCandidatesFailed surfaces the last candidate's error once the whole
// list is exhausted, preserving its taxonomy kind so callers still classify
// the failure correctly (a schema violation stays retryable at the planner;
// an auth failure still marks the connection INVALID).
func errAllCandidatesFailed(usage string, last error) error {
	kind := orcherr.KindProviderTransport
	var oe *orcherr.Error
	if errors.As(last, &oe) {
		kind = oe.Kind
	}
	return orcherr.Wrap(kind, "all candidates for usage \""+usage+"\" failed", last)
}
