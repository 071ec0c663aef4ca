package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/ratelimit"
)

// AuthConfig holds the shared secrets guarding the trigger and admin routes.
type AuthConfig struct {
	CronSecret    string
	DevTriggerKey string
	Development   bool
}

// Principals recorded for authenticated callers. Everyone holding the shared
// secret is the same caller and shares one rate limit window.
const (
	principalCron = "cron"
	principalDev  = "dev"
)

// authorizeTrigger is used by GET triggers. Development mode skips the check,
// leaving the request without a principal.
func (a AuthConfig) authorizeTrigger(r *http.Request) (string, bool) {
	if a.bearerMatches(r) {
		return principalCron, true
	}
	return "", a.Development
}

// authorizeAdmin is used by POST triggers and the job routes. Outside
// development only the bearer secret is accepted.
func (a AuthConfig) authorizeAdmin(r *http.Request) (string, bool) {
	if a.bearerMatches(r) {
		return principalCron, true
	}
	if a.Development && secretMatches(a.DevTriggerKey, r.Header.Get(constants.HeaderDevKey)) {
		return principalDev, true
	}
	return "", false
}

func (a AuthConfig) bearerMatches(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get(constants.HeaderAuthorization), "Bearer ")
	if !ok {
		return false
	}
	return secretMatches(a.CronSecret, strings.TrimSpace(token))
}

// secretMatches fails closed when no secret is configured.
func secretMatches(expected, given string) bool {
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// requireAuth rejects unauthorized requests before they reach next, and
// attaches the verified principal for the rate limiter.
func requireAuth(check func(*http.Request) (string, bool), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := check(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if principal != "" {
			r = r.WithContext(ratelimit.WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}
