// Package auth carries the shared-token check used by lpio endpoints and the
// bearer header the client transport attaches to each exchange.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const bearerPrefix = "Bearer "

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// SetBearer attaches token to h. An empty token leaves h untouched.
func SetBearer(h http.Header, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	h.Set("Authorization", bearerPrefix+token)
}

// Bearer extracts the bearer token from h.
func Bearer(h http.Header) (string, bool) {
	raw := strings.TrimSpace(h.Get("Authorization"))
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(bearerPrefix):])
	return token, token != ""
}

// CheckRequest validates the bearer token carried by h against v.
func CheckRequest(v Validator, h http.Header) error {
	token, ok := Bearer(h)
	if !ok {
		return ErrUnauthorized
	}
	return v.Validate(token)
}
