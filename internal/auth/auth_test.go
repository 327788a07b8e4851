package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			logging.Logf("auth/static-token: stored=%q input=%q err=%v", tc.stored, tc.input, err)
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestBearerRoundTrip(t *testing.T) {
	testlog.Start(t)
	h := http.Header{}
	SetBearer(h, "")
	if _, ok := Bearer(h); ok {
		t.Fatalf("empty token should not set a header")
	}
	if err := CheckRequest(StaticToken{Token: "s3cret"}, h); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without header, got %v", err)
	}

	SetBearer(h, " s3cret ")
	token, ok := Bearer(h)
	if !ok || token != "s3cret" {
		t.Fatalf("unexpected bearer: %q ok=%v", token, ok)
	}
	if err := CheckRequest(StaticToken{Token: "s3cret"}, h); err != nil {
		t.Fatalf("expected valid bearer, got %v", err)
	}

	h.Set("Authorization", "Basic abc")
	if _, ok := Bearer(h); ok {
		t.Fatalf("basic auth must not parse as bearer")
	}
	h.Set("Authorization", "bearer lower")
	if token, ok := Bearer(h); !ok || token != "lower" {
		t.Fatalf("scheme should be case-insensitive, got %q ok=%v", token, ok)
	}
}
