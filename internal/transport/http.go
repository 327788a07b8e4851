package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/lpio/internal/auth"
	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/goccy/go-json"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBody     = 4 << 10

	timeoutBody = "Response timeout."
)

var (
	ErrUnauthorized    = errors.New("transport: unauthorized")
	ErrExchangeTimeout = errors.New("transport: exchange timeout")
)

// StatusError is a non-2xx exchange outcome.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.Status)
	}
	return fmt.Sprintf("transport: status %d: %s", e.Status, body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrExchangeTimeout:
		return e.Status == http.StatusRequestTimeout
	default:
		return false
	}
}

// HTTPTransport POSTs each exchange as JSON to one endpoint.
type HTTPTransport struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPTransport(cfg session.Config) (*HTTPTransport, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.ClientTLSConfig()
	if err != nil {
		return nil, err
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	if tlsCfg != nil {
		base.TLSClientConfig = tlsCfg
	}
	return &HTTPTransport{
		url:     endpointURL(cfg.URL),
		token:   cfg.AuthToken,
		timeout: cfg.ExchangeTimeout,
		client:  &http.Client{Transport: base},
	}, nil
}

// URL returns the resolved exchange endpoint.
func (t *HTTPTransport) URL() string {
	return t.url
}

func (t *HTTPTransport) Exchange(ctx context.Context, req message.Request) (message.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return message.Response{}, fmt.Errorf("transport: encode request: %w", err)
	}

	exCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(exCtx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return message.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=UTF-8")
	httpReq.Header.Set("Accept", "application/json")
	auth.SetBearer(httpReq.Header, t.token)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(exCtx.Err(), context.DeadlineExceeded) {
			return message.Response{}, &StatusError{Status: http.StatusRequestTimeout, Body: timeoutBody}
		}
		return message.Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Debugf("transport.HTTPTransport.Exchange url=%q status=%d", t.url, resp.StatusCode)
		return message.Response{}, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() == nil && errors.Is(exCtx.Err(), context.DeadlineExceeded) {
			return message.Response{}, &StatusError{Status: http.StatusRequestTimeout, Body: timeoutBody}
		}
		return message.Response{}, err
	}
	var out message.Response
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return message.Response{}, fmt.Errorf("transport: decode response: %w", err)
	}
	return out, nil
}

// endpointURL sets the default /lpio path when the configured URL has none.
func endpointURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = session.DefaultPath
		u.RawPath = ""
	}
	return u.String()
}
