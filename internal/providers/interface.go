package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider is the contract shared by all upstream data providers
type Provider interface {
	GetName() string
	IsEnabled() bool
}

// ErrDisabled is returned when a provider is called without its credential
var ErrDisabled = errors.New("provider disabled: missing credentials")

// StatusError reports a non-2xx upstream response
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Opportunity-Engine/1.0"
	maxErrorBody   = 300
)

func newClient() *resty.Client {
	return resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", userAgent)
}

// checkResponse turns transport failures and non-2xx responses into errors
func checkResponse(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	if !resp.IsSuccess() {
		body := string(resp.Body())
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode(), Body: body}
	}
	return nil
}
