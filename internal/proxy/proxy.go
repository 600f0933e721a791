package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// ErrInvalidParam marks a request field that is present but unusable
var ErrInvalidParam = errors.New("invalid parameter")

// Params is the decoded request body minus the action name
type Params map[string]any

// Action is one named operation a provider exposes through the proxy
type Action struct {
	Name     string
	Required []string
	Call     func(ctx context.Context, p Params) (any, error)
}

// Envelope is the uniform response body for every proxy call
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type entry struct {
	provider providers.Provider
	actions  map[string]Action
}

// Registry maps provider names to their actions
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register exposes a provider's actions under its name
func (r *Registry) Register(provider providers.Provider, actions ...Action) {
	byName := make(map[string]Action, len(actions))
	for _, action := range actions {
		byName[action.Name] = action
	}

	r.mu.Lock()
	r.entries[provider.GetName()] = entry{provider: provider, actions: byName}
	r.mu.Unlock()

	logrus.Debugf("Registered proxy provider %s (enabled: %t, actions: %d)",
		provider.GetName(), provider.IsEnabled(), len(byName))
}

// Providers returns registered provider names with their enabled state
func (r *Registry) Providers() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.provider.IsEnabled()
	}
	return out
}

// Actions lists the action names of a provider in sorted order
func (r *Registry) Actions(providerName string) []string {
	r.mu.RLock()
	e, ok := r.entries[providerName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	names := make([]string, 0, len(e.actions))
	for name := range e.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one proxy request and returns the HTTP status and envelope
func (r *Registry) Dispatch(ctx context.Context, providerName string, body []byte) (int, Envelope) {
	r.mu.RLock()
	e, ok := r.entries[providerName]
	r.mu.RUnlock()
	if !ok {
		return failure(http.StatusNotFound, "unknown provider: %s", providerName)
	}
	if !e.provider.IsEnabled() {
		return failure(http.StatusServiceUnavailable, "%s is not configured", providerName)
	}

	var params Params
	if err := json.Unmarshal(body, &params); err != nil || params == nil {
		return failure(http.StatusBadRequest, "request body must be a JSON object")
	}

	actionName, _ := params["action"].(string)
	delete(params, "action")
	if actionName == "" {
		return failure(http.StatusBadRequest, "action is required")
	}

	action, ok := e.actions[actionName]
	if !ok {
		return failure(http.StatusBadRequest, "unknown action for %s: %s", providerName, actionName)
	}

	for _, field := range action.Required {
		if !params.Has(field) {
			return failure(http.StatusBadRequest, "missing required field: %s", field)
		}
	}

	data, err := action.Call(ctx, params)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logrus.Errorf("Proxy %s/%s failed: %v", providerName, actionName, err)
		}
		return status, Envelope{Success: false, Error: err.Error()}
	}

	return http.StatusOK, Envelope{Success: true, Data: data}
}

// StatusFor maps a provider error to the HTTP status the proxy reports
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, providers.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		// upstream status errors and malformed upstream payloads
		return http.StatusBadGateway
	}
}

func failure(status int, format string, args ...any) (int, Envelope) {
	return status, Envelope{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Has reports whether a field is present and not blank
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns a field as a string, or "" when absent
func (p Params) String(key string) string {
	if !p.Has(key) {
		return ""
	}
	return strings.TrimSpace(cast.ToString(p[key]))
}

// Int returns a numeric field, def when absent
func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	n, err := cast.ToIntE(p[key])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParam, key)
	}
	return n, nil
}

// Float returns a numeric field
func (p Params) Float(key string) (float64, error) {
	f, err := cast.ToFloat64E(p[key])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParam, key)
	}
	return f, nil
}

// OptionalFloat returns a pointer to a numeric field, nil when absent
func (p Params) OptionalFloat(key string) (*float64, error) {
	if !p.Has(key) {
		return nil, nil
	}
	f, err := p.Float(key)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Object returns a nested JSON object field
func (p Params) Object(key string) (map[string]any, error) {
	if !p.Has(key) {
		return nil, nil
	}
	obj, ok := p[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidParam, key)
	}
	return obj, nil
}
