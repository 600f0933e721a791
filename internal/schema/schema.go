package schema

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Kind controls how a field value is coerced on its way in
type Kind int

const (
	Any Kind = iota
	String
	Int
	Float
	Bool
	Time
)

// Field declares one renamed field
type Field struct {
	Upstream string
	Local    string
	Kind     Kind
	Required bool
}

// Mapping is the field contract between one provider payload and our records
type Mapping struct {
	Provider string
	Fields   []Field
}

// ValidationError reports a malformed upstream payload
type ValidationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s payload invalid: field %q %s", e.Provider, e.Field, e.Reason)
}

// ToLocal renames declared upstream fields to local names and coerces their
// values. Undeclared fields are dropped.
func (m Mapping) ToLocal(row map[string]any) (map[string]any, error) {
	if row == nil {
		return nil, &ValidationError{Provider: m.Provider, Field: "*", Reason: "is missing"}
	}

	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		raw, ok := row[f.Upstream]
		if !ok || raw == nil {
			if f.Required {
				return nil, &ValidationError{Provider: m.Provider, Field: f.Upstream, Reason: "is required"}
			}
			continue
		}

		value, err := coerce(f.Kind, raw)
		if err != nil {
			if f.Required {
				return nil, &ValidationError{Provider: m.Provider, Field: f.Upstream, Reason: err.Error()}
			}
			continue
		}
		out[f.Local] = value
	}
	return out, nil
}

// ToLocalRows applies ToLocal to every row
func (m Mapping) ToLocalRows(rows []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		local, err := m.ToLocal(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, local)
	}
	return out, nil
}

// ToUpstream renames declared local fields back to upstream names
func (m Mapping) ToUpstream(local map[string]any) map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		if v, ok := local[f.Local]; ok {
			out[f.Upstream] = v
		}
	}
	return out
}

// LocalName returns the local name of an upstream field
func (m Mapping) LocalName(upstream string) (string, bool) {
	for _, f := range m.Fields {
		if f.Upstream == upstream {
			return f.Local, true
		}
	}
	return "", false
}

// Decode converts a local row into a typed record using its json tags
func Decode(local map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(local)
}

var timeType = reflect.TypeOf(time.Time{})

func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType || from == timeType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int64, reflect.Float64:
		return toTime(data)
	}
	return data, nil
}

// toTime accepts unix seconds, time.Time or a date string
func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case float64, float32, int, int64, int32:
		return time.Unix(int64(Number(v)), 0).UTC(), nil
	}
	ts, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// Number parses a numeric upstream value. Strings may carry thousands
// separators; anything unparseable, NaN or infinite becomes 0.
func Number(v any) float64 {
	f, err := toFloat(v)
	if err != nil {
		return 0
	}
	return f
}

func coerce(kind Kind, raw any) (any, error) {
	switch kind {
	case String:
		return cast.ToStringE(raw)
	case Int:
		return int(math.Round(Number(raw))), nil
	case Float:
		return Number(raw), nil
	case Bool:
		return cast.ToBoolE(raw)
	case Time:
		return toTime(raw)
	default:
		return raw, nil
	}
}

func toFloat(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		s = strings.TrimSuffix(s, "%")
		if s == "" {
			return 0, fmt.Errorf("empty number")
		}
		v = s
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
