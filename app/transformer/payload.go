package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// payload is a decoded webhook body. Numbers are kept as json.Number so
// amounts never pass through float64.
type payload map[string]interface{}

func decodePayload(raw []byte) (payload, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var out map[string]interface{}
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("decode payload: body is not a JSON object")
	}
	return out, nil
}

func (p payload) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p payload) object(key string) payload {
	if v, ok := p[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func (p payload) list(key string) []interface{} {
	if v, ok := p[key].([]interface{}); ok {
		return v
	}
	return nil
}

// str returns the first non-empty value among keys, rendering numbers as
// their literal text.
func (p payload) str(keys ...string) string {
	if p == nil {
		return ""
	}
	for _, key := range keys {
		switch v := p[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return decimal.NewFromFloat(v).String()
		case bool:
			return fmt.Sprintf("%t", v)
		}
	}
	return ""
}

func (p payload) strPtr(keys ...string) *string {
	if s := p.str(keys...); s != "" {
		return &s
	}
	return nil
}

// decimal returns the first present numeric value among keys. The bool is
// false when none of the keys holds a number.
func (p payload) decimal(keys ...string) (decimal.Decimal, bool, error) {
	if p == nil {
		return decimal.Zero, false, nil
	}
	for _, key := range keys {
		switch v := p[key].(type) {
		case json.Number:
			d, err := decimal.NewFromString(v.String())
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("%s: %w", key, err)
			}
			return d, true, nil
		case float64:
			return decimal.NewFromFloat(v), true, nil
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("%s: %w", key, err)
			}
			return d, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func objects(items []interface{}) []payload {
	out := make([]payload, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
