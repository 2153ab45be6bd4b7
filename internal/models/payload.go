package models

import (
	"encoding/json"
	"fmt"
)

// EventPayload is the typed view of an outbox row's payload document.
// Well-known fields get real types; unrecognized top-level keys are
// folded into Properties so producers can attach arbitrary data without
// breaking the relay (the storefront spreads custom properties at the
// top level of the payload it writes).
type EventPayload struct {
	EventID      string
	EventType    string
	EventTime    string
	CreatedAt    string
	UserID       string
	SessionID    string
	ProductID    string
	Category     string
	Price        float64
	Page         string
	Referrer     string
	DeviceFamily string
	Country      string
	Properties   map[string]any
}

var knownPayloadKeys = map[string]bool{
	"event_id":      true,
	"event_type":    true,
	"event_time":    true,
	"created_at":    true,
	"user_id":       true,
	"session_id":    true,
	"product_id":    true,
	"category":      true,
	"price":         true,
	"page":          true,
	"referrer":      true,
	"device_family": true,
	"country":       true,
	"properties":    true,
}

// UnmarshalJSON decodes a payload document, rejecting documents whose
// well-known fields carry the wrong JSON type. A decode failure here is
// a per-record transform error: the relay quarantines the row instead
// of stalling the whole batch on it.
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}

	var err error
	if p.EventID, err = stringKey(raw, "event_id"); err != nil {
		return err
	}
	if p.EventType, err = stringKey(raw, "event_type"); err != nil {
		return err
	}
	if p.EventTime, err = stringKey(raw, "event_time"); err != nil {
		return err
	}
	if p.CreatedAt, err = stringKey(raw, "created_at"); err != nil {
		return err
	}
	if p.UserID, err = stringKey(raw, "user_id"); err != nil {
		return err
	}
	if p.SessionID, err = stringKey(raw, "session_id"); err != nil {
		return err
	}
	if p.ProductID, err = stringKey(raw, "product_id"); err != nil {
		return err
	}
	if p.Category, err = stringKey(raw, "category"); err != nil {
		return err
	}
	if p.Price, err = numberKey(raw, "price"); err != nil {
		return err
	}
	if p.Page, err = stringKey(raw, "page"); err != nil {
		return err
	}
	if p.Referrer, err = stringKey(raw, "referrer"); err != nil {
		return err
	}
	if p.DeviceFamily, err = stringKey(raw, "device_family"); err != nil {
		return err
	}
	if p.Country, err = stringKey(raw, "country"); err != nil {
		return err
	}

	if v, ok := raw["properties"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: expected object, got %T", "properties", v)
		}
		p.Properties = m
	}

	// Forward compatibility: keep unknown top-level keys instead of
	// dropping them. Explicit properties win on key collision.
	for k, v := range raw {
		if knownPayloadKeys[k] {
			continue
		}
		if p.Properties == nil {
			p.Properties = make(map[string]any)
		}
		if _, exists := p.Properties[k]; !exists {
			p.Properties[k] = v
		}
	}

	return nil
}

func stringKey(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	return s, nil
}

func numberKey(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q: expected number, got %T", key, v)
	}
	return f, nil
}
