package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopsight/analytics-relay/internal/models"
)

// isoMillis is the internal wire format producers write into payloads.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// RowBuilder translates outbox payload documents into the flat rows the
// analytics sink expects. It owns the field-priority rules: payload
// field first, then the outbox row's own columns, then a typed zero.
type RowBuilder struct {
	now func() time.Time
}

// NewRowBuilder initializes a builder using the wall clock. The clock is
// injectable so tests can pin the event_time fallback.
func NewRowBuilder() *RowBuilder {
	return &RowBuilder{now: time.Now}
}

// NewRowBuilderWithClock creates a builder with a fixed clock source.
func NewRowBuilderWithClock(now func() time.Time) *RowBuilder {
	return &RowBuilder{now: now}
}

// Build projects a single outbox event into an AnalyticsRow.
// An error here means the payload document itself is malformed; the
// caller quarantines the record rather than aborting the batch.
func (b *RowBuilder) Build(ev models.OutboxEvent) (models.AnalyticsRow, error) {
	var p models.EventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return models.AnalyticsRow{}, fmt.Errorf("decode payload of event %s: %w", ev.EventID, err)
	}

	// event_time priority: payload.event_time, payload.created_at,
	// then transform-time wall clock. The last fallback shifts
	// event_time away from true occurrence time on late relays; known
	// precision limitation inherited from the producers.
	evTime := p.EventTime
	if evTime == "" {
		evTime = p.CreatedAt
	}
	if evTime == "" {
		evTime = b.now().UTC().Format(isoMillis)
	}

	row := models.AnalyticsRow{
		EventID:      firstNonEmpty(p.EventID, ev.EventID),
		EventTime:    toSinkTime(evTime),
		EventDate:    toSinkDate(evTime),
		UserID:       p.UserID,
		SessionID:    p.SessionID,
		EventType:    firstNonEmpty(p.EventType, ev.EventType),
		ProductID:    p.ProductID,
		Category:     p.Category,
		Price:        p.Price,
		Page:         p.Page,
		Referrer:     p.Referrer,
		DeviceFamily: p.DeviceFamily,
		Country:      p.Country,
		Properties:   encodeProperties(p.Properties),
	}

	return row, nil
}

// toSinkTime rewrites an ISO8601 timestamp into the sink's
// space-separated form: "2024-03-01T12:30:00.000Z" becomes
// "2024-03-01 12:30:00.000".
func toSinkTime(iso string) string {
	return strings.TrimSuffix(strings.Replace(iso, "T", " ", 1), "Z")
}

// toSinkDate derives the calendar date: the first 10 characters of the
// ISO form.
func toSinkDate(iso string) string {
	if len(iso) < 10 {
		return iso
	}
	return iso[:10]
}

func encodeProperties(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		// Values reaching here already round-tripped through JSON
		// decoding, so marshalling cannot realistically fail.
		return "{}"
	}
	return string(encoded)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
