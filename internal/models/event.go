package models

import (
	"encoding/json"
	"time"
)

// OutboxEvent represents a row in the outbox_events table.
// Rows are immutable except for the sent/sent_at pair, which the relay
// flips exactly once after a confirmed sink insert.
type OutboxEvent struct {
	ID        int64           `db:"id"`
	EventID   string          `db:"event_id"`
	EventType string          `db:"event_type"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

// EstimateBytes returns a rough memory footprint of the event.
// Used to warn about heavy batches before they hit the sink.
func (e OutboxEvent) EstimateBytes() int {
	return len(e.Payload) + len(e.EventID) + len(e.EventType) + 64
}

// AnalyticsRow is the flat projection inserted into the ClickHouse
// events table. Every field is always populated: the sink schema has no
// nullable columns, so absent payload fields become typed zero values.
//
// EventTime and EventDate are kept as strings in the sink's own format
// ("2006-01-02 15:04:05.000" / "2006-01-02") and parsed by ClickHouse
// into DateTime64(3)/Date at insert time.
type AnalyticsRow struct {
	EventID      string  `ch:"event_id" json:"event_id"`
	EventTime    string  `ch:"event_time" json:"event_time"`
	EventDate    string  `ch:"event_date" json:"event_date"`
	UserID       string  `ch:"user_id" json:"user_id"`
	SessionID    string  `ch:"session_id" json:"session_id"`
	EventType    string  `ch:"event_type" json:"event_type"`
	ProductID    string  `ch:"product_id" json:"product_id"`
	Category     string  `ch:"category" json:"category"`
	Price        float64 `ch:"price" json:"price"`
	Page         string  `ch:"page" json:"page"`
	Referrer     string  `ch:"referrer" json:"referrer"`
	DeviceFamily string  `ch:"device_family" json:"device_family"`
	Country      string  `ch:"country" json:"country"`
	Properties   string  `ch:"properties" json:"properties"`
}
