package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shopsight/analytics-relay/internal/config"
	"github.com/shopsight/analytics-relay/internal/db"
	"github.com/shopsight/analytics-relay/internal/models"
	"github.com/shopsight/analytics-relay/internal/sink"
	"github.com/shopsight/analytics-relay/pkg/infra"
)

const insertChunk = 1000

// Seeds synthetic behavioral events for dashboard development. Default
// mode writes straight into ClickHouse; -outbox routes events through
// the Postgres outbox instead, exercising the full relay path.
func main() {
	count := flag.Int("n", 10000, "number of events to generate")
	viaOutbox := flag.Bool("outbox", false, "enqueue through the Postgres outbox instead of inserting into ClickHouse directly")
	flag.Parse()

	cfg := config.Load()
	logger := infra.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("FATAL: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var err error
	if *viaOutbox {
		err = seedOutbox(ctx, cfg, *count)
	} else {
		err = seedSink(ctx, cfg, logger, *count)
	}
	if err != nil {
		slog.Error("FATAL: seeding failed", "error", err)
		os.Exit(1)
	}

	slog.Info("🌱 Seeding complete", "count", *count, "via_outbox", *viaOutbox)
}

func seedSink(ctx context.Context, cfg *config.Config, logger *slog.Logger, n int) error {
	chSink, err := sink.NewClickHouseSink(ctx, sink.Config{
		URL:      cfg.ClickHouse.URL,
		Username: cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
		Database: cfg.ClickHouse.Database,
	}, logger)
	if err != nil {
		return err
	}
	defer chSink.Close()

	rows := make([]models.AnalyticsRow, 0, insertChunk)
	for i := 0; i < n; i++ {
		rows = append(rows, randomRow())
		if len(rows) == insertChunk || i == n-1 {
			if err := chSink.Insert(ctx, rows); err != nil {
				return err
			}
			rows = rows[:0]
		}
	}
	return nil
}

func seedOutbox(ctx context.Context, cfg *config.Config, n int) error {
	repo, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	// One transaction per event, the same way a storefront producer
	// commits the outbox row alongside its business write.
	for i := 0; i < n; i++ {
		eventID, eventType, payload := randomPayload()

		tx, err := repo.Pool().Begin(ctx)
		if err != nil {
			return err
		}
		if err := db.EnqueueTx(ctx, tx, eventID, eventType, payload); err != nil {
			tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

func randomEventType() string {
	switch r := rand.Float64(); {
	case r < 0.02:
		return "purchase"
	case r < 0.2:
		return "add_to_cart"
	default:
		return "product_view"
	}
}

func randomDevice() string {
	if rand.Float64() < 0.5 {
		return "mobile"
	}
	return "desktop"
}

// randomRow mirrors the shape real storefront events take: timestamps
// spread over the last 24h, a small catalog of users and products.
func randomRow() models.AnalyticsRow {
	ts := time.Now().Add(-time.Duration(rand.Int63n(int64(24 * time.Hour)))).UTC()

	return models.AnalyticsRow{
		EventID:      uuid.NewString(),
		EventTime:    ts.Format("2006-01-02 15:04:05.000"),
		EventDate:    ts.Format("2006-01-02"),
		UserID:       fmt.Sprintf("user-%d", rand.Intn(200)),
		SessionID:    fmt.Sprintf("sess-%d", rand.Intn(10000)),
		EventType:    randomEventType(),
		ProductID:    fmt.Sprintf("prod-%d", 1+rand.Intn(100)),
		Category:     fmt.Sprintf("cat-%d", 1+rand.Intn(10)),
		Price:        math.Round(rand.Float64()*500*100) / 100,
		Page:         "/product",
		Referrer:     "organic",
		DeviceFamily: randomDevice(),
		Country:      "IN",
		Properties:   `{"seed":true}`,
	}
}

func randomPayload() (eventID, eventType string, payload []byte) {
	eventID = uuid.NewString()
	eventType = randomEventType()
	ts := time.Now().Add(-time.Duration(rand.Int63n(int64(24 * time.Hour)))).UTC()

	doc := map[string]any{
		"event_id":      eventID,
		"event_type":    eventType,
		"created_at":    ts.Format("2006-01-02T15:04:05.000Z07:00"),
		"user_id":       fmt.Sprintf("user-%d", rand.Intn(200)),
		"session_id":    fmt.Sprintf("sess-%d", rand.Intn(10000)),
		"product_id":    fmt.Sprintf("prod-%d", 1+rand.Intn(100)),
		"category":      fmt.Sprintf("cat-%d", 1+rand.Intn(10)),
		"price":         math.Round(rand.Float64()*500*100) / 100,
		"page":          "/product",
		"referrer":      "organic",
		"device_family": randomDevice(),
		"country":       "IN",
		"properties":    map[string]any{"seed": true},
	}

	payload, _ = json.Marshal(doc)
	return eventID, eventType, payload
}
