package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/events"
)

const (
	OutboxNew       = "NEW"
	OutboxPublished = "PUBLISHED"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string
}

func (r *Repository) InsertOutbox(ctx context.Context, rec OutboxRecord) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, OutboxNew)
	return errors.Wrap(err, "insert outbox")
}

// ClaimUnpublished locks up to limit NEW rows. It must run inside WithTx so that
// concurrent publishers skip each other's rows.
func (r *Repository) ClaimUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, errors.New("claim outbox: no transaction")
	}
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status
		FROM outbox WHERE status = $1 ORDER BY created_at LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxNew, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select outbox")
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status); err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "iterate outbox")
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox SET status = $2, published_at = $3 WHERE id = $1
	`, id, OutboxPublished, at)
	return errors.Wrap(err, "mark outbox published")
}

// BookingOutbox writes booking.created events stamped with this instance's id.
type BookingOutbox struct {
	repo   *Repository
	origin string
}

func NewBookingOutbox(repo *Repository, origin string) *BookingOutbox {
	return &BookingOutbox{repo: repo, origin: origin}
}

func (o *BookingOutbox) RecordBookingCreated(ctx context.Context, b domain.Booking) error {
	payload, err := json.Marshal(events.NewBookingCreated(b, o.origin))
	if err != nil {
		return errors.Wrap(err, "marshal booking event")
	}
	return o.repo.InsertOutbox(ctx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     events.BookingCreatedKey,
		Payload:       payload,
	})
}
