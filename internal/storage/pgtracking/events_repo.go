package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type ItemUpdate struct {
	ItemID uint64

	CheckedAt time.Time

	Status     string
	StatusText string
	StatusRaw  string
	StatusAt   *time.Time

	EstimatedDeliveryAt *time.Time

	NextCheckAt time.Time

	Events []*models.TrackingEvent

	// KeepEvents не трогает историю событий. Нужен статусам-сентинелям
	// (MANUAL, LOGIN_REQUIRED): они меняют карточку, но снапшота у них нет.
	KeepEvents bool

	Error *string
}

func (s *Storage) ListItemEvents(ctx context.Context, itemID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, item_id, status, status_text, status_raw,
  event_time, location, message, lat, lon, created_at
FROM item_events
WHERE item_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, itemID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		var location string
		var message string
		if err := rows.Scan(
			&e.ID, &e.ItemID, &e.Status, &e.StatusText, &e.StatusRaw,
			&e.EventTime, &location, &message, &e.Lat, &e.Lon, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}

		if location != "" {
			l := location
			e.Location = &l
		}
		if message != "" {
			m := message
			e.Message = &m
		}

		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyItemUpdate фиксирует результат одной проверки.
//
// Ошибочный путь не трогает статус: NoData и сетевые сбои никогда не
// затирают последнее известное состояние пустотой. Успешный путь пишет
// статус, заменяет события целиком в той же транзакции, один раз
// архивирует посылку на первом DELIVERED и сбрасывает reminder_sent,
// если ETA изменилась.
func (s *Storage) ApplyItemUpdate(ctx context.Context, upd ItemUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE items
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.ItemID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update item (error)")
		}
	} else {
		_, err := tx.Exec(ctx, `
UPDATE items
SET
  status = $3,
  status_text = $4,
  status_raw = $5,
  status_at = $6,
  estimated_delivery_at = $7,
  reminder_sent = CASE
    WHEN items.estimated_delivery_at IS DISTINCT FROM $7 THEN FALSE
    ELSE reminder_sent
  END,
  archived = CASE
    WHEN $3 = $8 AND items.status <> $8 THEN TRUE
    ELSE archived
  END,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $9,
  updated_at = now()
WHERE id = $1
`, upd.ItemID, upd.CheckedAt.UTC(),
			upd.Status, upd.StatusText, upd.StatusRaw, upd.StatusAt, upd.EstimatedDeliveryAt,
			models.StatusDelivered, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update item (ok)")
		}

		if upd.KeepEvents {
			return errors.Wrap(tx.Commit(ctx), "commit tx")
		}

		// Снапшот — источник истины по истории: старые события уходят вместе
		// с ним, частичного слияния нет.
		if _, err := tx.Exec(ctx, `DELETE FROM item_events WHERE item_id = $1`, upd.ItemID); err != nil {
			return errors.Wrap(err, "delete item events")
		}

		for _, e := range upd.Events {
			loc := ""
			if e.Location != nil {
				loc = *e.Location
			}
			msgText := ""
			if e.Message != nil {
				msgText = *e.Message
			}

			_, err := tx.Exec(ctx, `
INSERT INTO item_events (
  item_id, status, status_text, status_raw, event_time, location, message, lat, lon, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
ON CONFLICT (item_id, status_raw, event_time, location, message) DO NOTHING
`, upd.ItemID, e.Status, e.StatusText, e.StatusRaw, e.EventTime.UTC(), loc, msgText, e.Lat, e.Lon)
			if err != nil {
				return errors.Wrap(err, "insert item event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
