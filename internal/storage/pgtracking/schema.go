package pgtracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS items (
  id BIGSERIAL PRIMARY KEY,
  carrier_code TEXT NOT NULL,
  track_number TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  status_text TEXT NOT NULL DEFAULT '',
  status_raw TEXT NOT NULL,
  status_at TIMESTAMPTZ NULL,
  estimated_delivery_at TIMESTAMPTZ NULL,
  archived BOOLEAN NOT NULL DEFAULT FALSE,
  muted BOOLEAN NOT NULL DEFAULT FALSE,
  reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (carrier_code, track_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_items_next_check_at ON items(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS item_events (
  id BIGSERIAL PRIMARY KEY,
  item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  status_text TEXT NOT NULL DEFAULT '',
  status_raw TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  lat DOUBLE PRECISION NULL,
  lon DOUBLE PRECISION NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_item_events_item_id_event_time ON item_events(item_id, event_time DESC)`,
		// Миграции для схем, заведённых до напоминаний и ETA.
		`ALTER TABLE items ADD COLUMN IF NOT EXISTS estimated_delivery_at TIMESTAMPTZ NULL`,
		`ALTER TABLE items ADD COLUMN IF NOT EXISTS reminder_sent BOOLEAN NOT NULL DEFAULT FALSE`,
		`ALTER TABLE items ADD COLUMN IF NOT EXISTS muted BOOLEAN NOT NULL DEFAULT FALSE`,
		// Защита от дублей событий при повторной вставке одного снапшота.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_item_events_dedup ON item_events(item_id, status_raw, event_time, location, message)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
