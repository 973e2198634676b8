package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/normalize"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const itemColumns = `
  id, carrier_code, track_number, title,
  status, status_text, status_raw,
  status_at, estimated_delivery_at,
  archived, muted, reminder_sent,
  last_checked_at, next_check_at,
  check_fail_count, last_error,
  created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	if err := row.Scan(
		&it.ID, &it.CarrierCode, &it.TrackNumber, &it.Title,
		&it.Status, &it.StatusText, &it.StatusRaw,
		&it.StatusAt, &it.EstimatedDeliveryAt,
		&it.Archived, &it.Muted, &it.ReminderSent,
		&it.LastCheckedAt, &it.NextCheckAt,
		&it.CheckFailCount, &it.LastError,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

func collectItems(rows pgx.Rows) ([]*models.Item, error) {
	defer rows.Close()
	var out []*models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan item")
		}
		out = append(out, it)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CreateOrGetItems(ctx context.Context, inputs []models.ItemCreateInput) ([]*models.Item, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(inputs))
	for _, in := range inputs {
		status := models.StatusUnknown
		if in.CarrierCode == "" {
			// Не распознанный перевозчик — ручное отслеживание до уточнения.
			status = models.StatusManual
		}
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO items (
  carrier_code, track_number, title, status, status_text, status_raw, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$4,$6,$7,$7)
ON CONFLICT (carrier_code, track_number)
DO UPDATE SET updated_at = items.updated_at
RETURNING id
`, in.CarrierCode, in.TrackNumber, in.Title, status, normalize.Label(status), now, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert item")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetItemsByIDs(ctx, ids)
}

func (s *Storage) GetItemsByIDs(ctx context.Context, ids []uint64) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select items")
	}
	return collectItems(rows)
}

func (s *Storage) ListItems(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Item, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT `+itemColumns+`
FROM items
WHERE ($1 OR NOT archived)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, includeArchived, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select items")
	}
	return collectItems(rows)
}

func (s *Storage) RefreshItem(ctx context.Context, itemID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE items SET next_check_at = now(), updated_at = now() WHERE id = $1`, itemID)
	return errors.Wrap(err, "refresh item")
}

func (s *Storage) SetArchived(ctx context.Context, itemID uint64, archived bool) error {
	_, err := s.db.Exec(ctx, `UPDATE items SET archived = $2, updated_at = now() WHERE id = $1`, itemID, archived)
	return errors.Wrap(err, "set archived")
}

func (s *Storage) SetMuted(ctx context.Context, itemID uint64, muted bool) error {
	_, err := s.db.Exec(ctx, `UPDATE items SET muted = $2, updated_at = now() WHERE id = $1`, itemID, muted)
	return errors.Wrap(err, "set muted")
}

func (s *Storage) RenameItem(ctx context.Context, itemID uint64, title string) error {
	_, err := s.db.Exec(ctx, `UPDATE items SET title = $2, updated_at = now() WHERE id = $1`, itemID, title)
	return errors.Wrap(err, "rename item")
}

// UpdateCarrier сохраняет исправленную резолвером метку перевозчика,
// чтобы следующие циклы не резолвили заново. Заодно снимает MANUAL.
func (s *Storage) UpdateCarrier(ctx context.Context, itemID uint64, carrierCode string) error {
	_, err := s.db.Exec(ctx, `
UPDATE items
SET carrier_code = $2,
    status = CASE WHEN status = $3 THEN $4 ELSE status END,
    updated_at = now()
WHERE id = $1
`, itemID, carrierCode, models.StatusManual, models.StatusUnknown)
	return errors.Wrap(err, "update carrier")
}

func (s *Storage) MarkReminderSent(ctx context.Context, itemID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE items SET reminder_sent = TRUE, updated_at = now() WHERE id = $1`, itemID)
	return errors.Wrap(err, "mark reminder sent")
}

// ClaimDueItems выбирает пачку посылок, готовых к проверке, и "бронирует" их,
// чтобы они не попадали в повторную выборку, пока воркер их обрабатывает.
// Использует SELECT ... FOR UPDATE SKIP LOCKED. Архивные и ручные не берём:
// автообновления для них нет.
func (s *Storage) ClaimDueItems(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Item, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+itemColumns+`
FROM items
WHERE next_check_at <= $1
  AND NOT archived
  AND status <> $2
ORDER BY next_check_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.StatusManual, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due items")
	}
	picked, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	leaseUntil := now.UTC().Add(lease)
	for _, it := range picked {
		_, err := tx.Exec(ctx, `UPDATE items SET next_check_at = $2, updated_at = now() WHERE id = $1`, it.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease item")
		}
		it.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
