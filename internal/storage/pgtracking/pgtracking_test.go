package pgtracking

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "trackhub_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/trackhub_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGTracking_RepoFlow(t *testing.T) {
	ctx := context.Background()
	st := startStorage(t)

	created, err := st.CreateOrGetItems(ctx, []models.ItemCreateInput{
		{CarrierCode: "CDEK", TrackNumber: "1234567890", Title: "Кроссовки"},
		{CarrierCode: "POST_RU", TrackNumber: "RA644000001RU"},
		{CarrierCode: "", TrackNumber: "WEIRD-CODE-1"},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	require.NotZero(t, created[0].ID)
	require.Equal(t, "Кроссовки", created[0].Title)
	// Нераспознанный перевозчик сразу уходит в ручное отслеживание.
	require.Equal(t, models.StatusManual, created[2].Status)
	require.Equal(t, "Ручное отслеживание", created[2].StatusText)

	// Повторное создание той же пары — дедуп, тот же id.
	again, err := st.CreateOrGetItems(ctx, []models.ItemCreateInput{
		{CarrierCode: "CDEK", TrackNumber: "1234567890"},
	})
	require.NoError(t, err)
	require.Equal(t, created[0].ID, again[0].ID)

	// Все три due, но ручной в выборку не попадает.
	_, err = st.db.Exec(ctx, `UPDATE items SET next_check_at = now() - interval '1 minute'`)
	require.NoError(t, err)

	now := time.Now().UTC()
	lease := 10 * time.Second
	due, err := st.ClaimDueItems(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.WithinDuration(t, now.Add(lease), due[0].NextCheckAt, 2*time.Second)

	// Повторный claim внутри lease пуст.
	due2, err := st.ClaimDueItems(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Empty(t, due2)
}

func TestPGTracking_ApplyItemUpdate(t *testing.T) {
	ctx := context.Background()
	st := startStorage(t)

	created, err := st.CreateOrGetItems(ctx, []models.ItemCreateInput{
		{CarrierCode: "CDEK", TrackNumber: "1234567890"},
	})
	require.NoError(t, err)
	id := created[0].ID

	now := time.Now().UTC()
	eta := now.Add(48 * time.Hour)
	loc := "Москва"

	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID:              id,
		CheckedAt:           now,
		Status:              models.StatusInTransit,
		StatusText:          "В пути",
		StatusRaw:           "InTransit",
		StatusAt:            &now,
		EstimatedDeliveryAt: &eta,
		NextCheckAt:         now.Add(30 * time.Minute),
		Events: []*models.TrackingEvent{
			{Status: models.StatusInTransit, StatusText: "В пути", StatusRaw: "InTransit", EventTime: now, Location: &loc},
			{Status: models.StatusPending, StatusText: "Ожидает регистрации", StatusRaw: "Pending", EventTime: now.Add(-time.Hour)},
		},
	})
	require.NoError(t, err)

	got, err := st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, got[0].Status)
	require.Equal(t, "В пути", got[0].StatusText)
	require.False(t, got[0].Archived)
	require.NotNil(t, got[0].EstimatedDeliveryAt)
	require.Zero(t, got[0].CheckFailCount)

	evs, err := st.ListItemEvents(ctx, id, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, "Москва", *evs[0].Location)

	// Отметить напоминание; та же ETA его не сбрасывает.
	require.NoError(t, st.MarkReminderSent(ctx, id))
	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID: id, CheckedAt: now,
		Status: models.StatusInTransit, StatusText: "В пути", StatusRaw: "InTransit",
		StatusAt: &now, EstimatedDeliveryAt: &eta,
		NextCheckAt: now.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.True(t, got[0].ReminderSent)

	// Новая ETA сбрасывает reminder_sent.
	eta2 := eta.Add(24 * time.Hour)
	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID: id, CheckedAt: now,
		Status: models.StatusOutForDelivery, StatusText: "Передано курьеру", StatusRaw: "OutForDelivery",
		StatusAt: &now, EstimatedDeliveryAt: &eta2,
		NextCheckAt: now.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.False(t, got[0].ReminderSent)
	// События заменяются целиком: новый снапшот без событий очистил историю.
	evs, err = st.ListItemEvents(ctx, id, 10, 0)
	require.NoError(t, err)
	require.Empty(t, evs)

	// Ошибочный путь: статус не трогаем, копим счётчик.
	msg := "cdek http 502"
	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID: id, CheckedAt: now, Error: &msg,
		NextCheckAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.Equal(t, models.StatusOutForDelivery, got[0].Status)
	require.EqualValues(t, 1, got[0].CheckFailCount)
	require.Equal(t, msg, *got[0].LastError)

	// Первый DELIVERED архивирует ровно один раз.
	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID: id, CheckedAt: now,
		Status: models.StatusDelivered, StatusText: "Доставлено", StatusRaw: "Delivered",
		StatusAt: &now, NextCheckAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.True(t, got[0].Archived)

	// Пользователь разархивировал — повторный DELIVERED не архивирует снова.
	require.NoError(t, st.SetArchived(ctx, id, false))
	err = st.ApplyItemUpdate(ctx, ItemUpdate{
		ItemID: id, CheckedAt: now,
		Status: models.StatusDelivered, StatusText: "Доставлено", StatusRaw: "Delivered",
		StatusAt: &now, NextCheckAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.False(t, got[0].Archived)

	// Архивный не попадает в claim даже когда due.
	_, err = st.db.Exec(ctx, `UPDATE items SET archived = TRUE, next_check_at = now() - interval '1 minute' WHERE id = $1`, id)
	require.NoError(t, err)
	due, err := st.ClaimDueItems(ctx, time.Now().UTC(), 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestPGTracking_CarrierAndTitle(t *testing.T) {
	ctx := context.Background()
	st := startStorage(t)

	created, err := st.CreateOrGetItems(ctx, []models.ItemCreateInput{
		{CarrierCode: "", TrackNumber: "ZZZ-42"},
	})
	require.NoError(t, err)
	id := created[0].ID
	require.Equal(t, models.StatusManual, created[0].Status)

	// Резолвер уточнил перевозчика — MANUAL снимается.
	require.NoError(t, st.UpdateCarrier(ctx, id, "CDEK"))
	got, err := st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.Equal(t, "CDEK", got[0].CarrierCode)
	require.Equal(t, models.StatusUnknown, got[0].Status)

	require.NoError(t, st.RenameItem(ctx, id, "Подарок"))
	require.NoError(t, st.SetMuted(ctx, id, true))
	got, err = st.GetItemsByIDs(ctx, []uint64{id})
	require.NoError(t, err)
	require.Equal(t, "Подарок", got[0].Title)
	require.True(t, got[0].Muted)

	require.NoError(t, st.RefreshItem(ctx, id))
	due, err := st.ClaimDueItems(ctx, time.Now().UTC().Add(time.Second), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
}
