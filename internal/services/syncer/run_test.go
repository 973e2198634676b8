package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/TrackHub/internal/broker/messages"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/stretchr/testify/require"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeChecker{}, &fakeProducer{}, allOn()).
		WithSettings(5*time.Millisecond, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	require.Error(t, err)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.GreaterOrEqual(t, repo.claims, 1)
}

func TestTrigger_ForcesCycle(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeChecker{}, &fakeProducer{}, allOn()).
		WithSettings(time.Hour, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	s.Trigger()
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.claims >= 1
	}, time.Second, 5*time.Millisecond)

	st := s.Stats()
	require.NotNil(t, st.LastTriggerAt)
}

func TestDispatch_QuietHoursSuppress(t *testing.T) {
	q, err := ParseQuietHours("23:00", "07:00")
	require.NoError(t, err)
	prod := &fakeProducer{}
	s := New(&fakeRepo{}, &fakeChecker{}, prod, NotifyConfig{Enabled: true, Quiet: q})

	cands := []*candidate{{itemID: 1, trackNumber: "LP1", status: models.StatusDelivered, statusText: "Доставлено"}}

	night := time.Date(2026, time.May, 10, 23, 30, 0, 0, time.UTC)
	s.dispatch(context.Background(), night, cands, nil)
	require.Empty(t, prod.intents)

	day := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	s.dispatch(context.Background(), day, cands, nil)
	require.Len(t, prod.byKind(messages.IntentStatusChange), 1)
}
