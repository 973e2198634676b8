package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, time.May, 10, hh, mm, 0, 0, time.UTC)
}

func TestQuietHours_CrossesMidnight(t *testing.T) {
	q, err := ParseQuietHours("23:00", "07:00")
	require.NoError(t, err)

	require.False(t, q.IsActiveAt(at(22, 59)))
	require.True(t, q.IsActiveAt(at(23, 0)))
	require.True(t, q.IsActiveAt(at(0, 0)))
	require.True(t, q.IsActiveAt(at(6, 59)))
	require.False(t, q.IsActiveAt(at(7, 0)))
}

func TestQuietHours_SameDayWindow(t *testing.T) {
	q, err := ParseQuietHours("02:30", "08:00")
	require.NoError(t, err)

	require.False(t, q.IsActiveAt(at(2, 29)))
	require.True(t, q.IsActiveAt(at(2, 30)))
	require.True(t, q.IsActiveAt(at(7, 59)))
	require.False(t, q.IsActiveAt(at(8, 0)))
	require.False(t, q.IsActiveAt(at(23, 0)))
}

func TestQuietHours_DisabledWhenEmpty(t *testing.T) {
	q, err := ParseQuietHours("", "")
	require.NoError(t, err)
	require.False(t, q.IsActiveAt(at(3, 0)))
}

func TestQuietHours_BadInput(t *testing.T) {
	_, err := ParseQuietHours("25:00", "07:00")
	require.Error(t, err)
	_, err = ParseQuietHours("23:00", "7")
	require.Error(t, err)
	_, err = ParseQuietHours("23:61", "07:00")
	require.Error(t, err)
}
