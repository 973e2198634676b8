package pochtahtml

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, page string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tracking", r.URL.Path)
		require.Equal(t, "RA644000001RU", r.URL.Query().Get("barcode"))
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.now = func() time.Time {
		return time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	}
	return c
}

func TestFetch_JSONLDWithHistory(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">
{"@type":"ParcelDelivery","deliveryStatus":"https://schema.org/InTransit","expectedArrivalUntil":"20.03.2026"}
</script>
</head><body>
<div class="tracking-card__history-item">
  <div class="tracking-card__history-date">14 марта 2026, 21:05</div>
  <div class="tracking-card__history-status">Прибыло в сортировочный центр</div>
  <div class="tracking-card__history-place">Москва</div>
</div>
</body></html>`

	c := newTestClient(t, page)
	out, err := c.Fetch(context.Background(), "RA644000001RU")
	require.NoError(t, err)
	require.Equal(t, source.KindSuccess, out.Kind)
	require.Equal(t, models.StatusInTransit, out.Snapshot.Status)
	require.Equal(t, "В пути", out.Snapshot.StatusText)
	require.NotNil(t, out.Snapshot.EstimatedDeliveryAt)
	require.Equal(t, 20, out.Snapshot.EstimatedDeliveryAt.Day())
	require.Len(t, out.Snapshot.Events, 1)
	ev := out.Snapshot.Events[0]
	require.Equal(t, models.StatusInTransit, ev.Status)
	require.Equal(t, "Москва", *ev.Location)
	require.Equal(t, 14, ev.EventTime.Day())
	require.Equal(t, 21, ev.EventTime.Hour())
}

func TestFetch_SelectorFallbackTable(t *testing.T) {
	page := `<html><body>
<div class="track-result__status">Вручение адресату</div>
<table class="operations"><tbody>
<tr><td class="date">15.03.2026 08:40</td><td class="operation">Вручено</td><td class="place">Казань</td></tr>
<tr><td class="date">бессмысленная дата</td><td class="operation">Передано курьеру</td><td class="place"></td></tr>
</tbody></table>
</body></html>`

	c := newTestClient(t, page)
	out, err := c.Fetch(context.Background(), "RA644000001RU")
	require.NoError(t, err)
	require.Equal(t, source.KindSuccess, out.Kind)
	require.Equal(t, "Вручение адресату", out.Snapshot.StatusText)
	require.Len(t, out.Snapshot.Events, 2)
	// Дата второй строки не распарсилась — синтетическое время now минус номер строки.
	require.Equal(t, c.now().Add(-time.Minute), out.Snapshot.Events[1].EventTime)
	require.Nil(t, out.Snapshot.Events[1].Location)
}

func TestFetch_NoDataDiagnostic(t *testing.T) {
	c := newTestClient(t, `<html><body><div id="app">Loading...</div></body></html>`)
	out, err := c.Fetch(context.Background(), "RA644000001RU")
	require.NoError(t, err)
	require.Equal(t, source.KindNoData, out.Kind)
	require.Contains(t, out.Diagnostic, "ld+json")
	require.Contains(t, out.Diagnostic, ".track-result__status")
}

func TestFetch_HTTPErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	_, err := c.Fetch(context.Background(), "RA644000001RU")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}
