package amazonscrape

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

type fakeSessions struct {
	blob        string
	invalidated bool
}

func (f *fakeSessions) Get(ctx context.Context) (string, bool, error) {
	return f.blob, f.blob != "", nil
}
func (f *fakeSessions) Invalidate(ctx context.Context) error {
	f.invalidated = true
	f.blob = ""
	return nil
}

const orderPage = `<html><body>
<a href="/gp/help">Help</a>
<a href="/progress-tracker/package/ref=abc?orderID=111">Track package</a>
</body></html>`

const trackingPage = `<html><body>
<div id="primaryStatus">
  <h1 class="milestone-primaryMessage">Out for delivery</h1>
  <div class="milestone-secondaryMessage">Arriving 28.12.2025</div>
</div>
<div id="tracking-events-container">
  <div class="tracking-event">
    <div class="tracking-event-date">27.12.2025 09:10</div>
    <div class="tracking-event-message">Package arrived at a carrier facility</div>
    <div class="tracking-event-location">Madrid, ES</div>
  </div>
  <div class="tracking-event">
    <div class="tracking-event-date">26.12.2025 18:00</div>
    <div class="tracking-event-message">Shipment information received</div>
  </div>
</div>
</body></html>`

func newTestClient(t *testing.T, mux http.Handler, sess *fakeSessions) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, sess)
	c.now = func() time.Time {
		return time.Date(2025, time.December, 28, 8, 0, 0, 0, time.UTC)
	}
	return c
}

func TestFetch_HappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gp/your-account/order-details", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(orderPage))
	})
	mux.HandleFunc("/progress-tracker/package/ref=abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackingPage))
	})

	sess := &fakeSessions{blob: "session-id=abc"}
	c := newTestClient(t, mux, sess)

	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	require.Equal(t, source.KindSuccess, out.Kind)

	snap := out.Snapshot
	require.Equal(t, models.StatusOutForDelivery, snap.Status)
	require.Equal(t, "Передано курьеру", snap.StatusText)
	require.NotNil(t, snap.EstimatedDeliveryAt)
	require.Equal(t, 28, snap.EstimatedDeliveryAt.Day())

	require.Len(t, snap.Events, 2)
	require.Equal(t, "Madrid, ES", *snap.Events[0].Location)
	require.Equal(t, 27, snap.Events[0].EventTime.Day())
	require.Equal(t, models.StatusInfoReceived, snap.Events[1].Status)
	require.False(t, sess.invalidated)
}

func TestFetch_SignInRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gp/your-account/order-details", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ap/signin?openid=1", http.StatusFound)
	})
	mux.HandleFunc("/ap/signin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><form name="signIn"><input id="ap_email"/></form></body></html>`))
	})

	sess := &fakeSessions{blob: "session-id=expired"}
	c := newTestClient(t, mux, sess)

	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	require.Equal(t, source.KindLoginRequired, out.Kind)
	require.True(t, sess.invalidated, "сессия должна быть инвалидирована")
}

func TestFetch_NoSession(t *testing.T) {
	c := newTestClient(t, http.NewServeMux(), &fakeSessions{})
	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	require.Equal(t, source.KindLoginRequired, out.Kind)
}

func TestFetch_NoTrackLinkIsNoData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gp/your-account/order-details", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Order details</p></body></html>`))
	})
	c := newTestClient(t, mux, &fakeSessions{blob: "s"})
	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	require.Equal(t, source.KindNoData, out.Kind)
	require.Contains(t, out.Diagnostic, "track-package link")
}

func fetchTrackingHTML(t *testing.T, html string) source.Outcome {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/gp/your-account/order-details", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(orderPage))
	})
	mux.HandleFunc("/progress-tracker/package/ref=abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(html))
	})
	c := newTestClient(t, mux, &fakeSessions{blob: "s"})
	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	return out
}

// Заголовка статуса нет, но есть таймлайн и ETA: статус берём из верхнего
// события, а не придумываем UNKNOWN.
func TestFetch_ETAWithTimelineKeepsEventStatus(t *testing.T) {
	out := fetchTrackingHTML(t, `<html><body>
<div id="primaryStatus"><div class="milestone-secondaryMessage">Arriving 28.12.2025</div></div>
<div id="tracking-events-container">
  <div class="tracking-event">
    <div class="tracking-event-date">27.12.2025 09:10</div>
    <div class="tracking-event-message">Package arrived at a carrier facility</div>
  </div>
</div>
</body></html>`)
	require.Equal(t, source.KindSuccess, out.Kind)
	snap := out.Snapshot
	require.Equal(t, models.StatusInTransit, snap.Status)
	require.NotEmpty(t, snap.StatusRaw)
	require.NotNil(t, snap.EstimatedDeliveryAt)
	require.Equal(t, 28, snap.EstimatedDeliveryAt.Day())
}

// Голая ETA без статуса и событий — не обновление: последнее настоящее
// состояние в карточке важнее придуманного.
func TestFetch_ETAOnlyIsNoData(t *testing.T) {
	out := fetchTrackingHTML(t, `<html><body>
<div id="primaryStatus"><div class="milestone-secondaryMessage">Arriving 28.12.2025</div></div>
</body></html>`)
	require.Equal(t, source.KindNoData, out.Kind)
}

func TestFetch_SpanishTrackLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gp/your-account/order-details", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="/seguimiento/1">Rastrear paquete</a></body></html>`))
	})
	mux.HandleFunc("/seguimiento/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackingPage))
	})
	c := newTestClient(t, mux, &fakeSessions{blob: "s"})
	out, err := c.Fetch(context.Background(), "111-222")
	require.NoError(t, err)
	require.Equal(t, source.KindSuccess, out.Kind)
}
