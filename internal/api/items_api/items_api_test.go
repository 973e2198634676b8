package items_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/services/items"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type repo struct {
	created []*models.Item
	listed  []*models.Item
	events  []*models.TrackingEvent

	archivedID uint64
	archived   bool
	mutedID    uint64
	renamed    string
	refreshed  uint64
}

func (r *repo) CreateOrGetItems(_ context.Context, _ []models.ItemCreateInput) ([]*models.Item, error) {
	return r.created, nil
}
func (r *repo) GetItemsByIDs(_ context.Context, _ []uint64) ([]*models.Item, error) {
	return r.created, nil
}
func (r *repo) ListItems(_ context.Context, _ bool, _, _ int) ([]*models.Item, error) {
	return r.listed, nil
}
func (r *repo) ListItemEvents(_ context.Context, _ uint64, _, _ int) ([]*models.TrackingEvent, error) {
	return r.events, nil
}
func (r *repo) RefreshItem(_ context.Context, id uint64) error { r.refreshed = id; return nil }
func (r *repo) SetArchived(_ context.Context, id uint64, v bool) error {
	r.archivedID, r.archived = id, v
	return nil
}
func (r *repo) SetMuted(_ context.Context, id uint64, _ bool) error { r.mutedID = id; return nil }
func (r *repo) RenameItem(_ context.Context, _ uint64, title string) error {
	r.renamed = title
	return nil
}

type fakeSessions struct {
	blob    string
	present bool
}

func (s *fakeSessions) Get(_ context.Context) (string, bool, error) { return s.blob, s.present, nil }
func (s *fakeSessions) Put(_ context.Context, blob string) error {
	if blob == "" {
		return errEmptyBlob
	}
	s.blob, s.present = blob, true
	return nil
}
func (s *fakeSessions) Invalidate(_ context.Context) error {
	s.blob, s.present = "", false
	return nil
}

var errEmptyBlob = errString("empty session blob")

type errString string

func (e errString) Error() string { return string(e) }

func newTestServer(r *repo, sess SessionStore) *httptest.Server {
	svc := items.New(r, nil, 0)
	api := New(svc, sess)
	router := chi.NewRouter()
	api.Routes(router)
	return httptest.NewServer(router)
}

func TestItemsAPI_Flow(t *testing.T) {
	now := time.Now().UTC()
	loc := "Москва"
	r := &repo{
		created: []*models.Item{{
			ID:          1,
			CarrierCode: "CDEK",
			TrackNumber: "1234567890",
			Status:      models.StatusInTransit,
			StatusText:  "В пути",
			NextCheckAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}},
		events: []*models.TrackingEvent{{
			ID:        10,
			ItemID:    1,
			Status:    models.StatusInTransit,
			EventTime: now,
			Location:  &loc,
		}},
	}
	srv := newTestServer(r, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`{"items":[{"carrierCode":"CDEK","trackNumber":"1234567890"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		Items []itemView `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	require.Len(t, created.Items, 1)
	require.Equal(t, uint64(1), created.Items[0].ID)
	require.Equal(t, "В пути", created.Items[0].StatusText)

	resp, err = http.Get(srv.URL + "/items/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one itemView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	_ = resp.Body.Close()
	require.Equal(t, "1234567890", one.TrackNumber)

	resp, err = http.Get(srv.URL + "/items/1/events")
	require.NoError(t, err)
	var evs struct {
		Events []eventView `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&evs))
	_ = resp.Body.Close()
	require.Len(t, evs.Events, 1)
	require.Equal(t, "Москва", evs.Events[0].Location)

	resp, err = http.Post(srv.URL+"/items/1/refresh", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, uint64(1), r.refreshed)
}

func TestItemsAPI_Mutations(t *testing.T) {
	r := &repo{}
	srv := newTestServer(r, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items/5/archive", "application/json",
		strings.NewReader(`{"archived":true}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, uint64(5), r.archivedID)
	require.True(t, r.archived)

	// Без поля archived — 400, репозиторий не трогаем.
	resp, err = http.Post(srv.URL+"/items/6/archive", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, uint64(5), r.archivedID)

	resp, err = http.Post(srv.URL+"/items/5/mute", "application/json",
		strings.NewReader(`{"muted":true}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, uint64(5), r.mutedID)

	resp, err = http.Post(srv.URL+"/items/5/rename", "application/json",
		strings.NewReader(`{"title":"Подарок"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, "Подарок", r.renamed)

	// Пустой title отклоняет сервис.
	resp, err = http.Post(srv.URL+"/items/5/rename", "application/json",
		strings.NewReader(`{"title":""}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Post(srv.URL+"/items/abc/refresh", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestItemsAPI_CreateValidation(t *testing.T) {
	srv := newTestServer(&repo{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`{"items":[]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Post(srv.URL+"/items", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestItemsAPI_Session(t *testing.T) {
	sess := &fakeSessions{}
	srv := newTestServer(&repo{}, sess)
	defer srv.Close()

	do := func(method, path, body string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := do(http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	_ = resp.Body.Close()
	require.False(t, st["present"])

	resp = do(http.MethodPut, "/session", "cookie-blob")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.Equal(t, "cookie-blob", sess.blob)

	resp = do(http.MethodPut, "/session", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = do(http.MethodDelete, "/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	require.False(t, sess.present)
}

func TestItemsAPI_SessionNotConfigured(t *testing.T) {
	srv := newTestServer(&repo{}, nil)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/session", strings.NewReader("x"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}
