// Package items_api — HTTP/JSON слой над сервисом посылок: создание и
// чтение карточек, ручные операции и загрузка сессии маркетплейса.
package items_api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/services/items"
	"github.com/go-chi/chi/v5"
)

// SessionStore — хранилище блоба сессии маркетплейса.
type SessionStore interface {
	Get(ctx context.Context) (string, bool, error)
	Put(ctx context.Context, blob string) error
	Invalidate(ctx context.Context) error
}

type ItemsAPI struct {
	svc      *items.Service
	sessions SessionStore
}

func New(svc *items.Service, sessions SessionStore) *ItemsAPI {
	return &ItemsAPI{svc: svc, sessions: sessions}
}

func (a *ItemsAPI) Routes(r chi.Router) {
	r.Post("/items", a.createItems)
	r.Get("/items", a.listItems)
	r.Get("/items/{id}", a.getItem)
	r.Get("/items/{id}/events", a.listItemEvents)
	r.Post("/items/{id}/refresh", a.refreshItem)
	r.Post("/items/{id}/archive", a.archiveItem)
	r.Post("/items/{id}/mute", a.muteItem)
	r.Post("/items/{id}/rename", a.renameItem)

	r.Put("/session", a.putSession)
	r.Delete("/session", a.deleteSession)
	r.Get("/session", a.sessionStatus)
}

type itemView struct {
	ID          uint64 `json:"id"`
	CarrierCode string `json:"carrierCode"`
	TrackNumber string `json:"trackNumber"`
	Title       string `json:"title,omitempty"`

	Status     string `json:"status"`
	StatusText string `json:"statusText"`
	StatusRaw  string `json:"statusRaw,omitempty"`

	StatusAt            *string `json:"statusAt,omitempty"`
	EstimatedDeliveryAt *string `json:"estimatedDeliveryAt,omitempty"`

	Archived bool `json:"archived"`
	Muted    bool `json:"muted"`

	LastCheckedAt  *string `json:"lastCheckedAt,omitempty"`
	NextCheckAt    string  `json:"nextCheckAt"`
	CheckFailCount int32   `json:"checkFailCount"`
	LastError      string  `json:"lastError,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type eventView struct {
	ID         uint64   `json:"id"`
	ItemID     uint64   `json:"itemId"`
	Status     string   `json:"status"`
	StatusText string   `json:"statusText,omitempty"`
	StatusRaw  string   `json:"statusRaw,omitempty"`
	EventTime  string   `json:"eventTime"`
	Location   string   `json:"location,omitempty"`
	Message    string   `json:"message,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

type createItemsRequest struct {
	Items []struct {
		CarrierCode string `json:"carrierCode"`
		TrackNumber string `json:"trackNumber"`
		Title       string `json:"title"`
	} `json:"items"`
}

func (a *ItemsAPI) createItems(w http.ResponseWriter, r *http.Request) {
	var req createItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	in := make([]models.ItemCreateInput, 0, len(req.Items))
	for _, it := range req.Items {
		in = append(in, models.ItemCreateInput{
			CarrierCode: it.CarrierCode,
			TrackNumber: it.TrackNumber,
			Title:       it.Title,
		})
	}
	created, err := a.svc.CreateItems(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toViews(created)})
}

func (a *ItemsAPI) listItems(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	got, err := a.svc.ListItems(r.Context(), includeArchived, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toViews(got)})
}

func (a *ItemsAPI) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	got, err := a.svc.GetItemsByIDs(r.Context(), []uint64{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(got) == 0 {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(got[0]))
}

func (a *ItemsAPI) listItemEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	evs, err := a.svc.ListItemEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]eventView, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventView{
			ID:         e.ID,
			ItemID:     e.ItemID,
			Status:     e.Status,
			StatusText: e.StatusText,
			StatusRaw:  e.StatusRaw,
			EventTime:  e.EventTime.Format(timeLayout),
			Location:   derefString(e.Location),
			Message:    derefString(e.Message),
			Lat:        e.Lat,
			Lon:        e.Lon,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *ItemsAPI) refreshItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.RefreshItem(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (a *ItemsAPI) archiveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Archived *bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Archived == nil {
		writeError(w, http.StatusBadRequest, "archived field is required")
		return
	}
	if err := a.svc.ArchiveItem(r.Context(), id, *req.Archived); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": *req.Archived})
}

func (a *ItemsAPI) muteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Muted *bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Muted == nil {
		writeError(w, http.StatusBadRequest, "muted field is required")
		return
	}
	if err := a.svc.MuteItem(r.Context(), id, *req.Muted); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"muted": *req.Muted})
}

func (a *ItemsAPI) renameItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := a.svc.RenameItem(r.Context(), id, req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": req.Title})
}

// putSession принимает блоб кук как есть (text/plain): формат задаёт
// скрейпер, API его не интерпретирует.
func (a *ItemsAPI) putSession(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.Put(r.Context(), string(blob)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": true})
}

func (a *ItemsAPI) deleteSession(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	if err := a.sessions.Invalidate(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": true})
}

func (a *ItemsAPI) sessionStatus(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	// Сам блоб наружу не отдаём, только факт наличия.
	_, ok, err := a.sessions.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"present": ok})
}

const timeLayout = time.RFC3339

func toViews(its []*models.Item) []itemView {
	out := make([]itemView, 0, len(its))
	for _, it := range its {
		out = append(out, toView(it))
	}
	return out
}

func toView(it *models.Item) itemView {
	v := itemView{
		ID:             it.ID,
		CarrierCode:    it.CarrierCode,
		TrackNumber:    it.TrackNumber,
		Title:          it.Title,
		Status:         it.Status,
		StatusText:     it.StatusText,
		StatusRaw:      it.StatusRaw,
		Archived:       it.Archived,
		Muted:          it.Muted,
		NextCheckAt:    it.NextCheckAt.Format(timeLayout),
		CheckFailCount: it.CheckFailCount,
		LastError:      derefString(it.LastError),
		CreatedAt:      it.CreatedAt.Format(timeLayout),
		UpdatedAt:      it.UpdatedAt.Format(timeLayout),
	}
	v.StatusAt = formatTimePtr(it.StatusAt)
	v.EstimatedDeliveryAt = formatTimePtr(it.EstimatedDeliveryAt)
	v.LastCheckedAt = formatTimePtr(it.LastCheckedAt)
	return v
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
