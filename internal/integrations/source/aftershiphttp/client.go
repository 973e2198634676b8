// Package aftershiphttp — адаптер мультиперевозчикового агрегатора.
// Двухшаговый протокол: create-tracking (идемпотентный), затем get-tracking-info.
package aftershiphttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/TrackHub/internal/dates"
	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/normalize"
	"github.com/pkg/errors"
)

// Код "tracking already exists" в meta агрегатора. Документированное
// приближение: другая ошибка с тем же кодом будет принята за дубликат,
// но следующий же get-tracking-info упадёт явно.
const codeAlreadyExists = 4003

type Client struct {
	baseURL string
	apiKey  string
	slug    string
	httpc   *http.Client

	now func() time.Time
}

func New(baseURL, apiKey, slug string) *Client {
	if baseURL == "" {
		baseURL = "https://api.aftership.com/v4"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		slug:    slug,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

type metaBlock struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type checkpoint struct {
	Tag           string `json:"tag"`
	Subtag        string `json:"subtag"`
	SubtagMessage string `json:"subtag_message"`
	Message       string `json:"message"`
	Location      string `json:"location"`
	CheckpointAt  string `json:"checkpoint_time"`
	Lat           *float64 `json:"coordinates_lat,omitempty"`
	Lon           *float64 `json:"coordinates_lon,omitempty"`
}

type trackingBody struct {
	Tag              string       `json:"tag"`
	SubtagMessage    string       `json:"subtag_message"`
	ExpectedDelivery string       `json:"expected_delivery"`
	Checkpoints      []checkpoint `json:"checkpoints"`
}

type getResp struct {
	Meta metaBlock `json:"meta"`
	Data struct {
		Tracking trackingBody `json:"tracking"`
	} `json:"data"`
}

type detectResp struct {
	Meta metaBlock `json:"meta"`
	Data struct {
		Couriers []struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"couriers"`
	} `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "marshal body")
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("aftership-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decode")
		}
	}
	return resp.StatusCode, nil
}

// CreateTracking регистрирует трек у агрегатора. Ответ "уже существует" —
// это успех, не ошибка: create идемпотентный по построению.
func (c *Client) CreateTracking(ctx context.Context, code, slug, title string) error {
	body := map[string]any{
		"tracking": map[string]any{
			"tracking_number": code,
			"slug":            slug,
			"title":           title,
		},
	}
	var r struct {
		Meta metaBlock `json:"meta"`
	}
	status, err := c.do(ctx, http.MethodPost, "/trackings", body, &r)
	if err != nil {
		return err
	}
	if status/100 == 2 {
		return nil
	}
	if r.Meta.Code == codeAlreadyExists {
		return nil
	}
	return fmt.Errorf("aggregator create http %d meta %d: %s", status, r.Meta.Code, r.Meta.Message)
}

// DetectCouriers — авто-определение перевозчика по сырому коду.
func (c *Client) DetectCouriers(ctx context.Context, code string) ([]string, error) {
	body := map[string]any{
		"tracking": map[string]any{"tracking_number": code},
	}
	var r detectResp
	status, err := c.do(ctx, http.MethodPost, "/couriers/detect", body, &r)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("aggregator detect http %d", status)
	}
	slugs := make([]string, 0, len(r.Data.Couriers))
	for _, cr := range r.Data.Couriers {
		slugs = append(slugs, cr.Slug)
	}
	return slugs, nil
}

// Fetch читает состояние трека под конкретным слагом. Слаг приходит от
// резолвера на каждый вызов: один клиент обслуживает все перевозчики
// агрегатора. Регистрация — отдельный шаг (CreateTracking).
func (c *Client) Fetch(ctx context.Context, slug, code string) (source.Outcome, error) {
	if slug == "" {
		slug = c.slug
	}

	var r getResp
	status, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/trackings/%s/%s", url.PathEscape(slug), url.PathEscape(code)), nil, &r)
	if err != nil {
		return source.Outcome{}, err
	}
	if status == http.StatusNotFound {
		return source.NoData(fmt.Sprintf("aggregator: tracking not found under slug %s", slug)), nil
	}
	if status/100 != 2 {
		return source.Outcome{}, fmt.Errorf("aggregator get http %d meta %d", status, r.Meta.Code)
	}

	tr := r.Data.Tracking
	now := c.now()

	cat, text := normalize.Tag(tr.Tag)
	if tr.SubtagMessage != "" {
		text = normalize.Message(tr.SubtagMessage)
	}

	snap := &models.Snapshot{
		Status:     cat,
		StatusText: text,
		StatusRaw:  tr.Tag,
		StatusAt:   &now,
	}
	if tr.ExpectedDelivery != "" {
		if t, ok := dates.Parse(tr.ExpectedDelivery, now); ok {
			snap.EstimatedDeliveryAt = &t
		}
	}

	for i, cp := range tr.Checkpoints {
		msg := cp.Message
		if cp.SubtagMessage != "" {
			msg = cp.SubtagMessage
		}
		evCat, evText := normalize.Tag(cp.Tag)
		if msg != "" {
			evText = normalize.Message(msg)
			if cp.Tag == "" {
				evCat = normalize.CategoryOf(evText)
			}
		}

		// Агрегатор не всегда отдаёт время чекпоинта. Подставляем
		// монотонно убывающую заглушку по индексу: относительный
		// порядок сохраняется, абсолютное время теряется честно.
		evTime := now.Add(-time.Duration(i) * time.Minute)
		if cp.CheckpointAt != "" {
			if t, ok := dates.Parse(cp.CheckpointAt, now); ok {
				evTime = t
			}
		}

		ev := &models.TrackingEvent{
			Status:     evCat,
			StatusText: evText,
			StatusRaw:  cp.Tag,
			EventTime:  evTime,
			Lat:        cp.Lat,
			Lon:        cp.Lon,
		}
		if cp.Location != "" {
			loc := cp.Location
			ev.Location = &loc
		}
		if msg != "" {
			m := evText
			ev.Message = &m
		}
		snap.Events = append(snap.Events, ev)
	}

	return source.Success(snap), nil
}
