// Package amazonscrape — скрейпер заказов маркетплейса с авторизованной
// сессией. Сессия (cookie-блоб) снимается отдельным инструментом и живёт в
// session store; при признаках разлогина адаптер её инвалидирует и выходит —
// повторную авторизацию делает пользователь, не мы.
package amazonscrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TrackHub/internal/dates"
	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/integrations/source/scrape"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/normalize"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

type SessionStore interface {
	Get(ctx context.Context) (string, bool, error)
	Invalidate(ctx context.Context) error
}

type Client struct {
	baseURL  string
	sessions SessionStore
	httpc    *http.Client

	now func() time.Time
}

func New(baseURL string, sessions SessionStore) *Client {
	if baseURL == "" {
		baseURL = "https://www.amazon.com"
	}
	return &Client{
		baseURL:  baseURL,
		sessions: sessions,
		httpc: &http.Client{
			Timeout: 20 * time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Варианты текста ссылки "отследить посылку". Минимум английский и
// испанский, плюс брендированные варианты Amazon Logistics.
var trackLinkTexts = []string{
	"track package",
	"track your package",
	"track parcel",
	"rastrear paquete",
	"rastrear el paquete",
	"seguir paquete",
	"ver seguimiento",
}

var trackLinkHrefHints = []string{
	"/progress-tracker/",
	"/ship-track",
	"/gp/css/shiptrack",
}

const maxStatusLen = 120

var statusSelectors = []string{
	"#primaryStatus .milestone-primaryMessage",
	"#primaryStatus h1",
	".pt-status-main-status",
	".js-progress-tracker .milestone-primaryMessage",
	".progress-tracker-summary .a-size-medium",
}

var etaSelectors = []string{
	"#primaryStatus .milestone-secondaryMessage",
	".pt-promise-main-slot",
	".promise-message",
}

func (c *Client) get(ctx context.Context, rawURL, session string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Cookie", session)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("merchant http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse html")
	}
	return doc, resp.Request.URL.String(), nil
}

func isSignInPage(finalURL string, doc *goquery.Document) bool {
	if strings.Contains(finalURL, "/ap/signin") {
		return true
	}
	if doc.Find(`form[name="signIn"]`).Length() > 0 {
		return true
	}
	return doc.Find("#ap_email, #ap_password").Length() > 0
}

func (c *Client) Fetch(ctx context.Context, code string) (source.Outcome, error) {
	session, ok, err := c.sessions.Get(ctx)
	if err != nil {
		return source.Outcome{}, errors.Wrap(err, "session store")
	}
	if !ok || session == "" {
		return source.LoginRequired("merchant: no captured session"), nil
	}

	orderURL := fmt.Sprintf("%s/gp/your-account/order-details?orderID=%s", c.baseURL, url.QueryEscape(code))
	doc, finalURL, err := c.get(ctx, orderURL, session)
	if err != nil {
		return source.Outcome{}, err
	}
	if isSignInPage(finalURL, doc) {
		if err := c.sessions.Invalidate(ctx); err != nil {
			return source.Outcome{}, errors.Wrap(err, "invalidate session")
		}
		return source.LoginRequired("merchant: sign-in redirect on order page"), nil
	}

	trackURL, ok := findTrackLink(doc, c.baseURL)
	if !ok {
		return source.NoData("merchant: order page fetched, no track-package link (tried text + href hints)"), nil
	}

	tdoc, finalURL, err := c.get(ctx, trackURL, session)
	if err != nil {
		return source.Outcome{}, err
	}
	if isSignInPage(finalURL, tdoc) {
		if err := c.sessions.Invalidate(ctx); err != nil {
			return source.Outcome{}, errors.Wrap(err, "invalidate session")
		}
		return source.LoginRequired("merchant: sign-in redirect on tracking page"), nil
	}

	return c.parseTrackingPage(tdoc)
}

func findTrackLink(doc *goquery.Document, baseURL string) (string, bool) {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, ok := s.Attr("href")
		if !ok {
			return true
		}
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		for _, want := range trackLinkTexts {
			if text == want {
				href = h
				return false
			}
		}
		for _, hint := range trackLinkHrefHints {
			if strings.Contains(h, hint) {
				href = h
				return false
			}
		}
		return true
	})
	if href == "" {
		return "", false
	}
	if strings.HasPrefix(href, "http") {
		return href, true
	}
	return baseURL + href, true
}

func (c *Client) parseTrackingPage(doc *goquery.Document) (source.Outcome, error) {
	now := c.now()

	statusText, _, ok := scrape.FirstText(doc, statusSelectors, maxStatusLen)
	var snap *models.Snapshot
	if ok {
		text := normalize.Message(statusText)
		snap = &models.Snapshot{
			Status:     normalize.CategoryOf(text),
			StatusText: text,
			StatusRaw:  statusText,
			StatusAt:   &now,
		}
	}

	var eta *time.Time
	if etaText, _, ok := scrape.FirstText(doc, etaSelectors, 160); ok {
		if t, ok := dates.Parse(stripETAPrefix(etaText), now); ok {
			eta = &t
		}
	}

	var events []*models.TrackingEvent
	doc.Find("#tracking-events-container .tracking-event, .tracking-event").Each(func(i int, s *goquery.Selection) {
		msg := strings.TrimSpace(s.Find(".tracking-event-message").First().Text())
		if !scrape.Plausible(msg, 200) {
			return
		}
		loc := strings.TrimSpace(s.Find(".tracking-event-location").First().Text())
		rawDate := strings.TrimSpace(s.Find(".tracking-event-date, .tracking-event-time").First().Text())

		text := normalize.Message(msg)
		evTime := now.Add(-time.Duration(i) * time.Minute)
		if t, ok := dates.Parse(rawDate, now); ok {
			evTime = t
		}

		ev := &models.TrackingEvent{
			Status:     normalize.CategoryOf(text),
			StatusText: text,
			StatusRaw:  msg,
			EventTime:  evTime,
		}
		if loc != "" {
			l := loc
			ev.Location = &l
		}
		m := text
		ev.Message = &m
		events = append(events, ev)
	})

	// Одна лишь ETA без статуса и таймлайна — не состояние: придуманный
	// UNKNOWN затёр бы последний настоящий статус в карточке.
	if snap == nil && len(events) == 0 {
		return source.NoData("merchant: tracking page fetched, no status header, no progress label, no timeline rows"), nil
	}
	if snap == nil {
		// Статусного заголовка нет, но таймлайн есть — берём верхнее событие.
		snap = &models.Snapshot{
			Status:     events[0].Status,
			StatusText: events[0].StatusText,
			StatusRaw:  events[0].StatusRaw,
			StatusAt:   &now,
		}
	}
	snap.EstimatedDeliveryAt = eta
	snap.Events = events
	return source.Success(snap), nil
}

// "Arriving Thursday", "Llega el jueves" и т.п. — отрезаем вводные слова,
// dates.Parse остаётся только сама дата.
func stripETAPrefix(s string) string {
	low := strings.ToLower(s)
	for _, p := range []string{"arriving", "expected by", "llega el", "llega", "entrega estimada:", "ожидается"} {
		if strings.HasPrefix(low, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}
