// Package pochtahtml — прямой скрейпер публичного отслеживания Почты России.
// Та же двухступенчатая схема, что и у cdekhtml: JSON-LD, затем селекторы.
package pochtahtml

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

type Client struct {
	baseURL string
	httpc   *http.Client

	now func() time.Time
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.pochta.ru"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

const maxStatusLen = 100

var statusSelectors = []string{
	".tracking-card__header-status",
	".track-result__status",
	"#result .operation-status",
	".tracking-page h1 + .status",
}

func (c *Client) Fetch(ctx context.Context, code string) (source.Outcome, error) {
	u := fmt.Sprintf("%s/tracking?barcode=%s", c.baseURL, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return source.Outcome{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return source.Outcome{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return source.Outcome{}, fmt.Errorf("pochta http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return source.Outcome{}, errors.Wrap(err, "parse html")
	}

	now := c.now()

	if snap, ok := c.fromJSONLD(doc, now); ok {
		c.attachEvents(doc, snap, now)
		return source.Success(snap), nil
	}

	statusText, _, ok := scrape.FirstText(doc, statusSelectors, maxStatusLen)
	if !ok {
		return source.NoData(fmt.Sprintf(
			"pochta: no ld+json block, no status via selectors %s", strings.Join(statusSelectors, ", "))), nil
	}

	text := normalize.Message(statusText)
	snap := &models.Snapshot{
		Status:     normalize.CategoryOf(text),
		StatusText: text,
		StatusRaw:  statusText,
		StatusAt:   &now,
	}
	c.attachEvents(doc, snap, now)
	if len(snap.Events) == 0 && snap.Status == models.StatusUnknown {
		return source.NoData("pochta: status text implausible and history empty"), nil
	}
	return source.Success(snap), nil
}

func (c *Client) fromJSONLD(doc *goquery.Document, now time.Time) (*models.Snapshot, bool) {
	m, ok := scrape.JSONLD(doc)
	if !ok {
		return nil, false
	}
	if scrape.Str(m, "@type") != "ParcelDelivery" {
		return nil, false
	}

	raw := scrape.Str(m, "deliveryStatus")
	tag := raw
	if i := strings.LastIndex(tag, "/"); i >= 0 {
		tag = tag[i+1:]
	}
	cat, text := normalize.Tag(tag)
	if cat == models.StatusUnknown && tag != "" {
		return nil, false
	}

	snap := &models.Snapshot{
		Status:     cat,
		StatusText: text,
		StatusRaw:  raw,
		StatusAt:   &now,
	}
	if eta := scrape.Str(m, "expectedArrivalUntil"); eta != "" {
		if t, ok := dates.Parse(eta, now); ok {
			snap.EstimatedDeliveryAt = &t
		}
	}
	return snap, true
}

func (c *Client) attachEvents(doc *goquery.Document, snap *models.Snapshot, now time.Time) {
	doc.Find(".tracking-card__history-item, table.operations tbody tr").Each(func(i int, s *goquery.Selection) {
		msg := strings.TrimSpace(s.Find(".tracking-card__history-status, td.operation").First().Text())
		if !scrape.Plausible(msg, 160) {
			return
		}
		loc := strings.TrimSpace(s.Find(".tracking-card__history-place, td.place").First().Text())
		rawDate := strings.TrimSpace(s.Find(".tracking-card__history-date, td.date").First().Text())

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
		snap.Events = append(snap.Events, ev)
	})
}
