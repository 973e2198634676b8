// Package fetcher — оркестратор одной проверки: выбирает стратегию,
// придерживает лимит запросов к перевозчику, зовёт адаптер и при
// неудаче пробует запасной источник.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/TrackHub/internal/classify"
	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/resolver"
	"github.com/pkg/errors"
)

type strategyResolver interface {
	Resolve(ctx context.Context, carrierLabel, code string) (resolver.Strategy, error)
}

type carrierStore interface {
	UpdateCarrier(ctx context.Context, itemID uint64, carrierCode string) error
}

type carrierLimiter interface {
	AllowCarrier(ctx context.Context, carrierCode string, limit int64, window time.Duration) (bool, error)
}

// AggregatorSource — двухшаговый контракт агрегатора: идемпотентная
// регистрация под слагом, затем чтение под тем же слагом. Слаг на
// каждый вызов выбирает резолвер, не конструктор клиента.
type AggregatorSource interface {
	CreateTracking(ctx context.Context, code, slug, title string) error
	Fetch(ctx context.Context, slug, code string) (source.Outcome, error)
}

type Config struct {
	RateLimit  int64
	RateWindow time.Duration

	// CarrierLimits перекрывает RateLimit для отдельных перевозчиков
	// (ключ — каноническая метка).
	CarrierLimits map[string]int64
}

type Fetcher struct {
	resolver strategyResolver
	store    carrierStore
	limiter  carrierLimiter

	aggregator AggregatorSource
	merchant   source.Source
	direct     map[string]source.Source

	cfg Config
}

func New(
	res strategyResolver,
	store carrierStore,
	limiter carrierLimiter,
	aggregator AggregatorSource,
	merchant source.Source,
	direct map[string]source.Source,
	cfg Config,
) *Fetcher {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Fetcher{
		resolver:   res,
		store:      store,
		limiter:    limiter,
		aggregator: aggregator,
		merchant:   merchant,
		direct:     direct,
		cfg:        cfg,
	}
}

// Check выполняет одну проверку посылки. Вторым значением возвращается
// выбранная стратегия; для KindManual фетча не было и Outcome пуст.
// Ошибка — транзиентная, планировщик отодвинет следующую проверку.
func (f *Fetcher) Check(ctx context.Context, it *models.Item) (resolver.Strategy, source.Outcome, error) {
	st, err := f.resolver.Resolve(ctx, it.CarrierCode, it.TrackNumber)
	if err != nil {
		return resolver.Strategy{}, source.Outcome{}, errors.Wrap(err, "resolve strategy")
	}

	// Исправленную метку сохраняем до фетча: даже упавшая проверка
	// не заставит резолвить заново.
	if st.Carrier != "" && st.Carrier != it.CarrierCode {
		if err := f.store.UpdateCarrier(ctx, it.ID, st.Carrier); err != nil {
			return st, source.Outcome{}, errors.Wrap(err, "persist carrier")
		}
		it.CarrierCode = st.Carrier
	}

	if st.Kind == resolver.KindManual {
		return st, source.Outcome{}, nil
	}

	if f.limiter != nil {
		limit := f.cfg.RateLimit
		if v, ok := f.cfg.CarrierLimits[st.Carrier]; ok && v > 0 {
			limit = v
		}
		ok, err := f.limiter.AllowCarrier(ctx, st.Carrier, limit, f.cfg.RateWindow)
		if err != nil {
			return st, source.Outcome{}, errors.Wrap(err, "rate limiter")
		}
		if !ok {
			return st, source.Outcome{}, fmt.Errorf("carrier %s rate limited", st.Carrier)
		}
	}

	out, err := f.fetchPrimary(ctx, st, it)
	if err == nil && out.Kind == source.KindSuccess {
		return st, out, nil
	}
	if err == nil && out.Kind == source.KindLoginRequired {
		// Запасной источник не спасёт от протухшей сессии.
		return st, out, nil
	}

	if alt, ok := f.fetchFallback(ctx, st, it); ok {
		if altOut, altErr := alt(); altErr == nil && altOut.Kind == source.KindSuccess {
			return st, altOut, nil
		}
	}
	return st, out, err
}

func (f *Fetcher) fetchPrimary(ctx context.Context, st resolver.Strategy, it *models.Item) (source.Outcome, error) {
	switch st.Kind {
	case resolver.KindAggregator:
		if f.aggregator == nil {
			return source.Outcome{}, errors.New("aggregator source not configured")
		}
		if err := f.aggregator.CreateTracking(ctx, it.TrackNumber, st.Slug, it.Title); err != nil {
			return source.Outcome{}, err
		}
		return f.aggregator.Fetch(ctx, st.Slug, it.TrackNumber)
	case resolver.KindMerchant:
		if f.merchant == nil {
			return source.Outcome{}, errors.New("merchant source not configured")
		}
		return f.merchant.Fetch(ctx, it.TrackNumber)
	case resolver.KindDirect:
		src, ok := f.direct[st.CarrierID]
		if !ok {
			return source.Outcome{}, errors.Errorf("no direct source for %s", st.CarrierID)
		}
		return src.Fetch(ctx, it.TrackNumber)
	}
	return source.Outcome{}, errors.Errorf("unexpected strategy %s", st.Kind)
}

// fetchFallback подбирает запасной источник: прямой скрейпер падает —
// пробуем агрегатор, и наоборот.
func (f *Fetcher) fetchFallback(ctx context.Context, st resolver.Strategy, it *models.Item) (func() (source.Outcome, error), bool) {
	switch st.Kind {
	case resolver.KindDirect:
		slug := aggregatorSlug(st.CarrierID)
		if f.aggregator == nil || slug == "" {
			return nil, false
		}
		return func() (source.Outcome, error) {
			if err := f.aggregator.CreateTracking(ctx, it.TrackNumber, slug, it.Title); err != nil {
				return source.Outcome{}, err
			}
			return f.aggregator.Fetch(ctx, slug, it.TrackNumber)
		}, true
	case resolver.KindAggregator:
		src, ok := f.direct[directCarrier(st.Slug)]
		if !ok {
			return nil, false
		}
		return func() (source.Outcome, error) {
			return src.Fetch(ctx, it.TrackNumber)
		}, true
	}
	return nil, false
}

func aggregatorSlug(carrierID string) string {
	switch carrierID {
	case classify.CarrierCDEK:
		return "cdek"
	case classify.CarrierPostRU:
		return "russian-post"
	}
	return ""
}

func directCarrier(slug string) string {
	switch slug {
	case "cdek":
		return classify.CarrierCDEK
	case "russian-post":
		return classify.CarrierPostRU
	}
	return ""
}
