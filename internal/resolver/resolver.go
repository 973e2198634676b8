// Package resolver выбирает стратегию получения данных для пары
// (метка перевозчика, трек-номер): агрегатор, скрейпер маркетплейса,
// прямой скрейпер перевозчика или ручное отслеживание.
package resolver

import (
	"context"
	"strings"

	"github.com/BearBump/TrackHub/internal/classify"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindAggregator Kind = "aggregator"
	KindMerchant   Kind = "merchant"
	KindDirect     Kind = "direct"
	KindManual     Kind = "manual"
)

// Strategy — результат резолва. Carrier — каноническая метка, которую
// вызывающий сохраняет вместо пользовательской, чтобы следующие
// обновления не резолвили заново.
type Strategy struct {
	Kind      Kind
	Slug      string // слаг агрегатора, для KindAggregator
	CarrierID string // идентификатор прямого скрейпера, для KindDirect
	Carrier   string // каноническая метка для персиста
}

// Detector — автоопределение перевозчика по коду. Реализуется
// клиентом агрегатора.
type Detector interface {
	DetectCouriers(ctx context.Context, code string) ([]string, error)
}

type entry struct {
	label string // нижний регистр
	slug  string
}

// Таблица метка→слаг: канонические идентификаторы плюс экранные
// синонимы, которые реально встречаются в пользовательском вводе.
// Слайс, а не map: порядок фиксирует приоритет при пересечении
// синонимов.
var slugTable = []entry{
	{"cdek", "cdek"},
	{"сдэк", "cdek"},
	{"сдек", "cdek"},
	{classify.CarrierCDEK, "cdek"},
	{"russian-post", "russian-post"},
	{"почта россии", "russian-post"},
	{"pochta", "russian-post"},
	{classify.CarrierPostRU, "russian-post"},
	{"cainiao", "cainiao"},
	{"aliexpress standard shipping", "cainiao"},
	{classify.CarrierCainiao, "cainiao"},
	{"belpost", "belpost"},
	{"белпочта", "belpost"},
	{classify.CarrierBelpost, "belpost"},
	{"china post", "china-post"},
	{"china-post", "china-post"},
	{classify.CarrierChinaPost, "china-post"},
	{"boxberry", "boxberry"},
	{"боксберри", "boxberry"},
	{classify.CarrierBoxberry, "boxberry"},
	{"spsr", "spsr"},
	{classify.CarrierSPSR, "spsr"},
	{"ems", "russian-post"},
	{classify.CarrierUPU, "russian-post"},
}

var merchantLabels = []string{
	"amazon",
	"amazon logistics",
	"amzl",
	classify.CarrierAmazon,
}

type Resolver struct {
	detector Detector
}

func New(detector Detector) *Resolver {
	return &Resolver{detector: detector}
}

// Resolve подбирает стратегию. Ошибку возвращает только при сбое
// автоопределения: откатываться в Manual из-за сетевого сбоя нельзя,
// Manual выключает автообновление насовсем.
func (r *Resolver) Resolve(ctx context.Context, carrierLabel, code string) (Strategy, error) {
	label := strings.ToLower(strings.TrimSpace(carrierLabel))

	for _, m := range merchantLabels {
		if label == strings.ToLower(m) {
			return Strategy{Kind: KindMerchant, Carrier: classify.CarrierAmazon}, nil
		}
	}
	if classify.IsMerchantCode(code) {
		return Strategy{Kind: KindMerchant, Carrier: classify.CarrierAmazon}, nil
	}

	slug := lookupSlug(label)
	if slug == "" {
		if cl, ok := classify.Classify(code); ok {
			slug = lookupSlug(cl)
		}
	}
	if slug == "" && r.detector != nil {
		detected, err := r.detector.DetectCouriers(ctx, code)
		if err != nil {
			return Strategy{}, errors.Wrap(err, "detect couriers")
		}
		// Принимаем только однозначный ответ: из нескольких кандидатов
		// выбрать нечего, лучше честный Manual.
		if len(detected) == 1 {
			slug = detected[0]
		}
	}

	if slug == "" {
		return Strategy{Kind: KindManual, Carrier: carrierLabel}, nil
	}

	// У этих перевозчиков агрегатор покрывает не все номера, свой
	// скрейпер надёжнее.
	switch slug {
	case "cdek":
		return Strategy{Kind: KindDirect, CarrierID: classify.CarrierCDEK, Carrier: classify.CarrierCDEK}, nil
	case "russian-post":
		return Strategy{Kind: KindDirect, CarrierID: classify.CarrierPostRU, Carrier: classify.CarrierPostRU}, nil
	}

	return Strategy{Kind: KindAggregator, Slug: slug, Carrier: slug}, nil
}

func lookupSlug(label string) string {
	if label == "" {
		return ""
	}
	for _, e := range slugTable {
		if strings.EqualFold(label, e.label) {
			return e.slug
		}
	}
	return ""
}
