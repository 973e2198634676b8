// Package source задаёт общий контракт для всех источников трекинга:
// агрегатора, merchant-скрейпера и прямых скрейперов перевозчиков.
package source

import (
	"context"

	"github.com/BearBump/TrackHub/internal/models"
)

type Kind int

const (
	// KindSuccess — снапшот получен и заполнен.
	KindSuccess Kind = iota
	// KindLoginRequired — источник требует повторной авторизации.
	// Сессия уже инвалидирована, автоматический повтор запрещён.
	KindLoginRequired
	// KindNoData — источник отработал, но ничего разобрать не удалось.
	// Diagnostic обязан назвать, какие стратегии были испробованы:
	// вёрстка апстрима меняется молча, без диагноза починить нечего.
	KindNoData
)

// Outcome — результат одного фетча. Транспортные ошибки (таймаут, не-2xx,
// битое тело) сюда не попадают: адаптер возвращает их обычной ошибкой,
// и оркестратор классифицирует их как transient.
type Outcome struct {
	Kind       Kind
	Snapshot   *models.Snapshot
	Diagnostic string
}

type Source interface {
	Fetch(ctx context.Context, code string) (Outcome, error)
}

func Success(s *models.Snapshot) Outcome {
	return Outcome{Kind: KindSuccess, Snapshot: s}
}

func LoginRequired(diag string) Outcome {
	return Outcome{Kind: KindLoginRequired, Diagnostic: diag}
}

func NoData(diag string) Outcome {
	return Outcome{Kind: KindNoData, Diagnostic: diag}
}
