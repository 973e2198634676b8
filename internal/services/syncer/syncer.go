// Package syncer — фоновый цикл обновления посылок: забирает пачку
// due-посылок, параллельно прогоняет их через fetcher, пишет результат
// в хранилище и после полного завершения пачки строит уведомления.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackHub/internal/broker/messages"
	"github.com/BearBump/TrackHub/internal/integrations/source"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/BearBump/TrackHub/internal/normalize"
	"github.com/BearBump/TrackHub/internal/resolver"
	"github.com/BearBump/TrackHub/internal/storage/pgtracking"
)

type Repository interface {
	ClaimDueItems(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Item, error)
	ApplyItemUpdate(ctx context.Context, upd pgtracking.ItemUpdate) error
	MarkReminderSent(ctx context.Context, itemID uint64) error
}

type Checker interface {
	Check(ctx context.Context, it *models.Item) (resolver.Strategy, source.Outcome, error)
}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

// claimAttempts — повторы выборки пачки при сбое. После них цикл
// фиксирует постоянную ошибку и ждёт следующего тика.
const claimAttempts = 3

type NotifyConfig struct {
	Enabled       bool
	OnlyImportant bool
	Quiet         QuietHours
	// Topic — тема для интентов; пустое значение — тема по умолчанию.
	Topic string
}

// Категории, проходящие фильтр "только важное". LOGIN_REQUIRED сюда
// не входит: просьба перелогиниться — не движение посылки.
var importantStatuses = []string{
	models.StatusDelivered,
	models.StatusInTransit,
	models.StatusOutForDelivery,
	models.StatusException,
	models.StatusAttemptFail,
}

func isImportant(status string) bool {
	for _, s := range importantStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type Syncer struct {
	repo     Repository
	checker  Checker
	producer Producer

	planner *Planner
	notify  NotifyConfig

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalNotified       atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, checker Checker, producer Producer, notify NotifyConfig) *Syncer {
	return &Syncer{
		repo: repo, checker: checker, producer: producer,
		notify:       notify,
		planner:      DefaultPlanner(),
		pollInterval: 30 * time.Second,
		batchSize:    100,
		concurrency:  10,
		lease:        120 * time.Second,
		triggerCh:    make(chan struct{}, 1),

		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Syncer) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Syncer {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if lease > 0 {
		s.lease = lease
	}
	return s
}

func (s *Syncer) WithPlanner(cfg PlannerConfig) *Syncer {
	s.planner = NewPlanner(cfg, nil)
	return s
}

// Trigger принудительно запускает цикл (best-effort, без блокировки).
func (s *Syncer) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	TotalNotified  int64      `json:"totalNotified"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Syncer) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalClaimed:   s.totalClaimed.Load(),
		TotalProcessed: s.totalProcessed.Load(),
		TotalErrors:    s.totalErrors.Load(),
		TotalNotified:  s.totalNotified.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Syncer) setLastError(msg string) {
	s.lastErrorMu.Lock()
	s.lastError = msg
	s.lastErrorMu.Unlock()
}

func (s *Syncer) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

// candidate — кандидат на уведомление: канонический статус реально
// изменился с прошлого цикла.
type candidate struct {
	itemID      uint64
	title       string
	trackNumber string
	muted       bool

	status     string
	statusText string
}

type reminder struct {
	itemID      uint64
	title       string
	trackNumber string
	sameDay     bool
}

func (s *Syncer) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	var items []*models.Item
	var err error
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		items, err = s.repo.ClaimDueItems(ctx, now, s.batchSize, s.lease)
		if err == nil {
			break
		}
		slog.Warn("claim due items", "attempt", attempt, "error", err.Error())
		if attempt < claimAttempts {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
	}
	if err != nil {
		s.setLastError(err.Error())
		return
	}
	s.totalClaimed.Add(int64(len(items)))

	var mu sync.Mutex
	var cands []*candidate
	var rems []*reminder

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, it := range items {
		sem <- struct{}{}
		wg.Add(1)
		itCopy := it
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			cand, rem, err := s.processOne(ctx, itCopy)
			if err != nil {
				s.totalErrors.Add(1)
				s.setLastError(err.Error())
				slog.Error("process item", "item_id", itCopy.ID, "error", err.Error())
			}
			if cand != nil || rem != nil {
				mu.Lock()
				if cand != nil {
					cands = append(cands, cand)
				}
				if rem != nil {
					rems = append(rems, rem)
				}
				mu.Unlock()
			}
			s.totalProcessed.Add(1)
		}()
	}
	// Уведомления строим только после полного завершения пачки,
	// иначе summary будет врать про число изменений.
	wg.Wait()

	s.dispatch(ctx, now, cands, rems)
}

// processOne обновляет одну посылку. Ошибка любого рода никогда не
// роняет цикл: она записывается в карточку и в статистику.
func (s *Syncer) processOne(ctx context.Context, it *models.Item) (*candidate, *reminder, error) {
	strategy, out, ferr := s.checker.Check(ctx, it)
	now := time.Now().UTC()

	upd := pgtracking.ItemUpdate{
		ItemID:    it.ID,
		CheckedAt: now,
	}

	switch {
	case ferr != nil:
		e := ferr.Error()
		upd.Error = &e
		upd.NextCheckAt = now.Add(s.planner.BackoffDelay(it.CheckFailCount + 1))

	case strategy.Kind == resolver.KindManual:
		upd.Status = models.StatusManual
		upd.StatusText = normalize.Label(models.StatusManual)
		upd.StatusRaw = it.StatusRaw
		upd.StatusAt = it.StatusAt
		upd.EstimatedDeliveryAt = it.EstimatedDeliveryAt
		upd.KeepEvents = true
		upd.NextCheckAt = now.Add(s.planner.NextCheckDelay(models.StatusManual))

	case out.Kind == source.KindLoginRequired:
		upd.Status = models.StatusLoginRequired
		upd.StatusText = normalize.Label(models.StatusLoginRequired)
		upd.StatusRaw = out.Diagnostic
		upd.StatusAt = it.StatusAt
		upd.EstimatedDeliveryAt = it.EstimatedDeliveryAt
		upd.KeepEvents = true
		upd.NextCheckAt = now.Add(s.planner.NextCheckDelay(models.StatusLoginRequired))

	case out.Kind == source.KindNoData:
		// Пустота не затирает последнее известное состояние и не
		// ускоряет расписание.
		e := "no data: " + out.Diagnostic
		upd.Error = &e
		upd.NextCheckAt = now.Add(s.planner.NextCheckDelay(it.Status))

	default:
		snap := out.Snapshot
		upd.Status = snap.Status
		upd.StatusText = snap.StatusText
		upd.StatusRaw = snap.StatusRaw
		upd.StatusAt = snap.StatusAt
		upd.EstimatedDeliveryAt = snap.EstimatedDeliveryAt
		upd.Events = snap.Events
		upd.NextCheckAt = now.Add(s.planner.NextCheckDelay(snap.Status))
	}

	if err := s.repo.ApplyItemUpdate(ctx, upd); err != nil {
		return nil, nil, err
	}

	var cand *candidate
	if upd.Error == nil && (upd.Status != it.Status || upd.StatusText != it.StatusText) && upd.Status != models.StatusManual {
		cand = &candidate{
			itemID:      it.ID,
			title:       it.Title,
			trackNumber: it.TrackNumber,
			muted:       it.Muted,
			status:      upd.Status,
			statusText:  upd.StatusText,
		}
	}

	rem := s.reminderFor(it, upd, now)
	return cand, rem, nil
}

// reminderFor решает, пора ли напомнить о скорой доставке. Флаг
// reminder_sent одноразовый: его сбрасывает только новая ETA
// (это делает ApplyItemUpdate на стороне хранилища).
func (s *Syncer) reminderFor(it *models.Item, upd pgtracking.ItemUpdate, now time.Time) *reminder {
	if it.Muted || it.Archived {
		return nil
	}

	// Сбой цикла не отменяет уже назначенное напоминание: берём статус
	// и ETA из сохранённой карточки, флаг при этом не сбрасываем.
	status := upd.Status
	eta := upd.EstimatedDeliveryAt
	sent := it.ReminderSent
	if upd.Error != nil {
		status = it.Status
		eta = it.EstimatedDeliveryAt
	} else if !timePtrEqual(it.EstimatedDeliveryAt, eta) {
		sent = false
	}

	if status == models.StatusDelivered || status == models.StatusManual {
		return nil
	}
	if eta == nil || !eta.After(now) || eta.Sub(now) > 24*time.Hour {
		return nil
	}
	if sent {
		return nil
	}

	ey, em, ed := eta.Date()
	ny, nm, nd := now.Date()
	return &reminder{
		itemID:      it.ID,
		title:       it.Title,
		trackNumber: it.TrackNumber,
		sameDay:     ey == ny && em == nm && ed == nd,
	}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func displayName(title, trackNumber string) string {
	if title != "" {
		return title
	}
	return trackNumber
}

// dispatch применяет подавление и рассылает итоги цикла. Ровно один
// выживший кандидат — одиночное уведомление; два и больше — по одному
// на посылку плюс один summary. Summary без одиночных не бывает.
func (s *Syncer) dispatch(ctx context.Context, now time.Time, cands []*candidate, rems []*reminder) {
	if !s.notify.Enabled {
		return
	}

	kept := cands[:0]
	quiet := s.notify.Quiet.IsActiveAt(now)
	for _, c := range cands {
		if c.muted || quiet {
			continue
		}
		if s.notify.OnlyImportant && !isImportant(c.status) {
			continue
		}
		kept = append(kept, c)
	}

	for _, c := range kept {
		intent := messages.NotificationIntent{
			Kind:        messages.IntentStatusChange,
			ItemID:      c.itemID,
			Title:       c.title,
			TrackNumber: c.trackNumber,
			Status:      c.status,
			StatusText:  c.statusText,
			Body:        fmt.Sprintf("«%s»: %s", displayName(c.title, c.trackNumber), c.statusText),
			CreatedAt:   now,
		}
		if c.status == models.StatusLoginRequired {
			intent.Kind = messages.IntentLoginNeeded
			intent.Body = fmt.Sprintf("«%s»: нужно заново войти в аккаунт магазина", displayName(c.title, c.trackNumber))
		}
		s.publish(ctx, c.itemID, intent)
	}

	if len(kept) >= 2 {
		s.publish(ctx, 0, messages.NotificationIntent{
			Kind:      messages.IntentSummary,
			Body:      fmt.Sprintf("Обновлений по посылкам: %d", len(kept)),
			Count:     len(kept),
			CreatedAt: now,
		})
	}

	for _, r := range rems {
		word := "завтра"
		if r.sameDay {
			word = "сегодня"
		}
		intent := messages.NotificationIntent{
			Kind:        messages.IntentReminder,
			ItemID:      r.itemID,
			Title:       r.title,
			TrackNumber: r.trackNumber,
			Body:        fmt.Sprintf("«%s» должна прийти %s", displayName(r.title, r.trackNumber), word),
			CreatedAt:   now,
		}
		if !s.publish(ctx, r.itemID, intent) {
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, r.itemID); err != nil {
			s.totalErrors.Add(1)
			s.setLastError(err.Error())
			slog.Error("mark reminder sent", "item_id", r.itemID, "error", err.Error())
		}
	}
}

func (s *Syncer) publish(ctx context.Context, itemID uint64, intent messages.NotificationIntent) bool {
	key := fmt.Sprintf("%d", itemID)
	topic := s.notify.Topic
	if topic == "" {
		topic = messages.TopicNotificationIntent
	}
	if err := s.producer.PublishJSON(ctx, topic, key, intent); err != nil {
		s.totalErrors.Add(1)
		s.setLastError(err.Error())
		slog.Error("publish notification intent", "item_id", itemID, "error", err.Error())
		return false
	}
	s.totalNotified.Add(1)
	return true
}
