// Package items — прикладной сервис над хранилищем: валидация и дедуп
// при создании, кэш карточек, ручные операции (архив, mute, переименование)
// и приём кандидатов на импорт из кафки.
package items

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackHub/internal/broker/messages"
	"github.com/BearBump/TrackHub/internal/cache"
	"github.com/BearBump/TrackHub/internal/classify"
	"github.com/BearBump/TrackHub/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrGetItems(ctx context.Context, inputs []models.ItemCreateInput) ([]*models.Item, error)
	GetItemsByIDs(ctx context.Context, ids []uint64) ([]*models.Item, error)
	ListItems(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Item, error)
	ListItemEvents(ctx context.Context, itemID uint64, limit, offset int) ([]*models.TrackingEvent, error)
	RefreshItem(ctx context.Context, itemID uint64) error
	SetArchived(ctx context.Context, itemID uint64, archived bool) error
	SetMuted(ctx context.Context, itemID uint64, muted bool) error
	RenameItem(ctx context.Context, itemID uint64, title string) error
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

func (s *Service) CreateItems(ctx context.Context, inputs []models.ItemCreateInput) ([]*models.Item, error) {
	if len(inputs) == 0 {
		return nil, errors.New("items is empty")
	}
	if len(inputs) > 10_000 {
		return nil, errors.New("too many items (max 10000)")
	}

	clean := make([]models.ItemCreateInput, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if in.TrackNumber == "" {
			return nil, errors.New("trackNumber is required")
		}
		// Перевозчик не обязателен: пробуем определить по коду,
		// не вышло — посылка заводится в ручном режиме.
		if in.CarrierCode == "" {
			if label, ok := classify.Classify(in.TrackNumber); ok {
				in.CarrierCode = label
			}
		}
		k := fmt.Sprintf("%s|%s", in.CarrierCode, in.TrackNumber)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		clean = append(clean, in)
	}

	return s.repo.CreateOrGetItems(ctx, clean)
}

func (s *Service) GetItemsByIDs(ctx context.Context, ids []uint64) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}
	// Кэшируем карточку целиком как JSON. Кэш best-effort: его отказ
	// не отказ запроса.
	miss := make([]uint64, 0, len(ids))
	got := make(map[uint64]*models.Item, len(ids))

	if s.cache != nil && s.currentTTL > 0 {
		for _, id := range ids {
			b, ok, err := s.cache.Get(ctx, currentKey(id))
			if err != nil || !ok {
				miss = append(miss, id)
				continue
			}
			var it models.Item
			if json.Unmarshal(b, &it) != nil {
				miss = append(miss, id)
				continue
			}
			got[id] = &it
		}
	} else {
		miss = ids
	}

	if len(miss) > 0 {
		fromDB, err := s.repo.GetItemsByIDs(ctx, miss)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.currentTTL > 0 {
			for _, it := range fromDB {
				b, _ := json.Marshal(it)
				_ = s.cache.Set(ctx, currentKey(it.ID), b, s.currentTTL)
			}
		}
		for _, it := range fromDB {
			got[it.ID] = it
		}
	}

	// Ответ в порядке запрошенных ids.
	out := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := got[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Service) ListItems(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Item, error) {
	return s.repo.ListItems(ctx, includeArchived, limit, offset)
}

func (s *Service) ListItemEvents(ctx context.Context, itemID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	return s.repo.ListItemEvents(ctx, itemID, limit, offset)
}

func (s *Service) RefreshItem(ctx context.Context, itemID uint64) error {
	if itemID == 0 {
		return errors.New("itemId is required")
	}
	if err := s.repo.RefreshItem(ctx, itemID); err != nil {
		return err
	}
	s.dropCache(ctx, itemID)
	return nil
}

func (s *Service) ArchiveItem(ctx context.Context, itemID uint64, archived bool) error {
	if itemID == 0 {
		return errors.New("itemId is required")
	}
	if err := s.repo.SetArchived(ctx, itemID, archived); err != nil {
		return err
	}
	s.dropCache(ctx, itemID)
	return nil
}

func (s *Service) MuteItem(ctx context.Context, itemID uint64, muted bool) error {
	if itemID == 0 {
		return errors.New("itemId is required")
	}
	if err := s.repo.SetMuted(ctx, itemID, muted); err != nil {
		return err
	}
	s.dropCache(ctx, itemID)
	return nil
}

func (s *Service) RenameItem(ctx context.Context, itemID uint64, title string) error {
	if itemID == 0 {
		return errors.New("itemId is required")
	}
	if title == "" {
		return errors.New("title is required")
	}
	if err := s.repo.RenameItem(ctx, itemID, title); err != nil {
		return err
	}
	s.dropCache(ctx, itemID)
	return nil
}

// HandleImportCandidate принимает кандидата из кафки. Мусорные кандидаты
// (пустой номер, нераспознанный код без подсказки) пропускаются с warn,
// а не ошибкой: ошибка остановила бы консюмер на одном плохом сообщении.
func (s *Service) HandleImportCandidate(ctx context.Context, c messages.ImportCandidate) error {
	if c.TrackNumber == "" {
		slog.Warn("import candidate skipped: empty track number")
		return nil
	}

	carrier := c.CarrierHint
	if carrier == "" {
		label, ok := classify.Classify(c.TrackNumber)
		if !ok {
			slog.Warn("import candidate skipped: unclassifiable", "track_number", c.TrackNumber)
			return nil
		}
		carrier = label
	}

	_, err := s.repo.CreateOrGetItems(ctx, []models.ItemCreateInput{
		{CarrierCode: carrier, TrackNumber: c.TrackNumber, Title: c.Title},
	})
	return errors.Wrap(err, "import candidate")
}

func (s *Service) dropCache(ctx context.Context, itemID uint64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, currentKey(itemID))
}

func currentKey(id uint64) string {
	return fmt.Sprintf("item:%d:current", id)
}
