package syncer

import (
	"math/rand"
	"time"

	"github.com/BearBump/TrackHub/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	ArchivedDelay time.Duration // default: 365 days, доставленные и протухшие

	ActiveMinDelay time.Duration // default: 30 minutes, посылка в движении
	ActiveMaxDelay time.Duration // default: 120 minutes

	IdleDelay time.Duration // default: 90 minutes, статус без движения

	LoginDelay time.Duration // default: 24 hours, ждём ручной реавторизации

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		ArchivedDelay: 365 * 24 * time.Hour,

		ActiveMinDelay: 30 * time.Minute,
		ActiveMaxDelay: 120 * time.Minute,

		IdleDelay: 90 * time.Minute,

		LoginDelay: 24 * time.Hour,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.ArchivedDelay <= 0 {
		cfg.ArchivedDelay = def.ArchivedDelay
	}
	if cfg.ActiveMinDelay <= 0 {
		cfg.ActiveMinDelay = def.ActiveMinDelay
	}
	if cfg.ActiveMaxDelay <= 0 {
		cfg.ActiveMaxDelay = def.ActiveMaxDelay
	}
	if cfg.ActiveMaxDelay < cfg.ActiveMinDelay {
		cfg.ActiveMaxDelay = cfg.ActiveMinDelay
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = def.IdleDelay
	}
	if cfg.LoginDelay <= 0 {
		cfg.LoginDelay = def.LoginDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

// NextCheckDelay — пауза до следующей проверки по категории статуса.
// Для движущихся посылок выбирается случайная точка в [min, max],
// чтобы не бить в источник строем.
func (p *Planner) NextCheckDelay(status string) time.Duration {
	switch status {
	case models.StatusDelivered, models.StatusExpired:
		return p.cfg.ArchivedDelay
	case models.StatusLoginRequired:
		return p.cfg.LoginDelay
	case models.StatusInTransit, models.StatusOutForDelivery, models.StatusAttemptFail:
		min := p.cfg.ActiveMinDelay
		max := p.cfg.ActiveMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	default:
		return p.cfg.IdleDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
