package models

import "time"

// Нормализованные категории статусов (можно расширять).
// В БД попадает только категория + канонический текст из normalize,
// сырой апстрим-текст хранится отдельно в StatusRaw.
const (
	StatusUnknown        = "UNKNOWN"
	StatusPending        = "PENDING"
	StatusInfoReceived   = "INFO_RECEIVED"
	StatusInTransit      = "IN_TRANSIT"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusAttemptFail    = "ATTEMPT_FAIL"
	StatusException      = "EXCEPTION"
	StatusExpired        = "EXPIRED"
	StatusDelivered      = "DELIVERED"
	StatusLoginRequired  = "LOGIN_REQUIRED"
	StatusManual         = "MANUAL"
)

type Item struct {
	ID          uint64
	CarrierCode string
	TrackNumber string
	Title       string

	Status     string // категория (константы выше)
	StatusText string // канонический локализованный текст
	StatusRaw  string

	StatusAt            *time.Time
	EstimatedDeliveryAt *time.Time

	Archived     bool
	Muted        bool
	ReminderSent bool

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TrackingEvent struct {
	ID         uint64
	ItemID     uint64
	Status     string
	StatusText string
	StatusRaw  string
	EventTime  time.Time
	Location   *string
	Message    *string
	Lat        *float64
	Lon        *float64
	CreatedAt  time.Time
}

type ItemCreateInput struct {
	CarrierCode string
	TrackNumber string
	Title       string
}

// Snapshot — результат одного фетча. Никогда не пишется в БД как есть:
// fetcher превращает его в ItemUpdate, события при этом заменяются целиком.
type Snapshot struct {
	Status     string
	StatusText string
	StatusRaw  string
	StatusAt   *time.Time

	EstimatedDeliveryAt *time.Time

	Events []*TrackingEvent
}
