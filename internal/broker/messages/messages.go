// Package messages — контракты кафка-топиков. Воркер публикует намерения
// уведомить, отдельный сервис доставки превращает их в пуши; API принимает
// кандидатов на импорт от внешних продюсеров (почтовый парсер и т.п.).
package messages

import "time"

const (
	TopicNotificationIntent = "notification.intent"
	TopicImportCandidates   = "import.candidates"
)

// Виды уведомлений. Summary всегда идёт в паре с индивидуальными
// сообщениями того же цикла, сам по себе он не появляется.
const (
	IntentStatusChange = "status_change"
	IntentSummary      = "summary"
	IntentReminder     = "reminder"
	IntentLoginNeeded  = "login_needed"
)

type NotificationIntent struct {
	Kind string `json:"kind"`

	ItemID      uint64 `json:"item_id,omitempty"`
	Title       string `json:"title,omitempty"`
	TrackNumber string `json:"track_number,omitempty"`

	Status     string `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`

	// Body — готовый текст уведомления на русском.
	Body string `json:"body"`

	// Count заполняется только для summary.
	Count int `json:"count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type ImportCandidate struct {
	TrackNumber string `json:"track_number"`
	CarrierHint string `json:"carrier_hint,omitempty"`
	Title       string `json:"title,omitempty"`
}
