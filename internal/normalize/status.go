// Package normalize приводит статусы и свободный текст чекпоинтов от
// разношёрстных источников к единому словарю: категория + русский текст.
// Сырой апстрим-текст до БД не доходит, только результат нормализации.
package normalize

import "github.com/BearBump/TrackHub/internal/models"

// Закрытый словарь тегов агрегатора. Фиксированный 1:1 маппинг.
var tagTable = map[string]string{
	"Pending":            models.StatusPending,
	"InfoReceived":       models.StatusInfoReceived,
	"InTransit":          models.StatusInTransit,
	"OutForDelivery":     models.StatusOutForDelivery,
	"AttemptFail":        models.StatusAttemptFail,
	"AvailableForPickup": models.StatusOutForDelivery,
	"Exception":          models.StatusException,
	"Expired":            models.StatusExpired,
	"Delivered":          models.StatusDelivered,
}

var labelTable = map[string]string{
	models.StatusUnknown:        "Статус неизвестен",
	models.StatusPending:        "Ожидает регистрации",
	models.StatusInfoReceived:   "Информация получена",
	models.StatusInTransit:      "В пути",
	models.StatusOutForDelivery: "Передано курьеру",
	models.StatusAttemptFail:    "Неудачная попытка вручения",
	models.StatusException:      "Проблема с доставкой",
	models.StatusExpired:        "Отслеживание истекло",
	models.StatusDelivered:      "Доставлено",
	models.StatusLoginRequired:  "Требуется вход в аккаунт",
	models.StatusManual:         "Ручное отслеживание",
}

// Tag переводит тег агрегатора в (категория, русский текст).
// Неизвестный тег — UNKNOWN, тег при этом сохраняется как текст.
func Tag(tag string) (string, string) {
	if cat, ok := tagTable[tag]; ok {
		return cat, labelTable[cat]
	}
	if tag == "" {
		return models.StatusUnknown, labelTable[models.StatusUnknown]
	}
	return models.StatusUnknown, tag
}

// Label возвращает русский текст для категории.
func Label(category string) string {
	if l, ok := labelTable[category]; ok {
		return l
	}
	return labelTable[models.StatusUnknown]
}
