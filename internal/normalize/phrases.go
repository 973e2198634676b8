package normalize

import (
	"sort"
	"strings"

	"github.com/BearBump/TrackHub/internal/models"
)

// Маркеры того, что текст уже на русском — такой возвращаем без перевода.
var russianMarkers = []string{
	"достав", "вруч", "получ", "отправ", "прибы", "покину",
	"таможн", "сортиров", "ожида", "обработ", "курьер", "выдач",
	"хранен", "возврат", "передан",
}

type phrase struct {
	en string
	ru string
}

// Таблица фраз для свободного текста чекпоинтов. Порядок просмотра при
// contains-поиске — от длинной фразы к короткой, иначе голое "delivered"
// перехватит более специфичный перевод. Это не оптимизация, а корректность.
var phraseTable = []phrase{
	{"delivered to a neighbor", "Вручено соседу"},
	{"delivered to pickup point", "Доставлено в пункт выдачи"},
	{"delivered to mailbox", "Опущено в почтовый ящик"},
	{"package delivered", "Посылка доставлена"},
	{"delivered", "Доставлено"},
	{"out for delivery today", "Курьер доставит сегодня"},
	{"out for delivery", "Передано курьеру"},
	{"delivery attempt failed", "Неудачная попытка вручения"},
	{"delivery attempted", "Была попытка вручения"},
	{"customs clearance complete", "Таможенное оформление завершено"},
	{"customs clearance", "Таможенное оформление"},
	{"held at customs", "Задержано на таможне"},
	{"arrived at destination country", "Прибыло в страну назначения"},
	{"arrived at sorting center", "Прибыло в сортировочный центр"},
	{"arrived at", "Прибыло"},
	{"departed from", "Покинуло"},
	{"left the sorting center", "Покинуло сортировочный центр"},
	{"in transit to next facility", "В пути до следующего узла"},
	{"in transit", "В пути"},
	{"accepted by carrier", "Принято перевозчиком"},
	{"picked up by", "Забрал курьер"},
	{"picked up", "Забрано курьером"},
	{"shipment information received", "Информация об отправлении получена"},
	{"information received", "Информация получена"},
	{"label created", "Создана почтовая этикетка"},
	{"awaiting pickup", "Ожидает забора"},
	{"ready for pickup", "Готово к выдаче"},
	{"returned to sender", "Возвращено отправителю"},
	{"return to sender", "Возврат отправителю"},
	{"address not found", "Адрес не найден"},
	{"package lost", "Посылка утеряна"},
	{"package damaged", "Посылка повреждена"},
	{"handed to local post", "Передано местной почте"},
}

// containsOrder — индексы phraseTable, отсортированные по убыванию длины фразы.
var containsOrder = func() []int {
	idx := make([]int, len(phraseTable))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return len(phraseTable[idx[a]].en) > len(phraseTable[idx[b]].en)
	})
	return idx
}()

// Message переводит свободный текст чекпоинта/subtag'а в канонический вид.
// Порядок стратегий фиксирован: уже-русский текст → точное совпадение →
// совпадение по префиксу (хвост, например имя, приписывается через " — ") →
// contains по убыванию длины фразы → текст как есть.
func Message(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}
	low := strings.ToLower(t)

	for _, m := range russianMarkers {
		if strings.Contains(low, m) {
			return t
		}
	}

	for _, p := range phraseTable {
		if low == p.en {
			return p.ru
		}
	}

	for _, p := range phraseTable {
		if strings.HasPrefix(low, p.en) {
			rest := strings.TrimSpace(t[len(p.en):])
			rest = strings.TrimLeft(rest, ":,.- ")
			if rest == "" {
				return p.ru
			}
			return p.ru + " — " + rest
		}
	}

	for _, i := range containsOrder {
		p := phraseTable[i]
		if strings.Contains(low, p.en) {
			return p.ru
		}
	}

	return t
}

// Категория по каноническому (русскому) тексту. Вызывается строго после
// Message: авто-архив и фильтр важности не должны видеть сырой апстрим.
var categoryHints = []struct {
	sub string
	cat string
}{
	{"неудачная попытка", models.StatusAttemptFail},
	{"попытка вручения", models.StatusAttemptFail},
	{"доставит сегодня", models.StatusOutForDelivery},
	{"передано курьеру", models.StatusOutForDelivery},
	{"курьер выехал", models.StatusOutForDelivery},
	{"готово к выдаче", models.StatusOutForDelivery},
	{"доставлено", models.StatusDelivered},
	{"доставлена", models.StatusDelivered},
	{"вручено", models.StatusDelivered},
	{"получено адресатом", models.StatusDelivered},
	{"утеряна", models.StatusException},
	{"повреждена", models.StatusException},
	{"возврат", models.StatusException},
	{"возвращено", models.StatusException},
	{"задержано", models.StatusException},
	{"адрес не найден", models.StatusException},
	{"передано местной почте", models.StatusInTransit},
	{"информация об отправлении получена", models.StatusInfoReceived},
	{"информация получена", models.StatusInfoReceived},
	{"этикетка", models.StatusInfoReceived},
	{"ожидает регистрации", models.StatusPending},
	{"в пути", models.StatusInTransit},
	{"прибыло", models.StatusInTransit},
	{"покинуло", models.StatusInTransit},
	{"принято перевозчиком", models.StatusInTransit},
	{"забрано курьером", models.StatusInTransit},
	{"сортировочный", models.StatusInTransit},
	{"таможен", models.StatusInTransit},
}

// CategoryOf сопоставляет каноническому тексту категорию статуса.
func CategoryOf(text string) string {
	low := strings.ToLower(strings.TrimSpace(text))
	if low == "" {
		return models.StatusUnknown
	}
	for _, h := range categoryHints {
		if strings.Contains(low, h.sub) {
			return h.cat
		}
	}
	return models.StatusUnknown
}
