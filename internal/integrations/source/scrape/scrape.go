// Package scrape — общие помощники для HTML-скрейперов: выбор первого
// правдоподобного текста по списку селекторов и разбор встроенных
// structured-data блоков. Вёрстка апстримов меняется молча, поэтому
// кандидаты-селекторы всегда идут упорядоченным списком с fallback'ом.
package scrape

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Тексты, которые селектор может зацепить по ошибке вместо статуса.
var boilerplate = []string{
	"cookie", "javascript", "браузер", "browser", "подпишитесь", "реклама",
}

// Plausible — текст похож на осмысленный статус: непустой, не длиннее
// maxLen и не бойлерплейт.
func Plausible(text string, maxLen int) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) > maxLen {
		return false
	}
	low := strings.ToLower(t)
	for _, b := range boilerplate {
		if strings.Contains(low, b) {
			return false
		}
	}
	return true
}

// FirstText пробует селекторы по порядку и возвращает первый
// правдоподобный текст вместе с сработавшим селектором (для диагностики).
func FirstText(doc *goquery.Document, selectors []string, maxLen int) (string, string, bool) {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if Plausible(text, maxLen) {
			return text, sel, true
		}
	}
	return "", "", false
}

// JSONLD разбирает первый блок <script type="application/ld+json">.
func JSONLD(doc *goquery.Document) (map[string]any, bool) {
	var out map[string]any
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var m map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &m); err != nil {
			return true // битый блок — пробуем следующий
		}
		out = m
		found = true
		return false
	})
	return out, found
}

// Str достаёт строковое поле из разобранного JSON-LD.
func Str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
