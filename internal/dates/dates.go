// Package dates разбирает даты из неразмеченного текста источников:
// ISO, русские/английские/испанские естественные форматы, числовые даты.
// Источники не сообщают локаль, поэтому паттерны пробуются по фиксованному
// приоритету, первый успешный выигрывает.
package dates

import (
	"strings"
	"time"
)

// Паттерны в порядке приоритета. Сначала однозначные (ISO), затем
// числовые с точками, затем естественные форматы по языкам.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	// Английские.
	"Monday, January 2, 2006",
	"Monday, January 2",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"2 January 2006 15:04",
	"2 January 2006, 15:04",
	"2 January 2006 3:04 PM",
	"2 January 2006",
	"Monday, 2 January 2006",
	"Monday, 2 January",
	"2 January",
	"January 2",
	// Русские и испанские приводятся к английским названиям месяцев
	// до разбора, поэтому отдельных layout'ов им не нужно.
}

// Родительный падеж русских месяцев и испанские месяцы → английские.
var monthAliases = map[string]string{
	"января": "January", "февраля": "February", "марта": "March",
	"апреля": "April", "мая": "May", "июня": "June", "июля": "July",
	"августа": "August", "сентября": "September", "октября": "October",
	"ноября": "November", "декабря": "December",
	"enero": "January", "febrero": "February", "marzo": "March",
	"abril": "April", "mayo": "May", "junio": "June", "julio": "July",
	"agosto": "August", "septiembre": "September", "octubre": "October",
	"noviembre": "November", "diciembre": "December",
}

var dayAliases = map[string]string{
	"понедельник": "Monday", "вторник": "Tuesday", "среда": "Wednesday",
	"четверг": "Thursday", "пятница": "Friday", "суббота": "Saturday",
	"воскресенье": "Sunday",
	"lunes": "Monday", "martes": "Tuesday", "miércoles": "Wednesday",
	"miercoles": "Wednesday", "jueves": "Thursday", "viernes": "Friday",
	"sábado": "Saturday", "sabado": "Saturday", "domingo": "Sunday",
}

// preNormalize приводит текст к виду, разбираемому английскими layout'ами:
// испанские меридиемы, месяцы и дни недели, служебное "de", регистр.
func preNormalize(text string) string {
	t := strings.TrimSpace(text)
	t = strings.Join(strings.Fields(t), " ")

	// "a. m." / "p. m." / "a.m." → AM/PM до любой другой обработки.
	repl := strings.NewReplacer(
		"a. m.", "AM", "p. m.", "PM",
		"a.m.", "AM", "p.m.", "PM",
	)
	lowWords := strings.Fields(t)
	for i, w := range lowWords {
		lw := strings.ToLower(strings.Trim(w, ",."))
		if lw == "" {
			continue
		}
		if m, ok := monthAliases[lw]; ok {
			lowWords[i] = strings.Replace(w, strings.Trim(w, ",."), m, 1)
			continue
		}
		if d, ok := dayAliases[lw]; ok {
			lowWords[i] = strings.Replace(w, strings.Trim(w, ",."), d, 1)
			continue
		}
		switch lw {
		case "de", "del":
			lowWords[i] = ""
		case "am", "a.m.":
			lowWords[i] = "AM"
		case "pm", "p.m.":
			lowWords[i] = "PM"
		default:
			// Английские месяцы/дни в нижнем регистре ("january 2").
			title := strings.ToUpper(lw[:1]) + lw[1:]
			if _, err := time.Parse("January", title); err == nil {
				lowWords[i] = strings.Replace(w, strings.Trim(w, ",."), title, 1)
			} else if _, err := time.Parse("Monday", title); err == nil {
				lowWords[i] = strings.Replace(w, strings.Trim(w, ",."), title, 1)
			}
		}
	}
	out := make([]string, 0, len(lowWords))
	for _, w := range lowWords {
		if w != "" {
			out = append(out, w)
		}
	}
	t = strings.Join(out, " ")
	t = repl.Replace(t)
	return t
}

// Parse разбирает текст даты. now нужен для подстановки года: если источник
// год не указал, берём текущий; получившаяся дата больше чем на сутки в
// будущем означает, что событие было в прошлом году (граница года).
// (zero, false) — только когда не подошёл ни один паттерн; вызывающий код
// обязан трактовать это как "подставь синтетический порядок", не как ошибку.
func Parse(text string, now time.Time) (time.Time, bool) {
	t := preNormalize(text)
	if t == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		parsed, err := time.Parse(layout, t)
		if err != nil {
			continue
		}
		if parsed.Year() == 0 {
			parsed = parsed.AddDate(now.Year(), 0, 0)
			if parsed.After(now.Add(24 * time.Hour)) {
				parsed = parsed.AddDate(-1, 0, 0)
			}
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}
