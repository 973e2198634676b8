package classify

import (
	"regexp"
	"strings"
)

// Коды перевозчиков. Совпадают с carrier_code в БД и со slug-таблицей resolver'а.
const (
	CarrierAmazon      = "AMAZON"
	CarrierCainiao     = "CAINIAO"
	CarrierPostRU      = "POST_RU"
	CarrierBelpost     = "BELPOST"
	CarrierChinaPost   = "CHINA_POST"
	CarrierUPU         = "UPU"
	CarrierSPSR        = "SPSR"
	CarrierCDEK        = "CDEK"
	CarrierBoxberry    = "BOXBERRY"
)

type rule struct {
	re    *regexp.Regexp
	label string
}

// Порядок правил несёт смысл: правила с буквенными префиксами и длинными
// фиксированными началами идут раньше чисто числовых с широким диапазоном.
// Например, 10 цифр сами по себе неоднозначны, поэтому все узкие правила
// должны успеть сработать первыми. Хранится срезом, не map'ой.
var rules = []rule{
	{regexp.MustCompile(`^TBA\d{9,}$`), CarrierAmazon},
	{regexp.MustCompile(`^AMZN\w+$`), CarrierAmazon},
	{regexp.MustCompile(`^LP\d{14,16}$`), CarrierCainiao},
	{regexp.MustCompile(`^(?:YT|ZT)\d{13,16}$`), CarrierCainiao},
	{regexp.MustCompile(`^SP\d{8,12}$`), CarrierSPSR},
	// UPU S10: две буквы, 9 цифр, страна отправления.
	{regexp.MustCompile(`^[A-Z]{2}\d{9}RU$`), CarrierPostRU},
	{regexp.MustCompile(`^[A-Z]{2}\d{9}BY$`), CarrierBelpost},
	{regexp.MustCompile(`^[A-Z]{2}\d{9}CN$`), CarrierChinaPost},
	{regexp.MustCompile(`^[A-Z]{2}\d{9}[A-Z]{2}$`), CarrierUPU},
	// Широкие числовые правила — строго в конце.
	{regexp.MustCompile(`^\d{14}$`), CarrierPostRU},
	{regexp.MustCompile(`^\d{10}$`), CarrierCDEK},
	{regexp.MustCompile(`^\d{9}$`), CarrierBoxberry},
}

// Classify определяет перевозчика по трек-номеру. Чистая функция, без I/O.
// Вход триммится и приводится к верхнему регистру; первый матч выигрывает.
func Classify(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", false
	}
	for _, r := range rules {
		if r.re.MatchString(c) {
			return r.label, true
		}
	}
	return "", false
}

// IsMerchantCode — трек выглядит как номер маркетплейса (Amazon Logistics).
// Используется resolver'ом для выбора merchant-скрейпера.
func IsMerchantCode(code string) bool {
	label, ok := Classify(code)
	return ok && label == CarrierAmazon
}
