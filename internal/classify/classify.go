// Package classify decides what a user question is asking for. Pure
// functions, no I/O: ordered keyword rules over a lower-cased copy of the
// text, first match wins.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the question category.
type Kind int

const (
	KindGeneral Kind = iota
	KindReport
	KindScreener
	KindCloudTrail
	KindCloudWatch
)

func (k Kind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindScreener:
		return "screener"
	case KindCloudTrail:
		return "cloudtrail"
	case KindCloudWatch:
		return "cloudwatch"
	default:
		return "general"
	}
}

// Classification is the outcome of classifying one question.
type Classification struct {
	Kind      Kind
	AccountID string // empty when the text carries no 12-digit run
	Year      int    // report month window; zero unless Kind == KindReport
	Month     time.Month
}

// Ordered rule table. Earlier groups win over later ones.
var keywordRules = []struct {
	kind   Kind
	tokens []string
}{
	{KindScreener, []string{
		"screener", "스크리너", "스캔", "scan", "점검", "검사", "진단",
	}},
	{KindReport, []string{
		"보고서", "report", "리포트", "감사보고서", "보안보고서",
	}},
	{KindCloudTrail, []string{
		"cloudtrail", "추적", "누가", "언제", "활동", "이벤트", "로그인",
		"이력", "히스토리", "history",
		"생성했", "생성한", "만들었", "만든",
		"삭제했", "삭제한", "지웠", "지운",
		"변경했", "변경한", "수정했", "수정한",
		"종료했", "종료한", "중지했", "중지한",
	}},
	{KindCloudWatch, []string{
		"cloudwatch", "모니터링", "알람", "메트릭", "dashboard", "성능",
		"지표", "metric", "cpu", "메모리", "디스크",
	}},
}

// Classify categorises the question and extracts the account id and, for
// report questions, the target month. now anchors relative month defaults.
func Classify(text string, now time.Time) Classification {
	lower := strings.ToLower(text)

	c := Classification{Kind: KindGeneral, AccountID: ExtractAccountID(text)}
	for _, rule := range keywordRules {
		for _, token := range rule.tokens {
			if strings.Contains(lower, token) {
				c.Kind = rule.kind
				if c.Kind == KindReport {
					c.Year, c.Month = ParseMonth(text, now)
				}
				return c
			}
		}
	}
	return c
}

// ExtractAccountID returns the first run of exactly 12 consecutive digits.
// Longer runs are not account ids and are skipped whole.
func ExtractAccountID(text string) string {
	runStart := -1
	flush := func(end int) string {
		if runStart >= 0 && end-runStart == 12 {
			return text[runStart:end]
		}
		return ""
	}
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if id := flush(i); id != "" {
			return id
		}
		runStart = -1
	}
	return flush(len(text))
}

var (
	koreanYearMonthRe = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월`)
	dashYearMonthRe   = regexp.MustCompile(`(?:^|\D)(\d{4})[-./](\d{1,2})(?:\D|$)`)
	koreanMonthRe     = regexp.MustCompile(`(?:^|\D)(\d{1,2})월`)
	standaloneYearRe  = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)
	englishMonthRe    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\b`)
)

var englishMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ParseMonth extracts a (year, month) report window from the text.
// Accepted shapes: "2024년 8월", "2024-8", "8월", and English month names
// with an optional standalone four-digit year. Years are restricted to
// [1900, 2100] so digits inside an account id never read as a year.
//
// A month with no year uses the current year. If the result is the current,
// still-incomplete month — or no month was found at all — the previous
// calendar month is used.
func ParseMonth(text string, now time.Time) (int, time.Month) {
	year, month, ok := extractYearMonth(text)
	if !ok {
		return previousMonth(now)
	}
	if year == 0 {
		year = now.Year()
	}
	if year == now.Year() && month == now.Month() {
		return previousMonth(now)
	}
	return year, month
}

func extractYearMonth(text string) (int, time.Month, bool) {
	if m := koreanYearMonthRe.FindStringSubmatch(text); m != nil {
		if year, month, ok := numericYearMonth(m[1], m[2]); ok {
			return year, month, true
		}
	}
	if m := dashYearMonthRe.FindStringSubmatch(text); m != nil {
		if year, month, ok := numericYearMonth(m[1], m[2]); ok {
			return year, month, true
		}
	}
	if m := koreanMonthRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			return extractStandaloneYear(text), time.Month(n), true
		}
	}
	if m := englishMonthRe.FindStringSubmatch(text); m != nil {
		return extractStandaloneYear(text), englishMonths[strings.ToLower(m[1])], true
	}
	return 0, 0, false
}

func numericYearMonth(yearStr, monthStr string) (int, time.Month, bool) {
	year, _ := strconv.Atoi(yearStr)
	month, _ := strconv.Atoi(monthStr)
	if year < 1900 || year > 2100 || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

func extractStandaloneYear(text string) int {
	for _, m := range standaloneYearRe.FindAllStringSubmatch(text, -1) {
		if year, err := strconv.Atoi(m[1]); err == nil && year >= 1900 && year <= 2100 {
			return year
		}
	}
	return 0
}

func previousMonth(now time.Time) (int, time.Month) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}

// MonthWindow returns the [start, end) bounds of the given month in loc.
func MonthWindow(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
