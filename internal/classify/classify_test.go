package classify

import (
	"testing"
	"time"
)

func TestClassifyKinds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		text string
		kind Kind
	}{
		{"screener korean", "123456789012 계정 스캔해줘", KindScreener},
		{"screener english", "run the screener for my account", KindScreener},
		{"report korean", "2024년 8월 보안 보고서 123456789012", KindReport},
		{"report english", "monthly security report please", KindReport},
		{"cloudtrail who", "누가 인스턴스를 삭제했어?", KindCloudTrail},
		{"cloudtrail english", "show me the cloudtrail history", KindCloudTrail},
		{"cloudwatch alarm", "알람 상태 알려줘", KindCloudWatch},
		{"cloudwatch cpu", "cpu 사용률이 궁금해", KindCloudWatch},
		{"general fallthrough", "안녕하세요", KindGeneral},
		{"empty", "", KindGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, now)
			if got.Kind != tt.kind {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.text, got.Kind, tt.kind)
			}
		})
	}
}

func TestClassifyOrderScreenerBeatsReport(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	// Both a screener token and a report token present: rule 1 wins.
	got := Classify("보고서 말고 스캔 돌려줘", now)
	if got.Kind != KindScreener {
		t.Errorf("expected screener to win over report, got %s", got.Kind)
	}
}

func TestClassifyDeterministicLabel(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	inputs := []string{"스캔해줘", "보고서", "cloudtrail 이력", "알람", "hello"}
	labels := []string{"screener", "report", "cloudtrail", "cloudwatch", "general"}

	for i, text := range inputs {
		if got := Classify(text, now).Kind.String(); got != labels[i] {
			t.Errorf("Classify(%q) label = %q, want %q", text, got, labels[i])
		}
	}
}

func TestExtractAccountID(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare", "123456789012", "123456789012"},
		{"embedded in prose", "계정 123456789012 점검해줘", "123456789012"},
		{"thirteen digits rejected", "1234567890123 점검", ""},
		{"eleven digits rejected", "12345678901", ""},
		{"first of two", "210987654321 and 123456789012", "210987654321"},
		{"thirteen then twelve", "1234567890123 210987654321", "210987654321"},
		{"none", "점검해줘", ""},
		{"run at end", "account: 123456789012", "123456789012"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractAccountID(tt.text); got != tt.want {
				t.Errorf("ExtractAccountID(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseMonthExplicit(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name  string
		text  string
		year  int
		month time.Month
	}{
		{"korean year month", "2024년 8월 보고서", 2024, time.August},
		{"korean compact", "2024년8월", 2024, time.August},
		{"dash form", "2024-8 보고서", 2024, time.August},
		{"dash two digit", "2024-12", 2024, time.December},
		{"english month with year", "security report for august 2024", 2024, time.August},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, month := ParseMonth(tt.text, now)
			if year != tt.year || month != tt.month {
				t.Errorf("ParseMonth(%q) = %d-%d, want %d-%d", tt.text, year, month, tt.year, tt.month)
			}
		})
	}
}

func TestParseMonthNoYearUsesCurrentYear(t *testing.T) {
	now := time.Date(2025, 11, 10, 12, 0, 0, 0, time.Local)

	year, month := ParseMonth("8월 보고서", now)
	if year != 2025 || month != time.August {
		t.Errorf("expected 2025-08, got %d-%d", year, month)
	}
}

func TestParseMonthCurrentMonthRollsBack(t *testing.T) {
	// Asking for January while inside January: the month is incomplete, so
	// the window falls back to December of the prior year.
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.Local)

	year, month := ParseMonth("1월 보고서", now)
	if year != 2024 || month != time.December {
		t.Errorf("expected 2024-12, got %d-%d", year, month)
	}
}

func TestParseMonthDefaultPreviousMonth(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	year, month := ParseMonth("보고서 줘", now)
	if year != 2025 || month != time.February {
		t.Errorf("expected 2025-02, got %d-%d", year, month)
	}

	// January rolls into the prior year.
	now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.Local)
	year, month = ParseMonth("보고서 줘", now)
	if year != 2024 || month != time.December {
		t.Errorf("expected 2024-12, got %d-%d", year, month)
	}
}

func TestParseMonthRejectsAccountDigitsAsYear(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	// The 12-digit run must not contribute a year.
	year, month := ParseMonth("123456789012 8월 보고서", now)
	if year != 2025 || month != time.August {
		t.Errorf("expected 2025-08, got %d-%d", year, month)
	}
}

func TestClassifyReportCarriesWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

	got := Classify("2024년 8월 보안 보고서 123456789012", now)
	if got.Kind != KindReport {
		t.Fatalf("expected report, got %s", got.Kind)
	}
	if got.AccountID != "123456789012" {
		t.Errorf("expected account id, got %q", got.AccountID)
	}
	if got.Year != 2024 || got.Month != time.August {
		t.Errorf("expected 2024-08, got %d-%d", got.Year, got.Month)
	}
}

func TestMonthWindow(t *testing.T) {
	start, end := MonthWindow(2024, time.August, time.UTC)
	if !start.Equal(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %s", start)
	}
	if !end.Equal(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %s", end)
	}

	// February handles short months via date arithmetic
	start, end = MonthWindow(2024, time.February, time.UTC)
	if end.Sub(start) != 29*24*time.Hour {
		t.Errorf("expected leap February length, got %s", end.Sub(start))
	}
}
