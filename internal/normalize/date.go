package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateRole classifies what a piece of date text refers to.
type DateRole int

// Roles recognized from surrounding keywords.
const (
	RoleUnknown DateRole = iota
	RoleOpening
	RoleClosing
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	// 31 Dec 2025, 31st December 2025
	dayMonthYear = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,9})\.?,?\s+(\d{4})\b`)
	// December 31, 2025
	monthDayYear = regexp.MustCompile(`\b([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	// 2025-12-31
	isoDate = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	// 31/12/2025 (day first)
	slashDate = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
)

var (
	closingKeywords = []string{"close", "closing", "deadline", "due", "end", "until", "by "}
	openingKeywords = []string{"open", "opening", "start", "commence", "begin", "from "}
)

// ParseDate finds the first recognizable date in free text. Unparsable
// or missing dates yield nil, never an error.
func ParseDate(text string) *time.Time {
	if text == "" {
		return nil
	}

	if m := isoDate.FindStringSubmatch(text); m != nil {
		return makeDate(m[1], m[3], monthFromNumber(m[2]))
	}
	if m := dayMonthYear.FindStringSubmatch(text); m != nil {
		if month, ok := months[monthKey(m[2])]; ok {
			return makeDate(m[3], m[1], month)
		}
	}
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		if month, ok := months[monthKey(m[1])]; ok {
			return makeDate(m[3], m[2], month)
		}
	}
	if m := slashDate.FindStringSubmatch(text); m != nil {
		return makeDate(m[3], m[1], monthFromNumber(m[2]))
	}
	return nil
}

// ClassifyDateText decides whether text is describing an opening or a
// closing date based on surrounding keywords.
func ClassifyDateText(text string) DateRole {
	lower := strings.ToLower(text)
	for _, kw := range closingKeywords {
		if strings.Contains(lower, kw) {
			return RoleClosing
		}
	}
	for _, kw := range openingKeywords {
		if strings.Contains(lower, kw) {
			return RoleOpening
		}
	}
	return RoleUnknown
}

func monthKey(name string) string {
	name = strings.ToLower(name)
	if len(name) > 3 {
		name = name[:3]
	}
	return name
}

func monthFromNumber(raw string) time.Month {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func makeDate(yearRaw, dayRaw string, month time.Month) *time.Time {
	if month == 0 {
		return nil
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		return nil
	}
	day, err := strconv.Atoi(dayRaw)
	if err != nil || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject rollovers like 31 Feb.
	if t.Day() != day || t.Month() != month {
		return nil
	}
	return &t
}
