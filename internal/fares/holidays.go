package fares

import (
	"fmt"
	"strings"
	"time"
)

// HolidayCalendar reports whether a calendar date carries the holiday surcharge.
type HolidayCalendar interface {
	HolidayName(date time.Time) (string, bool)
}

// FederalCalendar recognizes US federal holidays on their actual dates plus
// any configured extra dates (YYYY-MM-DD).
type FederalCalendar struct {
	extra map[string]string
}

// NewFederalCalendar parses the extra dates. An entry may carry a label as
// "2025-12-24=Christmas Eve".
func NewFederalCalendar(extraDates []string) (*FederalCalendar, error) {
	cal := &FederalCalendar{extra: map[string]string{}}
	for _, raw := range extraDates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		day, label, _ := strings.Cut(raw, "=")
		day = strings.TrimSpace(day)
		if _, err := time.Parse(time.DateOnly, day); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", raw, err)
		}
		label = strings.TrimSpace(label)
		if label == "" {
			label = "Holiday"
		}
		cal.extra[day] = label
	}
	return cal, nil
}

// HolidayName checks the date as seen in its own location.
func (c *FederalCalendar) HolidayName(date time.Time) (string, bool) {
	if c != nil {
		if label, ok := c.extra[date.Format(time.DateOnly)]; ok {
			return label, true
		}
	}
	return federalHoliday(date.Year(), date.Month(), date.Day())
}

func federalHoliday(year int, month time.Month, day int) (string, bool) {
	switch month {
	case time.January:
		if day == 1 {
			return "New Year's Day", true
		}
		if day == nthWeekday(year, month, time.Monday, 3) {
			return "Martin Luther King Jr. Day", true
		}
	case time.February:
		if day == nthWeekday(year, month, time.Monday, 3) {
			return "Presidents' Day", true
		}
	case time.May:
		if day == lastWeekday(year, month, time.Monday) {
			return "Memorial Day", true
		}
	case time.June:
		if day == 19 && year >= 2021 {
			return "Juneteenth", true
		}
	case time.July:
		if day == 4 {
			return "Independence Day", true
		}
	case time.September:
		if day == nthWeekday(year, month, time.Monday, 1) {
			return "Labor Day", true
		}
	case time.October:
		if day == nthWeekday(year, month, time.Monday, 2) {
			return "Columbus Day", true
		}
	case time.November:
		if day == 11 {
			return "Veterans Day", true
		}
		if day == nthWeekday(year, month, time.Thursday, 4) {
			return "Thanksgiving Day", true
		}
	case time.December:
		if day == 25 {
			return "Christmas Day", true
		}
	}
	return "", false
}

// nthWeekday returns the day of month of the nth given weekday.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return 1 + offset + (n-1)*7
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.Day() - offset
}
