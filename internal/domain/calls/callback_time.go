package calls

import (
	"strconv"
	"strings"
	"time"
)

const (
	callbackDateTimeLayout = "2006-01-02 15:04"
	defaultCallbackDelay   = time.Hour
	tomorrowDefaultHour    = 10
)

// ParseCallbackTime turns a spoken callback time into an instant in now's
// location. Accepted forms are "today", "today HH:MM", "tomorrow",
// "tomorrow HH:MM" and "YYYY-MM-DD HH:MM". Anything else means an hour
// from now.
func ParseCallbackTime(raw string, now time.Time) time.Time {
	fallback := now.Add(defaultCallbackDelay)
	lower := strings.ToLower(strings.TrimSpace(raw))

	days, rest, relative := cutDayWord(lower)
	if !relative {
		t, err := time.ParseInLocation(callbackDateTimeLayout, lower, now.Location())
		if err != nil {
			return fallback
		}
		return t
	}

	day := now.AddDate(0, 0, days)
	if rest == "" {
		if days == 0 {
			return fallback
		}
		return atClock(day, tomorrowDefaultHour, 0)
	}
	hour, minute, ok := parseHourMinute(rest)
	if !ok {
		return fallback
	}
	return atClock(day, hour, minute)
}

// cutDayWord finds "tomorrow" or "today" in s and returns the day offset it
// names with the word removed from s.
func cutDayWord(s string) (int, string, bool) {
	for _, w := range []struct {
		word string
		days int
	}{{"tomorrow", 1}, {"today", 0}} {
		if before, after, found := strings.Cut(s, w.word); found {
			return w.days, strings.TrimSpace(before + after), true
		}
	}
	return 0, "", false
}

func parseHourMinute(s string) (int, int, bool) {
	h, m, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
