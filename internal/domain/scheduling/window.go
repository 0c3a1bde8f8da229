package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// Layouts for the preferred date and time columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	MaxDaysAhead = 90
	openingTime  = "09:00"
	closingTime  = "18:00"
)

const (
	msgBadDate = "Incorrect date format, should be YYYY-MM-DD"
	msgBadTime = "Incorrect time format, should be HH:MM"
)

func parseDate(s string) (time.Time, bool) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	return d, err == nil
}

// parseClock returns s normalized to zero-padded HH:MM.
func parseClock(s string) (string, bool) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return t.Format(TimeLayout), true
}

// ValidateAppointmentTime checks that date (YYYY-MM-DD) and clock (HH:MM)
// fall on a day between today and MaxDaysAhead days from now, inside opening
// hours. Both ends of the opening hours are bookable.
func ValidateAppointmentTime(date, clock string, now time.Time) error {
	d, ok := parseDate(date)
	if !ok {
		return &ValidationError{Problems: []string{msgBadDate}}
	}
	hm, ok := parseClock(clock)
	if !ok {
		return &ValidationError{Problems: []string{msgBadTime}}
	}

	now = now.In(time.Local)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if d.Before(today) {
		return &ValidationError{Problems: []string{"Appointment date cannot be in the past"}}
	}
	if d.After(today.AddDate(0, 0, MaxDaysAhead)) {
		return &ValidationError{Problems: []string{
			fmt.Sprintf("Appointment date cannot be more than %d days in the future", MaxDaysAhead),
		}}
	}
	// Zero-padded HH:MM compares correctly as a string.
	if hm < openingTime || hm > closingTime {
		return &ValidationError{Problems: []string{"Appointment time must be between 9:00 AM and 6:00 PM"}}
	}
	return nil
}
