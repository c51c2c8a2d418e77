package alarm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// DateLayout is the wire and storage layout of Alarm.Date.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire and storage layout of Alarm.Time.
	TimeLayout = "15:04"
)

// ErrInvalidAlarm is returned when a date or time does not follow the expected layout.
var ErrInvalidAlarm = errors.New("invalid alarm")

// Alarm is a single wake-up entry. Its identity is the (Date, Time) pair.
type Alarm struct {
	// Date is the calendar day in DateLayout.
	Date string `json:"date"`
	// Time is the hour and minute in TimeLayout.
	Time string `json:"time"`
}

// New validates the provided date and time and returns the normalized alarm.
func New(date, clock string) (Alarm, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	parsedDate, err := time.Parse(DateLayout, date)
	if err != nil {
		return Alarm{}, fmt.Errorf("%w: date %q: %w", ErrInvalidAlarm, date, err)
	}

	parsedTime, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return Alarm{}, fmt.Errorf("%w: time %q: %w", ErrInvalidAlarm, clock, err)
	}

	return Alarm{
		Date: parsedDate.Format(DateLayout),
		Time: parsedTime.Format(TimeLayout),
	}, nil
}

// At returns the alarm that would match the minute containing t, in t's location.
func At(t time.Time) Alarm {
	return Alarm{
		Date: t.Format(DateLayout),
		Time: t.Format(TimeLayout),
	}
}

// Validate reports whether the alarm follows the storage layouts exactly.
func (a Alarm) Validate() error {
	normalized, err := New(a.Date, a.Time)
	if err != nil {
		return err
	}

	if normalized != a {
		return fmt.Errorf("%w: %s is not normalized", ErrInvalidAlarm, a)
	}

	return nil
}

// In returns the instant the alarm fires in the provided location.
func (a Alarm) In(loc *time.Location) (time.Time, error) {
	instant, err := time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidAlarm, err)
	}

	return instant, nil
}

// String renders the alarm as "date time".
func (a Alarm) String() string {
	return a.Date + " " + a.Time
}

// Compare orders alarms chronologically. The layouts sort lexicographically.
func Compare(a, b Alarm) int {
	return strings.Compare(a.String(), b.String())
}

// List is a device's alarms in insertion order.
type List []Alarm

// Contains reports whether the list holds an alarm equal to a.
func (l List) Contains(a Alarm) bool {
	return slices.Contains(l, a)
}

// Matching returns the alarms that fire in the minute containing now.
func (l List) Matching(now time.Time) List {
	current := At(now)

	var matched List

	for _, entry := range l {
		if entry == current {
			matched = append(matched, entry)
		}
	}

	return matched
}

// Without returns a copy of the list with every entry equal to one of the removed alarms dropped,
// together with the number of dropped entries.
func (l List) Without(removed List) (List, int) {
	kept := make(List, 0, len(l))

	for _, entry := range l {
		if removed.Contains(entry) {
			continue
		}

		kept = append(kept, entry)
	}

	return kept, len(l) - len(kept)
}

// Sorted returns a chronologically sorted copy of the list.
func (l List) Sorted() List {
	sorted := l.Clone()
	slices.SortStableFunc(sorted, Compare)

	return sorted
}

// Clone returns a copy of the list. A nil list stays nil.
func (l List) Clone() List {
	if l == nil {
		return nil
	}

	return slices.Clone(l)
}
