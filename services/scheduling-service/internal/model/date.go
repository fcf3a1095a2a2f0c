package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
)

const DateLayout = "2006-01-02"

// Date is a calendar day in the clinic's timezone, without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// At returns the instant minute minutes after midnight of d in loc. Minutes past
// 24:00 roll into the next day.
func (d Date) At(minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minute, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.At(0, time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Span is the whole day [midnight, next midnight) in loc.
func (d Date) Span(loc *time.Location) interval.Interval {
	return interval.New(d.At(0, loc), d.AddDays(1).At(0, loc))
}

// DatesTouched lists every calendar day in loc that shares an instant with iv.
func DatesTouched(iv interval.Interval, loc *time.Location) []Date {
	if iv.Empty() {
		return []Date{DateOf(iv.Start.In(loc))}
	}
	first := DateOf(iv.Start.In(loc))
	last := DateOf(iv.End.Add(-time.Nanosecond).In(loc))
	var out []Date
	for d := first; !last.Before(d); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
