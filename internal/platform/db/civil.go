package db

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateValue encodes a calendar date for a DATE column.
func DateValue(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

// NullDateValue encodes an optional calendar date.
func NullDateValue(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return DateValue(*d)
}

// DateFrom decodes a DATE column. NULL yields the zero date.
func DateFrom(pd pgtype.Date) civil.Date {
	if !pd.Valid {
		return civil.Date{}
	}
	return civil.DateOf(pd.Time)
}

// NullDateFrom decodes a nullable DATE column.
func NullDateFrom(pd pgtype.Date) *civil.Date {
	if !pd.Valid {
		return nil
	}
	d := civil.DateOf(pd.Time)
	return &d
}

// TimeValue encodes a wall-clock time for a TIME column.
func TimeValue(t civil.Time) pgtype.Time {
	us := int64(t.Hour)*int64(time.Hour/time.Microsecond) +
		int64(t.Minute)*int64(time.Minute/time.Microsecond) +
		int64(t.Second)*int64(time.Second/time.Microsecond) +
		int64(t.Nanosecond)/1000
	return pgtype.Time{Microseconds: us, Valid: true}
}

// TimeFrom decodes a TIME column.
func TimeFrom(pt pgtype.Time) civil.Time {
	us := pt.Microseconds
	h := us / int64(time.Hour/time.Microsecond)
	us -= h * int64(time.Hour/time.Microsecond)
	m := us / int64(time.Minute/time.Microsecond)
	us -= m * int64(time.Minute/time.Microsecond)
	s := us / int64(time.Second/time.Microsecond)
	us -= s * int64(time.Second/time.Microsecond)
	return civil.Time{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(us * 1000)}
}
