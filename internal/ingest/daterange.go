package ingest

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

var ErrInvalidRange = errors.New("invalid date range")

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q: want YYYY-MM-DD", ErrInvalidRange, start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q: want YYYY-MM-DD", ErrInvalidRange, end)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, end, start)
	}
	return DateRange{Start: s, End: e}, nil
}

func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(DateLayout) }

// Days is the number of calendar dates in the range, both ends included.
// Both ends are parsed as UTC midnights, so whole-day Unix arithmetic is
// exact for any four-digit year.
func (r DateRange) Days() int {
	return int((r.End.Unix()-r.Start.Unix())/secondsPerDay) + 1
}

func (r DateRange) String() string {
	return r.StartDate() + ".." + r.EndDate()
}
