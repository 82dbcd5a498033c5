// Package timerange turns a dashboard time range into concrete instants and
// the query fragments used by the rendering session and the emailed link.
package timerange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/yourusername/report-generator/pkg/model"
)

// ErrInvalidPeriod is returned when a relative period has no parsable magnitude
var ErrInvalidPeriod = errors.New("invalid relative period")

// monthDays is the length used for any unit other than m/h/d/w.
// It is not calendar aware.
const monthDays = 30

// Window is a resolved time range
type Window struct {
	Start int64 // microseconds since epoch
	End   int64 // microseconds since epoch

	// SessionQuery is used by the live rendering session. For relative
	// ranges it names the period so the target app resolves "now" itself.
	SessionQuery string
	// EmailQuery uses concrete bounds so the link stays stable after sending.
	EmailQuery string
}

// Resolve converts tr into a Window relative to now
func Resolve(tr model.TimeRange, now time.Time) (Window, error) {
	switch v := tr.(type) {
	case model.RelativeRange:
		d, err := PeriodDuration(v.Period)
		if err != nil {
			return Window{}, err
		}
		end := now.UnixMicro()
		start := end - d.Microseconds()
		return Window{
			Start:        start,
			End:          end,
			SessionQuery: "period=" + v.Period,
			EmailQuery:   boundsQuery(start, end),
		}, nil

	case model.AbsoluteRange:
		q := boundsQuery(v.From, v.To)
		return Window{Start: v.From, End: v.To, SessionQuery: q, EmailQuery: q}, nil

	default:
		return Window{}, fmt.Errorf("unhandled time range %T", tr)
	}
}

// PeriodDuration parses "<n><unit>". Units m, h, d and w map to minutes,
// hours, days and weeks; any other trailing letter counts n blocks of 30 days.
func PeriodDuration(period string) (time.Duration, error) {
	if len(period) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	magnitude, unit := period[:len(period)-1], period[len(period)-1:]

	n, err := strconv.ParseInt(magnitude, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, period, err)
	}

	var per time.Duration
	switch unit {
	case "m":
		per = time.Minute
	case "h":
		per = time.Hour
	case "d":
		per = 24 * time.Hour
	case "w":
		per = 7 * 24 * time.Hour
	default:
		per = monthDays * 24 * time.Hour
	}
	if n < 0 || n > math.MaxInt64/int64(per) {
		return 0, fmt.Errorf("%w: %q: magnitude out of range", ErrInvalidPeriod, period)
	}
	return time.Duration(n) * per, nil
}

func boundsQuery(from, to int64) string {
	return fmt.Sprintf("from=%d&to=%d", from, to)
}
