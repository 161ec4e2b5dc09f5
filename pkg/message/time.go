package message

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

const fallbackTimeLayout = "2006-01-02 15:04:05"

// FormattedTime is an instant rendered with the session's locale and offset.
type FormattedTime struct {
	Timestamp float64 `json:"timestamp"`
	Date      bool    `json:"date"`
	Time      bool    `json:"time"`
	Seconds   bool    `json:"seconds"`
	Timezone  bool    `json:"timezone"`
	ISO       bool    `json:"iso"`
}

// NewFormattedTime shows date, time with seconds and the timezone by default.
func NewFormattedTime(t time.Time) FormattedTime {
	return FormattedTime{
		Timestamp: float64(t.UnixNano()) / float64(time.Second),
		Date:      true,
		Time:      true,
		Seconds:   true,
		Timezone:  true,
	}
}

// Instant converts the timestamp back to a time.Time.
func (f FormattedTime) Instant() time.Time {
	sec, frac := math.Modf(f.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func (FormattedTime) Kind() Kind { return KindFormattedTime }

func (f FormattedTime) Render(rc RenderContext) string {
	loc := localeOf(rc)
	if loc == nil {
		return f.Instant().Local().Format(fallbackTimeLayout)
	}

	offset := rc.TimezoneOffset()
	instant := f.Instant().In(time.FixedZone("", int(offset/time.Second)))

	parts := make([]string, 0, 2)
	if f.Date {
		key := "time.date.format"
		if f.ISO {
			key = "time.date.iso.format"
		}
		parts = append(parts, loc.T(key, nil))
	}
	if f.Time {
		key := "time.time.nosec.format"
		if f.Seconds {
			key = "time.time.format"
		}
		parts = append(parts, loc.T(key, nil))
	}

	text, err := strftime.Format(strings.Join(parts, " "), instant)
	if err != nil {
		text = instant.Format(fallbackTimeLayout)
	}

	if f.Timezone {
		text = strings.TrimSpace(text + " " + utcLabel(offset))
	}

	return text
}

func (FormattedTime) isElement() {}

func utcLabel(offset time.Duration) string {
	if offset == 0 {
		return "(UTC)"
	}

	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}

	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	if minutes == 0 {
		return fmt.Sprintf("(UTC%s%d)", sign, hours)
	}

	return fmt.Sprintf("(UTC%s%d:%02d)", sign, hours, minutes)
}
