// Package market handles exchange-session awareness: trading days,
// regular-trading-hours windows, and the session-phase code C1 stamps
// onto every bar.
//
// Design rules carried over from the equities calendar this package
// generalizes from:
//   - System must know if today is a trading day.
//   - System must know the current session phase from wall-clock time
//     in the exchange's own time zone — never UTC-shifted assumptions.
//   - One central Calendar module, holiday data injected, not hardcoded.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/onebar-systems/onebar/internal/bardata"
)

// Session describes one instrument's regular-trading-hours window and
// the narrower windows used to derive a session phase. All fields are
// wall-clock times in the exchange's own location.
type Session struct {
	Location *time.Location

	OpenHour, OpenMin   int
	CloseHour, CloseMin int

	// OpeningNoTradeMinutes is the width of the no-trade window right
	// after the open (PhaseOpeningNoTrade).
	OpeningNoTradeMinutes int

	// LunchStart/LunchEnd bound the lunch void window (PhaseLunch).
	LunchStartHour, LunchStartMin int
	LunchEndHour, LunchEndMin     int

	// ClosingWindowMinutes is the width of the pre-close window
	// (PhaseClosing), e.g. the last 15 minutes of RTH.
	ClosingWindowMinutes int
}

// DefaultCMESession models a CME-equity-index-future-style day session
// in US/Eastern: 09:30-16:00, a 5 minute opening no-trade window, a
// lunch void 12:00-13:00, and a 15 minute closing window.
func DefaultCMESession() Session {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Session{
		Location:              loc,
		OpenHour:              9,
		OpenMin:               30,
		CloseHour:             16,
		CloseMin:              0,
		OpeningNoTradeMinutes: 5,
		LunchStartHour:        12,
		LunchStartMin:         0,
		LunchEndHour:          13,
		LunchEndMin:           0,
		ClosingWindowMinutes:  15,
	}
}

// Calendar provides exchange calendar and session-phase information.
type Calendar struct {
	session  Session
	holidays map[string]string // date (YYYY-MM-DD) -> reason
}

// HolidayEntry represents a single exchange holiday.
type HolidayEntry struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// NewCalendar creates a Calendar for the given session from a JSON
// holiday file (an array of HolidayEntry).
func NewCalendar(session Session, holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}

	return &Calendar{session: session, holidays: holidays}, nil
}

// NewCalendarFromHolidays builds a Calendar directly from a holiday map.
// Useful for tests and for operators without a holiday file yet.
func NewCalendarFromHolidays(session Session, holidays map[string]string) *Calendar {
	if holidays == nil {
		holidays = map[string]string{}
	}
	return &Calendar{session: session, holidays: holidays}
}

// Session returns the calendar's configured session window.
func (c *Calendar) Session() Session { return c.session }

// IsTradingDay returns true if the given date is a weekday that is not
// an exchange holiday, evaluated in the exchange's own time zone.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(c.session.Location)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, isHoliday := c.holidays[d.Format("2006-01-02")]
	return !isHoliday
}

// HolidayReason returns the reason for a holiday, or "" if not a holiday.
func (c *Calendar) HolidayReason(date time.Time) string {
	return c.holidays[date.In(c.session.Location).Format("2006-01-02")]
}

func (c *Calendar) openTime(t time.Time) time.Time {
	t = t.In(c.session.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), c.session.OpenHour, c.session.OpenMin, 0, 0, c.session.Location)
}

func (c *Calendar) closeTime(t time.Time) time.Time {
	t = t.In(c.session.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), c.session.CloseHour, c.session.CloseMin, 0, 0, c.session.Location)
}

// IsMarketOpen returns true if `now` falls within the RTH window on a
// trading day.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(c.session.Location)
	if !c.IsTradingDay(t) {
		return false
	}
	return !t.Before(c.openTime(t)) && t.Before(c.closeTime(t))
}

// MinutesSinceOpen returns elapsed RTH minutes, clipped to 0 before open.
func (c *Calendar) MinutesSinceOpen(now time.Time) float64 {
	t := now.In(c.session.Location)
	d := t.Sub(c.openTime(t)).Minutes()
	if d < 0 {
		return 0
	}
	return d
}

// MinutesUntilClose returns minutes remaining until RTH close, clipped
// to 0 after close.
func (c *Calendar) MinutesUntilClose(now time.Time) float64 {
	t := now.In(c.session.Location)
	d := c.closeTime(t).Sub(t).Minutes()
	if d < 0 {
		return 0
	}
	return d
}

// Phase derives the session-phase code from wall-clock time in the
// exchange's location. It never consults UTC.
func (c *Calendar) Phase(now time.Time) bardata.SessionPhase {
	t := now.In(c.session.Location)

	if !c.IsTradingDay(t) {
		return bardata.PhasePreMarket
	}

	open := c.openTime(t)
	closeT := c.closeTime(t)

	if t.Before(open) {
		return bardata.PhasePreMarket
	}
	if !t.Before(closeT) {
		return bardata.PhasePostRTH
	}

	noTradeEnd := open.Add(time.Duration(c.session.OpeningNoTradeMinutes) * time.Minute)
	if t.Before(noTradeEnd) {
		return bardata.PhaseOpeningNoTrade
	}

	lunchStart := time.Date(t.Year(), t.Month(), t.Day(), c.session.LunchStartHour, c.session.LunchStartMin, 0, 0, c.session.Location)
	lunchEnd := time.Date(t.Year(), t.Month(), t.Day(), c.session.LunchEndHour, c.session.LunchEndMin, 0, 0, c.session.Location)
	if !t.Before(lunchStart) && t.Before(lunchEnd) {
		return bardata.PhaseLunch
	}

	closingStart := closeT.Add(-time.Duration(c.session.ClosingWindowMinutes) * time.Minute)
	if !t.Before(closingStart) {
		return bardata.PhaseClosing
	}

	if t.Before(lunchStart) {
		return bardata.PhaseMidMorning
	}
	return bardata.PhaseAfternoon
}

// WithinExitWindow reports whether `now` is within `windowMinutes` of
// RTH close on a trading day — the runner's session-exit rule (spec
// §4.9 step 5).
func (c *Calendar) WithinExitWindow(now time.Time, windowMinutes int) bool {
	if !c.IsTradingDay(now) {
		return false
	}
	return c.MinutesUntilClose(now) <= float64(windowMinutes) && c.IsMarketOpen(now)
}

// NextTradingDay returns the next trading day after the given date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	candidate := date.In(c.session.Location).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
