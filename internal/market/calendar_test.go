package market

import (
	"testing"
	"time"

	"github.com/onebar-systems/onebar/internal/bardata"
)

func testCalendar() *Calendar {
	return NewCalendarFromHolidays(DefaultCMESession(), map[string]string{
		"2024-07-04": "Independence Day",
	})
}

func at(t *testing.T, layout, value string) time.Time {
	t.Helper()
	loc := DefaultCMESession().Location
	tm, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tm
}

func TestPhaseTransitions(t *testing.T) {
	cal := testCalendar()
	cases := []struct {
		name string
		time string
		want bardata.SessionPhase
	}{
		{"pre-market", "2024-07-08 08:00", bardata.PhasePreMarket},
		{"opening-no-trade", "2024-07-08 09:32", bardata.PhaseOpeningNoTrade},
		{"mid-morning", "2024-07-08 10:15", bardata.PhaseMidMorning},
		{"lunch", "2024-07-08 12:30", bardata.PhaseLunch},
		{"afternoon", "2024-07-08 14:00", bardata.PhaseAfternoon},
		{"closing", "2024-07-08 15:50", bardata.PhaseClosing},
		{"post-rth", "2024-07-08 16:30", bardata.PhasePostRTH},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := cal.Phase(at(t, "2006-01-02 15:04", c.time))
			if got != c.want {
				t.Errorf("Phase() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestHolidayIsNotATradingDay(t *testing.T) {
	cal := testCalendar()
	holiday := at(t, "2006-01-02 15:04", "2024-07-04 10:00")
	if cal.IsTradingDay(holiday) {
		t.Error("expected holiday to not be a trading day")
	}
}

func TestWithinExitWindow(t *testing.T) {
	cal := testCalendar()
	near := at(t, "2006-01-02 15:04", "2024-07-08 15:56")
	far := at(t, "2006-01-02 15:04", "2024-07-08 14:00")

	if !cal.WithinExitWindow(near, 5) {
		t.Error("expected 15:56 to be within a 5 minute exit window")
	}
	if cal.WithinExitWindow(far, 5) {
		t.Error("expected 14:00 to not be within a 5 minute exit window")
	}
}
