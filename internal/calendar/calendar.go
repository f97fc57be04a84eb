// Package calendar answers whether the exchange trades on a given day.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// Calendar is a weekend-plus-holiday-list trading calendar for one exchange.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// New creates a calendar in the exchange timezone with the given holiday dates (YYYY-MM-DD).
func New(timezone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	c := &Calendar{loc: loc, holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		c.holidays[d.Format(dateLayout)] = true
	}
	return c, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether t falls on an exchange session, judged on the exchange-local date.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[local.Format(dateLayout)]
}
