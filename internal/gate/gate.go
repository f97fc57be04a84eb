// Package gate decides whether a scheduled snapshot run should go ahead.
//
// The decision is kept apart from reconciliation: it only looks at the clock,
// the trading calendar and the age of the previous snapshot.
package gate

import (
	"fmt"
	"time"

	"github.com/traderecks999/data/internal/model"
)

// Calendar reports exchange trading days.
type Calendar interface {
	IsTradingDay(t time.Time) bool
}

// Reason explains a Decision.
type Reason string

const (
	ReasonForced        Reason = "forced"
	ReasonScheduled     Reason = "scheduled"
	ReasonNonTradingDay Reason = "non_trading_day"
	ReasonTooFresh      Reason = "too_fresh"
)

// Decision is the gate's verdict plus its rationale.
type Decision struct {
	Proceed bool
	Reason  Reason
	Detail  string
}

func (d Decision) String() string {
	verb := "skip"
	if d.Proceed {
		verb = "proceed"
	}
	return fmt.Sprintf("%s: %s (%s)", verb, d.Reason, d.Detail)
}

// ShouldRun applies the checks in order: force, trading day, snapshot age.
// previousAsOf is nil when there is no previous snapshot.
func ShouldRun(now time.Time, previousAsOf *time.Time, maxAge time.Duration, force bool, cal Calendar) Decision {
	if force {
		return Decision{Proceed: true, Reason: ReasonForced, Detail: "force flag bypasses all checks"}
	}
	if cal != nil && !cal.IsTradingDay(now) {
		return Decision{Reason: ReasonNonTradingDay, Detail: fmt.Sprintf("%s is not a trading day", now.UTC().Format("2006-01-02"))}
	}
	if previousAsOf != nil {
		age := now.Sub(*previousAsOf)
		if age < maxAge {
			return Decision{Reason: ReasonTooFresh, Detail: fmt.Sprintf("previous snapshot is %s old, max age %s", age.Round(time.Second), maxAge)}
		}
	}
	return Decision{Proceed: true, Reason: ReasonScheduled, Detail: "trading day and previous snapshot is due"}
}

type clockRange struct {
	from, to int // minutes after local midnight, inclusive
	window   model.Window
}

// Generous ranges around the 13:00 and 16:25 exchange-local cron triggers to absorb drift and DST.
var windowRanges = []clockRange{
	{from: 12*60 + 45, to: 13*60 + 15, window: model.WindowMidSession},
	{from: 16*60 + 10, to: 16*60 + 40, window: model.WindowClose},
}

// ClassifyWindow labels the run by exchange-local time. Outside both ranges a
// forced run is "manual" and any other run has no label.
func ClassifyWindow(now time.Time, loc *time.Location, force bool) model.Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	for _, r := range windowRanges {
		if minute >= r.from && minute <= r.to {
			return r.window
		}
	}
	if force {
		return model.WindowManual
	}
	return model.WindowNone
}
