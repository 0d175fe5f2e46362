// Package lifecycle decides, for a given day, which active kits stay,
// which need an expiry alert and which have expired.
package lifecycle

import (
	"time"

	"github.com/erazemk/kitstok/internal/model"
)

// DefaultWarnHorizon is the number of days before expiry at which an alert
// fires.
const DefaultWarnHorizon = 5

// Classification partitions a set of active kits. Each input row appears in
// exactly one partition, in its original relative order.
type Classification struct {
	Remain   []model.Kit
	ToAlert  []model.Kit
	ToExpire []model.Kit
}

// Partition names where a kit goes on a given day.
type Partition int

const (
	Remain Partition = iota
	Alert
	Expire
)

func (p Partition) String() string {
	switch p {
	case Alert:
		return "alert"
	case Expire:
		return "expire"
	default:
		return "remain"
	}
}

// Place decides the partition of a single kit. A kit whose expiry is before
// today expires. A kit expiring within horizon days (inclusive, today
// counting as zero) that has not been alerted yet is due an alert.
// Everything else, including kits without a valid expiry date, remains.
func Place(k model.Kit, today time.Time, horizon int) Partition {
	days, ok := DaysLeft(k, today)
	switch {
	case !ok:
		return Remain
	case days < 0:
		return Expire
	case days <= horizon && !k.AlertSent:
		return Alert
	default:
		return Remain
	}
}

// Classify partitions kits against today using Place.
func Classify(kits []model.Kit, today time.Time, horizon int) Classification {
	c := Classification{
		Remain:   []model.Kit{},
		ToAlert:  []model.Kit{},
		ToExpire: []model.Kit{},
	}
	for _, k := range kits {
		switch Place(k, today, horizon) {
		case Expire:
			c.ToExpire = append(c.ToExpire, k)
		case Alert:
			c.ToAlert = append(c.ToAlert, k)
		default:
			c.Remain = append(c.Remain, k)
		}
	}
	return c
}

// DaysLeft returns the whole days from today until the kit expires. ok is
// false if the kit has no valid expiry date.
func DaysLeft(k model.Kit, today time.Time) (days int, ok bool) {
	if !k.HasExpiry() {
		return 0, false
	}
	return model.DaysBetween(model.DateOf(today, nil), k.Expiry), true
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return model.DateOf(now, loc)
}

// Changed reports whether applying c would modify the active dataset.
func (c Classification) Changed() bool {
	return len(c.ToAlert) > 0 || len(c.ToExpire) > 0
}
