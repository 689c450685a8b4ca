package csa

import (
	"errors"

	"github.com/transitiq/transitiq_core/internal/models"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

// ErrNoRouteFound reports an earliest-arrival query that reached none of its
// target stops. The HTTP layer maps it to a 404; the engine itself returns
// an empty journey alongside it so callers can treat it as a soft miss.
var ErrNoRouteFound = errors.New("no route found")

// Engine answers queries against one immutable timetable and transfer index.
// It is safe for concurrent use: every query builds its own state and the
// shared tables are never written after construction.
type Engine struct {
	timetable *timetable.Timetable
	transfers *timetable.TransferIndex
}

// New creates an engine over a loaded timetable and transfer index.
func New(tt *timetable.Timetable, ti *timetable.TransferIndex) *Engine {
	return &Engine{timetable: tt, transfers: ti}
}

// EAQuery asks for the earliest arrival at any of the target stops from any
// of the origin stops, departing at or after StartTime. Origin departures are
// admitted up to a horizon of twice EndTime - StartTime past the first origin
// departure at or after StartTime.
type EAQuery struct {
	Origins   []int
	Targets   []int
	StartTime int
	EndTime   int
	Objective models.Objective
}

// IsochroneQuery asks for the frontier of stops reachable from the origins
// within the budget EndTime - StartTime.
type IsochroneQuery struct {
	Origins   []int
	StartTime int
	EndTime   int
	Objective models.Objective
}

// TravelTimesQuery asks for the best journey to every stop from the origins,
// for departures in [StartTimeMin, StartTimeMax], bounded by MaxTraveltime.
type TravelTimesQuery struct {
	Origins       []int
	StartTimeMin  int
	StartTimeMax  int
	MaxTraveltime int
	Objective     models.Objective
}

// EarliestArrival runs the forward scan and reconstructs the journey to the
// target stop reached earliest. A query that reaches no target returns an
// empty journey and ErrNoRouteFound.
func (e *Engine) EarliestArrival(q EAQuery) (models.Journey, error) {
	origins := stopSet(q.Origins)

	horizon, found := e.actualEndTime(origins, q.StartTime, q.EndTime)
	if !found {
		return models.Journey{}, ErrNoRouteFound
	}

	st := newState(e.timetable.NStops, Infinite, false)
	e.scan(st, scanParams{
		origins:      origins,
		startTimeMin: q.StartTime,
		startTimeMax: horizon,
		scanEnd:      horizon,
		objective:    q.Objective,
	})

	best := -1
	earliest := Infinite
	for _, t := range q.Targets {
		if t < 0 || t >= e.timetable.NStops {
			continue
		}
		if st.earliestDeparture[t] < earliest {
			earliest = st.earliestDeparture[t]
			best = t
		}
	}
	if best < 0 {
		return models.Journey{}, ErrNoRouteFound
	}

	journey, err := st.traceBack(best, q.Objective)
	if err != nil {
		return models.Journey{}, err
	}
	if journey.Len() == 0 {
		return models.Journey{}, ErrNoRouteFound
	}
	return journey, nil
}

// Isochrone runs the forward scan with frontier tracking and reconstructs
// the journey to every frontier stop. Stops whose reconstruction collapses
// to a single stop are dropped.
func (e *Engine) Isochrone(q IsochroneQuery) ([]models.Journey, error) {
	origins := stopSet(q.Origins)
	budget := q.EndTime - q.StartTime

	horizon, found := e.actualEndTime(origins, q.StartTime, q.EndTime)
	if !found {
		return nil, nil
	}

	st := newState(e.timetable.NStops, budget, true)
	e.scan(st, scanParams{
		origins:      origins,
		startTimeMin: q.StartTime,
		startTimeMax: horizon,
		scanEnd:      horizon,
		objective:    q.Objective,
	})

	var journeys []models.Journey
	for s := 0; s < e.timetable.NStops; s++ {
		if !st.isEndStn[s] {
			continue
		}
		journey, err := st.traceBack(s, q.Objective)
		if err != nil {
			return nil, err
		}
		if journey.Len() > 1 {
			journeys = append(journeys, journey)
		}
	}
	return journeys, nil
}

// TravelTimes runs the forward scan over the departure interval and reduces
// the vehicle labels of every stop to one row of (initial departure,
// duration, transfers). Unreached stops carry the Unreachable sentinel.
func (e *Engine) TravelTimes(q TravelTimesQuery) []models.TravelTime {
	origins := stopSet(q.Origins)

	st := newState(e.timetable.NStops, q.MaxTraveltime, false)
	e.scan(st, scanParams{
		origins:            origins,
		startTimeMin:       q.StartTimeMin,
		startTimeMax:       q.StartTimeMax,
		scanEnd:            Infinite,
		objective:          q.Objective,
		skipArriveAtOrigin: true,
	})

	rows := make([]models.TravelTime, e.timetable.NStops)
	for s := range rows {
		nTransfers := Infinite
		duration := Infinite
		initialDepart := Infinite

		for _, l := range st.labels[s] {
			if l.IsTransfer {
				continue
			}
			thisDuration := l.ArrTime - l.InitialDepart

			var update bool
			if q.Objective == models.MinTransfers {
				update = l.NTransfers < nTransfers
			} else {
				update = thisDuration < duration ||
					(thisDuration == duration && l.NTransfers < nTransfers)
			}
			if update {
				nTransfers = l.NTransfers
				duration = thisDuration
				initialDepart = l.InitialDepart
			}
		}

		if duration == Infinite {
			rows[s] = models.TravelTime{
				InitialDepart: models.Unreachable,
				Duration:      models.Unreachable,
				NTransfers:    models.Unreachable,
			}
		} else {
			rows[s] = models.TravelTime{
				InitialDepart: initialDepart,
				Duration:      duration,
				NTransfers:    nTransfers,
			}
		}
	}
	return rows
}

func stopSet(stops []int) map[int]bool {
	set := make(map[int]bool, len(stops))
	for _, s := range stops {
		set[s] = true
	}
	return set
}
