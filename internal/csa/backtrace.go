package csa

import (
	"errors"

	"github.com/transitiq/transitiq_core/internal/models"
)

// ErrBacktraceOverflow is returned when a back-trace walk visits more stops
// than exist. The label graph is corrupted; this is a bug, not bad input.
var ErrBacktraceOverflow = errors.New("backtrace visited more stops than exist")

// traceBackFirst picks the terminal label at a stop: the one with the
// shortest total journey. Returns -1 when the stop has no labels.
func (st *state) traceBackFirst(stop int) int {
	best := -1
	shortest := Infinite
	for i, l := range st.labels[stop] {
		if journey := l.ArrTime - l.InitialDepart; journey < shortest {
			shortest = journey
			best = i
		}
	}
	return best
}

// traceBackPrev finds the label at stop to continue the walk from, given the
// departure time and trip of the label just traced. A label on the same trip
// always wins; otherwise the objective comparator decides. Returns -1 when no
// label arrives early enough, which means the origin has been reached.
func (st *state) traceBackPrev(stop, depTime, trip int, obj models.Objective) int {
	best := -1
	nTransfers := Infinite
	latestInitial := -1

	for i, l := range st.labels[stop] {
		if l.ArrTime > depTime {
			continue
		}
		if !l.IsTransfer && l.Trip == trip {
			return i
		}
		if nTransfers == Infinite ||
			betterPredecessor(obj, l.InitialDepart, latestInitial, l.NTransfers, nTransfers) {
			best = i
			latestInitial = l.InitialDepart
			nTransfers = l.NTransfers
		}
	}
	return best
}

// traceBack reconstructs the journey into stop end. Each visited stop
// contributes the trip and arrival time of its chosen label; the origin
// contributes the initial boarding. Trailing walking legs are dropped so the
// journey ends on a vehicle arrival, and journeys of a single stop are
// discarded as no real journey.
func (st *state) traceBack(end int, obj models.Objective) (models.Journey, error) {
	idx := st.traceBackFirst(end)
	if idx < 0 {
		return models.Journey{}, nil
	}

	var stops, trips, times []int
	stn := end
	steps := 0

	for {
		l := st.labels[stn][idx]
		stops = append(stops, stn)
		trips = append(trips, l.Trip)
		times = append(times, l.ArrTime)

		prev := l.PrevStop
		prevIdx := st.traceBackPrev(prev, l.DepTime, l.Trip, obj)
		if prevIdx < 0 {
			stops = append(stops, prev)
			trips = append(trips, l.Trip)
			times = append(times, l.DepTime)
			break
		}
		stn, idx = prev, prevIdx

		steps++
		if steps > len(st.labels) {
			return models.Journey{}, ErrBacktraceOverflow
		}
	}

	reverseInts(stops)
	reverseInts(trips)
	reverseInts(times)

	for len(trips) > 0 && trips[len(trips)-1] == TripTransfer {
		stops = stops[:len(stops)-1]
		trips = trips[:len(trips)-1]
		times = times[:len(times)-1]
	}
	if len(stops) <= 1 {
		return models.Journey{}, nil
	}

	return models.Journey{Stops: stops, Trips: trips, Times: times}, nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
