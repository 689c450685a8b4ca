package csa

import "math"

// Infinite marks times and counts that have not been set; a stop whose
// earliest arrival is Infinite has never been reached.
const Infinite = math.MaxInt32

// TripTransfer is the trip id recorded on labels produced by walking.
const TripTransfer = -1

// Label records one way a stop was reached: the previous stop on the path,
// the times of the connection (or walk) that produced it, the trip ridden,
// the number of transfers so far, and the departure time at the origin that
// seeds this path. ArrTime - InitialDepart is the journey duration.
type Label struct {
	PrevStop      int
	DepTime       int
	ArrTime       int
	Trip          int
	NTransfers    int
	InitialDepart int
	IsTransfer    bool
}

// state is the query-local search state. Label vectors are append-only: the
// scan only ever adds labels, so indices handed around during back-trace stay
// valid. Everything here is discarded when the query returns.
type state struct {
	labels            [][]Label
	earliestDeparture []int
	isEndStn          []bool

	maxTraveltime int
	trackFrontier bool
}

func newState(nStops, maxTraveltime int, trackFrontier bool) *state {
	s := &state{
		labels:            make([][]Label, nStops),
		earliestDeparture: make([]int, nStops),
		isEndStn:          make([]bool, nStops),
		maxTraveltime:     maxTraveltime,
		trackFrontier:     trackFrontier,
	}
	for i := range s.earliestDeparture {
		s.earliestDeparture[i] = Infinite
	}
	return s
}

func (s *state) addLabel(stop int, l Label) {
	s.labels[stop] = append(s.labels[stop], l)
	if l.ArrTime < s.earliestDeparture[stop] {
		s.earliestDeparture[stop] = l.ArrTime
	}
}

// alreadyVisited reports whether some label at depStop was itself produced
// from arrStop, which would let the scan bounce A->B->A within one pass.
func (s *state) alreadyVisited(depStop, arrStop int) bool {
	for _, l := range s.labels[depStop] {
		if l.PrevStop == arrStop {
			return true
		}
	}
	return false
}
