package csa

import (
	"github.com/transitiq/transitiq_core/internal/models"
)

// scanParams bounds one forward pass over the timetable.
type scanParams struct {
	origins      map[int]bool
	startTimeMin int // earliest departure considered at all
	startTimeMax int // latest departure that may seed an origin label
	scanEnd      int // stop scanning once departures pass this time
	objective    models.Objective

	// skipArriveAtOrigin drops connections arriving back at an origin stop;
	// the one-to-all query uses it so origins never acquire labels.
	skipArriveAtOrigin bool
}

// scan is the single linear pass over the connection window. Each admitted
// connection may extend one existing label at its departure stop into a new
// label at its arrival stop, and a created vehicle label then spills into the
// walking transfers of the arrival stop.
func (e *Engine) scan(st *state, p scanParams) {
	tt := e.timetable

	for i := 0; i < tt.Len(); i++ {
		depTime := tt.DepTime[i]
		if depTime < p.startTimeMin {
			continue
		}
		if depTime > p.scanEnd {
			break
		}

		u, v := tt.DepStop[i], tt.ArrStop[i]

		if p.skipArriveAtOrigin && p.origins[v] {
			continue
		}
		isStart := p.origins[u]
		if isStart && depTime > p.startTimeMax {
			continue
		}
		if !isStart {
			// u must be reachable before this connection departs.
			if st.earliestDeparture[u] == Infinite || st.earliestDeparture[u] > depTime {
				continue
			}
		}
		if st.alreadyVisited(u, v) {
			continue
		}

		if !st.fillConnection(tt.Connection(i), isStart, p.objective) {
			continue
		}

		for w, walk := range e.transfers.From(v) {
			if w == u || p.origins[w] {
				continue
			}
			st.fillTransfer(v, tt.ArrTime[i], w, walk, p.objective)
		}
	}
}

// fillConnection decides whether connection c extends some label at its
// departure stop and, if so, appends the resulting label at the arrival
// stop. The best prior label is chosen by the same-trip rule first and the
// objective comparator otherwise. Returns true when a label was created.
//
// The same loop maintains the isochrone frontier: a departure stop is an end
// stop when an admitted connection leaves it within budget but arrives beyond
// it, and no admitted connection out of it arrives within budget.
func (st *state) fillConnection(c models.Connection, isStart bool, obj models.Objective) bool {
	fill := false
	isEnd := false
	sameTrip := false
	predSameTrip := false
	transferPred := false
	nTransfers := Infinite
	latestInitial := -1

	if isStart {
		fill = true
		nTransfers = 0
		latestInitial = c.DepTime
	} else {
		notEnd := false
		for _, prior := range st.labels[c.DepStop] {
			fillHere := prior.ArrTime <= c.DepTime &&
				c.ArrTime-prior.InitialDepart <= st.maxTraveltime

			if fillHere {
				notEnd = true
			} else if st.trackFrontier && !notEnd {
				isEnd = isEnd || c.DepTime-prior.InitialDepart <= st.maxTraveltime
			}

			if fillHere {
				sameTrip = !prior.IsTransfer && prior.Trip == c.Trip

				var update bool
				if sameTrip {
					// Staying on a through-running service is never penalised:
					// it wins whenever it is at least as good on transfers and
					// strictly better on initial departure.
					update = prior.NTransfers <= nTransfers && prior.InitialDepart > latestInitial
					if !update {
						update = nTransfers == Infinite
					}
				} else {
					update = nTransfers == Infinite ||
						betterPredecessor(obj, prior.InitialDepart, latestInitial,
							prior.NTransfers, nTransfers)
				}

				if update {
					latestInitial = prior.InitialDepart
					nTransfers = prior.NTransfers
					predSameTrip = sameTrip
					transferPred = prior.IsTransfer
				}
				fill = true
			}

			if sameTrip {
				break
			}
		}

		isEnd = isEnd && !notEnd
		if st.trackFrontier {
			if isEnd {
				st.isEndStn[c.DepStop] = true
			} else if notEnd {
				st.isEndStn[c.DepStop] = false
				st.isEndStn[c.ArrStop] = false
			}
		}
	}

	if !fill {
		return false
	}

	label := Label{
		PrevStop: c.DepStop,
		DepTime:  c.DepTime,
		ArrTime:  c.ArrTime,
		Trip:     c.Trip,
	}
	if isStart {
		label.NTransfers = 0
		label.InitialDepart = c.DepTime
	} else {
		n := nTransfers
		if !predSameTrip && !transferPred {
			// Walking legs carry their own increment; switching service at the
			// same stop is the only implicit transfer counted here.
			n++
		}
		label.NTransfers = n
		label.InitialDepart = latestInitial
	}
	st.addLabel(c.ArrStop, label)
	return true
}

// fillTransfer emits a walking label from the just-reached stop v into its
// neighbour dest. The predecessor at v is chosen with the vehicle arrival in
// place of a departure time and must keep the walk completion within budget;
// the walk never cascades into further walks.
func (st *state) fillTransfer(v, arrTime, dest, walkSeconds int, obj models.Objective) bool {
	transTime := arrTime + walkSeconds

	nTransfers := Infinite
	latestInitial := -1
	for _, prior := range st.labels[v] {
		if prior.ArrTime > arrTime {
			continue
		}
		if arrTime-prior.InitialDepart > st.maxTraveltime {
			continue
		}
		if transTime-prior.InitialDepart > st.maxTraveltime {
			continue
		}
		if nTransfers == Infinite ||
			betterPredecessor(obj, prior.InitialDepart, latestInitial, prior.NTransfers, nTransfers) {
			latestInitial = prior.InitialDepart
			nTransfers = prior.NTransfers
		}
	}
	if nTransfers == Infinite {
		return false
	}

	st.addLabel(dest, Label{
		PrevStop:      v,
		DepTime:       arrTime,
		ArrTime:       transTime,
		Trip:          TripTransfer,
		NTransfers:    nTransfers + 1,
		InitialDepart: latestInitial,
		IsTransfer:    true,
	})
	return true
}

// actualEndTime finds the scan horizon for windowed queries: the departure
// of the first service leaving any origin at or after startTime, plus twice
// the window length to leave room for transfers near the boundary. The second
// return is false when no origin service departs in the window at all.
func (e *Engine) actualEndTime(origins map[int]bool, startTime, endTime int) (int, bool) {
	tt := e.timetable
	for i := 0; i < tt.Len(); i++ {
		if tt.DepTime[i] < startTime {
			continue
		}
		if origins[tt.DepStop[i]] {
			return tt.DepTime[i] + 2*(endTime-startTime), true
		}
	}
	return Infinite, false
}
