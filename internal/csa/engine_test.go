package csa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitiq/transitiq_core/internal/models"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

func newTestEngine(t *testing.T, conns []models.Connection, nStops, nTrips int, transfers []models.Transfer) *Engine {
	t.Helper()
	tt, err := timetable.New(conns, nStops, nTrips)
	require.NoError(t, err)
	return New(tt, timetable.NewTransferIndex(transfers))
}

func TestEarliestArrivalDirectTrip(t *testing.T) {
	// One connection, no transfers: the journey is the connection itself.
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
	}, 3, 11, nil)

	journey, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1},
		Targets:   []int{2},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, journey.Stops)
	assert.Equal(t, []int{3600, 4200}, journey.Times)
	assert.Equal(t, []int{10, 10}, journey.Trips)
}

func TestEarliestArrivalWalkingTransfer(t *testing.T) {
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
		{DepStop: 3, ArrStop: 4, DepTime: 4500, ArrTime: 5100, Trip: 11},
	}, 5, 12, []models.Transfer{
		{FromStop: 2, ToStop: 3, WalkSeconds: 60},
	})

	journey, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1},
		Targets:   []int{4},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, journey.Stops)
	assert.Equal(t, []int{3600, 4200, 4260, 5100}, journey.Times)
	assert.Equal(t, []int{10, 10, TripTransfer, 11}, journey.Trips)
}

func TestEarliestArrivalNoRoute(t *testing.T) {
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
	}, 5, 11, nil)

	_, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1},
		Targets:   []int{4},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})
	assert.ErrorIs(t, err, ErrNoRouteFound)

	// No service departs the origin at all.
	_, err = eng.EarliestArrival(EAQuery{
		Origins:   []int{3},
		Targets:   []int{2},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestEarliestArrivalStaysOnThroughService(t *testing.T) {
	// Two parallel trips over 1->2->3; the reconstructed journey must ride a
	// single trip end to end rather than hop between them.
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
		{DepStop: 1, ArrStop: 2, DepTime: 3601, ArrTime: 4200, Trip: 11},
		{DepStop: 2, ArrStop: 3, DepTime: 4200, ArrTime: 4800, Trip: 11},
		{DepStop: 2, ArrStop: 3, DepTime: 4201, ArrTime: 4800, Trip: 10},
	}, 4, 12, nil)

	journey, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1},
		Targets:   []int{3},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, journey.Stops)
	assert.Equal(t, journey.Trips[1], journey.Trips[2], "journey must not switch trips at stop 2")
	assert.Equal(t, 0, countSwitches(journey), "through-running service must count zero transfers")
}

// countSwitches counts trip changes along a journey, ignoring walking legs.
func countSwitches(j models.Journey) int {
	switches := 0
	prev := TripTransfer
	for _, trip := range j.Trips[1:] {
		if trip == TripTransfer {
			continue
		}
		if prev != TripTransfer && trip != prev {
			switches++
		}
		prev = trip
	}
	return switches
}

func TestIsochroneFrontier(t *testing.T) {
	// Stop 3 is reached in 720s; carrying on to stop 4 needs 1800s, beyond the
	// 900s budget, so the frontier is exactly {3}.
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 0, ArrTime: 300, Trip: 1},
		{DepStop: 2, ArrStop: 3, DepTime: 360, ArrTime: 720, Trip: 1},
		{DepStop: 3, ArrStop: 4, DepTime: 780, ArrTime: 1800, Trip: 1},
	}, 5, 2, nil)

	journeys, err := eng.Isochrone(IsochroneQuery{
		Origins:   []int{1},
		StartTime: 0,
		EndTime:   900,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, []int{1, 2, 3}, journeys[0].Stops)
	assert.Equal(t, []int{0, 300, 720}, journeys[0].Times)
	assert.Equal(t, []int{1, 1, 1}, journeys[0].Trips)
}

func TestIsochroneNoService(t *testing.T) {
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 0, ArrTime: 300, Trip: 1},
	}, 3, 2, nil)

	journeys, err := eng.Isochrone(IsochroneQuery{
		Origins:   []int{2},
		StartTime: 0,
		EndTime:   900,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	assert.Empty(t, journeys)
}

func TestTravelTimesObjectives(t *testing.T) {
	// Two ways from 1 to 3: one direct trip in 600s, or two trips in 420s
	// with one transfer.
	conns := []models.Connection{
		{DepStop: 1, ArrStop: 3, DepTime: 0, ArrTime: 600, Trip: 1},
		{DepStop: 1, ArrStop: 2, DepTime: 0, ArrTime: 200, Trip: 2},
		{DepStop: 2, ArrStop: 3, DepTime: 300, ArrTime: 420, Trip: 3},
	}

	t.Run("min duration prefers the faster two-trip path", func(t *testing.T) {
		eng := newTestEngine(t, conns, 4, 4, nil)
		rows := eng.TravelTimes(TravelTimesQuery{
			Origins:       []int{1},
			StartTimeMin:  0,
			StartTimeMax:  0,
			MaxTraveltime: 3600,
			Objective:     models.MinDuration,
		})

		require.Len(t, rows, 4)
		assert.Equal(t, models.TravelTime{InitialDepart: 0, Duration: 420, NTransfers: 1}, rows[3])
	})

	t.Run("min transfers prefers the direct trip", func(t *testing.T) {
		eng := newTestEngine(t, conns, 4, 4, nil)
		rows := eng.TravelTimes(TravelTimesQuery{
			Origins:       []int{1},
			StartTimeMin:  0,
			StartTimeMax:  0,
			MaxTraveltime: 3600,
			Objective:     models.MinTransfers,
		})

		assert.Equal(t, models.TravelTime{InitialDepart: 0, Duration: 600, NTransfers: 0}, rows[3])
	})

	t.Run("unreached stops carry sentinels", func(t *testing.T) {
		eng := newTestEngine(t, conns, 4, 4, nil)
		rows := eng.TravelTimes(TravelTimesQuery{
			Origins:       []int{1},
			StartTimeMin:  0,
			StartTimeMax:  0,
			MaxTraveltime: 3600,
			Objective:     models.MinDuration,
		})

		unreachable := models.TravelTime{
			InitialDepart: models.Unreachable,
			Duration:      models.Unreachable,
			NTransfers:    models.Unreachable,
		}
		assert.Equal(t, unreachable, rows[0])
		// Origins never acquire labels of their own.
		assert.Equal(t, unreachable, rows[1])
	})
}

func TestTravelTimesRespectsBudget(t *testing.T) {
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 0, ArrTime: 300, Trip: 1},
		{DepStop: 2, ArrStop: 3, DepTime: 360, ArrTime: 5000, Trip: 2},
	}, 4, 3, nil)

	rows := eng.TravelTimes(TravelTimesQuery{
		Origins:       []int{1},
		StartTimeMin:  0,
		StartTimeMax:  0,
		MaxTraveltime: 900,
		Objective:     models.MinDuration,
	})

	assert.Equal(t, 300, rows[2].Duration)
	assert.Equal(t, models.Unreachable, rows[3].Duration, "stop beyond the budget must stay unreached")
}

func TestTravelTimesDepartureInterval(t *testing.T) {
	// A later origin departure shortens the journey; the interval admits both
	// and the later one must win under min-duration.
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 0, ArrTime: 900, Trip: 1},
		{DepStop: 1, ArrStop: 2, DepTime: 600, ArrTime: 900, Trip: 2},
	}, 3, 3, nil)

	rows := eng.TravelTimes(TravelTimesQuery{
		Origins:       []int{1},
		StartTimeMin:  0,
		StartTimeMax:  600,
		MaxTraveltime: 3600,
		Objective:     models.MinDuration,
	})

	assert.Equal(t, models.TravelTime{InitialDepart: 600, Duration: 300, NTransfers: 0}, rows[2])
}

func TestEarliestArrivalIdempotent(t *testing.T) {
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
		{DepStop: 3, ArrStop: 4, DepTime: 4500, ArrTime: 5100, Trip: 11},
	}, 5, 12, []models.Transfer{
		{FromStop: 2, ToStop: 3, WalkSeconds: 60},
	})

	query := EAQuery{
		Origins:   []int{1},
		Targets:   []int{4},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	}

	first, err := eng.EarliestArrival(query)
	require.NoError(t, err)
	second, err := eng.EarliestArrival(query)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestJourneyMatchesTimetable(t *testing.T) {
	// Every consecutive pair of the reconstructed journey must be a timetable
	// connection or a transfer edge, with non-decreasing times.
	conns := []models.Connection{
		{DepStop: 1, ArrStop: 2, DepTime: 3600, ArrTime: 4200, Trip: 10},
		{DepStop: 3, ArrStop: 4, DepTime: 4500, ArrTime: 5100, Trip: 11},
	}
	transfers := []models.Transfer{
		{FromStop: 2, ToStop: 3, WalkSeconds: 60},
	}
	eng := newTestEngine(t, conns, 5, 12, transfers)

	journey, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1},
		Targets:   []int{4},
		StartTime: 0,
		EndTime:   3600,
		Objective: models.MinDuration,
	})
	require.NoError(t, err)

	for i := 1; i < journey.Len(); i++ {
		from, to := journey.Stops[i-1], journey.Stops[i]
		assert.LessOrEqual(t, journey.Times[i-1], journey.Times[i])

		if journey.Trips[i] == TripTransfer {
			found := false
			for _, tr := range transfers {
				if tr.FromStop == from && tr.ToStop == to {
					found = true
				}
			}
			assert.True(t, found, "walking leg %d->%d must match a transfer edge", from, to)
			continue
		}

		found := false
		for _, c := range conns {
			if c.DepStop == from && c.ArrStop == to && c.Trip == journey.Trips[i] && c.ArrTime == journey.Times[i] {
				found = true
			}
		}
		assert.True(t, found, "vehicle leg %d->%d must match a connection", from, to)
	}
}

func TestMultipleOriginsKeepBothPaths(t *testing.T) {
	// Two origins reach stop 3; min-duration must pick the later departure.
	eng := newTestEngine(t, []models.Connection{
		{DepStop: 1, ArrStop: 3, DepTime: 0, ArrTime: 900, Trip: 1},
		{DepStop: 2, ArrStop: 3, DepTime: 300, ArrTime: 900, Trip: 2},
		{DepStop: 3, ArrStop: 4, DepTime: 1000, ArrTime: 1200, Trip: 3},
	}, 5, 4, nil)

	journey, err := eng.EarliestArrival(EAQuery{
		Origins:   []int{1, 2},
		Targets:   []int{4},
		StartTime: 0,
		EndTime:   1200,
		Objective: models.MinDuration,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, journey.Stops, "the shorter journey from origin 2 must win")
}
