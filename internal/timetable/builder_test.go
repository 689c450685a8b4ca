package timetable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitiq/transitiq_core/internal/models"
)

func TestMakeConnections(t *testing.T) {
	stopTimes := []models.GTFSStopTime{
		{TripID: "t1", StopID: "A", StopSequence: 1, ArrivalTime: 0, DepartureTime: 10},
		{TripID: "t1", StopID: "B", StopSequence: 2, ArrivalTime: 100, DepartureTime: 120},
		{TripID: "t1", StopID: "C", StopSequence: 3, ArrivalTime: 200, DepartureTime: 200},
		{TripID: "t2", StopID: "B", StopSequence: 1, ArrivalTime: 50, DepartureTime: 60},
		{TripID: "t2", StopID: "C", StopSequence: 2, ArrivalTime: 150, DepartureTime: 150},
	}

	stops := NewIndexer()
	trips := NewIndexer()
	conns := MakeConnections(stopTimes, stops, trips)

	require.Len(t, conns, 3, "adjacent pairs within each trip only")

	a, _ := stops.Lookup("A")
	b, _ := stops.Lookup("B")
	c, _ := stops.Lookup("C")

	// departure from the earlier row, arrival from the later
	assert.Equal(t, models.Connection{DepStop: a, ArrStop: b, DepTime: 10, ArrTime: 100, Trip: conns[0].Trip}, conns[0])
	assert.Equal(t, models.Connection{DepStop: b, ArrStop: c, DepTime: 120, ArrTime: 200, Trip: conns[0].Trip}, conns[1])
	assert.NotEqual(t, conns[0].Trip, conns[2].Trip, "rows of different trips never pair")
}

func TestMakeConnectionsOrdersBySequence(t *testing.T) {
	// Rows arriving out of sequence order are still paired in stop order.
	stopTimes := []models.GTFSStopTime{
		{TripID: "t1", StopID: "B", StopSequence: 2, ArrivalTime: 100, DepartureTime: 120},
		{TripID: "t1", StopID: "A", StopSequence: 1, ArrivalTime: 0, DepartureTime: 10},
	}

	stops := NewIndexer()
	trips := NewIndexer()
	conns := MakeConnections(stopTimes, stops, trips)

	require.Len(t, conns, 1)
	a, _ := stops.Lookup("A")
	b, _ := stops.Lookup("B")
	assert.Equal(t, a, conns[0].DepStop)
	assert.Equal(t, b, conns[0].ArrStop)
}

func TestExpandFrequencies(t *testing.T) {
	// (start=3600, end=7200, headway=1800) over a two-stop base yields three
	// trips shifted by 0, 1800 and 3600 seconds past the start.
	base := []models.GTFSStopTime{
		{TripID: "T", StopID: "A", StopSequence: 1, ArrivalTime: 0, DepartureTime: 0},
		{TripID: "T", StopID: "B", StopSequence: 2, ArrivalTime: 600, DepartureTime: 600},
	}
	freqs := []models.GTFSFrequency{
		{TripID: "T", StartTime: 3600, EndTime: 7200, HeadwaySecs: 1800},
	}

	out := ExpandFrequencies(freqs, base, "_f")

	require.Len(t, out, 6)

	tripIDs := make(map[string]bool)
	var departuresAtA []int
	for _, st := range out {
		tripIDs[st.TripID] = true
		assert.True(t, strings.HasPrefix(st.TripID, "T_f"))
		if st.StopID == "A" {
			departuresAtA = append(departuresAtA, st.DepartureTime)
		}
	}
	assert.Len(t, tripIDs, 3, "every clone carries a unique trip id")
	assert.ElementsMatch(t, []int{3600, 5400, 7200}, departuresAtA)
}

func TestExpandFrequenciesUniqueAcrossEntries(t *testing.T) {
	// Two entries for the same base trip must not reuse suffixes.
	base := []models.GTFSStopTime{
		{TripID: "T", StopID: "A", StopSequence: 1, ArrivalTime: 0, DepartureTime: 0},
		{TripID: "T", StopID: "B", StopSequence: 2, ArrivalTime: 600, DepartureTime: 600},
	}
	freqs := []models.GTFSFrequency{
		{TripID: "T", StartTime: 0, EndTime: 1800, HeadwaySecs: 1800},
		{TripID: "T", StartTime: 7200, EndTime: 9000, HeadwaySecs: 1800},
	}

	out := ExpandFrequencies(freqs, base, "_f")

	tripIDs := make(map[string]bool)
	for _, st := range out {
		tripIDs[st.TripID] = true
	}
	assert.Len(t, tripIDs, 4)
}

func TestIndexer(t *testing.T) {
	ix := NewIndexer()

	assert.Equal(t, 0, ix.Index("a"))
	assert.Equal(t, 1, ix.Index("b"))
	assert.Equal(t, 0, ix.Index("a"), "repeated keys keep their id")
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, "b", ix.ID(1))

	id, ok := ix.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok = ix.Lookup("missing")
	assert.False(t, ok)
}
