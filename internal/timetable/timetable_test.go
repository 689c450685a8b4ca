package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitiq/transitiq_core/internal/models"
)

func TestNewSortsByDeparture(t *testing.T) {
	tt, err := New([]models.Connection{
		{DepStop: 2, ArrStop: 3, DepTime: 700, ArrTime: 900, Trip: 1},
		{DepStop: 1, ArrStop: 2, DepTime: 100, ArrTime: 300, Trip: 0},
		{DepStop: 0, ArrStop: 1, DepTime: 400, ArrTime: 500, Trip: 2},
	}, 4, 3)

	require.NoError(t, err)
	assert.Equal(t, []int{100, 400, 700}, tt.DepTime)
	assert.Equal(t, []int{1, 0, 2}, tt.DepStop)
	assert.Equal(t, 3, tt.Len())
}

func TestNewRejectsInvalidTimetables(t *testing.T) {
	tests := []struct {
		name   string
		conns  []models.Connection
		nStops int
		nTrips int
	}{
		{
			name: "negative time",
			conns: []models.Connection{
				{DepStop: 0, ArrStop: 1, DepTime: -10, ArrTime: 100, Trip: 0},
			},
			nStops: 2, nTrips: 1,
		},
		{
			name: "arrival before departure",
			conns: []models.Connection{
				{DepStop: 0, ArrStop: 1, DepTime: 500, ArrTime: 100, Trip: 0},
			},
			nStops: 2, nTrips: 1,
		},
		{
			name: "stop out of range",
			conns: []models.Connection{
				{DepStop: 0, ArrStop: 7, DepTime: 100, ArrTime: 200, Trip: 0},
			},
			nStops: 2, nTrips: 1,
		},
		{
			name: "trip out of range",
			conns: []models.Connection{
				{DepStop: 0, ArrStop: 1, DepTime: 100, ArrTime: 200, Trip: 5},
			},
			nStops: 2, nTrips: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.conns, tt.nStops, tt.nTrips)
			assert.ErrorIs(t, err, ErrInvalidTimetable)
		})
	}
}

func TestConnectionRoundTrip(t *testing.T) {
	conn := models.Connection{DepStop: 1, ArrStop: 2, DepTime: 100, ArrTime: 300, Trip: 0}
	tt, err := New([]models.Connection{conn}, 3, 1)

	require.NoError(t, err)
	assert.Equal(t, conn, tt.Connection(0))
}

func TestStoreSwap(t *testing.T) {
	store := &Store{}
	assert.False(t, store.IsLoaded())

	tt, err := New(nil, 0, 0)
	require.NoError(t, err)
	store.Swap(tt, NewTransferIndex(nil))

	assert.True(t, store.IsLoaded())
	assert.Same(t, tt, store.Timetable())
}
