package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transitiq/transitiq_core/internal/models"
)

func TestNewTransferIndex(t *testing.T) {
	index := NewTransferIndex([]models.Transfer{
		{FromStop: 1, ToStop: 2, WalkSeconds: 60},
		{FromStop: 1, ToStop: 3, WalkSeconds: 120},
		{FromStop: 2, ToStop: 2, WalkSeconds: 30}, // self-loop, dropped
		{FromStop: 1, ToStop: 2, WalkSeconds: 90}, // duplicate pair, first wins
	})

	assert.Equal(t, 1, index.Len())
	dests := index.From(1)
	require.Len(t, dests, 2)
	assert.Equal(t, 60, dests[2])
	assert.Equal(t, 120, dests[3])
	assert.Nil(t, index.From(2))
}

func TestGenerateTransfers(t *testing.T) {
	// Stops roughly 150m apart plus one far away; only the close pair links.
	stops := []models.GTFSStop{
		{StopID: "a", Lat: 48.2000, Lon: 16.3700},
		{StopID: "b", Lat: 48.2013, Lon: 16.3700}, // ~145m north of a
		{StopID: "c", Lat: 48.3000, Lon: 16.3700}, // ~11km away
	}
	index := NewIndexer()
	for _, s := range stops {
		index.Index(s.StopID)
	}

	transfers := GenerateTransfers(stops, index)

	require.Len(t, transfers, 2, "close pair links in both directions")
	for _, tr := range transfers {
		assert.NotEqual(t, tr.FromStop, tr.ToStop)
		// ~145m at 1.4 m/s is a walk of roughly 100 seconds
		assert.InDelta(t, 103, tr.WalkSeconds, 15)
	}
}

func TestGenerateTransfersSkipsUnindexedStops(t *testing.T) {
	stops := []models.GTFSStop{
		{StopID: "a", Lat: 48.2000, Lon: 16.3700},
		{StopID: "unindexed", Lat: 48.2001, Lon: 16.3700},
	}
	index := NewIndexer()
	index.Index("a")

	transfers := GenerateTransfers(stops, index)
	assert.Empty(t, transfers)
}
