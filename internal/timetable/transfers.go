package timetable

import (
	"math"

	"github.com/transitiq/transitiq_core/internal/models"
)

const (
	maxWalkDistance = 500 // meters
	walkingSpeed    = 1.4 // meters per second
)

// TransferIndex maps a stop to the stops reachable from it on foot and the
// walking time in seconds. Self-loops are never stored.
type TransferIndex struct {
	walks map[int]map[int]int
}

// NewTransferIndex builds the index from transfer records, dropping
// self-loops. The first record wins when a pair appears twice.
func NewTransferIndex(transfers []models.Transfer) *TransferIndex {
	ti := &TransferIndex{walks: make(map[int]map[int]int)}
	for _, t := range transfers {
		if t.FromStop == t.ToStop {
			continue
		}
		dests, ok := ti.walks[t.FromStop]
		if !ok {
			dests = make(map[int]int)
			ti.walks[t.FromStop] = dests
		}
		if _, dup := dests[t.ToStop]; !dup {
			dests[t.ToStop] = t.WalkSeconds
		}
	}
	return ti
}

// From returns the walking destinations of a stop, keyed by stop id.
// The returned map must not be mutated.
func (ti *TransferIndex) From(stop int) map[int]int {
	return ti.walks[stop]
}

// Len returns the number of stops with at least one outgoing transfer.
func (ti *TransferIndex) Len() int { return len(ti.walks) }

// All exposes the whole index for persistence.
// The returned maps must not be mutated.
func (ti *TransferIndex) All() map[int]map[int]int { return ti.walks }

// GenerateTransfers creates walking transfers between every pair of stops
// within maxWalkDistance of each other, using the straight-line haversine
// distance at walkingSpeed. Stops missing from the index are skipped.
func GenerateTransfers(stops []models.GTFSStop, index *Indexer) []models.Transfer {
	var transfers []models.Transfer
	for i := 0; i < len(stops); i++ {
		from, ok := index.Lookup(stops[i].StopID)
		if !ok {
			continue
		}
		for j := 0; j < len(stops); j++ {
			if i == j {
				continue
			}
			to, ok := index.Lookup(stops[j].StopID)
			if !ok {
				continue
			}
			dist := haversineDistance(stops[i].Lat, stops[i].Lon, stops[j].Lat, stops[j].Lon)
			if dist > maxWalkDistance {
				continue
			}
			transfers = append(transfers, models.Transfer{
				FromStop:    from,
				ToStop:      to,
				WalkSeconds: int(math.Round(dist / walkingSpeed)),
			})
		}
	}
	return transfers
}

// haversineDistance calculates distance between two coordinates in meters
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
