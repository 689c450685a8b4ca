package timetable

import (
	"fmt"
	"sort"

	"github.com/transitiq/transitiq_core/internal/models"
)

// Indexer assigns dense integer ids to string identifiers. All string↔index
// mapping stays at the ingestion boundary; the engine only ever sees ints.
type Indexer struct {
	byID map[string]int
	ids  []string
}

// NewIndexer creates an empty index.
func NewIndexer() *Indexer {
	return &Indexer{byID: make(map[string]int)}
}

// Index returns the dense id for key, assigning the next one on first sight.
func (ix *Indexer) Index(key string) int {
	if id, ok := ix.byID[key]; ok {
		return id
	}
	id := len(ix.ids)
	ix.byID[key] = id
	ix.ids = append(ix.ids, key)
	return id
}

// Lookup returns the dense id for key without assigning one.
func (ix *Indexer) Lookup(key string) (int, bool) {
	id, ok := ix.byID[key]
	return id, ok
}

// ID returns the string identifier for a dense id.
func (ix *Indexer) ID(id int) string { return ix.ids[id] }

// Len returns the number of assigned ids.
func (ix *Indexer) Len() int { return len(ix.ids) }

// MakeConnections explodes stop-time rows into connections: each adjacent
// pair of rows on the same trip becomes one connection, taking the departure
// time from the earlier row and the arrival time from the later. Rows are
// grouped by trip and ordered by stop sequence before pairing. Stop and trip
// ids are interned into the given indexers.
func MakeConnections(stopTimes []models.GTFSStopTime, stops, trips *Indexer) []models.Connection {
	ordered := make([]models.GTFSStopTime, len(stopTimes))
	copy(ordered, stopTimes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TripID != ordered[j].TripID {
			return ordered[i].TripID < ordered[j].TripID
		}
		return ordered[i].StopSequence < ordered[j].StopSequence
	})

	var conns []models.Connection
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.TripID != cur.TripID {
			continue
		}
		conns = append(conns, models.Connection{
			DepStop: stops.Index(prev.StopID),
			ArrStop: stops.Index(cur.StopID),
			DepTime: prev.DepartureTime,
			ArrTime: cur.ArrivalTime,
			Trip:    trips.Index(prev.TripID),
		})
	}
	return conns
}

// ExpandFrequencies clones the base stop-times of every frequency entry into
// explicit trips. An entry (trip, start, end, headway) yields
// (end-start)/headway + 1 trips shifted by start + k*headway, each with the
// trip id suffixed by a counter that is unique across the whole table.
func ExpandFrequencies(freqs []models.GTFSFrequency, stopTimes []models.GTFSStopTime, sfx string) []models.GTFSStopTime {
	byTrip := make(map[string][]models.GTFSStopTime)
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	for _, rows := range byTrip {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].StopSequence < rows[j].StopSequence
		})
	}

	seen := make(map[string]bool)
	var out []models.GTFSStopTime

	for _, f := range freqs {
		base, ok := byTrip[f.TripID]
		if !ok || f.HeadwaySecs <= 0 {
			continue
		}

		nseq := (f.EndTime-f.StartTime)/f.HeadwaySecs + 1
		for n := 0; n < nseq; n++ {
			nUnique := n
			tripID := fmt.Sprintf("%s%s%d", f.TripID, sfx, nUnique)
			for seen[tripID] {
				nUnique++
				tripID = fmt.Sprintf("%s%s%d", f.TripID, sfx, nUnique)
			}
			seen[tripID] = true

			shift := f.StartTime + f.HeadwaySecs*n
			for _, st := range base {
				out = append(out, models.GTFSStopTime{
					TripID:        tripID,
					ArrivalTime:   st.ArrivalTime + shift,
					DepartureTime: st.DepartureTime + shift,
					StopID:        st.StopID,
					StopSequence:  st.StopSequence,
				})
			}
		}
	}
	return out
}
