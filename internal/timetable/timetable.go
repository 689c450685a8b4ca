package timetable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitiq/transitiq_core/internal/models"
)

// ErrInvalidTimetable flags feeds that violate the timetable contract:
// negative times, non-monotone times within a connection, or ids out of range.
var ErrInvalidTimetable = errors.New("invalid timetable")

// Timetable is the immutable, departure-time-sorted table of connections.
// The five columns are parallel slices indexed by connection row; stop and
// trip ids are dense integers in [0, NStops) and [0, NTrips).
type Timetable struct {
	DepStop []int
	ArrStop []int
	DepTime []int
	ArrTime []int
	Trip    []int

	NStops int
	NTrips int
}

// New builds a timetable from connection records. Connections are sorted by
// departure time and the result is validated against nStops and nTrips.
func New(conns []models.Connection, nStops, nTrips int) (*Timetable, error) {
	sorted := make([]models.Connection, len(conns))
	copy(sorted, conns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DepTime < sorted[j].DepTime
	})

	tt := &Timetable{
		DepStop: make([]int, len(sorted)),
		ArrStop: make([]int, len(sorted)),
		DepTime: make([]int, len(sorted)),
		ArrTime: make([]int, len(sorted)),
		Trip:    make([]int, len(sorted)),
		NStops:  nStops,
		NTrips:  nTrips,
	}
	for i, c := range sorted {
		tt.DepStop[i] = c.DepStop
		tt.ArrStop[i] = c.ArrStop
		tt.DepTime[i] = c.DepTime
		tt.ArrTime[i] = c.ArrTime
		tt.Trip[i] = c.Trip
	}

	if err := tt.validate(); err != nil {
		return nil, err
	}
	return tt, nil
}

// Len returns the number of connections.
func (t *Timetable) Len() int { return len(t.DepTime) }

// Connection returns row i as a record.
func (t *Timetable) Connection(i int) models.Connection {
	return models.Connection{
		DepStop: t.DepStop[i],
		ArrStop: t.ArrStop[i],
		DepTime: t.DepTime[i],
		ArrTime: t.ArrTime[i],
		Trip:    t.Trip[i],
	}
}

func (t *Timetable) validate() error {
	for i := 0; i < t.Len(); i++ {
		if t.DepTime[i] < 0 || t.ArrTime[i] < 0 {
			return fmt.Errorf("%w: negative time at row %d", ErrInvalidTimetable, i)
		}
		if t.ArrTime[i] < t.DepTime[i] {
			return fmt.Errorf("%w: arrival before departure at row %d", ErrInvalidTimetable, i)
		}
		if t.DepStop[i] < 0 || t.DepStop[i] >= t.NStops ||
			t.ArrStop[i] < 0 || t.ArrStop[i] >= t.NStops {
			return fmt.Errorf("%w: stop id out of range at row %d", ErrInvalidTimetable, i)
		}
		if t.Trip[i] < 0 || t.Trip[i] >= t.NTrips {
			return fmt.Errorf("%w: trip id out of range at row %d", ErrInvalidTimetable, i)
		}
		if i > 0 && t.DepTime[i] < t.DepTime[i-1] {
			return fmt.Errorf("%w: departure times not sorted at row %d", ErrInvalidTimetable, i)
		}
	}
	return nil
}

// Store holds the loaded timetable and transfer index in memory so queries
// never touch the database. The data is immutable once swapped in; the mutex
// only guards the load.
type Store struct {
	mu        sync.RWMutex
	timetable *Timetable
	transfers *TransferIndex
	loaded    bool
}

var (
	globalStore     *Store
	globalStoreOnce sync.Once
)

// GetStore returns the singleton in-memory timetable store.
func GetStore() *Store {
	globalStoreOnce.Do(func() {
		globalStore = &Store{}
	})
	return globalStore
}

// LoadFromDB loads the connection and transfer tables from PostgreSQL.
func (s *Store) LoadFromDB(ctx context.Context, db *pgxpool.Pool) error {
	startTime := time.Now()
	log.Println("Loading timetable into memory...")

	var nStops, nTrips int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM stop`).Scan(&nStops); err != nil {
		return fmt.Errorf("failed to count stops: %w", err)
	}
	if err := db.QueryRow(ctx, `SELECT COALESCE(MAX(trip_idx) + 1, 0) FROM connection`).Scan(&nTrips); err != nil {
		return fmt.Errorf("failed to count trips: %w", err)
	}

	connRows, err := db.Query(ctx, `
		SELECT dep_stop, arr_stop, dep_time, arr_time, trip_idx
		FROM connection
		ORDER BY dep_time
	`)
	if err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}
	defer connRows.Close()

	var conns []models.Connection
	for connRows.Next() {
		var c models.Connection
		if err := connRows.Scan(&c.DepStop, &c.ArrStop, &c.DepTime, &c.ArrTime, &c.Trip); err != nil {
			log.Printf("Warning: failed to scan connection: %v", err)
			continue
		}
		conns = append(conns, c)
	}
	log.Printf("  Loaded %d connections", len(conns))

	tt, err := New(conns, nStops, nTrips)
	if err != nil {
		return err
	}

	transferRows, err := db.Query(ctx, `
		SELECT from_stop, to_stop, walk_seconds
		FROM transfer
	`)
	if err != nil {
		return fmt.Errorf("failed to load transfers: %w", err)
	}
	defer transferRows.Close()

	var transfers []models.Transfer
	for transferRows.Next() {
		var tr models.Transfer
		if err := transferRows.Scan(&tr.FromStop, &tr.ToStop, &tr.WalkSeconds); err != nil {
			log.Printf("Warning: failed to scan transfer: %v", err)
			continue
		}
		transfers = append(transfers, tr)
	}
	log.Printf("  Loaded %d transfers", len(transfers))

	s.Swap(tt, NewTransferIndex(transfers))

	log.Printf("Timetable loaded in %v (%d stops, %d trips, %d connections)",
		time.Since(startTime), nStops, nTrips, len(conns))
	return nil
}

// Swap replaces the stored timetable and transfer index.
func (s *Store) Swap(tt *Timetable, ti *TransferIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timetable = tt
	s.transfers = ti
	s.loaded = true
}

// IsLoaded returns true once a timetable has been swapped in.
func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Timetable returns the loaded timetable.
func (s *Store) Timetable() *Timetable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timetable
}

// Transfers returns the loaded transfer index.
func (s *Store) Transfers() *TransferIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transfers
}
