package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/transitiq/transitiq_core/internal/db"
	"github.com/transitiq/transitiq_core/internal/gtfs"
	"github.com/transitiq/transitiq_core/internal/models"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

const batchSize = 1000

// frequency trip ids are suffixed with this marker when exploded
const frequencySuffix = "_f"

func main() {
	_ = godotenv.Load()

	// Command-line flags
	agencyID := flag.String("agency-id", "", "Agency ID for this GTFS feed (required)")
	gtfsPath := flag.String("gtfs", "", "Path to GTFS ZIP file (required)")
	dedupeThreshold := flag.Float64("dedupe-threshold", 30.0, "Stop deduplication threshold in meters")

	flag.Parse()

	// Validate required flags
	if *agencyID == "" || *gtfsPath == "" {
		fmt.Println("Usage: transitiq-import --agency-id=<id> --gtfs=<path.zip> [--dedupe-threshold=30]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Validate file exists
	if _, err := os.Stat(*gtfsPath); os.IsNotExist(err) {
		log.Fatalf("GTFS file not found: %s", *gtfsPath)
	}

	log.Println("Starting GTFS import...")
	log.Printf("Agency ID: %s", *agencyID)
	log.Printf("GTFS file: %s", *gtfsPath)

	// Initialize database connection
	pool, err := db.GetDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if err := ensureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	// Create import log entry
	importLogID, err := createImportLog(ctx, pool, *agencyID)
	if err != nil {
		log.Fatalf("Failed to create import log: %v", err)
	}

	if err := runImport(ctx, pool, *agencyID, *gtfsPath, *dedupeThreshold, importLogID); err != nil {
		updateImportLog(ctx, pool, importLogID, "failed", 0, 0, 0, 0, err.Error())
		log.Fatalf("Import failed: %v", err)
	}

	log.Println("Import completed successfully!")
}

func runImport(ctx context.Context, pool *pgxpool.Pool, agencyID, gtfsPath string, dedupeThreshold float64, logID int64) error {
	startTime := time.Now()

	// Parse GTFS feed
	log.Println("Step 1/6: Parsing GTFS feed...")
	feed, err := gtfs.ParseZip(gtfsPath)
	if err != nil {
		return fmt.Errorf("failed to parse GTFS: %w", err)
	}

	// Validate and clean stops
	log.Println("Step 2/6: Validating and cleaning stops...")
	feed.Stops = gtfs.ValidateAndCleanStops(feed.Stops)

	// Deduplicate stops
	log.Println("Step 3/6: Deduplicating stops...")
	var stopMapping map[string]string
	feed.Stops, stopMapping = gtfs.DeduplicateStops(feed.Stops, dedupeThreshold)

	// Remap stop IDs in stop_times to use deduplicated stops
	for i := range feed.StopTimes {
		if newID, ok := stopMapping[feed.StopTimes[i].StopID]; ok {
			feed.StopTimes[i].StopID = newID
		}
	}

	// Resolve missing times and explode frequency-based trips
	log.Println("Step 4/6: Building connections...")
	feed.StopTimes = gtfs.InterpolateStopTimes(feed.StopTimes)
	stopTimes := explodeFrequencies(feed.StopTimes, feed.Frequencies)

	stops := timetable.NewIndexer()
	for _, s := range feed.Stops {
		stops.Index(s.StopID)
	}
	trips := timetable.NewIndexer()

	conns := timetable.MakeConnections(stopTimes, stops, trips)

	tt, err := timetable.New(conns, stops.Len(), trips.Len())
	if err != nil {
		return fmt.Errorf("timetable rejected: %w", err)
	}
	log.Printf("Built %d connections (%d stops, %d trips)", tt.Len(), tt.NStops, tt.NTrips)

	// Walking transfers: explicit transfers.txt rows first, then generated
	// neighbours for the rest
	transfers := make([]models.Transfer, 0, len(feed.Transfers))
	for _, t := range feed.Transfers {
		from, okFrom := stops.Lookup(resolveStop(stopMapping, t.FromStopID))
		to, okTo := stops.Lookup(resolveStop(stopMapping, t.ToStopID))
		if !okFrom || !okTo {
			continue
		}
		transfers = append(transfers, models.Transfer{
			FromStop:    from,
			ToStop:      to,
			WalkSeconds: t.MinTransferTime,
		})
	}
	transfers = append(transfers, timetable.GenerateTransfers(feed.Stops, stops)...)
	index := timetable.NewTransferIndex(transfers)
	log.Printf("Built transfers for %d stops", index.Len())

	// Persist
	log.Println("Step 5/6: Importing into database...")
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := importStops(ctx, tx, agencyID, feed.Stops, stops); err != nil {
		return fmt.Errorf("failed to import stops: %w", err)
	}
	if err := importTrips(ctx, tx, agencyID, trips); err != nil {
		return fmt.Errorf("failed to import trips: %w", err)
	}
	if err := importTransfers(ctx, tx, index); err != nil {
		return fmt.Errorf("failed to import transfers: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Connections and stop_times are too large for a single transaction
	log.Printf("Step 6/6: Importing %d connections and %d stop_times...", tt.Len(), len(stopTimes))
	if err := importConnections(ctx, pool, tt); err != nil {
		return fmt.Errorf("failed to import connections: %w", err)
	}
	if err := importStopTimesChunked(ctx, pool, stopTimes); err != nil {
		return fmt.Errorf("failed to import stop_times: %w", err)
	}

	duration := time.Since(startTime)
	log.Printf("Import completed in %s", duration)

	nTransfers := 0
	for s := 0; s < tt.NStops; s++ {
		nTransfers += len(index.From(s))
	}
	return updateImportLog(ctx, pool, logID, "success",
		len(feed.Stops), trips.Len(), tt.Len(), nTransfers, "")
}

// explodeFrequencies replaces the stop-times of frequency-based trips with
// their exploded clones; trips without a frequency entry pass through.
func explodeFrequencies(stopTimes []models.GTFSStopTime, freqs []models.GTFSFrequency) []models.GTFSStopTime {
	if len(freqs) == 0 {
		return stopTimes
	}

	freqTrips := make(map[string]bool, len(freqs))
	for _, f := range freqs {
		freqTrips[f.TripID] = true
	}

	var out []models.GTFSStopTime
	for _, st := range stopTimes {
		if !freqTrips[st.TripID] {
			out = append(out, st)
		}
	}
	exploded := timetable.ExpandFrequencies(freqs, stopTimes, frequencySuffix)
	log.Printf("Exploded %d frequency entries into %d stop_times", len(freqs), len(exploded))
	return append(out, exploded...)
}

func resolveStop(mapping map[string]string, stopID string) string {
	if mapped, ok := mapping[stopID]; ok {
		return mapped
	}
	return stopID
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stop (
			stop_idx INTEGER PRIMARY KEY,
			stop_id TEXT NOT NULL,
			agency_id TEXT,
			name TEXT,
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS trip (
			trip_idx INTEGER PRIMARY KEY,
			trip_id TEXT NOT NULL,
			agency_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS stop_time (
			trip_id TEXT NOT NULL,
			stop_id TEXT NOT NULL,
			arrival_time INTEGER NOT NULL,
			departure_time INTEGER NOT NULL,
			stop_sequence INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS connection (
			dep_stop INTEGER NOT NULL,
			arr_stop INTEGER NOT NULL,
			dep_time INTEGER NOT NULL,
			arr_time INTEGER NOT NULL,
			trip_idx INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS connection_dep_time_idx ON connection (dep_time)`,
		`CREATE TABLE IF NOT EXISTS transfer (
			from_stop INTEGER NOT NULL,
			to_stop INTEGER NOT NULL,
			walk_seconds INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_log (
			id BIGSERIAL PRIMARY KEY,
			agency_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			stops_count INTEGER DEFAULT 0,
			trips_count INTEGER DEFAULT 0,
			connections_count INTEGER DEFAULT 0,
			transfers_count INTEGER DEFAULT 0,
			error_msg TEXT DEFAULT ''
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func importStops(ctx context.Context, tx pgx.Tx, agencyID string, stops []models.GTFSStop, index *timetable.Indexer) error {
	if _, err := tx.Exec(ctx, `DELETE FROM stop`); err != nil {
		return err
	}

	byID := make(map[string]models.GTFSStop, len(stops))
	for _, s := range stops {
		byID[s.StopID] = s
	}

	batch := &pgx.Batch{}
	for i := 0; i < index.Len(); i++ {
		stopID := index.ID(i)
		s := byID[stopID]
		batch.Queue(`
			INSERT INTO stop (stop_idx, stop_id, agency_id, name, lat, lon)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, i, stopID, agencyID, s.StopName, s.Lat, s.Lon)

		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	return executeBatch(ctx, tx, batch)
}

func importTrips(ctx context.Context, tx pgx.Tx, agencyID string, index *timetable.Indexer) error {
	if _, err := tx.Exec(ctx, `DELETE FROM trip`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := 0; i < index.Len(); i++ {
		batch.Queue(`
			INSERT INTO trip (trip_idx, trip_id, agency_id)
			VALUES ($1, $2, $3)
		`, i, index.ID(i), agencyID)

		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	return executeBatch(ctx, tx, batch)
}

func importTransfers(ctx context.Context, tx pgx.Tx, index *timetable.TransferIndex) error {
	if _, err := tx.Exec(ctx, `DELETE FROM transfer`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for from, dests := range index.All() {
		for to, walk := range dests {
			batch.Queue(`
				INSERT INTO transfer (from_stop, to_stop, walk_seconds)
				VALUES ($1, $2, $3)
			`, from, to, walk)

			if batch.Len() >= batchSize {
				if err := executeBatch(ctx, tx, batch); err != nil {
					return err
				}
				batch = &pgx.Batch{}
			}
		}
	}
	return executeBatch(ctx, tx, batch)
}

func importConnections(ctx context.Context, pool *pgxpool.Pool, tt *timetable.Timetable) error {
	if _, err := pool.Exec(ctx, `DELETE FROM connection`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := 0; i < tt.Len(); i++ {
		batch.Queue(`
			INSERT INTO connection (dep_stop, arr_stop, dep_time, arr_time, trip_idx)
			VALUES ($1, $2, $3, $4, $5)
		`, tt.DepStop[i], tt.ArrStop[i], tt.DepTime[i], tt.ArrTime[i], tt.Trip[i])

		if batch.Len() >= batchSize {
			if err := executeBatchPool(ctx, pool, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	return executeBatchPool(ctx, pool, batch)
}

func importStopTimesChunked(ctx context.Context, pool *pgxpool.Pool, stopTimes []models.GTFSStopTime) error {
	if _, err := pool.Exec(ctx, `DELETE FROM stop_time`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, st := range stopTimes {
		batch.Queue(`
			INSERT INTO stop_time (trip_id, stop_id, arrival_time, departure_time, stop_sequence)
			VALUES ($1, $2, $3, $4, $5)
		`, st.TripID, st.StopID, st.ArrivalTime, st.DepartureTime, st.StopSequence)

		if batch.Len() >= batchSize {
			if err := executeBatchPool(ctx, pool, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	return executeBatchPool(ctx, pool, batch)
}

func executeBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
	}
	return nil
}

func executeBatchPool(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
	}
	return nil
}

func createImportLog(ctx context.Context, pool *pgxpool.Pool, agencyID string) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO import_log (agency_id, status)
		VALUES ($1, 'running')
		RETURNING id
	`, agencyID).Scan(&id)
	return id, err
}

func updateImportLog(ctx context.Context, pool *pgxpool.Pool, id int64, status string,
	stops, trips, connections, transfers int, errorMsg string) error {
	_, err := pool.Exec(ctx, `
		UPDATE import_log
		SET completed_at = now(), status = $2, stops_count = $3, trips_count = $4,
		    connections_count = $5, transfers_count = $6, error_msg = $7
		WHERE id = $1
	`, id, status, stops, trips, connections, transfers, errorMsg)
	if err != nil {
		log.Printf("Warning: failed to update import log: %v", err)
	}
	return err
}
