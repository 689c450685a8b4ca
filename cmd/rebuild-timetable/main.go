package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/transitiq/transitiq_core/internal/db"
	"github.com/transitiq/transitiq_core/internal/models"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

const batchSize = 1000

func main() {
	_ = godotenv.Load()

	log.Println("🔄 TransitIQ Core - Timetable Rebuild Tool")
	log.Println("==========================================")

	// Connect to database
	log.Println("📡 Connecting to database...")
	dbPool, err := db.GetDB()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("✅ Database connected")

	ctx := context.Background()

	// Check data availability
	var stopCount, stopTimeCount int
	err = dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM stop").Scan(&stopCount)
	if err != nil {
		log.Fatalf("❌ Failed to count stops: %v", err)
	}
	err = dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM stop_time").Scan(&stopTimeCount)
	if err != nil {
		log.Fatalf("❌ Failed to count stop_times: %v", err)
	}

	log.Printf("📊 Database statistics:")
	log.Printf("   Stops: %d", stopCount)
	log.Printf("   Stop times: %d", stopTimeCount)

	if stopCount == 0 || stopTimeCount == 0 {
		log.Fatalf("❌ No data found in database. Import GTFS data first!")
	}

	// Confirm rebuild
	fmt.Println()
	fmt.Println("⚠️  This will DELETE all existing connections and transfers!")
	fmt.Print("Continue? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)

	if confirm != "yes" && confirm != "y" {
		log.Println("❌ Rebuild cancelled")
		os.Exit(0)
	}

	fmt.Println()
	log.Println("🔄 Starting timetable rebuild...")
	startTime := time.Now()

	if err := rebuild(ctx, dbPool); err != nil {
		log.Fatalf("❌ Failed to rebuild timetable: %v", err)
	}

	duration := time.Since(startTime)

	// Show results
	var connCount, transferCount int
	if err := dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM connection").Scan(&connCount); err != nil {
		log.Printf("⚠️  Failed to count connections: %v", err)
	}
	if err := dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM transfer").Scan(&transferCount); err != nil {
		log.Printf("⚠️  Failed to count transfers: %v", err)
	}

	fmt.Println()
	log.Println("✅ Timetable rebuild completed!")
	log.Printf("⏱️  Duration: %v", duration)
	log.Printf("📊 Timetable statistics:")
	log.Printf("   Connections: %d", connCount)
	log.Printf("   Transfers: %d", transferCount)

	fmt.Println()
	log.Println("🚀 Timetable is ready for queries!")
}

func rebuild(ctx context.Context, pool *pgxpool.Pool) error {
	// Stops in stop_idx order so the rebuilt ids match the stop table
	stopRows, err := pool.Query(ctx, `
		SELECT stop_id, COALESCE(name, ''), COALESCE(lat, 0), COALESCE(lon, 0)
		FROM stop ORDER BY stop_idx
	`)
	if err != nil {
		return fmt.Errorf("failed to load stops: %w", err)
	}
	defer stopRows.Close()

	stops := timetable.NewIndexer()
	var gtfsStops []models.GTFSStop
	for stopRows.Next() {
		var s models.GTFSStop
		if err := stopRows.Scan(&s.StopID, &s.StopName, &s.Lat, &s.Lon); err != nil {
			log.Printf("Warning: failed to scan stop: %v", err)
			continue
		}
		stops.Index(s.StopID)
		gtfsStops = append(gtfsStops, s)
	}

	stRows, err := pool.Query(ctx, `
		SELECT trip_id, stop_id, arrival_time, departure_time, stop_sequence
		FROM stop_time ORDER BY trip_id, stop_sequence
	`)
	if err != nil {
		return fmt.Errorf("failed to load stop_times: %w", err)
	}
	defer stRows.Close()

	var stopTimes []models.GTFSStopTime
	for stRows.Next() {
		var st models.GTFSStopTime
		if err := stRows.Scan(&st.TripID, &st.StopID, &st.ArrivalTime, &st.DepartureTime, &st.StopSequence); err != nil {
			log.Printf("Warning: failed to scan stop_time: %v", err)
			continue
		}
		stopTimes = append(stopTimes, st)
	}

	trips := timetable.NewIndexer()
	conns := timetable.MakeConnections(stopTimes, stops, trips)

	tt, err := timetable.New(conns, stops.Len(), trips.Len())
	if err != nil {
		return fmt.Errorf("timetable rejected: %w", err)
	}

	transfers := timetable.GenerateTransfers(gtfsStops, stops)
	index := timetable.NewTransferIndex(transfers)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM connection`); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i := 0; i < tt.Len(); i++ {
		batch.Queue(`
			INSERT INTO connection (dep_stop, arr_stop, dep_time, arr_time, trip_idx)
			VALUES ($1, $2, $3, $4, $5)
		`, tt.DepStop[i], tt.ArrStop[i], tt.DepTime[i], tt.ArrTime[i], tt.Trip[i])
		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	if err := executeBatch(ctx, tx, batch); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transfer`); err != nil {
		return err
	}
	batch = &pgx.Batch{}
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
	if err := executeBatch(ctx, tx, batch); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM trip`); err != nil {
		return err
	}
	batch = &pgx.Batch{}
	for i := 0; i < trips.Len(); i++ {
		batch.Queue(`
			INSERT INTO trip (trip_idx, trip_id) VALUES ($1, $2)
		`, i, trips.ID(i))
		if batch.Len() >= batchSize {
			if err := executeBatch(ctx, tx, batch); err != nil {
				return err
			}
			batch = &pgx.Batch{}
		}
	}
	if err := executeBatch(ctx, tx, batch); err != nil {
		return err
	}

	return tx.Commit(ctx)
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
