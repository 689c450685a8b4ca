package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/transitiq/transitiq_core/internal/models"
)

// Feed represents a parsed GTFS feed
type Feed struct {
	Stops       []models.GTFSStop
	Routes      []models.GTFSRoute
	Trips       []models.GTFSTrip
	StopTimes   []models.GTFSStopTime
	Transfers   []models.GTFSTransfer
	Frequencies []models.GTFSFrequency
}

// ParseZip extracts and parses a GTFS ZIP file
func ParseZip(zipPath string) (*Feed, error) {
	// Create temp directory for extraction
	tempDir, err := os.MkdirTemp("", "gtfs-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Extract ZIP
	if err := extractZip(zipPath, tempDir); err != nil {
		return nil, fmt.Errorf("failed to extract zip: %w", err)
	}

	feed := &Feed{}

	// Parse stops (required)
	stops, err := ParseStops(filepath.Join(tempDir, "stops.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stops (required): %w", err)
	}
	feed.Stops = stops
	log.Printf("Parsed %d stops", len(stops))

	// Parse routes (required)
	routes, err := ParseRoutes(filepath.Join(tempDir, "routes.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse routes (required): %w", err)
	}
	feed.Routes = routes
	log.Printf("Parsed %d routes", len(routes))

	// Parse trips (required)
	trips, err := ParseTrips(filepath.Join(tempDir, "trips.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse trips (required): %w", err)
	}
	feed.Trips = trips
	log.Printf("Parsed %d trips", len(trips))

	// Parse stop_times (required)
	stopTimes, err := ParseStopTimes(filepath.Join(tempDir, "stop_times.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stop_times (required): %w", err)
	}
	feed.StopTimes = stopTimes
	log.Printf("Parsed %d stop_times", len(stopTimes))

	// Parse transfers (optional)
	if transfers, err := ParseTransfers(filepath.Join(tempDir, "transfers.txt")); err == nil {
		feed.Transfers = transfers
		log.Printf("Parsed %d transfers", len(transfers))
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: failed to parse transfers: %v", err)
	}

	// Parse frequencies (optional)
	if freqs, err := ParseFrequencies(filepath.Join(tempDir, "frequencies.txt")); err == nil {
		feed.Frequencies = freqs
		log.Printf("Parsed %d frequencies", len(freqs))
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: failed to parse frequencies: %v", err)
	}

	return feed, nil
}

// ParseStops parses stops.txt
func ParseStops(filePath string) ([]models.GTFSStop, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseStopsFromReader(file)
}

func parseStopsFromReader(reader io.Reader) ([]models.GTFSStop, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var stops []models.GTFSStop

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed stop row: %v", err)
			continue
		}

		stopID := getField(record, colMap, "stop_id")
		stopName := getField(record, colMap, "stop_name")
		latStr := getField(record, colMap, "stop_lat")
		lonStr := getField(record, colMap, "stop_lon")

		// Skip stops without required fields
		if stopID == "" || latStr == "" || lonStr == "" {
			log.Printf("Warning: skipping stop with missing required fields: %s", stopID)
			continue
		}

		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			log.Printf("Warning: invalid latitude for stop %s: %v", stopID, err)
			continue
		}

		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			log.Printf("Warning: invalid longitude for stop %s: %v", stopID, err)
			continue
		}

		stops = append(stops, models.GTFSStop{
			StopID:   stopID,
			StopName: stopName,
			Lat:      lat,
			Lon:      lon,
		})
	}

	return stops, nil
}

// ParseRoutes parses routes.txt
func ParseRoutes(filePath string) ([]models.GTFSRoute, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseRoutesFromReader(file)
}

func parseRoutesFromReader(reader io.Reader) ([]models.GTFSRoute, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var routes []models.GTFSRoute

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed route row: %v", err)
			continue
		}

		routeID := getField(record, colMap, "route_id")
		if routeID == "" {
			continue
		}

		routeType, _ := strconv.Atoi(getField(record, colMap, "route_type"))

		routes = append(routes, models.GTFSRoute{
			RouteID:   routeID,
			AgencyID:  getField(record, colMap, "agency_id"),
			ShortName: getField(record, colMap, "route_short_name"),
			LongName:  getField(record, colMap, "route_long_name"),
			RouteType: routeType,
		})
	}

	return routes, nil
}

// ParseTrips parses trips.txt
func ParseTrips(filePath string) ([]models.GTFSTrip, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseTripsFromReader(file)
}

func parseTripsFromReader(reader io.Reader) ([]models.GTFSTrip, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var trips []models.GTFSTrip

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed trip row: %v", err)
			continue
		}

		tripID := getField(record, colMap, "trip_id")
		routeID := getField(record, colMap, "route_id")

		if tripID == "" || routeID == "" {
			continue
		}

		direction, _ := strconv.Atoi(getField(record, colMap, "direction_id"))

		trips = append(trips, models.GTFSTrip{
			RouteID:   routeID,
			ServiceID: getField(record, colMap, "service_id"),
			TripID:    tripID,
			Headsign:  getField(record, colMap, "trip_headsign"),
			Direction: direction,
		})
	}

	return trips, nil
}

// ParseStopTimes parses stop_times.txt. Times are converted to
// seconds-since-midnight; rows whose times are missing are kept with
// MissingTime markers and resolved later by InterpolateStopTimes.
func ParseStopTimes(filePath string) ([]models.GTFSStopTime, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseStopTimesFromReader(file)
}

func parseStopTimesFromReader(reader io.Reader) ([]models.GTFSStopTime, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var stopTimes []models.GTFSStopTime

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed stop_time row: %v", err)
			continue
		}

		tripID := getField(record, colMap, "trip_id")
		stopID := getField(record, colMap, "stop_id")
		seqStr := getField(record, colMap, "stop_sequence")

		if tripID == "" || stopID == "" || seqStr == "" {
			continue
		}

		sequence, err := strconv.Atoi(seqStr)
		if err != nil {
			log.Printf("Warning: invalid sequence for trip %s: %v", tripID, err)
			continue
		}

		arrival := MissingTime
		if s := getField(record, colMap, "arrival_time"); s != "" {
			if arrival, err = ParseTimeToSeconds(s); err != nil {
				log.Printf("Warning: invalid arrival time for trip %s: %v", tripID, err)
				continue
			}
		}
		departure := MissingTime
		if s := getField(record, colMap, "departure_time"); s != "" {
			if departure, err = ParseTimeToSeconds(s); err != nil {
				log.Printf("Warning: invalid departure time for trip %s: %v", tripID, err)
				continue
			}
		}

		stopTimes = append(stopTimes, models.GTFSStopTime{
			TripID:        tripID,
			ArrivalTime:   arrival,
			DepartureTime: departure,
			StopID:        stopID,
			StopSequence:  sequence,
		})
	}

	return stopTimes, nil
}

// ParseTransfers parses transfers.txt
func ParseTransfers(filePath string) ([]models.GTFSTransfer, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseTransfersFromReader(file)
}

func parseTransfersFromReader(reader io.Reader) ([]models.GTFSTransfer, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var transfers []models.GTFSTransfer

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed transfer row: %v", err)
			continue
		}

		fromStop := getField(record, colMap, "from_stop_id")
		toStop := getField(record, colMap, "to_stop_id")
		if fromStop == "" || toStop == "" {
			continue
		}

		transferType, _ := strconv.Atoi(getField(record, colMap, "transfer_type"))
		minTime, _ := strconv.Atoi(getField(record, colMap, "min_transfer_time"))

		transfers = append(transfers, models.GTFSTransfer{
			FromStopID:      fromStop,
			ToStopID:        toStop,
			TransferType:    transferType,
			MinTransferTime: minTime,
		})
	}

	return transfers, nil
}

// ParseFrequencies parses frequencies.txt
func ParseFrequencies(filePath string) ([]models.GTFSFrequency, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseFrequenciesFromReader(file)
}

func parseFrequenciesFromReader(reader io.Reader) ([]models.GTFSFrequency, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	var freqs []models.GTFSFrequency

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping malformed frequency row: %v", err)
			continue
		}

		tripID := getField(record, colMap, "trip_id")
		if tripID == "" {
			continue
		}

		start, err := ParseTimeToSeconds(getField(record, colMap, "start_time"))
		if err != nil {
			log.Printf("Warning: invalid start time for frequency of trip %s: %v", tripID, err)
			continue
		}
		end, err := ParseTimeToSeconds(getField(record, colMap, "end_time"))
		if err != nil {
			log.Printf("Warning: invalid end time for frequency of trip %s: %v", tripID, err)
			continue
		}
		headway, err := strconv.Atoi(getField(record, colMap, "headway_secs"))
		if err != nil || headway <= 0 {
			log.Printf("Warning: invalid headway for frequency of trip %s", tripID)
			continue
		}

		freqs = append(freqs, models.GTFSFrequency{
			TripID:      tripID,
			StartTime:   start,
			EndTime:     end,
			HeadwaySecs: headway,
		})
	}

	return freqs, nil
}

// Helper functions

func makeColumnMap(header []string) map[string]int {
	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.TrimSpace(col)] = i
	}
	return colMap
}

func getField(record []string, colMap map[string]int, fieldName string) string {
	if idx, ok := colMap[fieldName]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func extractZip(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		// Skip directories
		if file.FileInfo().IsDir() {
			continue
		}

		// Open file in zip
		rc, err := file.Open()
		if err != nil {
			return err
		}

		// Create destination file
		destPath := filepath.Join(destDir, filepath.Base(file.Name))
		outFile, err := os.Create(destPath)
		if err != nil {
			rc.Close()
			return err
		}

		// Copy contents
		_, err = io.Copy(outFile, rc)
		rc.Close()
		outFile.Close()

		if err != nil {
			return err
		}
	}

	return nil
}
