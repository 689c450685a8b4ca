package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/transitiq/transitiq_core/internal/cache"
	"github.com/transitiq/transitiq_core/internal/csa"
	"github.com/transitiq/transitiq_core/internal/db"
	"github.com/transitiq/transitiq_core/internal/metrics"
	"github.com/transitiq/transitiq_core/internal/models"
	"github.com/transitiq/transitiq_core/internal/timefmt"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

var collector *metrics.Collector

// SetCollector wires the Prometheus collector used by the handlers.
func SetCollector(c *metrics.Collector) {
	collector = c
}

// JourneyResponse is the earliest-arrival API response
type JourneyResponse struct {
	Journey models.Journey `json:"journey"`
}

// IsochroneResponse lists the reconstructed path to every frontier stop
type IsochroneResponse struct {
	Journeys []models.Journey `json:"journeys"`
	Count    int              `json:"count"`
}

// TravelTimesResponse is the one-to-all matrix, one row per stop
type TravelTimesResponse struct {
	Rows []models.TravelTime `json:"rows"`
}

// Journey handles the /v2/journey endpoint (earliest arrival).
func Journey(c *fiber.Ctx) error {
	origins, err := parseStopList(c.Query("from"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'from' stops: %v", err))
	}
	targets, err := parseStopList(c.Query("to"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'to' stops: %v", err))
	}
	startTime, endTime, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	objective := models.ParseObjective(c.Query("objective"))

	eng, err := getEngine()
	if err != nil {
		return serviceUnavailable(c, err)
	}

	params := fmt.Sprintf("%v|%v|%d|%d|%s", origins, targets, startTime, endTime, objective)
	payload, status, err := computeCached(c.Context(), "journey", params, func() (interface{}, int, error) {
		journey, err := eng.EarliestArrival(csa.EAQuery{
			Origins:   origins,
			Targets:   targets,
			StartTime: startTime,
			EndTime:   endTime,
			Objective: objective,
		})
		if errors.Is(err, csa.ErrNoRouteFound) {
			return fiber.Map{"error": "no route found between the specified stops"}, 404, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return JourneyResponse{Journey: journey}, 200, nil
	})
	if err != nil {
		log.Printf("Journey query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}

	c.Set("Content-Type", "application/json")
	return c.Status(status).Send(payload)
}

// Isochrone handles the /v2/isochrone endpoint.
func Isochrone(c *fiber.Ctx) error {
	origins, err := parseStopList(c.Query("from"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'from' stops: %v", err))
	}
	startTime, endTime, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if endTime <= startTime {
		return badRequest(c, "'end' must be after 'start'")
	}
	objective := models.ParseObjective(c.Query("objective"))

	eng, err := getEngine()
	if err != nil {
		return serviceUnavailable(c, err)
	}

	params := fmt.Sprintf("%v|%d|%d|%s", origins, startTime, endTime, objective)
	payload, status, err := computeCached(c.Context(), "isochrone", params, func() (interface{}, int, error) {
		journeys, err := eng.Isochrone(csa.IsochroneQuery{
			Origins:   origins,
			StartTime: startTime,
			EndTime:   endTime,
			Objective: objective,
		})
		if err != nil {
			return nil, 0, err
		}
		if journeys == nil {
			journeys = []models.Journey{}
		}
		return IsochroneResponse{Journeys: journeys, Count: len(journeys)}, 200, nil
	})
	if err != nil {
		log.Printf("Isochrone query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}

	c.Set("Content-Type", "application/json")
	return c.Status(status).Send(payload)
}

// TravelTimes handles the /v2/traveltimes endpoint.
func TravelTimes(c *fiber.Ctx) error {
	origins, err := parseStopList(c.Query("from"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'from' stops: %v", err))
	}
	startMin, err := timefmt.Parse(c.Query("start_min"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'start_min': %v", err))
	}
	startMax, err := timefmt.Parse(c.Query("start_max"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'start_max': %v", err))
	}
	if startMax < startMin {
		return badRequest(c, "'start_max' must not be before 'start_min'")
	}
	maxTraveltime, err := timefmt.Parse(c.Query("max_traveltime", "1H 0M 0S"))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid 'max_traveltime': %v", err))
	}
	objective := models.ParseObjective(c.Query("objective"))

	eng, err := getEngine()
	if err != nil {
		return serviceUnavailable(c, err)
	}

	params := fmt.Sprintf("%v|%d|%d|%d|%s", origins, startMin, startMax, maxTraveltime, objective)
	payload, status, err := computeCached(c.Context(), "traveltimes", params, func() (interface{}, int, error) {
		rows := eng.TravelTimes(csa.TravelTimesQuery{
			Origins:       origins,
			StartTimeMin:  startMin,
			StartTimeMax:  startMax,
			MaxTraveltime: maxTraveltime,
			Objective:     objective,
		})
		return TravelTimesResponse{Rows: rows}, 200, nil
	})
	if err != nil {
		log.Printf("TravelTimes query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}

	c.Set("Content-Type", "application/json")
	return c.Status(status).Send(payload)
}

// Health handles the /health endpoint
func Health(c *fiber.Ctx) error {
	ctx := c.Context()

	// Check database
	dbErr := db.HealthCheck(ctx)
	dbStatus := "ok"
	if dbErr != nil {
		dbStatus = dbErr.Error()
	}

	// Check Redis
	redisErr := cache.HealthCheck(ctx)
	redisStatus := "ok"
	if redisErr != nil {
		redisStatus = redisErr.Error()
	}

	// Check timetable
	timetableStatus := "ok"
	loaded := timetable.GetStore().IsLoaded()
	if !loaded {
		timetableStatus = "timetable not loaded"
	}

	// Overall status
	status := "healthy"
	httpStatus := 200
	if dbErr != nil || redisErr != nil || !loaded {
		status = "unhealthy"
		httpStatus = 503
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checks": fiber.Map{
			"database":  dbStatus,
			"redis":     redisStatus,
			"timetable": timetableStatus,
		},
	})
}

// cachedEnvelope wraps a computed response with its HTTP status so 404
// results are cached alongside 200s.
type cachedEnvelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// computeCached wraps a query computation with the Redis cache and the
// lock-and-wait pattern, and records query metrics.
func computeCached(ctx context.Context, kind, params string, compute func() (interface{}, int, error)) ([]byte, int, error) {
	cacheKey := cache.QueryKey(kind, params)
	lockKey := cache.LockKey(cacheKey)

	if data, err := cache.GetResult(ctx, cacheKey); err == nil && data != nil {
		if collector != nil {
			collector.CacheHits.Inc()
		}
		var envelope cachedEnvelope
		if err := json.Unmarshal(data, &envelope); err == nil {
			return envelope.Body, envelope.Status, nil
		}
	}
	if collector != nil {
		collector.CacheMisses.Inc()
	}

	acquired, err := cache.AcquireLock(ctx, lockKey, 5*time.Second)
	if err != nil {
		log.Printf("Failed to acquire lock: %v", err)
		// Continue without lock (degrade gracefully)
	} else if !acquired {
		// Another request is computing this query, wait for it
		if data, err := cache.WaitForResult(ctx, cacheKey, 3*time.Second); err == nil && data != nil {
			var envelope cachedEnvelope
			if err := json.Unmarshal(data, &envelope); err == nil {
				return envelope.Body, envelope.Status, nil
			}
		}
		// If waiting failed, compute anyway
	}

	defer func() {
		if acquired {
			cache.ReleaseLock(ctx, lockKey)
		}
	}()

	start := time.Now()
	result, status, err := compute()
	if collector != nil {
		collector.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		} else if status != 200 {
			outcome = "no_route"
		}
		collector.QueriesTotal.WithLabelValues(kind, outcome).Inc()
	}
	if err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal response: %w", err)
	}

	envelope, err := json.Marshal(cachedEnvelope{Status: status, Body: body})
	if err == nil {
		if err := cache.SetResult(ctx, cacheKey, envelope, 10*time.Minute); err != nil {
			log.Printf("Failed to cache query result: %v", err)
		}
	}

	return body, status, nil
}

func getEngine() (*csa.Engine, error) {
	store := timetable.GetStore()
	if !store.IsLoaded() {
		return nil, fmt.Errorf("timetable not loaded")
	}
	return csa.New(store.Timetable(), store.Transfers()), nil
}

// parseStopList parses a comma-separated list of stop ids
func parseStopList(raw string) ([]int, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing stop list")
	}

	parts := strings.Split(raw, ",")
	stops := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid stop id %q", p)
		}
		if id < 0 {
			return nil, fmt.Errorf("stop id must not be negative: %d", id)
		}
		stops = append(stops, id)
	}
	return stops, nil
}

func parseWindow(c *fiber.Ctx) (int, int, error) {
	startTime, err := timefmt.Parse(c.Query("start"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid 'start': %v", err)
	}
	endTime, err := timefmt.Parse(c.Query("end"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid 'end': %v", err)
	}
	return startTime, endTime, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(400).JSON(fiber.Map{"error": msg})
}

func serviceUnavailable(c *fiber.Ctx, err error) error {
	return c.Status(503).JSON(fiber.Map{"error": err.Error()})
}
