package api

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/greenroute/greenroute_core/internal/cache"
	"github.com/greenroute/greenroute_core/internal/config"
	"github.com/greenroute/greenroute_core/internal/db"
	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/planner"
	"github.com/greenroute/greenroute_core/internal/store"
)

// maxGVIPointsPerQuery bounds the gvi-points read endpoint.
const maxGVIPointsPerQuery = 20000

// maxGVIPointsPerInsert bounds one add-gvi-points call, matching the
// greenness service's batch limit.
const maxGVIPointsPerInsert = 20

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// RoutePlanner produces scored route plans.
type RoutePlanner interface {
	PlanRoutes(ctx context.Context, req planner.PlanRequest) ([]models.RoutePlan, error)
}

// DataStore is the read/write surface the API serves directly.
type DataStore interface {
	AvailableMonths(ctx context.Context) ([]string, error)
	MonthStats(ctx context.Context, month string) (*models.DGVIStats, error)
	GVIPointsForMonth(ctx context.Context, month string, limit int) ([]models.GVIPoint, error)
	InsertGVIPoints(ctx context.Context, points []models.GVIPoint) (int, error)
	StopsWithinAndNearest(ctx context.Context, lat, lon, radiusMeters float64, k, limit int) ([]models.Site, error)
}

// Rebuilder recomputes per-month DGVI rows.
type Rebuilder interface {
	RebuildMonth(ctx context.Context, month string) (int, error)
}

// GVICalculator calls the external greenness service.
type GVICalculator interface {
	CalculateGVI(ctx context.Context, points []models.LatLon, month string) ([]models.GVIPoint, []string, error)
}

// Server holds the handler dependencies.
type Server struct {
	planner   RoutePlanner
	store     DataStore
	rebuilder Rebuilder
	greenery  GVICalculator
	opts      config.Options

	// cacheTTL of 0 disables the Redis plan cache and rebuild lock
	cacheTTL time.Duration
}

// NewServer creates the API server.
func NewServer(p RoutePlanner, store DataStore, rebuilder Rebuilder, greenery GVICalculator, opts config.Options, cacheTTL time.Duration) *Server {
	return &Server{
		planner:   p,
		store:     store,
		rebuilder: rebuilder,
		greenery:  greenery,
		opts:      opts,
		cacheTTL:  cacheTTL,
	}
}

// Register mounts all routes on the app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/health", s.Health)

	v1 := app.Group("/v1")
	v1.Post("/plan-routes", s.PlanRoutes)
	v1.Get("/months", s.Months)
	v1.Get("/dgvi-stats/:month", s.DGVIStats)
	v1.Get("/gvi-points/:month", s.GVIPoints)
	v1.Get("/sites/nearby", s.SitesNearby)
	v1.Post("/gvi-points", s.AddGVIPoints)
	v1.Post("/admin/update-dgvi", s.UpdateDGVI)
}

// planRequestBody is the plan-routes request payload.
type planRequestBody struct {
	Origin      models.LatLon       `json:"origin"`
	Destination models.LatLon       `json:"destination"`
	GVIMonth    string              `json:"gvi_month"`
	Preferences *planner.Preference `json:"preferences"`
	MaxResults  int                 `json:"max_results"`
}

// planResults wraps the scored routes of one plan-routes call.
type planResults struct {
	TotalRoutes int               `json:"total_routes"`
	Routes      []models.APIRoute `json:"routes"`
}

// planResponse echoes the request and carries the results envelope.
type planResponse struct {
	Origin      models.LatLon      `json:"origin"`
	Destination models.LatLon      `json:"destination"`
	GVIMonth    string             `json:"gvi_month,omitempty"`
	Preferences planner.Preference `json:"preferences"`
	MaxResults  int                `json:"max_results"`
	Results     planResults        `json:"results"`
}

// PlanRoutes handles POST /v1/plan-routes
func (s *Server) PlanRoutes(c *fiber.Ctx) error {
	var body planRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if body.GVIMonth != "" && !monthPattern.MatchString(body.GVIMonth) {
		return c.Status(400).JSON(fiber.Map{
			"error": "gvi_month must be formatted YYYY-MM",
		})
	}

	pref := planner.DefaultPreference()
	if body.Preferences != nil {
		pref = *body.Preferences
	}

	req := planner.PlanRequest{
		Origin:      body.Origin,
		Destination: body.Destination,
		Month:       body.GVIMonth,
		Preference:  pref,
		MaxResults:  body.MaxResults,
	}
	if err := req.Validate(); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), s.opts.PlanTimeout)
	defer cancel()

	plans, err := s.computePlans(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(504).JSON(fiber.Map{
				"error": "planning request timed out",
			})
		}
		log.Printf("Planning failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "route planning failed",
		})
	}

	resp := planResponse{
		Origin:      body.Origin,
		Destination: body.Destination,
		GVIMonth:    body.GVIMonth,
		Preferences: pref,
		MaxResults:  req.MaxResults,
		Results:     planResults{TotalRoutes: len(plans), Routes: []models.APIRoute{}},
	}
	for i := range plans {
		resp.Results.Routes = append(resp.Results.Routes, plans[i].ToAPI())
	}

	return c.JSON(resp)
}

// computePlans runs the planner behind the Redis plan cache with a
// distributed lock so concurrent identical requests compute once.
func (s *Server) computePlans(ctx context.Context, req planner.PlanRequest) ([]models.RoutePlan, error) {
	if s.cacheTTL <= 0 {
		return s.planner.PlanRoutes(ctx, req)
	}

	cacheKey := cache.PlanKey(req.Origin, req.Destination, req.Month, req.Preference.Time, req.Preference.Green, req.MaxResults)
	lockKey := cache.LockKey(cacheKey)

	cached, err := cache.GetPlans(ctx, cacheKey)
	if err == nil && cached != nil {
		return cached, nil
	}

	acquired, err := cache.AcquireLock(ctx, lockKey, 5*time.Second)
	if err != nil {
		log.Printf("Failed to acquire plan lock: %v", err)
	} else if !acquired {
		cached, err := cache.WaitForLock(ctx, cacheKey, 3*time.Second)
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	defer func() {
		if acquired {
			if err := cache.ReleaseLock(context.Background(), lockKey); err != nil {
				log.Printf("Failed to release plan lock: %v", err)
			}
		}
	}()

	plans, err := s.planner.PlanRoutes(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := cache.SetPlans(ctx, cacheKey, plans, s.cacheTTL); err != nil {
		log.Printf("Failed to cache plans: %v", err)
	}

	return plans, nil
}

// Months handles GET /v1/months
func (s *Server) Months(c *fiber.Ctx) error {
	months, err := s.store.AvailableMonths(c.Context())
	if err != nil {
		log.Printf("Months lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to list available months",
		})
	}
	if months == nil {
		months = []string{}
	}

	resp := fiber.Map{"months": months}
	if len(months) > 0 {
		resp["recommended"] = months[0]
	}
	return c.JSON(resp)
}

// DGVIStats handles GET /v1/dgvi-stats/:month
func (s *Server) DGVIStats(c *fiber.Ctx) error {
	month := c.Params("month")
	if !monthPattern.MatchString(month) {
		return c.Status(400).JSON(fiber.Map{
			"error": "month must be formatted YYYY-MM",
		})
	}

	stats, err := s.store.MonthStats(c.Context(), month)
	if errors.Is(err, store.ErrNoDataForMonth) {
		return c.Status(404).JSON(fiber.Map{
			"error": "no DGVI rows for month " + month,
		})
	}
	if err != nil {
		log.Printf("DGVI stats for %s failed: %v", month, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to compute DGVI stats",
		})
	}

	return c.JSON(stats)
}

// GVIPoints handles GET /v1/gvi-points/:month
func (s *Server) GVIPoints(c *fiber.Ctx) error {
	month := c.Params("month")
	if !monthPattern.MatchString(month) {
		return c.Status(400).JSON(fiber.Map{
			"error": "month must be formatted YYYY-MM",
		})
	}

	limit := c.QueryInt("limit", maxGVIPointsPerQuery)
	if limit <= 0 || limit > maxGVIPointsPerQuery {
		limit = maxGVIPointsPerQuery
	}

	points, err := s.store.GVIPointsForMonth(c.Context(), month, limit)
	if err != nil {
		log.Printf("GVI points for %s failed: %v", month, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to load GVI points",
		})
	}
	if points == nil {
		points = []models.GVIPoint{}
	}

	return c.JSON(fiber.Map{
		"month":  month,
		"count":  len(points),
		"points": points,
	})
}

// SitesNearby handles GET /v1/sites/nearby
func (s *Server) SitesNearby(c *fiber.Ctx) error {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid or missing lat parameter",
		})
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid or missing lon parameter",
		})
	}

	maxDistance := s.opts.MaxWalkingDistance()
	if v := c.Query("max_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d <= 0 {
			return c.Status(400).JSON(fiber.Map{
				"error": "invalid max_distance parameter",
			})
		}
		maxDistance = d
	}

	sites, err := s.store.StopsWithinAndNearest(c.Context(), lat, lon, maxDistance, 3, 10)
	if err != nil {
		log.Printf("Nearby sites failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to find nearby sites",
		})
	}
	if sites == nil {
		sites = []models.Site{}
	}

	return c.JSON(fiber.Map{
		"count": len(sites),
		"sites": sites,
	})
}

// addGVIPointsBody is the add-gvi-points request payload.
type addGVIPointsBody struct {
	Points []models.LatLon `json:"points"`
	Month  string          `json:"month"`
}

// AddGVIPoints handles POST /v1/gvi-points: compute GVI for the submitted
// points via the external greenness service and persist the results.
func (s *Server) AddGVIPoints(c *fiber.Ctx) error {
	var body addGVIPointsBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if len(body.Points) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "points must not be empty",
		})
	}
	if len(body.Points) > maxGVIPointsPerInsert {
		return c.Status(400).JSON(fiber.Map{
			"error": "at most 20 points per call",
		})
	}
	if !monthPattern.MatchString(body.Month) {
		return c.Status(400).JSON(fiber.Map{
			"error": "month must be formatted YYYY-MM",
		})
	}

	computed, failures, err := s.greenery.CalculateGVI(c.Context(), body.Points, body.Month)
	if err != nil {
		log.Printf("GVI calculation failed: %v", err)
		return c.Status(502).JSON(fiber.Map{
			"error": "greenness service unavailable",
		})
	}

	inserted := 0
	if len(computed) > 0 {
		inserted, err = s.store.InsertGVIPoints(c.Context(), computed)
		if err != nil {
			log.Printf("GVI insert failed: %v", err)
			return c.Status(500).JSON(fiber.Map{
				"error": "failed to persist GVI points",
			})
		}
	}
	if failures == nil {
		failures = []string{}
	}

	return c.JSON(fiber.Map{
		"inserted": inserted,
		"failed":   failures,
	})
}

// updateDGVIBody is the admin rebuild request payload.
type updateDGVIBody struct {
	Month string `json:"month"`
}

// UpdateDGVI handles POST /v1/admin/update-dgvi: recompute all DGVI rows
// for one month. Guarded by a Redis lock so two rebuilds of the same month
// cannot interleave.
func (s *Server) UpdateDGVI(c *fiber.Ctx) error {
	var body updateDGVIBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if !monthPattern.MatchString(body.Month) {
		return c.Status(400).JSON(fiber.Map{
			"error": "month must be formatted YYYY-MM",
		})
	}

	if s.cacheTTL > 0 {
		lockKey := cache.RebuildLockKey(body.Month)
		acquired, err := cache.AcquireLock(c.Context(), lockKey, 30*time.Minute)
		if err != nil {
			log.Printf("Failed to acquire rebuild lock: %v", err)
		} else if !acquired {
			return c.Status(409).JSON(fiber.Map{
				"error": "a rebuild for this month is already running",
			})
		}
		if acquired {
			defer func() {
				if err := cache.ReleaseLock(context.Background(), lockKey); err != nil {
					log.Printf("Failed to release rebuild lock: %v", err)
				}
			}()
		}
	}

	processed, err := s.rebuilder.RebuildMonth(c.Context(), body.Month)
	if err != nil {
		log.Printf("DGVI rebuild for %s failed: %v", body.Month, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "DGVI rebuild failed",
		})
	}

	return c.JSON(fiber.Map{
		"month":     body.Month,
		"processed": processed,
	})
}

// Health handles GET /health
func (s *Server) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	components := fiber.Map{}
	healthy := true

	if err := db.HealthCheck(ctx); err != nil {
		components["database"] = err.Error()
		healthy = false
	} else {
		components["database"] = "ok"
	}

	if err := cache.HealthCheck(ctx); err != nil {
		components["redis"] = err.Error()
		healthy = false
	} else {
		components["redis"] = "ok"
	}

	status := fiber.Map{
		"status":     "ok",
		"components": components,
	}
	if !healthy {
		status["status"] = "degraded"
		return c.Status(503).JSON(status)
	}
	return c.JSON(status)
}
