package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cadence/pkg/analytics"
	"github.com/papercomputeco/cadence/pkg/coordinator"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

// handleStats handles GET /v1/users/:user/stats.
// Query parameters:
//   - window (optional, default 24h): the velocity window as a duration
//
// Item state comes from the open session when there is one and from the
// store otherwise. Review statistics cover the durable review log.
func (s *Server) handleStats(c *fiber.Ctx) error {
	window := s.config.StatsWindow
	if w := c.Query("window"); w != "" {
		parsed, err := time.ParseDuration(w)
		if err != nil || parsed <= 0 {
			return badRequest(c, "window must be a positive duration")
		}
		window = parsed
	}

	ctx := c.UserContext()
	userID := c.Params("user")

	snapshot, err := s.coord.Snapshot(userID)
	if err != nil {
		if !errors.Is(err, coordinator.ErrNoSession) {
			return s.fail(c, err)
		}
		snapshot, err = s.store.Load(ctx, userID)
		if storage.IsNotFound(err) {
			snapshot, err = progress.NewSnapshot(userID), nil
		}
		if err != nil {
			return s.fail(c, err)
		}
	}

	records, err := s.store.RecentReviews(ctx, userID, s.config.StatsHistory)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(analytics.NewReport(snapshot, records, s.config.Now(), window))
}
