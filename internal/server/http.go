package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"spacedrift/internal/ratelimit"
	"spacedrift/internal/records"
)

const (
	bodyLimit = "16K"

	leaderboardLimit  = 60
	leaderboardWindow = time.Minute
	matchesLimit      = 30
	matchesWindow     = 10 * time.Minute
)

// HttpResolvable registers a controller's routes on the router.
type HttpResolvable interface {
	Resolve(*echo.Echo) error
}

// NewRouter returns an echo router that renders every error as
// {"error": message}.
func NewRouter(logger *zap.Logger) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = httpErrorHandler(logger)
	router.Use(middleware.Recover())
	router.Use(middleware.CORS())
	return router
}

func httpErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			message = fmt.Sprint(he.Message)
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
		} else {
			logger.Debug("request rejected",
				zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Int("status", code))
		}
		if err := c.JSON(code, map[string]string{"error": message}); err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}

type hubController struct {
	hub *Hub
}

func NewHubController(hub *Hub) *hubController {
	return &hubController{hub: hub}
}

func (ctrl *hubController) Resolve(e *echo.Echo) error {
	e.GET("/ws", ctrl.serveWS)
	e.GET("/health", ctrl.health)
	e.GET("/stats", ctrl.stats)
	return nil
}

func (ctrl *hubController) serveWS(c echo.Context) error {
	ctrl.hub.Serve(c.Response().Writer, c.Request())
	return nil
}

func (ctrl *hubController) health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (ctrl *hubController) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.hub.Stats())
}

type recordsController struct {
	records *records.Service
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

func NewRecordsController(service *records.Service, limiter *ratelimit.Limiter, logger *zap.Logger) *recordsController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &recordsController{records: service, limiter: limiter, logger: logger}
}

func (ctrl *recordsController) Resolve(e *echo.Echo) error {
	limit := middleware.BodyLimit(bodyLimit)
	e.GET("/leaderboard", ctrl.topScores)
	e.POST("/leaderboard", ctrl.submitScore, limit)
	e.GET("/matches", ctrl.recentMatches)
	e.POST("/matches", ctrl.submitMatch, limit)
	return nil
}

func (ctrl *recordsController) allowIP(c echo.Context, route string, max int, window time.Duration) bool {
	ctx, cancel := context.WithTimeout(c.Request().Context(), limiterTimeout)
	defer cancel()
	return ctrl.limiter.Check(ctx, "ip:"+c.RealIP()+":"+route, max, window)
}

func (ctrl *recordsController) topScores(c echo.Context) error {
	entries, err := ctrl.records.TopScores(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load leaderboard").SetInternal(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (ctrl *recordsController) submitScore(c echo.Context) error {
	if !ctrl.allowIP(c, "leaderboard", leaderboardLimit, leaderboardWindow) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
	}

	var sub records.ScoreSubmission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing fields").SetInternal(err)
	}
	_, err := ctrl.records.SubmitScore(c.Request().Context(), sub)
	switch {
	case errors.Is(err, records.ErrMissingFields):
		return echo.NewHTTPError(http.StatusBadRequest, "Missing fields")
	case errors.Is(err, records.ErrInvalidScore):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid score")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save leaderboard").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (ctrl *recordsController) recentMatches(c echo.Context) error {
	matches, err := ctrl.records.RecentMatches(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load matches").SetInternal(err)
	}
	return c.JSON(http.StatusOK, matches)
}

func (ctrl *recordsController) submitMatch(c echo.Context) error {
	if !ctrl.allowIP(c, "matches", matchesLimit, matchesWindow) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many match submissions")
	}

	var sub records.MatchSubmission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid match payload").SetInternal(err)
	}
	_, err := ctrl.records.SubmitMatch(c.Request().Context(), sub)
	switch {
	case errors.Is(err, records.ErrInvalidMatch):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid match payload")
	case errors.Is(err, records.ErrInvalidPlayers):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid players array")
	case errors.Is(err, records.ErrNoValidPlayers):
		return echo.NewHTTPError(http.StatusBadRequest, "No valid players")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save match").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

var (
	_ HttpResolvable = (*hubController)(nil)
	_ HttpResolvable = (*recordsController)(nil)
)
