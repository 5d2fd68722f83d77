// Package dashboard serves the stock dashboard: a single page polling a
// JSON API over the stored quotes, plus threshold alert management.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/alert"
	"stockwatch/internal/analytics"
	"stockwatch/internal/store"
	"stockwatch/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultWindow       = 5
	defaultTop          = 5
	defaultCompareLimit = 20
	defaultCompareCount = 3
	maxLimit            = 10000

	// compare scans this many readings per requested one, since readings
	// missing a selected symbol are skipped.
	compareScanFactor = 5
)

type Server struct {
	reader  store.Reader
	monitor *alert.Monitor
	logger  *utils.Logger
	loc     *time.Location
	refresh time.Duration

	echo *echo.Echo
}

// New builds the server. reader should already be cached; see
// NewCachedReader.
func New(reader store.Reader, monitor *alert.Monitor, logger *utils.Logger, cfg utils.DashboardConfig) *Server {
	s := &Server{
		reader:  reader,
		monitor: monitor,
		logger:  logger,
		loc:     cfg.Location(),
		refresh: time.Duration(cfg.Refresh) * time.Second,
	}

	e := echo.New()
	e.HideBanner = true
	SetLevel(e, cfg.LogLevel)
	e.Use(LogHandlerFunc)

	e.StaticFS("/", echo.MustSubFS(staticFiles, "static"))

	api := e.Group("/api")
	api.GET("/config", s.getConfig)
	api.GET("/symbols", s.getSymbols)
	api.GET("/prices/:symbol", s.getPrices)
	api.GET("/movers", s.getMovers)
	api.GET("/snapshot", s.getSnapshot)
	api.GET("/compare", s.getCompare)
	api.GET("/alerts", s.getAlerts)
	api.PUT("/alerts/:symbol", s.putAlert)
	api.DELETE("/alerts/:symbol", s.deleteAlert)

	s.echo = e
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// RunAlerts evaluates the alert rules against the latest prices every
// refresh interval until ctx ends.
func (s *Server) RunAlerts(ctx context.Context) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		s.EvaluateAlerts(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) EvaluateAlerts(ctx context.Context) []alert.Status {
	latest, err := s.reader.Latest(ctx)
	if err != nil {
		s.logger.Warn("Skipping alert evaluation: %v", err)
		return nil
	}
	return s.monitor.Evaluate(ctx, latest)
}

type configResponse struct {
	Refresh  int    `json:"refresh"`
	Timezone string `json:"timezone"`
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, configResponse{
		Refresh:  int(s.refresh / time.Second),
		Timezone: s.loc.String(),
	})
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) getSymbols(c echo.Context) error {
	symbols, err := s.reader.Symbols(c.Request().Context())
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, symbolsResponse{Symbols: symbols})
}

func (s *Server) getPrices(c echo.Context) error {
	symbol := normalizeSymbol(c.Param("symbol"))
	limit, err := intParam(c, "limit", 0, 0, maxLimit)
	if err != nil {
		return err
	}

	history, err := s.reader.History(c.Request().Context(), symbol, limit)
	if err != nil {
		return storageError(err)
	}
	trend, err := analytics.BuildTrend(symbol, history, s.loc)
	if errors.Is(err, analytics.ErrNoData) {
		return notFound("no prices for " + symbol)
	} else if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trend)
}

func (s *Server) getMovers(c echo.Context) error {
	window, err := intParam(c, "window", defaultWindow, 2, maxLimit)
	if err != nil {
		return err
	}
	top, err := intParam(c, "top", defaultTop, 1, maxLimit)
	if err != nil {
		return err
	}

	quotes, err := s.reader.RecentReadings(c.Request().Context(), window)
	if err != nil {
		return storageError(err)
	}
	movers := analytics.TopMovers(analytics.GroupReadings(quotes), window, top)
	return c.JSON(http.StatusOK, movers)
}

func (s *Server) getSnapshot(c echo.Context) error {
	top, err := intParam(c, "top", defaultTop, 1, maxLimit)
	if err != nil {
		return err
	}

	quotes, err := s.reader.RecentReadings(c.Request().Context(), 1)
	if err != nil {
		return storageError(err)
	}
	snap, err := analytics.TakeSnapshot(analytics.GroupReadings(quotes), top, s.loc)
	if errors.Is(err, analytics.ErrNoData) {
		return notFound("no prices stored yet")
	} else if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

type compareResponse struct {
	Symbols []string                 `json:"symbols"`
	Limit   int                      `json:"limit"`
	Points  []analytics.ComparePoint `json:"points"`
}

func (s *Server) getCompare(c echo.Context) error {
	ctx := c.Request().Context()
	limit, err := intParam(c, "limit", defaultCompareLimit, 1, maxLimit)
	if err != nil {
		return err
	}

	known, err := s.reader.Symbols(ctx)
	if err != nil {
		return storageError(err)
	}

	var selected []string
	if raw := c.QueryParam("symbols"); raw != "" {
		selected = utils.NormalizeTickers(strings.Split(raw, ","))
		if len(selected) == 0 {
			return badRequest("symbols: no symbol given")
		}
		for _, sym := range selected {
			if !slices.Contains(known, sym) {
				return notFound("no prices for " + sym)
			}
		}
	} else {
		selected = known
		if len(selected) > defaultCompareCount {
			selected = selected[:defaultCompareCount]
		}
	}

	points := []analytics.ComparePoint{}
	if len(selected) > 0 {
		quotes, err := s.reader.RecentReadings(ctx, limit*compareScanFactor)
		if err != nil {
			return storageError(err)
		}
		points = analytics.Compare(analytics.GroupReadings(quotes), selected, limit, s.loc)
	}
	return c.JSON(http.StatusOK, compareResponse{Symbols: selected, Limit: limit, Points: points})
}

type alertsResponse struct {
	Alerts []alert.Status `json:"alerts"`
}

func (s *Server) getAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, alertsResponse{Alerts: s.monitor.Statuses()})
}

type alertRequest struct {
	Threshold *decimal.Decimal `json:"threshold"`
	Email     string           `json:"email"`
}

func (s *Server) putAlert(c echo.Context) error {
	ctx := c.Request().Context()
	symbol := normalizeSymbol(c.Param("symbol"))

	var req alertRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return badRequest("request body must be JSON with threshold and email")
	}
	if req.Threshold == nil {
		return badRequest("threshold is required")
	}

	known, err := s.reader.Symbols(ctx)
	if err != nil {
		return storageError(err)
	}
	if !slices.Contains(known, symbol) {
		return notFound("no prices for " + symbol)
	}

	st, err := s.monitor.SetRule(alert.Rule{Symbol: symbol, Threshold: *req.Threshold, Email: req.Email})
	if errors.Is(err, alert.ErrInvalidRule) {
		return badRequest(err.Error())
	} else if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) deleteAlert(c echo.Context) error {
	symbol := normalizeSymbol(c.Param("symbol"))
	if err := s.monitor.DeleteRule(symbol); errors.Is(err, alert.ErrNoRule) {
		return notFound(err.Error())
	} else if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// intParam reads query parameter name, falling back to def when absent.
func intParam(c echo.Context, name string, def, lo, hi int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name + ": not an integer")
	}
	if v < lo || v > hi {
		return 0, badRequest(name + ": must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return v, nil
}
