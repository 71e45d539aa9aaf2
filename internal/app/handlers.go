package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	geo "github.com/paulmach/go.geo"

	"hydrafloods/internal/algorithms"
	"hydrafloods/internal/algorithms/otsu"
	"hydrafloods/internal/catalog"
	"hydrafloods/internal/expr"
	"hydrafloods/internal/imagery"
	"hydrafloods/internal/opt"
	"hydrafloods/internal/services"
)

type Handlers struct {
	app *Application
}

func NewHandlers(app *Application) *Handlers {
	return &Handlers{app: app}
}

func (h *Handlers) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/historical", h.HandleHistorical)
	api.GET("/precip", h.HandlePrecip)
	api.GET("/admin", h.HandleAdmin)
	api.GET("/floods/:variant", h.HandleFloods)
}

// errBadRequest marks errors in the query parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, imagery.ErrMonthRequired):
		status = http.StatusBadRequest
	case errors.Is(err, algorithms.ErrNotImplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, otsu.ErrNoImagery), errors.Is(err, expr.ErrEmptyCollection):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.app.logger.Error("Handlers", err, map[string]interface{}{"path": c.Request.URL.Path})
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// parseRegion reads a "west,south,east,north" bounding box.
func parseRegion(c *gin.Context) (*geo.Bound, error) {
	raw := c.Query("region")
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, badRequest("region must be west,south,east,north, got %q", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, badRequest("region value %q is not a number", p)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return nil, badRequest("region %q is empty", raw)
	}
	return geo.NewBound(v[0], v[2], v[1], v[3]), nil
}

func parseDate(c *gin.Context, key string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.Query(key))
	if err != nil {
		return time.Time{}, badRequest("%s must be a YYYY-MM-DD date", key)
	}
	return t, nil
}

func parseOptionalFloat(c *gin.Context, key string) (opt.Optional[float64], error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return opt.None[float64](), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return opt.None[float64](), badRequest("%s must be a number", key)
	}
	return opt.Some(v), nil
}

func parseHistorical(c *gin.Context) (services.HistoricalRequest, error) {
	var req services.HistoricalRequest
	var err error
	if req.Region, err = parseRegion(c); err != nil {
		return req, err
	}
	if req.Start, err = parseDate(c, "start"); err != nil {
		return req, err
	}
	if req.End, err = parseDate(c, "end"); err != nil {
		return req, err
	}
	if req.CloudThreshold, err = parseOptionalFloat(c, "cloud_thresh"); err != nil {
		return req, err
	}
	req.Algorithm = c.DefaultQuery("algorithm", "SWT")
	req.Climatology = c.Query("climatology") == "true"
	req.Defringe = c.DefaultQuery("defringe", "true") == "true"

	if raw := c.Query("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			return req, badRequest("month must be in 1..12, got %q", raw)
		}
		req.Month = opt.Some(time.Month(m))
	}
	return req, nil
}

func (h *Handlers) HandleHistorical(c *gin.Context) {
	req, err := parseHistorical(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	url, err := h.app.historical.GetHistoricalMap(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handlers) HandlePrecip(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("accumulation", "1"))
	if err != nil {
		h.fail(c, badRequest("accumulation must be an integer"))
		return
	}
	url, err := h.app.precip.GetPrecipMap(c.Request.Context(), days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handlers) HandleAdmin(c *gin.Context) {
	region, err := parseRegion(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	url, err := h.app.admin.GetAdminMap(c.Request.Context(), region)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handlers) HandleFloods(c *gin.Context) {
	region, err := parseRegion(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	date, err := parseDate(c, "date")
	if err != nil {
		h.fail(c, err)
		return
	}
	req := services.FloodRequest{Region: region, Date: date, Band: c.Query("band")}

	res, err := h.app.floods.Map(c.Request.Context(), c.Param("variant"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
