package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scatsroute/scatsroute/internal/api/middleware"
	"github.com/scatsroute/scatsroute/internal/api/models"
	"github.com/scatsroute/scatsroute/internal/api/response"
	"github.com/scatsroute/scatsroute/internal/routing"
	"github.com/scatsroute/scatsroute/pkg/polyline"
)

// maxBodyBytes bounds route request bodies.
const maxBodyBytes = 1 << 16

// Planner plans ranked routes between two sites.
type Planner interface {
	Plan(ctx context.Context, q routing.Query) (*routing.Result, error)
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	planner Planner
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(planner Planner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		planner: planner,
		logger:  logger.With().Str("handler", "route").Logger(),
	}
}

// ComputeRoutes handles POST /v1/routes:compute - compute ranked route options.
func (h *RouteHandler) ComputeRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.RouteComputeRequest
	if err := decodeBody(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		return
	}

	q, fieldErrors := queryFromRequest(input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrors)
		return
	}

	res, err := h.planner.Plan(r.Context(), q)
	if err != nil {
		h.writePlanError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, computeResponse(res))
}

func queryFromRequest(input models.RouteComputeRequest) (routing.Query, []models.FieldError) {
	var q routing.Query
	var errs []models.FieldError
	required := func(field, msg string) {
		errs = append(errs, models.FieldError{Field: field, Message: msg, Code: "REQUIRED"})
	}

	if input.Origin == nil {
		required("origin", "origin site is required")
	} else {
		q.Origin = int(*input.Origin)
	}
	if input.Destination == nil {
		required("destination", "destination site is required")
	} else {
		q.Destination = int(*input.Destination)
	}

	q.Model = strings.TrimSpace(input.Model)
	if q.Model == "" {
		required("model", "prediction model is required")
	}

	switch {
	case input.DepartAt != nil:
		q.At = time.Time(*input.DepartAt)
	case input.Date == "" && input.Time == "":
		required("departAt", "departAt or date and time are required")
	default:
		at, err := routing.ParseQueryTime(input.Date, input.Time)
		if err != nil {
			errs = append(errs, models.FieldError{
				Field:   "time",
				Message: "date must be YYYY-MM-DD and time HH:MM",
				Code:    routing.CodeInvalidTime,
			})
		}
		q.At = at
	}

	return q, errs
}

func (h *RouteHandler) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var rerr *routing.Error
	hasDetail := errors.As(err, &rerr)

	switch {
	case errors.Is(err, routing.ErrNoRouteFound):
		problem := models.NewNoRoute(traceID, err.Error()).WithCode(routing.CodeNoRoute)
		if hasDetail {
			problem.Detail = rerr.Message
		}
		response.Error(w, r, problem)
	case errors.Is(err, routing.ErrInvalidQuery) && hasDetail:
		problem := models.NewBadRequest(traceID, rerr.Message, []models.FieldError{{
			Field:   fieldForCode(rerr.Code),
			Message: rerr.Message,
			Code:    rerr.Code,
		}}).WithCode(rerr.Code)
		response.Error(w, r, problem)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "route planning was interrupted")
	default:
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("route planning failed")
		response.InternalError(w, r, "route planning failed")
	}
}

func fieldForCode(code string) string {
	switch code {
	case routing.CodeUnknownOrigin:
		return "origin"
	case routing.CodeUnknownDestination:
		return "destination"
	case routing.CodeInvalidModel:
		return "model"
	default:
		return "time"
	}
}

func computeResponse(res *routing.Result) models.RouteComputeResponse {
	resp := models.RouteComputeResponse{
		GeneratedAt: models.Timestamp(time.Now()),
		Model:       res.Query.Model,
		Slot:        res.Slot,
		Options:     make([]models.RouteOption, len(res.Routes)),
		Meta:        models.RouteMeta{Cached: res.Cached},
	}

	for i, route := range res.Routes {
		points := make([]models.Point, len(route.Coordinates))
		encoded := make([]polyline.Point, len(route.Coordinates))
		for j, c := range route.Coordinates {
			points[j] = models.Point{Lat: c.Lat, Lon: c.Lon}
			encoded[j] = polyline.Point{Lat: c.Lat, Lon: c.Lon}
		}
		resp.Options[i] = models.RouteOption{
			ID:              "opt_" + uuid.New().String()[:12],
			Rank:            i + 1,
			Sites:           route.Sites,
			Coordinates:     points,
			Polyline:        polyline.Encode(encoded),
			DurationSeconds: route.TravelTimeSeconds,
			DurationMinutes: route.TravelTimeMinutes(),
		}
	}

	if len(res.Fallbacks) > 0 {
		resp.Meta.DefaultedSites = make(map[string]int, len(res.Fallbacks))
		for reason, n := range res.Fallbacks {
			resp.Meta.DefaultedSites[string(reason)] = n
		}
	}
	return resp
}

// decodeBody decodes a single JSON object from a size-limited request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}
