// Package routing plans the top-ranked routes between two sensor sites for
// a prediction model and time of day.
package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scatsroute/scatsroute/internal/geo"
	"github.com/scatsroute/scatsroute/internal/prediction"
)

// Sentinel errors for routing operations.
var (
	// ErrInvalidQuery indicates a query rejected before any planning.
	ErrInvalidQuery = errors.New("invalid route query")
	// ErrUnknownSite indicates an origin or destination absent from the network.
	ErrUnknownSite = fmt.Errorf("%w: unknown site", ErrInvalidQuery)
	// ErrNoRouteFound indicates no directed path connects the two sites.
	ErrNoRouteFound = errors.New("no route found between the given sites")
)

// Error codes carried by *Error.
const (
	CodeUnknownOrigin      = "UNKNOWN_ORIGIN"
	CodeUnknownDestination = "UNKNOWN_DESTINATION"
	CodeInvalidModel       = "INVALID_MODEL"
	CodeInvalidTime        = "INVALID_TIME"
	CodeNoRoute            = "NO_ROUTE"
)

// Query asks for the best routes between two sites.
type Query struct {
	Origin      int
	Destination int
	Model       string
	At          time.Time
}

// Route is one ranked path through the network.
type Route struct {
	Sites             []int
	Coordinates       []geo.Coordinate
	TravelTimeSeconds float64
}

// TravelTimeMinutes returns the total travel time in minutes.
func (r Route) TravelTimeMinutes() float64 {
	return r.TravelTimeSeconds / 60
}

// Result is the outcome of a successful plan.
type Result struct {
	Query  Query
	Slot   int
	Routes []Route

	// Fallbacks counts sites whose volume defaulted, by reason.
	Fallbacks map[prediction.FallbackReason]int

	// Cached is set when the result was served from the result cache.
	Cached bool
}

// Error provides detailed error information for a rejected query.
type Error struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Query time layouts.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseQueryTime combines a "YYYY-MM-DD" date and an "HH:MM" clock time.
// Seconds are accepted and ignored.
func ParseQueryTime(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	layout := DateLayout + " " + TimeLayout
	if strings.Count(clock, ":") == 2 {
		layout += ":05"
	}

	at, err := time.ParseInLocation(layout, date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, &Error{
			Code:    CodeInvalidTime,
			Message: fmt.Sprintf("invalid date %q or time %q", date, clock),
			Err:     ErrInvalidQuery,
		}
	}
	return at, nil
}
