package geo

import (
	"errors"
	"math"
)

var (
	ErrInvalidCenter = errors.New("fence center out of range")
	ErrInvalidRadius = errors.New("fence radius must be positive")
)

// Fence is a registered circular campus boundary.
type Fence struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Validate requires a valid center and a positive radius.
func (f Fence) Validate() error {
	if !f.Center.Valid() {
		return ErrInvalidCenter
	}
	if !finite(f.RadiusMeters) || f.RadiusMeters <= 0 {
		return ErrInvalidRadius
	}
	return nil
}

// Contains reports whether p lies within the fence radius, boundary included.
// An invalid fence contains nothing.
func (f Fence) Contains(p Point) bool {
	if f.Validate() != nil {
		return false
	}
	return Distance(p, f.Center) <= f.RadiusMeters
}

// WithinAnyFence reports whether p is inside at least one fence.
// Fences are checked in order and the first match wins; an empty list is never a match.
func WithinAnyFence(p Point, fences []Fence) bool {
	for _, f := range fences {
		if f.Contains(p) {
			return true
		}
	}
	return false
}

// Nearest returns the valid fence whose center is closest to p and the distance to it.
// ok is false when no valid fence exists.
func Nearest(p Point, fences []Fence) (nearest Fence, meters float64, ok bool) {
	meters = math.Inf(1)
	for _, f := range fences {
		if f.Validate() != nil {
			continue
		}
		if d := Distance(p, f.Center); d < meters {
			nearest, meters, ok = f, d, true
		}
	}
	if !ok {
		return Fence{}, 0, false
	}
	return nearest, meters, true
}
