package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geoattend/internal/auth"
	"geoattend/internal/geo"
)

// StatusPresent is the only status a mark can carry.
const StatusPresent = "present"

// Reason names why the gate rejected a submission.
type Reason string

const (
	ReasonUnauthorized          Reason = "unauthorized"
	ReasonForbidden             Reason = "forbidden"
	ReasonMissingLocation       Reason = "missing location"
	ReasonOverrideReasonMissing Reason = "override reason required"
	ReasonLowAccuracy           Reason = "low accuracy"
	ReasonOutsideBoundary       Reason = "outside boundary"
)

// RejectionError is a well-formed negative decision.
type RejectionError struct {
	Reason Reason
	// Set for ReasonOutsideBoundary when at least one valid fence exists.
	NearestMeters *float64
	// Set for ReasonLowAccuracy.
	Accuracy  float64
	Threshold float64
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("attendance rejected: %s", e.Reason)
}

// Submission is an attendance request as sent by the client device.
type Submission struct {
	Latitude       *float64        `json:"latitude"`
	Longitude      *float64        `json:"longitude"`
	Accuracy       *float64        `json:"accuracy"`
	DeviceInfo     json.RawMessage `json:"deviceInfo"`
	AdminOverride  bool            `json:"adminOverride"`
	OverrideReason string          `json:"overrideReason"`
}

// Mark is the content of one accepted attendance record.
type Mark struct {
	ID             string          `json:"id"`
	ActorID        string          `json:"actor_id"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Accuracy       *float64        `json:"accuracy,omitempty"`
	DeviceInfo     json.RawMessage `json:"device_info"`
	Status         string          `json:"status"`
	IsInside       bool            `json:"is_inside"`
	AdminOverride  bool            `json:"admin_override"`
	OverrideReason *string         `json:"override_reason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}

// Location returns the reported point of the mark.
func (m Mark) Location() geo.Point {
	return geo.Point{Lat: m.Latitude, Lng: m.Longitude}
}

// Policy tunes the optional checks of the gate.
type Policy struct {
	AccuracyThresholdMeters float64
	EnforceAccuracy         bool
	RequireOverrideReason   bool
}

// Gate decides whether a submission becomes an attendance mark.
// It holds no per-request state and is safe for concurrent use.
type Gate struct {
	policy Policy
	now    func() time.Time
}

// NewGate creates a gate using the server clock.
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy, now: time.Now}
}

// Admit runs every check that does not need the fence list: identity, role,
// location and override reason. It returns the reported point.
func (g *Gate) Admit(actor *auth.Actor, sub Submission) (geo.Point, error) {
	if actor == nil || actor.ID == "" {
		return geo.Point{}, &RejectionError{Reason: ReasonUnauthorized}
	}
	if !actor.Role.CanMarkAttendance() {
		return geo.Point{}, &RejectionError{Reason: ReasonForbidden}
	}
	if sub.Latitude == nil || sub.Longitude == nil {
		return geo.Point{}, &RejectionError{Reason: ReasonMissingLocation}
	}
	p := geo.Point{Lat: *sub.Latitude, Lng: *sub.Longitude}
	if !p.Valid() {
		return geo.Point{}, &RejectionError{Reason: ReasonMissingLocation}
	}
	if sub.AdminOverride && g.policy.RequireOverrideReason && strings.TrimSpace(sub.OverrideReason) == "" {
		return geo.Point{}, &RejectionError{Reason: ReasonOverrideReasonMissing}
	}
	return p, nil
}

// Decide evaluates the submission against the fence snapshot and, on
// acceptance, returns the mark ready for persistence. ID is left empty.
func (g *Gate) Decide(actor *auth.Actor, sub Submission, fences []geo.Fence) (Mark, error) {
	p, err := g.Admit(actor, sub)
	if err != nil {
		return Mark{}, err
	}

	inside := geo.WithinAnyFence(p, fences)

	if !sub.AdminOverride {
		if g.lowAccuracy(sub.Accuracy) {
			return Mark{}, &RejectionError{
				Reason:    ReasonLowAccuracy,
				Accuracy:  *sub.Accuracy,
				Threshold: g.policy.AccuracyThresholdMeters,
			}
		}
		if !inside {
			rej := &RejectionError{Reason: ReasonOutsideBoundary}
			if _, meters, ok := geo.Nearest(p, fences); ok {
				rej.NearestMeters = &meters
			}
			return Mark{}, rej
		}
	}

	mark := Mark{
		ActorID:       actor.ID,
		Latitude:      p.Lat,
		Longitude:     p.Lng,
		Accuracy:      sub.Accuracy,
		DeviceInfo:    deviceInfo(sub.DeviceInfo),
		Status:        StatusPresent,
		IsInside:      inside,
		AdminOverride: sub.AdminOverride,
		Timestamp:     g.now().UTC(),
	}
	if sub.AdminOverride {
		reason := strings.TrimSpace(sub.OverrideReason)
		if reason != "" {
			mark.OverrideReason = &reason
		}
	}
	return mark, nil
}

// LowAccuracy reports whether the accuracy exceeds the threshold, whether or
// not the policy enforces it.
func (g *Gate) LowAccuracy(accuracy *float64) bool {
	if accuracy == nil || g.policy.AccuracyThresholdMeters <= 0 {
		return false
	}
	// A non-finite or negative accuracy is not a usable fix.
	a := *accuracy
	return !(a >= 0 && a <= g.policy.AccuracyThresholdMeters)
}

func (g *Gate) lowAccuracy(accuracy *float64) bool {
	return g.policy.EnforceAccuracy && g.LowAccuracy(accuracy)
}

func deviceInfo(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
