// Package httpapi exposes attendance verification over HTTP.
package httpapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/geo"
)

// AttendanceService is what the handlers need from the attendance service.
type AttendanceService interface {
	Mark(ctx context.Context, actor *auth.Actor, sub attendance.Submission) (attendance.Mark, error)
	List(ctx context.Context, actor *auth.Actor, f attendance.Filter) ([]attendance.Mark, error)
	Stats(ctx context.Context, actor *auth.Actor, actorID string) (attendance.Stats, error)
	Fences(ctx context.Context, actor *auth.Actor) ([]geo.Fence, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	svc    AttendanceService
	health map[string]HealthCheck
	log    *zap.Logger
}

func New(svc AttendanceService, health map[string]HealthCheck, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, health: health, log: log}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Mark attendance ----------

// MarkAttendance verifies the caller's location against the campus fences and
// records the mark when accepted.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var sub attendance.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		// An unreadable body carries no usable location; the gate still
		// checks identity first.
		sub = attendance.Submission{}
	}

	mark, err := h.svc.Mark(c.Request.Context(), auth.ActorFrom(c), sub)
	if err != nil {
		h.writeMarkError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    mark,
		"message": "Attendance marked successfully!",
	})
}

func (h *Handler) writeMarkError(c *gin.Context, err error) {
	var rej *attendance.RejectionError
	if errors.As(err, &rej) {
		switch rej.Reason {
		case attendance.ReasonUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		case attendance.ReasonForbidden:
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		case attendance.ReasonMissingLocation:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Location data required"})
		case attendance.ReasonOverrideReasonMissing:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Override reason required"})
		case attendance.ReasonLowAccuracy:
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":     "Location accuracy too low",
				"accuracy":  rej.Accuracy,
				"threshold": rej.Threshold,
			})
		case attendance.ReasonOutsideBoundary:
			body := gin.H{
				"error":    "Outside school premises",
				"isInside": false,
				"message":  "You must be within the school boundary to mark attendance.",
			}
			if rej.NearestMeters != nil {
				body["distanceMeters"] = math.Round(*rej.NearestMeters)
			}
			c.JSON(http.StatusForbidden, body)
		default:
			// Unknown reasons still reject.
			c.JSON(http.StatusForbidden, gin.H{"error": string(rej.Reason)})
		}
		return
	}
	h.writeError(c, err)
}

// writeError maps service failures that are not policy decisions.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, attendance.ErrFenceStore):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch campus data"})
	case errors.Is(err, attendance.ErrPersist):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save attendance"})
	default:
		h.log.Error("unhandled attendance error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

// ---------- Read endpoints ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	f := attendance.Filter{ActorID: c.Query("actor_id"), Limit: 50}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = min(parsed, 500)
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	marks, err := h.svc.List(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": marks})
}

func (h *Handler) AttendanceStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), auth.ActorFrom(c), c.Query("actor_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": st})
}

func (h *Handler) ListFences(c *gin.Context) {
	fences, err := h.svc.Fences(c.Request.Context(), auth.ActorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fences})
}
