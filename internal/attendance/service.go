package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/auth"
	"geoattend/internal/geo"
	"geoattend/internal/queue"
)

var (
	// ErrFenceStore means the fence list could not be read. It is never a policy rejection.
	ErrFenceStore = errors.New("fence store unavailable")
	// ErrPersist means an accepted mark could not be stored.
	ErrPersist = errors.New("attendance store unavailable")
	// ErrForbidden means the actor may not read the requested data.
	ErrForbidden = errors.New("forbidden")
)

// FenceStore reads the registered campus boundaries.
type FenceStore interface {
	ListFences(ctx context.Context) ([]geo.Fence, error)
}

// MarkStore persists and reads attendance marks.
type MarkStore interface {
	InsertMark(ctx context.Context, m Mark) (Mark, error)
	ListMarks(ctx context.Context, f Filter) ([]Mark, error)
	CountMarks(ctx context.Context, actorID string) (total, present int, err error)
}

// Publisher is the write side of the audit queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// OverrideEvent is published for every accepted admin override.
type OverrideEvent struct {
	MarkID    string    `json:"mark_id"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	IsInside  bool      `json:"is_inside"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeOverride extracts an OverrideEvent from a queue message.
func DecodeOverride(msg queue.Message) (OverrideEvent, error) {
	if msg.Type != queue.TypeOverride {
		return OverrideEvent{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt OverrideEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return OverrideEvent{}, fmt.Errorf("decode override event: %w", err)
	}
	return evt, nil
}

// Stats summarises attendance marks.
type Stats struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// Service coordinates fence lookup, the decision gate and persistence.
type Service struct {
	gate   *Gate
	fences FenceStore
	marks  MarkStore
	audit  Publisher
	log    *zap.Logger
}

// NewService wires a service. audit may be nil to disable override publishing.
func NewService(gate *Gate, fences FenceStore, marks MarkStore, audit Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gate: gate, fences: fences, marks: marks, audit: audit, log: log}
}

// Mark verifies a submission and stores the resulting mark.
// Rejections are returned as *RejectionError; store failures wrap ErrFenceStore or ErrPersist.
func (s *Service) Mark(ctx context.Context, actor *auth.Actor, sub Submission) (Mark, error) {
	if _, err := s.gate.Admit(actor, sub); err != nil {
		return Mark{}, s.rejected(actor, err)
	}

	fences, err := s.fences.ListFences(ctx)
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("fence_store").Inc()
		s.log.Error("fetch fences failed", zap.String("actor_id", actor.ID), zap.Error(err))
		return Mark{}, fmt.Errorf("%w: %v", ErrFenceStore, err)
	}

	mark, err := s.gate.Decide(actor, sub, fences)
	if err != nil {
		return Mark{}, s.rejected(actor, err)
	}
	if s.gate.LowAccuracy(mark.Accuracy) {
		lowAccuracyTotal.Inc()
	}

	mark, err = s.marks.InsertMark(ctx, mark)
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("mark_store").Inc()
		s.log.Error("insert attendance failed", zap.String("actor_id", actor.ID), zap.Error(err))
		return Mark{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	observeAccepted(mark)

	fields := []zap.Field{
		zap.String("mark_id", mark.ID),
		zap.String("actor_id", mark.ActorID),
		zap.Bool("is_inside", mark.IsInside),
		zap.Bool("admin_override", mark.AdminOverride),
	}
	if mark.AdminOverride {
		s.log.Warn("attendance accepted by override", fields...)
		s.publishOverride(ctx, mark)
	} else {
		s.log.Info("attendance accepted", fields...)
	}
	return mark, nil
}

func (s *Service) rejected(actor *auth.Actor, err error) error {
	var rej *RejectionError
	if !errors.As(err, &rej) {
		return err
	}
	observeRejected(rej.Reason)
	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	s.log.Info("attendance rejected", zap.String("actor_id", actorID), zap.String("reason", string(rej.Reason)))
	return rej
}

// publishOverride is best effort: the mark is already durable.
func (s *Service) publishOverride(ctx context.Context, m Mark) {
	if s.audit == nil {
		return
	}
	evt := OverrideEvent{
		MarkID:    m.ID,
		ActorID:   m.ActorID,
		IsInside:  m.IsInside,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Timestamp: m.Timestamp,
	}
	if m.OverrideReason != nil {
		evt.Reason = *m.OverrideReason
	}
	body, err := json.Marshal(evt)
	if err == nil {
		err = s.audit.Publish(ctx, queue.Message{Type: queue.TypeOverride, Body: body})
	}
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("audit_queue").Inc()
		s.log.Error("publish override audit failed", zap.String("mark_id", m.ID), zap.Error(err))
	}
}

// List returns marks visible to the actor. Teachers only ever see their own.
func (s *Service) List(ctx context.Context, actor *auth.Actor, f Filter) ([]Mark, error) {
	scope, err := s.scope(actor, f.ActorID)
	if err != nil {
		return nil, err
	}
	f.ActorID = scope
	marks, err := s.marks.ListMarks(ctx, f)
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("mark_store").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if marks == nil {
		marks = []Mark{}
	}
	return marks, nil
}

// Stats returns the attendance rate visible to the actor.
func (s *Service) Stats(ctx context.Context, actor *auth.Actor, actorID string) (Stats, error) {
	scope, err := s.scope(actor, actorID)
	if err != nil {
		return Stats{}, err
	}
	total, present, err := s.marks.CountMarks(ctx, scope)
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("mark_store").Inc()
		return Stats{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	st := Stats{Total: total, Present: present}
	if total > 0 {
		st.AttendanceRate = math.Round(float64(present)/float64(total)*1000) / 10
	}
	return st, nil
}

// Fences returns the registered fences to staff.
func (s *Service) Fences(ctx context.Context, actor *auth.Actor) ([]geo.Fence, error) {
	if actor == nil || !actor.Role.CanMarkAttendance() {
		return nil, ErrForbidden
	}
	fences, err := s.fences.ListFences(ctx)
	if err != nil {
		upstreamFailuresTotal.WithLabelValues("fence_store").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFenceStore, err)
	}
	if fences == nil {
		fences = []geo.Fence{}
	}
	return fences, nil
}

// scope resolves which actor's marks the caller may read; "" means all.
func (s *Service) scope(actor *auth.Actor, requested string) (string, error) {
	if actor == nil {
		return "", ErrForbidden
	}
	switch {
	case actor.Role.CanViewAllAttendance():
		return requested, nil
	case actor.Role.CanMarkAttendance():
		if requested != "" && requested != actor.ID {
			return "", ErrForbidden
		}
		return actor.ID, nil
	default:
		return "", ErrForbidden
	}
}
