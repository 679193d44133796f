package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
)

type SlotPolicy string

const (
	// SlotPolicyWait blocks the caller until the capability is free or its context ends.
	SlotPolicyWait SlotPolicy = "wait"
	// SlotPolicyReject fails immediately with capability_busy.
	SlotPolicyReject SlotPolicy = "reject"
)

func ParseSlotPolicy(raw string) (SlotPolicy, error) {
	switch SlotPolicy(raw) {
	case "", SlotPolicyWait:
		return SlotPolicyWait, nil
	case SlotPolicyReject:
		return SlotPolicyReject, nil
	default:
		return "", fmt.Errorf("unknown slot policy %q", raw)
	}
}

// CapabilitySlots serializes engine calls per capability. Holding one slot never blocks another
// capability or any non-generation request.
type CapabilitySlots struct {
	policy  SlotPolicy
	sems    map[engine.Capability]*semaphore.Weighted
	metrics *observability.Metrics
}

func NewCapabilitySlots(policy SlotPolicy, metrics *observability.Metrics) *CapabilitySlots {
	if policy == "" {
		policy = SlotPolicyWait
	}
	sems := make(map[engine.Capability]*semaphore.Weighted, len(engine.AllCapabilities))
	for _, c := range engine.AllCapabilities {
		sems[c] = semaphore.NewWeighted(1)
	}
	return &CapabilitySlots{policy: policy, sems: sems, metrics: metrics}
}

func (s *CapabilitySlots) Policy() SlotPolicy { return s.policy }

// Acquire takes the slot for c and returns its release func.
func (s *CapabilitySlots) Acquire(ctx context.Context, c engine.Capability) (func(), error) {
	sem, ok := s.sems[c]
	if !ok {
		return nil, fmt.Errorf("unknown capability %q", c)
	}
	if s.policy == SlotPolicyReject {
		if !sem.TryAcquire(1) {
			s.metrics.IncSlotRejected(string(c))
			return nil, apierr.ServiceUnavailable("capability_busy", fmt.Errorf("%s capability is busy", c))
		}
		return func() { sem.Release(1) }, nil
	}

	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, apierr.ServiceUnavailable("capability_wait_aborted", fmt.Errorf("waiting for %s slot: %w", c, err))
	}
	s.metrics.ObserveSlotWait(string(c), time.Since(start))
	return func() { sem.Release(1) }, nil
}
