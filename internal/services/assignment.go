package services

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chaweee/BEventique-sub000/internal/models"
)

type AssignmentStrategy string

const (
	AssignNone       AssignmentStrategy = "none"
	AssignFixed      AssignmentStrategy = "fixed"
	AssignRoundRobin AssignmentStrategy = "round_robin"
)

// AssignmentPolicy decides which designer, if any, a new designer-bound
// thread starts with. The designer roster comes from the catalog side; the
// core only stores the result.
type AssignmentPolicy struct {
	strategy  AssignmentStrategy
	designers []int64
	cursor    atomic.Uint64
}

func NewAssignmentPolicy(strategy string, designers []int64) (*AssignmentPolicy, error) {
	normalized := AssignmentStrategy(strings.ToLower(strings.TrimSpace(strategy)))
	if normalized == "" {
		normalized = AssignNone
		if len(designers) > 0 {
			normalized = AssignRoundRobin
		}
	}

	switch normalized {
	case AssignNone:
	case AssignFixed, AssignRoundRobin:
		if len(designers) == 0 {
			return nil, fmt.Errorf("assignment strategy %q needs at least one designer", normalized)
		}
		for _, id := range designers {
			if id <= 0 {
				return nil, fmt.Errorf("invalid designer id %d", id)
			}
		}
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", strategy)
	}

	return &AssignmentPolicy{
		strategy:  normalized,
		designers: append([]int64(nil), designers...),
	}, nil
}

func (p *AssignmentPolicy) Strategy() AssignmentStrategy {
	if p == nil {
		return AssignNone
	}
	return p.strategy
}

// Pick returns nil for admin-bound threads and for the none strategy.
func (p *AssignmentPolicy) Pick(recipient models.RecipientType) *int64 {
	if p == nil || recipient != models.RecipientDesigner {
		return nil
	}

	switch p.strategy {
	case AssignFixed:
		id := p.designers[0]
		return &id
	case AssignRoundRobin:
		n := p.cursor.Add(1) - 1
		id := p.designers[n%uint64(len(p.designers))]
		return &id
	default:
		return nil
	}
}
