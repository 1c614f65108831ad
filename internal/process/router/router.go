// Package router maps source chats to their channel pairs.
package router

import (
	"fmt"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

// Router is an immutable source-chat index. It is safe for concurrent use.
type Router struct {
	bySource map[int64]domain.ChannelPair
	order    []int64
}

// New indexes pairs by source id. Zero ids and repeated sources are rejected.
func New(pairs []domain.ChannelPair) (*Router, error) {
	r := &Router{bySource: make(map[int64]domain.ChannelPair, len(pairs))}

	for i, p := range pairs {
		if p.SourceID == 0 || p.TargetID == 0 {
			return nil, fmt.Errorf("pair %d: source and target ids are required: %w", i, errors.ErrInvalidPair)
		}

		if _, ok := r.bySource[p.SourceID]; ok {
			return nil, fmt.Errorf("pair %d: source %d: %w", i, p.SourceID, errors.ErrDuplicatePair)
		}

		r.bySource[p.SourceID] = p
		r.order = append(r.order, p.SourceID)
	}

	return r, nil
}

// Resolve returns the pair whose source is chatID.
func (r *Router) Resolve(chatID int64) (domain.ChannelPair, bool) {
	p, ok := r.bySource[chatID]
	return p, ok
}

// Pairs returns the pairs in load order.
func (r *Router) Pairs() []domain.ChannelPair {
	out := make([]domain.ChannelPair, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bySource[id])
	}

	return out
}

// Sources returns the source chat ids in load order.
func (r *Router) Sources() []int64 {
	return append([]int64(nil), r.order...)
}

// Targets returns the distinct target chat ids in load order.
func (r *Router) Targets() []int64 {
	seen := make(map[int64]struct{}, len(r.order))
	out := make([]int64, 0, len(r.order))

	for _, id := range r.order {
		t := r.bySource[id].TargetID
		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}

// Len returns the number of pairs.
func (r *Router) Len() int {
	return len(r.order)
}
