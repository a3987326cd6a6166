package ws

import (
	"log/slog"
	"sync"
)

// Router maps auction ids to the set of live connections interested in that
// auction's updates. Membership sets are shared mutable state touched by
// every subscribe/unsubscribe/disconnect, so a single mutex serializes them;
// the same mutex also serializes snapshot-building during broadcast, which
// is what keeps delivered bid lists in commit order per auction (a frame
// enqueued later can only carry a longer list).
type Router struct {
	mu      sync.Mutex
	members map[string]map[*client]bool
	logger  *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		members: make(map[string]map[*client]bool),
		logger:  logger.With(slog.String("component", "router")),
	}
}

// Subscribe adds the connection to the auction's membership set. Idempotent.
func (r *Router) Subscribe(auctionID string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[auctionID]
	if !ok {
		set = make(map[*client]bool)
		r.members[auctionID] = set
	}
	set[c] = true
}

// Unsubscribe removes the connection from one auction's membership set,
// pruning the set if it becomes empty.
func (r *Router) Unsubscribe(auctionID string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(auctionID, c)
}

// UnsubscribeAll removes the connection from every membership set it appears
// in. Called on disconnect with the connection's own subscription list.
func (r *Router) UnsubscribeAll(c *client, auctionIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range auctionIDs {
		r.removeLocked(id, c)
	}
}

// Drop removes the connection from every membership set without needing the
// connection's own subscription list. Used when a connection is found dead
// from outside its read pump, where touching c.subs would race.
func (r *Router) Drop(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.members {
		r.removeLocked(id, c)
	}
}

func (r *Router) removeLocked(auctionID string, c *client) {
	set, ok := r.members[auctionID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.members, auctionID)
	}
}

// Broadcast delivers a frame to every live subscriber of the auction. The
// build closure runs under the router lock so that the frame it produces is
// serialized with every other broadcast for the same auction; the gateway
// passes a closure that snapshots the registry's current bid list. Dead or
// saturated connections are pruned without aborting delivery to the rest.
// The number of connections the frame was enqueued for is returned.
func (r *Router) Broadcast(auctionID string, build func() []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[auctionID]
	if !ok || len(set) == 0 {
		return 0
	}

	frame := build()
	if frame == nil {
		return 0
	}

	delivered := 0
	for c := range set {
		if !c.isOpen() || !c.trySend(frame) {
			r.removeLocked(auctionID, c)
			r.logger.Debug("ws: pruned dead subscriber",
				slog.String("auction_id", auctionID),
				slog.String("remote_addr", c.remoteAddr),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// MemberCount reports the size of one auction's membership set.
func (r *Router) MemberCount(auctionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[auctionID])
}
