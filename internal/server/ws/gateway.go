package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/auctionhub/internal/auction"
	"github.com/alanyoungcy/auctionhub/internal/crypto"
	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// Signal-bus channels mirrored to when a bus is configured. External
// consumers (indexers, reconciliation jobs) read these instead of holding a
// WebSocket.
const (
	busChannelAuctions   = "ch:auction"
	busChannelBidsPrefix = "ch:bids:"
)

// strictVerifyTimeout bounds the detached strict-verification goroutine.
const strictVerifyTimeout = 10 * time.Second

// ErrorSink receives failures that are not surfaced to the submitting
// client: strict-verification misses and unexpected handler errors.
// Implemented by notify.Notifier.
type ErrorSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the gateway's protocol limits and the signature domain.
type Config struct {
	// MaxMessageBytes is the per-frame size ceiling. Frames above it close
	// the connection with 1009/message_too_large.
	MaxMessageBytes int

	// RateLimit / RateWindow form the per-connection sliding-window message
	// ceiling. Exceeding it closes the connection with 1008/rate_limited.
	RateLimit  int
	RateWindow time.Duration

	// ChainID and VerifyingContract bind strict signature verification to a
	// deployment.
	ChainID           int
	VerifyingContract string
}

// Gateway manages WebSocket connections: upgrade, per-connection limits, and
// routing of inbound frames to auction-control or bid-submission handling.
// It holds no business state of its own; auctions and bids live in the
// registry, memberships in the router.
type Gateway struct {
	cfg       Config
	registry  domain.AuctionRegistry
	validator *auction.Validator
	router    *Router
	bus       domain.SignalBus // optional mirror, may be nil
	sink      ErrorSink        // optional, may be nil
	clock     domain.Clock
	logger    *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewGateway wires a Gateway to its collaborators. bus and sink may be nil.
func NewGateway(
	cfg Config,
	registry domain.AuctionRegistry,
	validator *auction.Validator,
	router *Router,
	bus domain.SignalBus,
	sink ErrorSink,
	clock domain.Clock,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		validator: validator,
		router:    router,
		bus:       bus,
		sink:      sink,
		clock:     clock,
		logger:    logger.With(slog.String("component", "gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is enforced by the CORS layer in front.
				return true
			},
		},
		clients: make(map[*client]bool),
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and starts the
// connection's pumps.
// GET /ws
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		gw:         g,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		remoteAddr: r.RemoteAddr,
		userAgent:  r.UserAgent(),
		subs:       make(map[string]bool),
	}

	g.mu.Lock()
	g.clients[c] = true
	total := len(g.clients)
	g.mu.Unlock()

	g.logger.Info("ws: client connected",
		slog.String("remote_addr", c.remoteAddr),
		slog.Int("total_clients", total),
	)

	go c.writePump()
	go c.readPump()
}

// unregister removes a client from the gateway and the router and releases
// its send channel. Called exactly once, from the read pump's exit path.
func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	delete(g.clients, c)
	total := len(g.clients)
	g.mu.Unlock()

	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	g.router.UnsubscribeAll(c, ids)
	c.shutdown()

	g.logger.Info("ws: client disconnected",
		slog.String("remote_addr", c.remoteAddr),
		slog.Int("total_clients", total),
	)
}

// ClientCount returns the number of currently connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// broadcastAll delivers a frame to every connected client, pruning dead and
// saturated connections the same way subscriber broadcast does. Used only
// for the auction.started announcement.
func (g *Gateway) broadcastAll(frame []byte) {
	if frame == nil {
		return
	}
	g.mu.RLock()
	targets := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if c.isOpen() && c.trySend(frame) {
			continue
		}
		g.logger.Debug("ws: pruning dead client during announcement",
			slog.String("remote_addr", c.remoteAddr),
		)
		g.drop(c)
	}
}

// drop tears a connection down from outside its read pump: gateway and
// router membership go immediately, the pumps exit on the closed send
// channel. The read pump's own unregister path remains safe to run after.
func (g *Gateway) drop(c *client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()

	g.router.Drop(c)
	c.shutdown()
}

// handleFrame parses and dispatches one inbound frame. Malformed payloads
// and unknown types are logged and ignored; nothing here is fatal to the
// connection, and no error escapes to the read pump.
func (g *Gateway) handleFrame(c *client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("ws: handler panicked", slog.Any("panic", r))
			g.report("internal_error", "message handler panicked", raw)
		}
	}()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.logger.Debug("ws: malformed frame",
			slog.String("remote_addr", c.remoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	switch env.Type {
	case MsgAuctionStart:
		g.handleAuctionStart(c, env.Payload)
	case MsgAuctionSubscribe:
		g.handleAuctionSubscribe(c, env.Payload)
	case MsgBidSubmit:
		g.handleBidSubmit(c, env.Payload)
	default:
		g.logger.Debug("ws: unknown message type",
			slog.String("type", env.Type),
			slog.String("remote_addr", c.remoteAddr),
		)
	}
}

// handleAuctionStart stores a new auction, acks the maker, announces the
// auction to every connection, and subscribes the maker to its own auction.
func (g *Gateway) handleAuctionStart(c *client, raw json.RawMessage) {
	var payload domain.AuctionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.logger.Debug("ws: malformed auction.start payload", slog.String("error", err.Error()))
		return
	}

	a, err := g.registry.Upsert(context.Background(), payload)
	if err != nil {
		c.trySend(marshalFrame(MsgAuctionAck, ackPayload{Error: auction.ReasonInvalidAuction}))
		return
	}

	c.trySend(marshalFrame(MsgAuctionAck, ackPayload{AuctionID: a.ID}))

	started := marshalFrame(MsgAuctionStarted, startedPayload{
		AuctionPayload: a.Payload,
		AuctionID:      a.ID,
	})
	g.broadcastAll(started)
	g.mirror(busChannelAuctions, started)

	g.router.Subscribe(a.ID, c)
	c.subs[a.ID] = true
}

// handleAuctionSubscribe adds the connection to the auction's membership and
// replays the current bid list if any bids exist.
func (g *Gateway) handleAuctionSubscribe(c *client, raw json.RawMessage) {
	var payload subscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AuctionID == "" {
		g.logger.Debug("ws: malformed auction.subscribe payload")
		return
	}

	if _, err := g.registry.Get(context.Background(), payload.AuctionID); err != nil {
		c.trySend(marshalFrame(MsgAuctionAck, ackPayload{
			AuctionID: payload.AuctionID,
			Error:     auction.ReasonAuctionNotFoundExpired,
		}))
		return
	}

	g.router.Subscribe(payload.AuctionID, c)
	c.subs[payload.AuctionID] = true

	bids, err := g.registry.Bids(context.Background(), payload.AuctionID)
	if err != nil || len(bids) == 0 {
		return
	}
	c.trySend(marshalFrame(MsgAuctionBids, bidsPayload{
		AuctionID: payload.AuctionID,
		Bids:      bids,
	}))
}

// handleBidSubmit runs the synchronous validation gate, commits the bid,
// acks the taker, fans the updated bid list out to subscribers, and launches
// the best-effort strict signature check.
func (g *Gateway) handleBidSubmit(c *client, raw json.RawMessage) {
	var payload bidPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.logger.Debug("ws: malformed bid.submit payload", slog.String("error", err.Error()))
		c.trySend(marshalFrame(MsgBidAck, ackPayload{Error: auction.ReasonVerificationFailed}))
		return
	}

	ctx := context.Background()

	a, err := g.registry.Get(ctx, payload.AuctionID)
	if err != nil {
		c.trySend(marshalFrame(MsgBidAck, ackPayload{Error: auction.ReasonAuctionNotFoundExpired}))
		return
	}

	bid := domain.Bid{
		AuctionID:      payload.AuctionID,
		Taker:          payload.Taker,
		TakerWager:     payload.TakerWager,
		TakerDeadline:  payload.TakerDeadline,
		TakerSignature: payload.TakerSignature,
	}

	if res := g.validator.Basic(&a, &bid); !res.OK {
		c.trySend(marshalFrame(MsgBidAck, ackPayload{Error: res.Reason}))
		return
	}

	committed, err := g.registry.AddBid(ctx, payload.AuctionID, bid)
	if err != nil {
		// The auction expired between Get and AddBid.
		c.trySend(marshalFrame(MsgBidAck, ackPayload{Error: auction.ReasonAuctionNotFoundExpired}))
		return
	}

	c.trySend(marshalFrame(MsgBidAck, ackPayload{}))
	g.publishBids(payload.AuctionID)

	// Deliberate trust window: the bid is already accepted and broadcast.
	// Cryptographic recovery is comparatively expensive, so it runs
	// detached and a miss is reported, never retracted.
	go g.strictVerify(a, committed)
}

// publishBids fans the auction's current bid list out to its subscribers and
// mirrors it to the signal bus. The subscriber snapshot is taken inside the
// router's broadcast lock, so lists reach subscribers in commit order. The
// mirror must not depend on router membership: external consumers follow
// auctions whose last WebSocket subscriber is long gone.
func (g *Gateway) publishBids(auctionID string) {
	var frame []byte
	g.router.Broadcast(auctionID, func() []byte {
		frame = g.bidsFrame(auctionID)
		return frame
	})
	if frame == nil {
		// No subscribers, so the build closure never ran.
		frame = g.bidsFrame(auctionID)
	}
	g.mirror(busChannelBidsPrefix+auctionID, frame)
}

// bidsFrame builds an auction.bids frame from the registry's current list,
// or nil when the auction is gone.
func (g *Gateway) bidsFrame(auctionID string) []byte {
	bids, err := g.registry.Bids(context.Background(), auctionID)
	if err != nil {
		return nil
	}
	return marshalFrame(MsgAuctionBids, bidsPayload{AuctionID: auctionID, Bids: bids})
}

// strictVerify is the detached cryptographic confirmation of an accepted
// bid. Failures are logged and reported to the sink only.
func (g *Gateway) strictVerify(a domain.Auction, bid domain.Bid) {
	ctx, cancel := context.WithTimeout(context.Background(), strictVerifyTimeout)
	defer cancel()

	dom := crypto.Domain{ChainID: g.cfg.ChainID, VerifyingContract: g.cfg.VerifyingContract}
	res := g.validator.Strict(ctx, &a, &bid, dom)
	if res.OK {
		return
	}

	g.logger.Warn("ws: strict verification failed for accepted bid",
		slog.String("auction_id", a.ID),
		slog.String("taker", bid.Taker),
		slog.String("reason", res.Reason),
	)
	g.report("verification",
		"strict bid verification failed",
		[]byte("auction="+a.ID+" taker="+bid.Taker+" reason="+res.Reason),
	)
}

// mirror publishes a frame to the signal bus, when one is configured.
func (g *Gateway) mirror(channel string, frame []byte) {
	if g.bus == nil || frame == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.bus.Publish(ctx, channel, frame); err != nil {
		g.logger.Warn("ws: signal bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// report forwards an error event to the sink, when one is configured.
func (g *Gateway) report(event, title string, detail []byte) {
	if g.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.sink.Notify(ctx, event, title, string(detail)); err != nil {
		g.logger.Warn("ws: error sink notify failed", slog.String("error", err.Error()))
	}
}
