package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// AuctionHandler serves read-only auction endpoints. Mutations go through the
// WebSocket gateway exclusively; the REST surface exists for dashboards and
// reconciliation tooling.
type AuctionHandler struct {
	registry domain.AuctionRegistry
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler backed by the given registry.
func NewAuctionHandler(registry domain.AuctionRegistry, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		registry: registry,
		logger:   logger,
	}
}

// listAuctionsResponse wraps the list endpoint output with a count.
type listAuctionsResponse struct {
	Auctions []domain.Auction `json:"auctions"`
	Count    int              `json:"count"`
}

// auctionBidsResponse mirrors the shape of the WebSocket bid broadcast.
type auctionBidsResponse struct {
	AuctionID string       `json:"auctionId"`
	Bids      []domain.Bid `json:"bids"`
}

// ListAuctions returns every currently open auction.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list auctions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list auctions")
		return
	}

	writeJSON(w, http.StatusOK, listAuctionsResponse{
		Auctions: auctions,
		Count:    len(auctions),
	})
}

// GetAuction returns a single open auction by its id.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	auction, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			writeError(w, http.StatusNotFound, "auction not found or expired")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get auction failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get auction")
		return
	}

	writeJSON(w, http.StatusOK, auction)
}

// GetAuctionBids returns the bid list of an open auction, in the order the
// bids were committed.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) GetAuctionBids(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	bids, err := h.registry.Bids(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			writeError(w, http.StatusNotFound, "auction not found or expired")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get auction bids failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bids")
		return
	}

	writeJSON(w, http.StatusOK, auctionBidsResponse{
		AuctionID: id,
		Bids:      bids,
	})
}
