// Package auction implements the engine's bid validation pipeline and the
// in-memory auction registry.
package auction

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhub/internal/crypto"
	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// Stable machine-readable rejection reasons surfaced to bidders via
// bid.ack.error. These strings are part of the wire protocol; do not rename.
const (
	ReasonInvalidAuction         = "invalid_auction"
	ReasonInvalidTakerAddress    = "invalid_taker_address"
	ReasonInvalidTakerWager      = "invalid_taker_wager"
	ReasonTakerWagerTooHigh      = "taker_wager_too_high"
	ReasonQuoteExpired           = "quote_expired"
	ReasonInvalidSignatureFormat = "invalid_taker_bid_signature_format"
	ReasonInvalidSignature       = "invalid_signature"
	ReasonVerificationFailed     = "verification_failed"
	ReasonAuctionNotFoundExpired = "auction_not_found_or_expired"
)

// minSignatureHexLen is the length of a 0x-prefixed 65-byte signature.
const minSignatureHexLen = 2 + 65*2

// Result is the outcome of a validation phase. Reason is empty when OK.
type Result struct {
	OK     bool
	Reason string
}

func accept() Result              { return Result{OK: true} }
func reject(reason string) Result { return Result{Reason: reason} }

// Validator runs the two-phase bid validation pipeline. Basic is the cheap
// synchronous gate that runs before a bid is ever committed; Strict is the
// cryptographic confirmation, run best-effort afterwards.
type Validator struct {
	clock  domain.Clock
	logger *slog.Logger
}

// NewValidator creates a Validator using the given clock for deadline checks.
func NewValidator(clock domain.Clock, logger *slog.Logger) *Validator {
	return &Validator{
		clock:  clock,
		logger: logger.With(slog.String("component", "validator")),
	}
}

// Basic performs the structural and business-rule checks on a bid against
// its parent auction. It is synchronous, side-effect-free, and bounded-time.
// Any internal panic is recovered and reported as verification_failed; this
// phase never propagates an error to the connection handler.
func (v *Validator) Basic(auction *domain.Auction, bid *domain.Bid) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("basic validation panicked", slog.Any("panic", r))
			res = reject(ReasonVerificationFailed)
		}
	}()

	if auction == nil || bid == nil {
		return reject(ReasonVerificationFailed)
	}

	// Re-run the auction's own invariants. The registry validated the
	// payload at creation; this guards against a corrupted entry reaching
	// the bid path.
	if err := auction.Payload.Validate(); err != nil {
		return reject(ReasonInvalidAuction)
	}

	if !common.IsHexAddress(bid.Taker) {
		return reject(ReasonInvalidTakerAddress)
	}

	takerWager, ok := domain.ParseWager(bid.TakerWager)
	if !ok || takerWager.Sign() <= 0 {
		return reject(ReasonInvalidTakerWager)
	}
	wager, _ := domain.ParseWager(auction.Payload.Wager)
	if takerWager.Cmp(wager) > 0 {
		return reject(ReasonTakerWagerTooHigh)
	}

	// A deadline equal to the current floor(now) second is already stale.
	if bid.TakerDeadline <= v.clock.Now().Unix() {
		return reject(ReasonQuoteExpired)
	}

	if !validSignatureFormat(bid.TakerSignature) {
		return reject(ReasonInvalidSignatureFormat)
	}

	return accept()
}

// Strict rebuilds the canonical typed payload from the auction terms and the
// bid and confirms cryptographically that the taker authorized it. It is the
// expensive phase: callers must not hold registry locks across it.
func (v *Validator) Strict(ctx context.Context, auction *domain.Auction, bid *domain.Bid, dom crypto.Domain) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("strict validation panicked", slog.Any("panic", r))
			res = reject(ReasonVerificationFailed)
		}
	}()

	if auction == nil || bid == nil || len(auction.Payload.PredictedOutcomes) == 0 {
		return reject(ReasonVerificationFailed)
	}
	if err := ctx.Err(); err != nil {
		return reject(ReasonVerificationFailed)
	}

	outcome, err := domain.DecodeOutcome(auction.Payload.PredictedOutcomes[0])
	if err != nil {
		return reject(ReasonVerificationFailed)
	}
	takerWager, ok := domain.ParseWager(bid.TakerWager)
	if !ok {
		return reject(ReasonVerificationFailed)
	}
	wager, ok := domain.ParseWager(auction.Payload.Wager)
	if !ok {
		return reject(ReasonVerificationFailed)
	}

	terms := crypto.BidTerms{
		PredictedOutcome: outcome,
		TakerWager:       takerWager,
		Wager:            wager,
		Resolver:         common.HexToAddress(auction.Payload.Resolver),
		Maker:            common.HexToAddress(auction.Payload.Maker),
		TakerDeadline:    bid.TakerDeadline,
	}

	if !crypto.Verify(bid.Taker, terms, bid.TakerSignature, dom) {
		return reject(ReasonInvalidSignature)
	}
	return accept()
}

// validSignatureFormat is a shape check, not a cryptographic one:
// 0x prefix, minimum length for a 65-byte signature, hex characters only.
func validSignatureFormat(sig string) bool {
	if !strings.HasPrefix(sig, "0x") {
		return false
	}
	if len(sig) < minSignatureHexLen {
		return false
	}
	for _, c := range sig[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
