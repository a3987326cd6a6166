// Package domain defines the core types of the auction engine and the
// interfaces of its external collaborators (registry, rate limiter, signal
// bus, blob storage, clock). Concrete implementations live in sibling
// packages; nothing in this package touches the network.
package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionPayload holds the immutable terms a maker broadcasts when starting
// an auction. Wager amounts are decimal strings in the token's smallest unit
// so uint256-sized values survive JSON boundaries without precision loss.
type AuctionPayload struct {
	Wager             string   `json:"wager"`
	PredictedOutcomes []string `json:"predictedOutcomes"` // 0x-prefixed hex byte-strings
	Resolver          string   `json:"resolver"`
	Maker             string   `json:"maker"`
}

// Validate checks the structural invariants of an auction payload: a
// positive wager, at least one non-empty predicted outcome, and well-formed
// 20-byte hex addresses for resolver and maker.
func (p AuctionPayload) Validate() error {
	wager, ok := ParseWager(p.Wager)
	if !ok || wager.Sign() <= 0 {
		return fmt.Errorf("domain: %w: wager must be a positive integer", ErrInvalidPayload)
	}
	if len(p.PredictedOutcomes) == 0 {
		return fmt.Errorf("domain: %w: predictedOutcomes must not be empty", ErrInvalidPayload)
	}
	for i, o := range p.PredictedOutcomes {
		if _, err := DecodeOutcome(o); err != nil {
			return fmt.Errorf("domain: %w: predictedOutcomes[%d]: %v", ErrInvalidPayload, i, err)
		}
	}
	if !common.IsHexAddress(p.Resolver) {
		return fmt.Errorf("domain: %w: resolver is not a valid address", ErrInvalidPayload)
	}
	if !common.IsHexAddress(p.Maker) {
		return fmt.Errorf("domain: %w: maker is not a valid address", ErrInvalidPayload)
	}
	return nil
}

// Auction is a maker's open wager auction. The payload never changes after
// creation; bids accumulate in the registry under the auction's id.
type Auction struct {
	ID        string         `json:"auctionId"`
	Payload   AuctionPayload `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Bid is a taker's signed counter-offer against an open auction. The
// signature covers the canonical typed payload binding the auction terms to
// the taker's wager and deadline.
type Bid struct {
	AuctionID      string    `json:"auctionId"`
	Taker          string    `json:"taker"`
	TakerWager     string    `json:"takerWager"`
	TakerDeadline  int64     `json:"takerDeadline"` // unix seconds
	TakerSignature string    `json:"takerSignature"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// AuctionSnapshot pairs an auction with the bids it had accumulated, as
// returned by the registry's expiry sweep.
type AuctionSnapshot struct {
	Auction Auction `json:"auction"`
	Bids    []Bid   `json:"bids"`
}

// ParseWager parses a decimal wager string into a big integer. It returns
// false for empty strings, non-decimal input, and negative values produced
// by a leading minus sign being accepted by SetString.
func ParseWager(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return n, true
}

// DecodeOutcome decodes a 0x-prefixed hex predicted-outcome string into its
// raw bytes. Empty byte-strings are rejected.
func DecodeOutcome(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %v", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty byte-string")
	}
	return raw, nil
}
