package domain

import "errors"

var (
	// ErrAuctionNotFound covers both unknown and expired auction ids; the
	// two cases are deliberately indistinguishable to callers.
	ErrAuctionNotFound = errors.New("auction not found or expired")

	// ErrInvalidPayload marks a structurally invalid auction payload.
	ErrInvalidPayload = errors.New("invalid auction payload")
)
