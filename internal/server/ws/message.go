package ws

import (
	"encoding/json"

	"github.com/alanyoungcy/auctionhub/internal/domain"
)

// Client-to-server message types. Inbound frames carrying any other type
// string are logged and ignored; the set is closed by the dispatch switch in
// gateway.go.
const (
	MsgAuctionStart     = "auction.start"
	MsgAuctionSubscribe = "auction.subscribe"
	MsgBidSubmit        = "bid.submit"
)

// Server-to-client message types.
const (
	MsgAuctionAck     = "auction.ack"
	MsgAuctionStarted = "auction.started"
	MsgAuctionBids    = "auction.bids"
	MsgBidAck         = "bid.ack"
)

// Close reasons for connection-fatal resource abuse.
const (
	CloseReasonRateLimited     = "rate_limited"
	CloseReasonMessageTooLarge = "message_too_large"
)

// envelope is the outer frame of every message in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscribePayload is the body of an auction.subscribe frame.
type subscribePayload struct {
	AuctionID string `json:"auctionId"`
}

// bidPayload is the body of a bid.submit frame.
type bidPayload struct {
	AuctionID      string `json:"auctionId"`
	Taker          string `json:"taker"`
	TakerWager     string `json:"takerWager"`
	TakerDeadline  int64  `json:"takerDeadline"`
	TakerSignature string `json:"takerSignature"`
}

// startedPayload is the body of the auction.started broadcast: the auction
// payload flattened together with the registry-assigned id.
type startedPayload struct {
	domain.AuctionPayload
	AuctionID string `json:"auctionId"`
}

// bidsPayload is the body of an auction.bids frame.
type bidsPayload struct {
	AuctionID string       `json:"auctionId"`
	Bids      []domain.Bid `json:"bids"`
}

// ackPayload is the body of auction.ack and bid.ack frames. An empty Error
// means accepted; AuctionID is set on auction.ack only.
type ackPayload struct {
	AuctionID string `json:"auctionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// marshalFrame builds a complete wire frame. Marshal failures are
// programming errors (every payload type here is marshalable); they return
// nil and the caller skips the send.
func marshalFrame(msgType string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil
	}
	return frame
}
