package auction

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/auctionhub/internal/crypto"
	"github.com/alanyoungcy/auctionhub/internal/domain"
)

func testAuction() *domain.Auction {
	return &domain.Auction{
		ID:      "a-1",
		Payload: validPayload(),
	}
}

func TestBasicAcceptsWellFormedBid(t *testing.T) {
	clock := newFakeClock()
	v := NewValidator(clock, testLogger())

	bid := validBid(clock.Now().Unix() + 60)
	if res := v.Basic(testAuction(), &bid); !res.OK {
		t.Fatalf("Basic rejected a well-formed bid: %s", res.Reason)
	}
}

func TestBasicRejections(t *testing.T) {
	clock := newFakeClock()
	v := NewValidator(clock, testLogger())
	now := clock.Now().Unix()

	cases := []struct {
		name   string
		mutate func(a *domain.Auction, b *domain.Bid)
		want   string
	}{
		{
			"corrupted auction",
			func(a *domain.Auction, b *domain.Bid) { a.Payload.Wager = "0" },
			ReasonInvalidAuction,
		},
		{
			"missing taker",
			func(a *domain.Auction, b *domain.Bid) { b.Taker = "" },
			ReasonInvalidTakerAddress,
		},
		{
			"malformed taker",
			func(a *domain.Auction, b *domain.Bid) { b.Taker = "0xzz44CdDdB6a900fa2b585dd299e03d12FA4293BC" },
			ReasonInvalidTakerAddress,
		},
		{
			"missing taker wager",
			func(a *domain.Auction, b *domain.Bid) { b.TakerWager = "" },
			ReasonInvalidTakerWager,
		},
		{
			"zero taker wager",
			func(a *domain.Auction, b *domain.Bid) { b.TakerWager = "0" },
			ReasonInvalidTakerWager,
		},
		{
			"negative taker wager",
			func(a *domain.Auction, b *domain.Bid) { b.TakerWager = "-1" },
			ReasonInvalidTakerWager,
		},
		{
			"taker wager above maker stake",
			func(a *domain.Auction, b *domain.Bid) { b.TakerWager = "101" },
			ReasonTakerWagerTooHigh,
		},
		{
			"deadline in the past",
			func(a *domain.Auction, b *domain.Bid) { b.TakerDeadline = now - 1 },
			ReasonQuoteExpired,
		},
		{
			"deadline equal to now",
			func(a *domain.Auction, b *domain.Bid) { b.TakerDeadline = now },
			ReasonQuoteExpired,
		},
		{
			"signature missing prefix",
			func(a *domain.Auction, b *domain.Bid) { b.TakerSignature = "deadbeef" },
			ReasonInvalidSignatureFormat,
		},
		{
			"signature too short",
			func(a *domain.Auction, b *domain.Bid) { b.TakerSignature = "0xdeadbeef" },
			ReasonInvalidSignatureFormat,
		},
		{
			"signature not hex",
			func(a *domain.Auction, b *domain.Bid) {
				b.TakerSignature = "0x" + string(make([]byte, 130)) // NULs are not hex
			},
			ReasonInvalidSignatureFormat,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := testAuction()
			b := validBid(now + 60)
			tc.mutate(a, &b)
			res := v.Basic(a, &b)
			if res.OK {
				t.Fatalf("Basic accepted bid with %s", tc.name)
			}
			if res.Reason != tc.want {
				t.Fatalf("Basic reason = %q, want %q", res.Reason, tc.want)
			}
		})
	}
}

func TestBasicWagerCeilingInclusive(t *testing.T) {
	clock := newFakeClock()
	v := NewValidator(clock, testLogger())
	now := clock.Now().Unix()

	equal := validBid(now + 60)
	equal.TakerWager = "100"
	if res := v.Basic(testAuction(), &equal); !res.OK {
		t.Fatalf("Basic rejected takerWager == wager: %s", res.Reason)
	}

	above := validBid(now + 60)
	above.TakerWager = "101"
	if res := v.Basic(testAuction(), &above); res.OK || res.Reason != ReasonTakerWagerTooHigh {
		t.Fatalf("Basic result for takerWager > wager = %+v, want taker_wager_too_high", res)
	}
}

func TestBasicDeadlineBoundary(t *testing.T) {
	clock := newFakeClock()
	v := NewValidator(clock, testLogger())
	now := clock.Now().Unix()

	atNow := validBid(now)
	if res := v.Basic(testAuction(), &atNow); res.OK || res.Reason != ReasonQuoteExpired {
		t.Fatalf("Basic result for deadline == now = %+v, want quote_expired", res)
	}

	oneAhead := validBid(now + 1)
	if res := v.Basic(testAuction(), &oneAhead); !res.OK {
		t.Fatalf("Basic rejected deadline == now+1: %s", res.Reason)
	}
}

func TestBasicNilArguments(t *testing.T) {
	v := NewValidator(newFakeClock(), testLogger())

	bid := validBid(1_700_000_100)
	if res := v.Basic(nil, &bid); res.OK || res.Reason != ReasonVerificationFailed {
		t.Fatalf("Basic(nil auction) = %+v, want verification_failed", res)
	}
	if res := v.Basic(testAuction(), nil); res.OK || res.Reason != ReasonVerificationFailed {
		t.Fatalf("Basic(nil bid) = %+v, want verification_failed", res)
	}
}

func TestStrictVerifiesRealSignature(t *testing.T) {
	clock := newFakeClock()
	v := NewValidator(clock, testLogger())
	dom := crypto.Domain{ChainID: 137, VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"}

	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	taker := ethcrypto.PubkeyToAddress(priv.PublicKey)

	a := testAuction()
	deadline := clock.Now().Unix() + 60

	terms := crypto.BidTerms{
		PredictedOutcome: []byte{0x01},
		TakerWager:       big.NewInt(100),
		Wager:            big.NewInt(100),
		Resolver:         common.HexToAddress(a.Payload.Resolver),
		Maker:            common.HexToAddress(a.Payload.Maker),
		TakerDeadline:    deadline,
	}
	sig, err := ethcrypto.Sign(crypto.BidDigest(terms, dom), priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	bid := domain.Bid{
		Taker:          taker.Hex(),
		TakerWager:     "100",
		TakerDeadline:  deadline,
		TakerSignature: "0x" + common.Bytes2Hex(sig),
	}

	if res := v.Strict(context.Background(), a, &bid, dom); !res.OK {
		t.Fatalf("Strict rejected a valid signature: %s", res.Reason)
	}

	// The same signature must not verify for different terms.
	tampered := bid
	tampered.TakerWager = "99"
	if res := v.Strict(context.Background(), a, &tampered, dom); res.OK || res.Reason != ReasonInvalidSignature {
		t.Fatalf("Strict result for tampered bid = %+v, want invalid_signature", res)
	}

	// Or for a different taker.
	stolen := bid
	stolen.Taker = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	if res := v.Strict(context.Background(), a, &stolen, dom); res.OK || res.Reason != ReasonInvalidSignature {
		t.Fatalf("Strict result for wrong taker = %+v, want invalid_signature", res)
	}
}

func TestStrictNeverPanicsOnGarbage(t *testing.T) {
	v := NewValidator(newFakeClock(), testLogger())
	dom := crypto.Domain{ChainID: 137, VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"}

	if res := v.Strict(context.Background(), nil, nil, dom); res.OK || res.Reason != ReasonVerificationFailed {
		t.Fatalf("Strict(nil, nil) = %+v, want verification_failed", res)
	}

	a := testAuction()
	a.Payload.PredictedOutcomes = []string{"not-hex"}
	bid := validBid(1_700_000_100)
	if res := v.Strict(context.Background(), a, &bid, dom); res.OK || res.Reason != ReasonVerificationFailed {
		t.Fatalf("Strict with bad outcome encoding = %+v, want verification_failed", res)
	}
}
