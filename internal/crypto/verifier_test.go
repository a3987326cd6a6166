package crypto

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var testDomain = Domain{
	ChainID:           137,
	VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
}

func testTerms() BidTerms {
	return BidTerms{
		PredictedOutcome: []byte{0x01},
		TakerWager:       big.NewInt(100),
		Wager:            big.NewInt(100),
		Resolver:         common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Maker:            common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		TakerDeadline:    1_900_000_000,
	}
}

// signTerms signs the bid digest with the given key and returns a hex
// signature with the Ethereum {27,28} recovery byte convention.
func signTerms(t *testing.T, key *ecdsaKey, terms BidTerms, domain Domain) string {
	t.Helper()
	sig, err := ethcrypto.Sign(BidDigest(terms, domain), key.priv)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig)
}

type ecdsaKey struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

func newKey(t *testing.T) *ecdsaKey {
	t.Helper()
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &ecdsaKey{priv: priv, address: ethcrypto.PubkeyToAddress(priv.PublicKey)}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	key := newKey(t)
	terms := testTerms()
	sig := signTerms(t, key, terms, testDomain)

	if !Verify(key.address.Hex(), terms, sig, testDomain) {
		t.Fatal("Verify() = false for a valid signature")
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	terms := testTerms()
	sig := signTerms(t, key, terms, testDomain)

	if Verify(other.address.Hex(), terms, sig, testDomain) {
		t.Fatal("Verify() = true for a signature by a different key")
	}
}

func TestVerifyRejectsAlteredTerms(t *testing.T) {
	key := newKey(t)
	terms := testTerms()
	sig := signTerms(t, key, terms, testDomain)

	altered := terms
	altered.TakerWager = big.NewInt(101)
	if Verify(key.address.Hex(), altered, sig, testDomain) {
		t.Fatal("Verify() = true after takerWager was altered")
	}

	altered = terms
	altered.TakerDeadline++
	if Verify(key.address.Hex(), altered, sig, testDomain) {
		t.Fatal("Verify() = true after takerDeadline was altered")
	}

	altered = terms
	altered.PredictedOutcome = []byte{0x02}
	if Verify(key.address.Hex(), altered, sig, testDomain) {
		t.Fatal("Verify() = true after predictedOutcome was altered")
	}
}

func TestVerifyRejectsForeignDomain(t *testing.T) {
	key := newKey(t)
	terms := testTerms()
	sig := signTerms(t, key, terms, testDomain)

	otherChain := Domain{ChainID: 1, VerifyingContract: testDomain.VerifyingContract}
	if Verify(key.address.Hex(), terms, sig, otherChain) {
		t.Fatal("Verify() = true under a different chain id")
	}

	otherContract := Domain{ChainID: testDomain.ChainID, VerifyingContract: "0x0000000000000000000000000000000000000001"}
	if Verify(key.address.Hex(), terms, sig, otherContract) {
		t.Fatal("Verify() = true under a different verifying contract")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	key := newKey(t)
	terms := testTerms()

	cases := []struct {
		name      string
		signer    string
		signature string
	}{
		{"empty signature", key.address.Hex(), ""},
		{"not hex", key.address.Hex(), "0xzz"},
		{"truncated", key.address.Hex(), "0xdeadbeef"},
		{"bad signer address", "not-an-address", signTerms(t, key, terms, testDomain)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(tc.signer, terms, tc.signature, testDomain) {
				t.Fatalf("Verify() = true for %s", tc.name)
			}
		})
	}
}

func TestBidDigestIsDeterministic(t *testing.T) {
	terms := testTerms()
	d1 := BidDigest(terms, testDomain)
	d2 := BidDigest(terms, testDomain)
	if common.Bytes2Hex(d1) != common.Bytes2Hex(d2) {
		t.Fatal("BidDigest() not deterministic")
	}
	if len(d1) != 32 {
		t.Fatalf("BidDigest() length = %d, want 32", len(d1))
	}
}
