// Package crypto verifies EIP-712 typed-data signatures over bid terms. The
// verifier recovers the signing address from a secp256k1 signature and
// compares it to the claimed taker; it holds no key material of its own.
package crypto

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Bid(bytes predictedOutcome,uint256 takerWager,uint256 wager,address resolver,address maker,uint256 takerDeadline)
	bidTypeHash = ethcrypto.Keccak256(
		[]byte("Bid(bytes predictedOutcome,uint256 takerWager,uint256 wager,address resolver,address maker,uint256 takerDeadline)"),
	)
)

// Protocol name and version bound into every domain separator. A signature
// produced for a different protocol, version, chain, or contract recovers to
// a different digest and therefore a different address.
const (
	DomainName    = "WagerAuction"
	DomainVersion = "1"
)

// Domain identifies the deployment a bid signature is valid for.
type Domain struct {
	ChainID           int
	VerifyingContract string
}

// BidTerms are the six fields of the canonical typed payload a taker signs.
// The hashing order is fixed and must match the signer exactly:
// (predictedOutcome, takerWager, wager, resolver, maker, takerDeadline).
type BidTerms struct {
	PredictedOutcome []byte
	TakerWager       *big.Int
	Wager            *big.Int
	Resolver         common.Address
	Maker            common.Address
	TakerDeadline    int64
}

// Verify reports whether signatureHex is a valid signature by signer over
// the given bid terms under the given domain. Malformed signatures, recovery
// errors, and signer mismatches all collapse to false; Verify never panics
// out to the caller and is safe for unsynchronized concurrent use.
func Verify(signer string, terms BidTerms, signatureHex string, domain Domain) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if !common.IsHexAddress(signer) {
		return false
	}

	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return false
	}

	digest := BidDigest(terms, domain)

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	return recovered == common.HexToAddress(signer)
}

// BidDigest computes the EIP-712 digest a taker signs:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func BidDigest(terms BidTerms, domain Domain) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			bidTypeHash,
			ethcrypto.Keccak256(terms.PredictedOutcome), // dynamic bytes are hashed per EIP-712
			bigIntTo32Bytes(terms.TakerWager),
			bigIntTo32Bytes(terms.Wager),
			common.LeftPadBytes(terms.Resolver.Bytes(), 32),
			common.LeftPadBytes(terms.Maker.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(terms.TakerDeadline)),
		),
	)

	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSeparator(domain),
			structHash,
		),
	)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func domainSeparator(d Domain) []byte {
	contract := common.HexToAddress(d.VerifyingContract)
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(DomainName)),
			ethcrypto.Keccak256([]byte(DomainVersion)),
			bigIntTo32Bytes(big.NewInt(int64(d.ChainID))),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// decodeSignature decodes a hex-encoded 65-byte (r || s || v) signature and
// normalizes v from the Ethereum convention {27,28} to {0,1} as required by
// SigToPub.
func decodeSignature(signatureHex string) ([]byte, error) {
	raw := strings.TrimPrefix(signatureHex, "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(sig) != ethcrypto.SignatureLength {
		return nil, errors.New("crypto: signature must be 65 bytes")
	}

	// Copy before mutating v; callers may reuse the input.
	out := make([]byte, len(sig))
	copy(out, sig)
	if out[64] >= 27 {
		out[64] -= 27
	}
	return out, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n. A nil n
// is treated as zero.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		n = new(big.Int)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
