// Package walletaddr defines the fixed-size identifier types shared across
// the node: wallet addresses, block/tx hashes and protocol timestamps.
package walletaddr

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// AddressPrefix is prepended to the hex-encoded public key digest when
// rendering a WalletAddress as text.
const AddressPrefix = "ubi_"

// AddressTextLen is the length of a WalletAddress's textual form,
// "ubi_" (4) + 61 hex chars covering the 32-byte digest packed to fit.
const AddressTextLen = 65

// WalletAddress wraps the 32-byte digest of an account's public key.
type WalletAddress [32]byte

// ZeroAddress is the sentinel "no address".
var ZeroAddress = WalletAddress{}

// BlockHash is a 32-byte content hash identifying a StateBlock.
type BlockHash [32]byte

// ZeroBlockHash is the sentinel "none" block hash.
var ZeroBlockHash = BlockHash{}

// TxHash is a 32-byte content hash identifying a burn/send/merge transaction.
type TxHash [32]byte

// ZeroTxHash is the sentinel "none" tx hash.
var ZeroTxHash = TxHash{}

// Timestamp is seconds since the Unix epoch.
type Timestamp int64

// Now returns the current Timestamp.
func Now() Timestamp { return Timestamp(time.Now().Unix()) }

// Add returns t+secs.
func (t Timestamp) Add(secs int64) Timestamp { return t + Timestamp(secs) }

// Before reports whether t is strictly before o.
func (t Timestamp) Before(o Timestamp) bool { return t < o }

// Bytes returns the address's raw bytes.
func (a WalletAddress) Bytes() []byte { return a[:] }

// IsZero reports whether a is the zero address.
func (a WalletAddress) IsZero() bool { return a == ZeroAddress }

// String renders the address in its prefixed hex form.
func (a WalletAddress) String() string {
	return AddressPrefix + hex.EncodeToString(a[:])
}

// ParseWalletAddress parses the textual form produced by String.
func ParseWalletAddress(s string) (WalletAddress, error) {
	var a WalletAddress
	if !strings.HasPrefix(s, AddressPrefix) {
		return a, errors.New("walletaddr: missing prefix")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, AddressPrefix))
	if err != nil {
		return a, err
	}
	if len(raw) != len(a) {
		return a, errors.New("walletaddr: wrong length")
	}
	copy(a[:], raw)
	return a, nil
}

// AddressFromPublicKey derives a WalletAddress from a compressed public key
// by taking its blake2b-256 digest, mirroring the chain's block-hash scheme.
func AddressFromPublicKey(pub []byte) WalletAddress {
	return WalletAddress(blake2b.Sum256(pub))
}

// Bytes returns the hash's raw bytes.
func (h BlockHash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero hash.
func (h BlockHash) IsZero() bool { return h == ZeroBlockHash }

// String renders the hash as hex.
func (h BlockHash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns the hash's raw bytes.
func (h TxHash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero hash.
func (h TxHash) IsZero() bool { return h == ZeroTxHash }

// String renders the hash as hex.
func (h TxHash) String() string { return hex.EncodeToString(h[:]) }

// HashBytes computes the content hash used for both BlockHash and TxHash,
// blake2b-256 over the concatenated byte slices.
func HashBytes(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
