// Package block defines the StateBlock: the unit of an account's chain
// in the block lattice.
package block

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/burstubi/node/walletaddr"
)

// Kind enumerates the StateBlock variants a ledger accepts.
type Kind uint8

const (
	// KindOpen is the first block of an account's chain.
	KindOpen Kind = iota
	// KindSend debits TRST from the sending account.
	KindSend
	// KindReceive credits TRST pending from a prior Send.
	KindReceive
	// KindBurn debits BRN and mints a TRST token for the link account.
	KindBurn
	// KindSplit divides a held TRST token across multiple receivers.
	KindSplit
	// KindMerge combines multiple held TRST tokens into one.
	KindMerge
	// KindRepChange changes the account's representative.
	KindRepChange
	// KindEndorse burns BRN to endorse a verification target.
	KindEndorse
	// KindChallenge stakes BRN to challenge a verified wallet.
	KindChallenge
	// KindGovernanceProposal submits or amends a governance proposal.
	KindGovernanceProposal
	// KindGovernanceVote casts a governance vote.
	KindGovernanceVote
	// KindVerificationVote casts a human-verification vote.
	KindVerificationVote
)

// String renders the kind's name.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindBurn:
		return "burn"
	case KindSplit:
		return "split"
	case KindMerge:
		return "merge"
	case KindRepChange:
		return "rep_change"
	case KindEndorse:
		return "endorse"
	case KindChallenge:
		return "challenge"
	case KindGovernanceProposal:
		return "governance_proposal"
	case KindGovernanceVote:
		return "governance_vote"
	case KindVerificationVote:
		return "verification_vote"
	default:
		return "unknown"
	}
}

// StateBlock is a single entry in an account's chain.
type StateBlock struct {
	Kind           Kind
	Account        walletaddr.WalletAddress
	Previous       walletaddr.BlockHash
	Representative walletaddr.WalletAddress
	BrnBalance     uint64
	TrstBalance    uint64
	// Link's meaning varies by Kind: destination account for Send/Burn,
	// source block hash for Receive, proposal hash for GovernanceVote, etc.
	Link      walletaddr.BlockHash
	Origin    walletaddr.TxHash
	Timestamp walletaddr.Timestamp
	Signature []byte
	Work      uint64

	hash walletaddr.BlockHash
}

// Encode deterministically serializes every field but the signature and the
// cached hash, in fixed field order.
func (b *StateBlock) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(b.Kind))
	buf.Write(b.Account[:])
	buf.Write(b.Previous[:])
	buf.Write(b.Representative[:])
	writeUint64(buf, b.BrnBalance)
	writeUint64(buf, b.TrstBalance)
	buf.Write(b.Link[:])
	buf.Write(b.Origin[:])
	writeUint64(buf, uint64(b.Timestamp))
	writeUint64(buf, b.Work)
	return buf.Bytes()
}

// Decode parses the bytes produced by Encode into a StateBlock and
// recomputes its hash.
func Decode(data []byte) (*StateBlock, error) {
	r := bytes.NewReader(data)
	b := &StateBlock{}

	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.New("block: truncated kind")
	}
	b.Kind = Kind(kindByte)

	if err := readFull(r, b.Account[:]); err != nil {
		return nil, err
	}
	if err := readFull(r, b.Previous[:]); err != nil {
		return nil, err
	}
	if err := readFull(r, b.Representative[:]); err != nil {
		return nil, err
	}
	if b.BrnBalance, err = readUint64(r); err != nil {
		return nil, err
	}
	if b.TrstBalance, err = readUint64(r); err != nil {
		return nil, err
	}
	if err := readFull(r, b.Link[:]); err != nil {
		return nil, err
	}
	if err := readFull(r, b.Origin[:]); err != nil {
		return nil, err
	}
	var ts uint64
	if ts, err = readUint64(r); err != nil {
		return nil, err
	}
	b.Timestamp = walletaddr.Timestamp(ts)
	if b.Work, err = readUint64(r); err != nil {
		return nil, err
	}

	b.hash = walletaddr.BlockHash(walletaddr.HashBytes(b.Encode()))
	return b, nil
}

// Hash computes (and caches) the block's content hash over Encode's
// output: every field except Signature (Work is included).
func (b *StateBlock) Hash() walletaddr.BlockHash {
	if b.hash.IsZero() {
		b.hash = walletaddr.BlockHash(walletaddr.HashBytes(b.Encode()))
	}
	return b.hash
}

// Sign signs the block's hash with the given private key and stores the
// resulting signature.
func (b *StateBlock) Sign(priv *secp256k1.PrivateKey) {
	h := b.Hash()
	sig := ecdsa.Sign(priv, h[:])
	b.Signature = sig.Serialize()
}

// VerifySignature reports whether Signature is a valid signature over the
// block's hash under pub. Disabled verification (tests) should simply skip
// calling this.
func (b *StateBlock) VerifySignature(pub *secp256k1.PublicKey) bool {
	if len(b.Signature) == 0 {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(b.Signature)
	if err != nil {
		return false
	}
	h := b.Hash()
	return sig.Verify(h[:], pub)
}

// MeetsDifficulty reports whether Work satisfies the minimum PoW threshold
// for this block's kind. PoW generation itself happens off this core;
// here only the result is validated against a threshold.
func MeetsDifficulty(work uint64, minDifficulty uint64) bool {
	return work >= minDifficulty
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readFull(r *bytes.Reader, dst []byte) error {
	n, err := r.Read(dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return errors.New("block: truncated field")
	}
	return nil
}
