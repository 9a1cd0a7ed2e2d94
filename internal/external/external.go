// Package external declares the narrow interfaces the core depends on for
// peer networking, proof-of-work generation, bootstrap notification and
// randomness, so that production wiring and test fakes can be swapped in
// without touching the core's logic.
package external

import (
	"github.com/burstubi/node/walletaddr"
)

// PeerManager is the minimal surface the core needs from the wire/peer
// layer: broadcasting confirmed votes and blocks, and being told when a
// peer should be penalised for an observable protocol violation.
type PeerManager interface {
	BroadcastBlock(hash walletaddr.BlockHash, payload []byte)
	BroadcastVote(root walletaddr.BlockHash, payload []byte)
	PenalizePeer(peerID string, severity int)
}

// WorkGenerator dispatches proof-of-work generation to a blocking pool,
// off the I/O runtime.
type WorkGenerator interface {
	Generate(blockHash walletaddr.BlockHash, minDifficulty uint64) (work uint64, err error)
}

// BootstrapNotifier is told about newly-confirmed roots so a bootstrap
// sync protocol (out of scope here) can mark them as caught up.
type BootstrapNotifier interface {
	NotifyConfirmed(root walletaddr.BlockHash)
}

// RandomnessSource supplies the 32-byte seed deterministic verifier
// selection consumes (drand round, VRF output, or a test fake).
type RandomnessSource interface {
	Next() [32]byte
}
