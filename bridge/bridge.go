// Package bridge maps a validated StateBlock to its economic effect,
// driving the BRN and TRST engines and tagging the result so callers can
// switch exhaustively without dynamic dispatch.
package bridge

import (
	"github.com/pkg/errors"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/brn"
	"github.com/burstubi/node/trst"
	"github.com/burstubi/node/walletaddr"
)

// ResultKind tags the variant carried by an EconomicResult.
type ResultKind uint8

const (
	ResultNoEconomicEffect ResultKind = iota
	ResultBurnAndMint
	ResultBurnOnly
	ResultSend
	ResultReceive
	ResultSplit
	ResultMerge
	ResultEndorse
	ResultChallenge
	ResultRepChange
	ResultGovernanceProposal
	ResultGovernanceVote
	ResultRejectReceive
	ResultVerificationVote
	ResultRejected
)

func (k ResultKind) String() string {
	switch k {
	case ResultNoEconomicEffect:
		return "no_economic_effect"
	case ResultBurnAndMint:
		return "burn_and_mint"
	case ResultBurnOnly:
		return "burn_only"
	case ResultSend:
		return "send"
	case ResultReceive:
		return "receive"
	case ResultSplit:
		return "split"
	case ResultMerge:
		return "merge"
	case ResultEndorse:
		return "endorse"
	case ResultChallenge:
		return "challenge"
	case ResultRepChange:
		return "rep_change"
	case ResultGovernanceProposal:
		return "governance_proposal"
	case ResultGovernanceVote:
		return "governance_vote"
	case ResultRejectReceive:
		return "reject_receive"
	case ResultVerificationVote:
		return "verification_vote"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// EconomicResult is a tagged union of every block kind's economic
// effect; only the fields relevant to Kind are populated.
type EconomicResult struct {
	Kind ResultKind

	BurnAmount uint64
	MintToken  *trst.Token

	Sender           walletaddr.WalletAddress
	Receiver         walletaddr.WalletAddress
	TrstBalanceAfter uint64
	ConsumedPortions []trst.ConsumedPortion
	ReceivedToken    *trst.Token

	SplitChildren []*trst.Token
	MergedToken   *trst.Token

	RejectReason string
}

// Inputs bundles the extra, block-kind-specific parameters the ledger
// layer resolves (destination address, pending-entry provenance, split
// outputs, merge constituents) that do not live on the StateBlock itself.
type Inputs struct {
	// SendReceiver is the destination account for a Send block (Link
	// decodes to this for the Send kind).
	SendReceiver walletaddr.WalletAddress
	SendTxID     walletaddr.TxHash
	ChangeTxID   walletaddr.TxHash

	// ReceivePortions is the provenance of the pending entry a Receive
	// block is claiming, resolved by the caller from the pending store.
	ReceivePortions []trst.ConsumedPortion

	// SplitReceivers/SplitAmounts/SplitTxIDs describe a Split block's children.
	SplitReceivers []walletaddr.WalletAddress
	SplitAmounts   []uint64
	SplitTxIDs     []walletaddr.TxHash

	// MergeTokenIDs are the tokens a Merge block combines, all held by
	// block.Account.
	MergeTokenIDs []walletaddr.TxHash

	// OriginWallet is the burn tx's originating wallet for a Burn block
	// that also mints (normally block.Account itself).
	OriginWallet walletaddr.WalletAddress
}

// ProcessBlockEconomics maps blk to its EconomicResult, mutating
// brnEngine/trstEngine as needed. Any TRST mutation failure after a BRN
// burn rolls back to Rejected rather than leaving the burn un-mintable.
func ProcessBlockEconomics(blk *block.StateBlock, brnEngine *brn.Engine, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp, expirySecs int64, prevBrnBalance uint64) (EconomicResult, error) {
	switch blk.Kind {
	case block.KindOpen:
		return EconomicResult{Kind: ResultNoEconomicEffect}, nil

	case block.KindBurn:
		return processBurn(blk, trstEngine, in, now, prevBrnBalance)

	case block.KindSend:
		return processSend(blk, trstEngine, in, now)

	case block.KindReceive:
		return processReceive(blk, trstEngine, in, now)

	case block.KindSplit:
		return processSplit(blk, trstEngine, in, now)

	case block.KindMerge:
		return processMerge(blk, trstEngine, in, now)

	case block.KindEndorse:
		return EconomicResult{Kind: ResultEndorse}, nil

	case block.KindChallenge:
		return EconomicResult{Kind: ResultChallenge, BurnAmount: prevBrnBalance - uint64(blk.BrnBalance)}, nil

	case block.KindRepChange:
		return EconomicResult{Kind: ResultRepChange}, nil

	case block.KindGovernanceProposal:
		return EconomicResult{Kind: ResultGovernanceProposal}, nil

	case block.KindGovernanceVote:
		return EconomicResult{Kind: ResultGovernanceVote}, nil

	case block.KindVerificationVote:
		return EconomicResult{Kind: ResultVerificationVote}, nil

	default:
		return EconomicResult{Kind: ResultRejected, RejectReason: "unknown block kind"}, errors.Errorf("bridge: unknown block kind %v", blk.Kind)
	}
}

func processBurn(blk *block.StateBlock, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp, prevBrnBalance uint64) (EconomicResult, error) {
	if uint64(blk.BrnBalance) >= prevBrnBalance {
		return EconomicResult{Kind: ResultRejected, RejectReason: "burn must decrease brn balance"}, nil
	}
	burnAmount := prevBrnBalance - uint64(blk.BrnBalance)

	if blk.Link.IsZero() {
		return EconomicResult{Kind: ResultBurnOnly, BurnAmount: burnAmount}, nil
	}

	receiver := walletaddr.WalletAddress(blk.Link)
	originWallet := in.OriginWallet
	if originWallet.IsZero() {
		originWallet = blk.Account
	}
	tok, err := trstEngine.Mint(walletaddr.TxHash(blk.Hash()), receiver, burnAmount, originWallet, now)
	if err != nil {
		return EconomicResult{Kind: ResultRejected, RejectReason: "mint failed after burn: " + err.Error()}, nil
	}
	return EconomicResult{Kind: ResultBurnAndMint, BurnAmount: burnAmount, MintToken: tok}, nil
}

func processSend(blk *block.StateBlock, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp) (EconomicResult, error) {
	current := trstEngine.TransferableBalance(blk.Account, now)
	if uint64(blk.TrstBalance) > current {
		return EconomicResult{Kind: ResultRejected, RejectReason: "send balance does not decrease"}, nil
	}
	amount := current - uint64(blk.TrstBalance)

	portions, err := trstEngine.DebitWalletWithProvenance(blk.Account, amount, in.ChangeTxID, now)
	if err != nil {
		return EconomicResult{Kind: ResultRejected, RejectReason: err.Error()}, nil
	}
	return EconomicResult{
		Kind:             ResultSend,
		Sender:           blk.Account,
		Receiver:         in.SendReceiver,
		TrstBalanceAfter: uint64(blk.TrstBalance),
		ConsumedPortions: portions,
	}, nil
}

func processReceive(blk *block.StateBlock, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp) (EconomicResult, error) {
	if len(in.ReceivePortions) == 0 {
		return EconomicResult{Kind: ResultRejectReceive, RejectReason: "no matching pending entry"}, nil
	}
	tok, err := trstEngine.ReceiveFromProvenance(walletaddr.TxHash(blk.Hash()), blk.Account, in.ReceivePortions, now)
	if err != nil {
		return EconomicResult{Kind: ResultRejectReceive, RejectReason: err.Error()}, nil
	}
	return EconomicResult{Kind: ResultReceive, Receiver: blk.Account, ReceivedToken: tok, TrstBalanceAfter: uint64(blk.TrstBalance)}, nil
}

func processSplit(blk *block.StateBlock, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp) (EconomicResult, error) {
	children, err := trstEngine.Split(walletaddr.TxHash(blk.Link), blk.Account, in.SplitReceivers, in.SplitAmounts, in.SplitTxIDs, now)
	if err != nil {
		return EconomicResult{Kind: ResultRejected, RejectReason: err.Error()}, nil
	}
	return EconomicResult{Kind: ResultSplit, SplitChildren: children}, nil
}

func processMerge(blk *block.StateBlock, trstEngine *trst.Engine, in Inputs, now walletaddr.Timestamp) (EconomicResult, error) {
	merged, err := trstEngine.Merge(in.MergeTokenIDs, blk.Account, walletaddr.TxHash(blk.Hash()), now)
	if err != nil {
		return EconomicResult{Kind: ResultRejected, RejectReason: err.Error()}, nil
	}
	return EconomicResult{Kind: ResultMerge, MergedToken: merged}, nil
}
