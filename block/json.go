package block

import (
	"encoding/hex"
	"encoding/json"

	"github.com/burstubi/node/walletaddr"
)

// jsonBlock is the RPC-ingress wire shape for a StateBlock; readers
// accept this JSON form as an alternative to the binary encoding.
type jsonBlock struct {
	Kind           string `json:"kind"`
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	BrnBalance     uint64 `json:"brn_balance"`
	TrstBalance    uint64 `json:"trst_balance"`
	Link           string `json:"link"`
	Origin         string `json:"origin"`
	Timestamp      int64  `json:"timestamp"`
	Signature      string `json:"signature"`
	Work           uint64 `json:"work"`
}

var kindNames = map[Kind]string{
	KindOpen:               "open",
	KindSend:                "send",
	KindReceive:             "receive",
	KindBurn:                "burn",
	KindSplit:               "split",
	KindMerge:               "merge",
	KindRepChange:           "rep_change",
	KindEndorse:             "endorse",
	KindChallenge:           "challenge",
	KindGovernanceProposal:  "governance_proposal",
	KindGovernanceVote:      "governance_vote",
	KindVerificationVote:    "verification_vote",
}

var namesToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

// MarshalJSON implements json.Marshaler for RPC responses.
func (b *StateBlock) MarshalJSON() ([]byte, error) {
	jb := jsonBlock{
		Kind:           kindNames[b.Kind],
		Account:        b.Account.String(),
		Previous:       hex.EncodeToString(b.Previous[:]),
		Representative: b.Representative.String(),
		BrnBalance:     b.BrnBalance,
		TrstBalance:    b.TrstBalance,
		Link:           hex.EncodeToString(b.Link[:]),
		Origin:         hex.EncodeToString(b.Origin[:]),
		Timestamp:      int64(b.Timestamp),
		Signature:      hex.EncodeToString(b.Signature),
		Work:           b.Work,
	}
	return json.Marshal(jb)
}

// UnmarshalJSON implements json.Unmarshaler for RPC ingress.
func (b *StateBlock) UnmarshalJSON(data []byte) error {
	var jb jsonBlock
	if err := json.Unmarshal(data, &jb); err != nil {
		return err
	}

	kind, ok := namesToKind[jb.Kind]
	if !ok {
		return &json.UnsupportedValueError{Str: "unknown block kind: " + jb.Kind}
	}
	b.Kind = kind

	acct, err := walletaddr.ParseWalletAddress(jb.Account)
	if err != nil {
		return err
	}
	b.Account = acct

	if b.Representative, err = walletaddr.ParseWalletAddress(jb.Representative); err != nil {
		return err
	}

	if err := decodeHash32(jb.Previous, b.Previous[:]); err != nil {
		return err
	}
	if err := decodeHash32(jb.Link, b.Link[:]); err != nil {
		return err
	}
	if err := decodeHash32(jb.Origin, b.Origin[:]); err != nil {
		return err
	}

	b.BrnBalance = jb.BrnBalance
	b.TrstBalance = jb.TrstBalance
	b.Timestamp = walletaddr.Timestamp(jb.Timestamp)
	b.Work = jb.Work

	if jb.Signature != "" {
		sig, err := hex.DecodeString(jb.Signature)
		if err != nil {
			return err
		}
		b.Signature = sig
	}

	b.hash = walletaddr.BlockHash(walletaddr.HashBytes(b.Encode()))
	return nil
}

func decodeHash32(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return &json.UnsupportedValueError{Str: "wrong hash length"}
	}
	copy(dst, raw)
	return nil
}
