// Package blocks exposes the block_info / blocks_info RPC handlers: a
// plain hash lookup against the frontier, since the block lattice has no
// single canonical chain.
package blocks

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/utils"
	"github.com/burstubi/node/block"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/walletaddr"
)

// maxBatchSize bounds blocks_info to at most 1000 hashes per request.
const maxBatchSize = 1000

// Blocks serves read-only block lookups against the frontier.
type Blocks struct {
	frontier *ledger.DagFrontier
}

// New wires a Blocks handler over frontier.
func New(frontier *ledger.DagFrontier) *Blocks {
	return &Blocks{frontier: frontier}
}

type blockView struct {
	Hash           string `json:"hash"`
	Kind           string `json:"kind"`
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	BrnBalance     uint64 `json:"brn_balance"`
	TrstBalance    uint64 `json:"trst_balance"`
	Link           string `json:"link"`
	Timestamp      int64  `json:"timestamp"`
}

func toView(blk *block.StateBlock) blockView {
	return blockView{
		Hash:           blk.Hash().String(),
		Kind:           blk.Kind.String(),
		Account:        blk.Account.String(),
		Previous:       blk.Previous.String(),
		Representative: blk.Representative.String(),
		BrnBalance:     blk.BrnBalance,
		TrstBalance:    blk.TrstBalance,
		Link:           blk.Link.String(),
		Timestamp:      int64(blk.Timestamp),
	}
}

func parseHash(s string) (walletaddr.BlockHash, error) {
	var hash walletaddr.BlockHash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(hash) {
		return hash, errors.New("blocks: malformed hash")
	}
	copy(hash[:], raw)
	return hash, nil
}

func (b *Blocks) handleBlockInfo(w http.ResponseWriter, req *http.Request) error {
	hash, err := parseHash(mux.Vars(req)["hash"])
	if err != nil {
		return utils.BadRequest(err)
	}

	blk, ok := b.frontier.Block(hash)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, toView(blk))
}

type blocksInfoRequest struct {
	Hashes []string `json:"hashes"`
}

func (b *Blocks) handleBlocksInfo(w http.ResponseWriter, req *http.Request) error {
	var in blocksInfoRequest
	if err := utils.ParseJSON(req.Body, &in); err != nil {
		return utils.BadRequest(err)
	}
	if len(in.Hashes) > maxBatchSize {
		return utils.BadRequest(errTooManyHashes)
	}

	out := make([]interface{}, len(in.Hashes))
	for i, h := range in.Hashes {
		hash, err := parseHash(h)
		if err != nil {
			return utils.BadRequest(err)
		}
		if blk, ok := b.frontier.Block(hash); ok {
			out[i] = toView(blk)
		}
	}
	return utils.WriteJSON(w, out)
}

var errTooManyHashes = errors.New("blocks_info: batch exceeds 1000 hashes")

// Mount registers block_info/blocks_info under pathPrefix.
func (b *Blocks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{hash}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(b.handleBlockInfo))
	sub.Path("").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(b.handleBlocksInfo))
}
