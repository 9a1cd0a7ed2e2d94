// Package process exposes the `process` RPC endpoint: submit a signed,
// PoW-complete StateBlock and get back {hash, accepted, detail}.
package process

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/utils"
	"github.com/burstubi/node/block"
	"github.com/burstubi/node/bridge"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/walletaddr"
)

// Process serves the block submission endpoint.
type Process struct {
	processor *ledger.Processor
}

// New wires a Process handler over a ledger.Processor.
func New(processor *ledger.Processor) *Process {
	return &Process{processor: processor}
}

type processResponse struct {
	Hash     string `json:"hash"`
	Accepted bool   `json:"accepted"`
	Detail   string `json:"detail"`
}

func (p *Process) handleProcess(w http.ResponseWriter, req *http.Request) error {
	var blk block.StateBlock
	if err := utils.ParseJSON(req.Body, &blk); err != nil {
		return utils.BadRequest(err)
	}

	out, err := p.processor.Process(&blk, bridge.Inputs{}, walletaddr.Now())
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, processResponse{
		Hash:     out.Hash.String(),
		Accepted: out.Accepted,
		Detail:   string(out.Detail),
	})
}

// Mount registers the process endpoint under pathPrefix.
func (p *Process) Mount(root *mux.Router, pathPrefix string) {
	root.Path(pathPrefix).Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(p.handleProcess))
}
