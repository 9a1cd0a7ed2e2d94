// Package verification exposes verification_status: a wallet's place in
// the endorsement/voting/challenge lifecycle.
package verification

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/utils"
	orchestrator "github.com/burstubi/node/verification"
	"github.com/burstubi/node/walletaddr"
)

// Verification serves verification_status reads.
type Verification struct {
	orch *orchestrator.Orchestrator
}

// New wires a Verification handler over the orchestrator.
func New(orch *orchestrator.Orchestrator) *Verification {
	return &Verification{orch: orch}
}

type statusView struct {
	Target            string   `json:"target"`
	Status            string   `json:"status"`
	EndorsementCount  uint64   `json:"endorsement_count"`
	SelectedVerifiers []string `json:"selected_verifiers"`
	RevoteCount       int      `json:"revote_count"`
	IsChallenge       bool     `json:"is_challenge"`
}

func (v *Verification) handleStatus(w http.ResponseWriter, req *http.Request) error {
	addr, err := walletaddr.ParseWalletAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(err)
	}
	c, ok := v.orch.Case(addr)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	verifiers := make([]string, len(c.SelectedVerifiers))
	for i, addr := range c.SelectedVerifiers {
		verifiers[i] = addr.String()
	}
	return utils.WriteJSON(w, statusView{
		Target:            c.Target.String(),
		Status:            c.Status.String(),
		EndorsementCount:  c.EndorsementCount,
		SelectedVerifiers: verifiers,
		RevoteCount:       c.RevoteCount,
		IsChallenge:       c.IsChallenge,
	})
}

func (v *Verification) handleMetrics(w http.ResponseWriter, req *http.Request) error {
	return utils.WriteJSON(w, v.orch.Metrics())
}

// Mount registers verification_status and an aggregate metrics read
// under pathPrefix.
func (v *Verification) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{address}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(v.handleStatus))
	sub.Path("").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(v.handleMetrics))
}
