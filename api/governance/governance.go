// Package governance exposes governance_proposal_info and governance_vote.
package governance

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/burstubi/node/api/utils"
	govengine "github.com/burstubi/node/governance"
	"github.com/burstubi/node/walletaddr"
)

var (
	errInvalidChoice = errors.New("governance: choice must be yea/nay/abstain")
	errUnknownPhase  = errors.New("governance: phase must be exploration/promotion")
)

// Governance serves governance proposal reads and vote submission.
type Governance struct {
	engine *govengine.Engine
}

// New wires a Governance handler over the governance engine.
func New(engine *govengine.Engine) *Governance {
	return &Governance{engine: engine}
}

type proposalView struct {
	ID               string `json:"id"`
	Proposer         string `json:"proposer"`
	Phase            string `json:"phase"`
	Content          string `json:"content"`
	EndorsementCount uint64 `json:"endorsement_count"`
	Round            int    `json:"round"`
}

func toProposalView(p govengine.Proposal) proposalView {
	return proposalView{
		ID:               p.ID,
		Proposer:         p.Proposer.String(),
		Phase:            p.Phase.String(),
		Content:          p.Content.String(),
		EndorsementCount: p.EndorsementCount,
		Round:            p.Round,
	}
}

func (g *Governance) handleProposalInfo(w http.ResponseWriter, req *http.Request) error {
	id := mux.Vars(req)["id"]
	p, ok := g.engine.Proposal(id)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, toProposalView(p))
}

type voteRequest struct {
	Voter  string `json:"voter"`
	Choice string `json:"choice"`
	Phase  string `json:"phase"`
}

func parseChoice(s string) (govengine.VoteChoice, error) {
	switch s {
	case "yea":
		return govengine.VoteYea, nil
	case "nay":
		return govengine.VoteNay, nil
	case "abstain":
		return govengine.VoteAbstain, nil
	default:
		return 0, utils.BadRequest(errInvalidChoice)
	}
}

func (g *Governance) handleVote(w http.ResponseWriter, req *http.Request) error {
	id := mux.Vars(req)["id"]
	var in voteRequest
	if err := utils.ParseJSON(req.Body, &in); err != nil {
		return utils.BadRequest(err)
	}
	voter, err := walletaddr.ParseWalletAddress(in.Voter)
	if err != nil {
		return utils.BadRequest(err)
	}
	choice, err := parseChoice(in.Choice)
	if err != nil {
		return err
	}

	switch in.Phase {
	case "exploration":
		err = g.engine.VoteExploration(id, voter, choice)
	case "promotion":
		err = g.engine.VotePromotion(id, voter, choice)
	default:
		return utils.BadRequest(errUnknownPhase)
	}
	if err != nil {
		return utils.BadRequest(err)
	}
	return utils.WriteJSON(w, utils.M{"accepted": true})
}

// Mount registers governance_proposal_info/governance_vote under
// pathPrefix; governance_proposals (the full list) is intentionally left
// to the node's own storage iteration, since the engine keeps only the
// in-memory working set.
func (g *Governance) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{id}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(g.handleProposalInfo))
	sub.Path("/{id}/vote").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(g.handleVote))
}
