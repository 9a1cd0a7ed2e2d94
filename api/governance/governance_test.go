package governance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	govengine "github.com/burstubi/node/governance"
	"github.com/burstubi/node/walletaddr"
)

func waddr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func defaultParams() govengine.Params {
	return govengine.Params{
		ProposalDurationSecs:       1000,
		ExplorationDurationSecs:    1000,
		CooldownDurationSecs:       500,
		PromotionDurationSecs:      1000,
		PropagationBufferSecs:      100,
		EndorsementThreshold:       1,
		ProposalCostBrn:            10,
		MaxRounds:                  3,
		BaseQuorumBps:              5000,
		GovernanceSupermajorityBps: 8000,
		ConstiSupermajorityBps:     9000,
		EmergencySupermajorityBps:  9500,
	}
}

func TestHandleProposalInfoRendersContentAsString(t *testing.T) {
	engine := govengine.NewEngine(defaultParams())
	proposer := waddr(1)
	p, err := engine.Submit(proposer, true, 100, govengine.ContentParameterChange, "MaxElectionAgeSecs", 0, 0)
	require.NoError(t, err)

	router := mux.NewRouter()
	New(engine).Mount(router, "/governance/proposals")

	req := httptest.NewRequest(http.MethodGet, "/governance/proposals/"+p.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var view proposalView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "parameter_change", view.Content)
	assert.Equal(t, "proposal", view.Phase)
}

func TestHandleVoteRejectsUnknownChoice(t *testing.T) {
	engine := govengine.NewEngine(defaultParams())
	proposer := waddr(1)
	p, err := engine.Submit(proposer, true, 100, govengine.ContentParameterChange, "MaxElectionAgeSecs", 0, 0)
	require.NoError(t, err)

	router := mux.NewRouter()
	New(engine).Mount(router, "/governance/proposals")

	body, err := json.Marshal(voteRequest{Voter: waddr(2).String(), Choice: "maybe", Phase: "exploration"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/governance/proposals/"+p.ID+"/vote", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
