package verification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orchestrator "github.com/burstubi/node/verification"
	"github.com/burstubi/node/walletaddr"
)

func waddr(b byte) walletaddr.WalletAddress {
	var a walletaddr.WalletAddress
	a[0] = b
	return a
}

func defaultParams() orchestrator.Params {
	return orchestrator.Params{
		NumVerifiers:               2,
		VerifierStakeAmount:        100,
		VerificationThresholdBps:   5000,
		MaxRevotes:                 2,
		NeitherRatioThresholdBps:   5000,
		MinAssignmentsForPenalty:   3,
		NeitherPenaltyCooldownSecs: 1000,
		EndorsementThreshold:       1,
		ChallengeStakeAmount:       50,
		ChallengeTimeoutSecs:       500,
		EndorserRewardBps:          1000,
		BootstrapExitThreshold:     1,
	}
}

func TestHandleStatusUnknownTargetReturnsNull(t *testing.T) {
	orch := orchestrator.NewOrchestrator(defaultParams(), waddr(0))
	router := mux.NewRouter()
	New(orch).Mount(router, "/verification/status")

	req := httptest.NewRequest(http.MethodGet, "/verification/status/"+waddr(9).String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestHandleMetricsReflectsGenesisVerification(t *testing.T) {
	params := defaultParams()
	orch := orchestrator.NewOrchestrator(params, waddr(0))
	require.NoError(t, orch.GenesisVerify(waddr(0), waddr(1)))

	router := mux.NewRouter()
	New(orch).Mount(router, "/verification/status")

	req := httptest.NewRequest(http.MethodGet, "/verification/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var m orchestrator.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, uint64(1), m.VerifiedCount)
}
