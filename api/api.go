// Package api assembles the node's RPC surface by mounting each
// concern's subrouter onto a shared gorilla/mux router, CORS-wrapped via
// gorilla/handlers.
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/accounts"
	"github.com/burstubi/node/api/blocks"
	"github.com/burstubi/node/api/governance"
	"github.com/burstubi/node/api/process"
	"github.com/burstubi/node/api/representatives"
	"github.com/burstubi/node/api/verification"
	"github.com/burstubi/node/brn"
	govengine "github.com/burstubi/node/governance"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/store"
	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/trst"
	orchestrator "github.com/burstubi/node/verification"

	"github.com/burstubi/node/consensus/onlineweight"
	"github.com/burstubi/node/walletaddr"
)

// Deps bundles every collaborator the RPC surface reads from or writes
// through.
type Deps struct {
	Frontier     *ledger.DagFrontier
	Processor    *ledger.Processor
	Store        *store.Store
	Trst         *trst.Engine
	Brn          *brn.Engine
	Governance   *govengine.Engine
	Verification *orchestrator.Orchestrator
	OnlineWeight *onlineweight.Sampler
	OnlineReps   map[walletaddr.WalletAddress]bool
}

// New builds the root HTTP handler, CORS-enabled, with every RPC group
// mounted under its own path.
func New(deps Deps) http.Handler {
	router := mux.NewRouter()

	accounts.New(deps.Frontier, deps.Trst, deps.Brn, deps.Store).Mount(router, "/accounts")
	blocks.New(deps.Frontier).Mount(router, "/blocks")
	process.New(deps.Processor).Mount(router, "/process")
	governance.New(deps.Governance).Mount(router, "/governance/proposals")
	verification.New(deps.Verification).Mount(router, "/verification/status")
	representatives.New(deps.Frontier, deps.OnlineWeight, deps.OnlineReps).Mount(router, "/representatives")

	if h := telemetry.Handler(); h != nil {
		router.Path("/metrics").Methods(http.MethodGet).Handler(h)
	}

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(router)
}
