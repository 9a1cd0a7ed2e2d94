// Package accounts exposes the account_info, account_balance,
// account_pending and account_representative read-only RPC handlers.
package accounts

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/utils"
	"github.com/burstubi/node/brn"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/store"
	"github.com/burstubi/node/trst"
	"github.com/burstubi/node/walletaddr"
)

// Accounts serves read-only account queries.
type Accounts struct {
	frontier *ledger.DagFrontier
	trst     *trst.Engine
	brn      *brn.Engine
	store    *store.Store
}

// New wires an Accounts handler over the given collaborators.
func New(frontier *ledger.DagFrontier, trstEngine *trst.Engine, brnEngine *brn.Engine, st *store.Store) *Accounts {
	return &Accounts{frontier: frontier, trst: trstEngine, brn: brnEngine, store: st}
}

func (a *Accounts) parseAccount(req *http.Request) (walletaddr.WalletAddress, error) {
	return walletaddr.ParseWalletAddress(mux.Vars(req)["address"])
}

type accountInfoView struct {
	Head               string `json:"head"`
	Representative     string `json:"representative"`
	BlockCount         uint64 `json:"block_count"`
	BrnBalance         uint64 `json:"brn_balance"`
	TrstBalance        uint64 `json:"trst_balance"`
	ConfirmationHeight uint64 `json:"confirmation_height"`
}

func (a *Accounts) handleAccountInfo(w http.ResponseWriter, req *http.Request) error {
	addr, err := a.parseAccount(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	info, ok := a.frontier.Account(addr)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, accountInfoView{
		Head:               info.Head.String(),
		Representative:     info.Representative.String(),
		BlockCount:         info.BlockCount,
		BrnBalance:         info.BrnBalance,
		TrstBalance:        info.TrstBalance,
		ConfirmationHeight: info.ConfirmationHeight,
	})
}

type balanceView struct {
	BrnBalance       uint64 `json:"brn_balance"`
	TrstTransferable uint64 `json:"trst_transferable"`
}

func (a *Accounts) handleAccountBalance(w http.ResponseWriter, req *http.Request) error {
	addr, err := a.parseAccount(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := walletaddr.Now()
	brnBalance, err := a.brn.Balance(addr, now)
	if err != nil {
		brnBalance = 0
	}
	return utils.WriteJSON(w, balanceView{
		BrnBalance:       brnBalance,
		TrstTransferable: a.trst.TransferableBalance(addr, now),
	})
}

type pendingView struct {
	Source    string `json:"source"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

func (a *Accounts) handleAccountPending(w http.ResponseWriter, req *http.Request) error {
	addr, err := a.parseAccount(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	entries, err := a.store.PendingForAccount(addr)
	if err != nil {
		return err
	}
	out := make([]pendingView, len(entries))
	for i, e := range entries {
		out[i] = pendingView{Source: e.Source.String(), Amount: e.Amount, Timestamp: int64(e.Timestamp)}
	}
	return utils.WriteJSON(w, out)
}

func (a *Accounts) handleAccountRepresentative(w http.ResponseWriter, req *http.Request) error {
	addr, err := a.parseAccount(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	info, ok := a.frontier.Account(addr)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, utils.M{"representative": info.Representative.String()})
}

// handleAccountHistory walks Previous pointers from the account's head,
// following the frontier's own block index rather than re-querying the
// durable store (the frontier already holds every accepted block).
func (a *Accounts) handleAccountHistory(w http.ResponseWriter, req *http.Request) error {
	addr, err := a.parseAccount(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	info, ok := a.frontier.Account(addr)
	if !ok {
		return utils.WriteJSON(w, []interface{}{})
	}
	var history []interface{}
	cursor := info.Head
	for !cursor.IsZero() {
		blk, ok := a.frontier.Block(cursor)
		if !ok {
			break
		}
		history = append(history, cursor.String())
		cursor = blk.Previous
	}
	return utils.WriteJSON(w, history)
}

// Mount registers account_* handlers under pathPrefix.
func (a *Accounts) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{address}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(a.handleAccountInfo))
	sub.Path("/{address}/balance").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(a.handleAccountBalance))
	sub.Path("/{address}/pending").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(a.handleAccountPending))
	sub.Path("/{address}/representative").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(a.handleAccountRepresentative))
	sub.Path("/{address}/history").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(a.handleAccountHistory))
}
