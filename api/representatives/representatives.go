// Package representatives exposes representatives and
// representatives_online.
package representatives

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/burstubi/node/api/utils"
	"github.com/burstubi/node/consensus/onlineweight"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/walletaddr"
)

// Representatives serves representative weight reads.
type Representatives struct {
	frontier *ledger.DagFrontier
	sampler  *onlineweight.Sampler
	online   map[walletaddr.WalletAddress]bool
}

// New wires a Representatives handler. online tracks which
// representatives have voted recently (caller-maintained, since
// liveness is a peer-layer concern out of this core's scope).
func New(frontier *ledger.DagFrontier, sampler *onlineweight.Sampler, online map[walletaddr.WalletAddress]bool) *Representatives {
	return &Representatives{frontier: frontier, sampler: sampler, online: online}
}

type repView struct {
	Address string `json:"address"`
	Weight  uint64 `json:"weight"`
	Online  bool   `json:"online"`
}

func (r *Representatives) list(onlineOnly bool) []repView {
	seen := make(map[walletaddr.WalletAddress]struct{})
	var out []repView
	for addr := range r.online {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		weight := r.frontier.RepWeight(addr)
		if weight == 0 {
			continue
		}
		isOnline := r.online[addr]
		if onlineOnly && !isOnline {
			continue
		}
		out = append(out, repView{Address: addr.String(), Weight: weight, Online: isOnline})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

func (r *Representatives) handleRepresentatives(w http.ResponseWriter, req *http.Request) error {
	return utils.WriteJSON(w, r.list(false))
}

func (r *Representatives) handleRepresentativesOnline(w http.ResponseWriter, req *http.Request) error {
	return utils.WriteJSON(w, r.list(true))
}

func (r *Representatives) handleOnlineWeight(w http.ResponseWriter, req *http.Request) error {
	return utils.WriteJSON(w, utils.M{"ema": r.sampler.EMA()})
}

// Mount registers representatives/representatives_online under
// pathPrefix.
func (r *Representatives) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(r.handleRepresentatives))
	sub.Path("/online").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(r.handleRepresentativesOnline))
	sub.Path("/online_weight").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(r.handleOnlineWeight))
}
