package blocks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/walletaddr"
)

func TestToViewRendersBlockFields(t *testing.T) {
	var alice walletaddr.WalletAddress
	alice[0] = 1
	blk := &block.StateBlock{Kind: block.KindOpen, Account: alice, Timestamp: 5}

	view := toView(blk)
	assert.Equal(t, "open", view.Kind)
	assert.Equal(t, alice.String(), view.Account)
}

func TestHandleBlockInfoNotFound(t *testing.T) {
	frontier := ledger.NewDagFrontier()
	router := mux.NewRouter()
	New(frontier).Mount(router, "/blocks")

	req := httptest.NewRequest(http.MethodGet, "/blocks/"+string(make([]byte, 64)), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code) // null bytes aren't valid hex
}

func TestHandleBlocksInfoRejectsOversizedBatch(t *testing.T) {
	frontier := ledger.NewDagFrontier()
	router := mux.NewRouter()
	New(frontier).Mount(router, "/blocks")

	hashes := make([]string, maxBatchSize+1)
	for i := range hashes {
		hashes[i] = "00"
	}
	body, err := json.Marshal(blocksInfoRequest{Hashes: hashes})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/blocks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
