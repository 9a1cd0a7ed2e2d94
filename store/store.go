// Package store is the persistence facade over blocks, the account
// frontier, pending entries, TRST portfolios, the merger graph,
// governance proposals, verification state and meta keys. Writes go
// through a scoped batch with a commit-or-abort contract; a bounded LRU
// of recently touched blocks sits in front of the durable handle.
package store

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/walletaddr"
)

// blockCacheSize bounds the in-memory blake2b-hash -> StateBlock cache
// sitting in front of the durable handle; blocks are immutable once
// written so no invalidation is needed beyond eviction.
const blockCacheSize = 1024

var (
	writeOpt = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
	scanOpt  = opt.ReadOptions{DontFillCache: true}
)

// Key space prefixes, one byte each, keeping every persisted collection
// in its own iteration range within the single leveldb instance.
const (
	prefixBlock        byte = 'b'
	prefixFrontier     byte = 'f'
	prefixAccountInfo  byte = 'a'
	prefixPending      byte = 'p'
	prefixPortfolio    byte = 'w'
	prefixMergeNode    byte = 'm'
	prefixProposal     byte = 'g'
	prefixVerification byte = 'v'
	prefixMeta         byte = 'k'
)

// PendingInfo is a pending Send awaiting a matching Receive, keyed by
// (destination, source_hash).
type PendingInfo struct {
	Source     walletaddr.BlockHash `json:"source"`
	Amount     uint64               `json:"amount"`
	Timestamp  walletaddr.Timestamp `json:"timestamp"`
	Provenance json.RawMessage      `json:"provenance"`
}

// Store wraps a goleveldb handle with typed accessors for each
// persisted collection.
type Store struct {
	db         *leveldb.DB
	blockCache *lru.Cache
}

// Open opens (or creates) a leveldb database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	cache, _ := lru.New(blockCacheSize)
	return &Store{db: db, blockCache: cache}, nil
}

// OpenMem opens an in-memory store, for tests and the solo devnet.
func OpenMem() *Store {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		panic(err)
	}
	cache, _ := lru.New(blockCacheSize)
	return &Store{db: db, blockCache: cache}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(prefix byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Block looks up a previously-committed StateBlock by hash.
func (s *Store) Block(hash walletaddr.BlockHash) (*block.StateBlock, error) {
	if cached, ok := s.blockCache.Get(hash); ok {
		return cached.(*block.StateBlock), nil
	}
	raw, err := s.db.Get(key(prefixBlock, hash[:]), &readOpt)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	blk, err := block.Decode(raw)
	if err != nil {
		return nil, err
	}
	s.blockCache.Add(hash, blk)
	return blk, nil
}

// Head returns the account's frontier head, or the zero hash.
func (s *Store) Head(account walletaddr.WalletAddress) (walletaddr.BlockHash, error) {
	raw, err := s.db.Get(key(prefixFrontier, account[:]), &readOpt)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return walletaddr.ZeroBlockHash, nil
		}
		return walletaddr.ZeroBlockHash, err
	}
	var h walletaddr.BlockHash
	copy(h[:], raw)
	return h, nil
}

// Pending looks up a pending entry by destination and source hash.
func (s *Store) Pending(dest walletaddr.WalletAddress, source walletaddr.BlockHash) (*PendingInfo, error) {
	raw, err := s.db.Get(key(prefixPending, dest[:], source[:]), &readOpt)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var info PendingInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PendingForAccount iterates every pending entry addressed to dest.
func (s *Store) PendingForAccount(dest walletaddr.WalletAddress) ([]PendingInfo, error) {
	prefix := key(prefixPending, dest[:])
	iter := s.db.NewIterator(util.BytesPrefix(prefix), &scanOpt)
	defer iter.Release()

	var out []PendingInfo
	for iter.Next() {
		var info PendingInfo
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, iter.Error()
}

// GetJSON reads a JSON-encoded value under prefix/id into v.
func (s *Store) GetJSON(prefix byte, id string, v interface{}) (bool, error) {
	raw, err := s.db.Get(key(prefix, []byte(id)), &readOpt)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(raw, v)
}

// Meta reads a raw meta value (schema version, verified count, rate
// history) by key.
func (s *Store) Meta(k string) ([]byte, error) {
	raw, err := s.db.Get(key(prefixMeta, []byte(k)), &readOpt)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

// WriteBatch is a scoped write acquisition over the store: Commit
// consumes and flushes it; dropping it without calling Commit (or
// Abort) leaves nothing written. Callers are expected to
// `defer wb.Abort()` immediately after NewWriteBatch and then call
// Commit on the success path, making Abort a no-op once Commit has
// already run.
type WriteBatch struct {
	store        *Store
	batch        *leveldb.Batch
	stagedBlocks []*block.StateBlock
	committed    bool
	aborted      bool
}

// NewWriteBatch opens a scoped write batch. At most one write batch is
// expected to be outstanding at a time; enforcing that is the caller's
// responsibility (e.g. a single block-processing goroutine per
// account).
func (s *Store) NewWriteBatch() *WriteBatch {
	return &WriteBatch{store: s, batch: new(leveldb.Batch)}
}

// PutBlock stages a block write. The block is warmed into the read
// cache only once Commit succeeds, so an aborted batch leaves no trace.
func (wb *WriteBatch) PutBlock(blk *block.StateBlock) {
	wb.batch.Put(key(prefixBlock, blk.Hash().Bytes()), blk.Encode())
	wb.stagedBlocks = append(wb.stagedBlocks, blk)
}

// PutHead stages a frontier update.
func (wb *WriteBatch) PutHead(account walletaddr.WalletAddress, head walletaddr.BlockHash) {
	wb.batch.Put(key(prefixFrontier, account[:]), head[:])
}

// PutAccountInfoJSON stages an account-info update, JSON-encoded.
func (wb *WriteBatch) PutAccountInfoJSON(account walletaddr.WalletAddress, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wb.batch.Put(key(prefixAccountInfo, account[:]), raw)
	return nil
}

// PutPending stages a pending-entry write.
func (wb *WriteBatch) PutPending(dest walletaddr.WalletAddress, source walletaddr.BlockHash, info PendingInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	wb.batch.Put(key(prefixPending, dest[:], source[:]), raw)
	return nil
}

// DeletePending stages removal of a claimed pending entry.
func (wb *WriteBatch) DeletePending(dest walletaddr.WalletAddress, source walletaddr.BlockHash) {
	wb.batch.Delete(key(prefixPending, dest[:], source[:]))
}

// PutJSON stages a JSON-encoded value under prefix/id (portfolios,
// merger-graph nodes, proposals, verification cases).
func (wb *WriteBatch) PutJSON(prefix byte, id string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wb.batch.Put(key(prefix, []byte(id)), raw)
	return nil
}

// PutMeta stages a raw meta value.
func (wb *WriteBatch) PutMeta(k string, v []byte) {
	wb.batch.Put(key(prefixMeta, []byte(k)), v)
}

// Collection prefixes, re-exported for callers composing PutJSON/GetJSON
// keys for the higher-level engines (trst, governance, verification).
const (
	PortfolioPrefix    = prefixPortfolio
	MergeNodePrefix    = prefixMergeNode
	ProposalPrefix     = prefixProposal
	VerificationPrefix = prefixVerification
)

// Commit flushes the batch to the store in one fsync'd write. A
// WriteBatch must not be reused after Commit.
func (wb *WriteBatch) Commit() error {
	if wb.committed || wb.aborted {
		return errors.New("store: write batch already closed")
	}
	if err := wb.store.db.Write(wb.batch, &writeOpt); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	wb.committed = true
	for _, blk := range wb.stagedBlocks {
		wb.store.blockCache.Add(blk.Hash(), blk)
	}
	return nil
}

// Abort discards the batch. Safe to call after Commit (no-op).
func (wb *WriteBatch) Abort() {
	if wb.committed {
		return
	}
	wb.aborted = true
	wb.batch.Reset()
}
