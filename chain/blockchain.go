// Package chain implements the Blockchain collaborator named by §6: a
// header-first index over chainhash.Hash with a bounded suffix of full
// block bodies ("txdata"). It is deliberately narrow — only the
// operation set the sync core actually calls.
package chain

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleChain)

// ErrUnknownParent is returned by AddHeader when the header's parent is
// not yet indexed.
var ErrUnknownParent = errors.New("chain: unknown parent block")

// Node is one entry of the index: a header, its height, and (maybe) its
// full body, matching the {block.header, has_txdata, block} tuple of §6.
type Node struct {
	Header    wire.BlockHeader
	Hash      chainhash.Hash
	Height    int32
	HasTxData bool
	Block     *wire.MsgBlock // nil unless HasTxData
}

// Blockchain is an append-mostly header index with one best chain.
type Blockchain struct {
	mu       sync.RWMutex
	params   *chaincfg.Params
	nodes    map[chainhash.Hash]*Node
	byHeight map[int32]chainhash.Hash
	best     chainhash.Hash
}

// New builds a fresh chain seeded with the network's genesis block,
// matching Blockchain::new(network) of §6.
func New(params *chaincfg.Params) *Blockchain {
	bc := &Blockchain{
		params:   params,
		nodes:    make(map[chainhash.Hash]*Node),
		byHeight: make(map[int32]chainhash.Hash),
	}
	genesisHash := params.GenesisBlock.Header.BlockHash()
	bc.nodes[genesisHash] = &Node{
		Header:    params.GenesisBlock.Header,
		Hash:      genesisHash,
		Height:    0,
		HasTxData: true,
		Block:     params.GenesisBlock,
	}
	bc.byHeight[0] = genesisHash
	bc.best = genesisHash
	return bc
}

// GenesisHash returns the hash of height 0 on the best chain.
func (bc *Blockchain) GenesisHash() chainhash.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.byHeight[0]
}

// BestTipHash returns the current best chain tip.
func (bc *Blockchain) BestTipHash() chainhash.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.best
}

// LocatorHashes builds the classic exponentially-thinning locator from
// tip to genesis (GLOSSARY: Locator).
func (bc *Blockchain) LocatorHashes() []chainhash.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var locator []chainhash.Hash
	height := bc.nodes[bc.best].Height
	step := int32(1)
	for height >= 0 {
		locator = append(locator, bc.byHeight[height])
		if len(locator) >= 10 {
			step *= 2
		}
		height -= step
	}
	if locator[len(locator)-1] != bc.byHeight[0] {
		locator = append(locator, bc.byHeight[0])
	}
	return locator
}

// AddHeader validates that the header's parent is known, computes its
// height, indexes it, and — if it extends a chain longer than the
// current best — updates the best tip. A single malformed header must
// not abort sync (§7.2), so callers are expected to log and continue on
// error rather than abort.
func (bc *Blockchain) AddHeader(h *wire.BlockHeader) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := h.BlockHash()
	if _, ok := bc.nodes[hash]; ok {
		return nil // idempotent
	}
	parent, ok := bc.nodes[h.PrevBlock]
	if !ok {
		return errors.Wrapf(ErrUnknownParent, "header %s", hash)
	}
	node := &Node{Header: *h, Hash: hash, Height: parent.Height + 1}
	bc.nodes[hash] = node

	if node.Height > bc.nodes[bc.best].Height {
		bc.setBestLocked(hash)
	}
	return nil
}

// AddBlock indexes a full block, creating the header entry if it is not
// already present (the Idle dispatcher's `block` handler, §4.D, may
// receive bodies out of band with respect to header sync).
func (bc *Blockchain) AddBlock(b *wire.MsgBlock) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := b.Header.BlockHash()
	node, ok := bc.nodes[hash]
	if !ok {
		parent, ok := bc.nodes[b.Header.PrevBlock]
		if !ok {
			return errors.Wrapf(ErrUnknownParent, "block %s", hash)
		}
		node = &Node{Header: b.Header, Hash: hash, Height: parent.Height + 1}
		bc.nodes[hash] = node
	}
	node.HasTxData = true
	node.Block = b
	if node.Height > bc.nodes[bc.best].Height {
		bc.setBestLocked(hash)
	}
	return nil
}

// AddTxdata attaches a body to an already-indexed header, for the
// body-pruning window pass of §4.C.4.
func (bc *Blockchain) AddTxdata(b *wire.MsgBlock) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	hash := b.Header.BlockHash()
	node, ok := bc.nodes[hash]
	if !ok {
		return errors.Wrapf(ErrUnknownParent, "txdata for unknown block %s", hash)
	}
	node.HasTxData = true
	node.Block = b
	return nil
}

// RemoveTxdata drops a body outside the full-block retention window
// (invariant 3 of §3).
func (bc *Blockchain) RemoveTxdata(hash chainhash.Hash) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	node, ok := bc.nodes[hash]
	if !ok {
		return errors.Errorf("remove txdata: unknown block %s", hash)
	}
	node.HasTxData = false
	node.Block = nil
	return nil
}

// GetBlock returns the node for hash, if indexed.
func (bc *Blockchain) GetBlock(hash chainhash.Hash) (*Node, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	n, ok := bc.nodes[hash]
	return n, ok
}

// Iter returns the best-chain nodes strictly after fromHash, in
// ascending height order — forward application direction.
func (bc *Blockchain) Iter(fromHash chainhash.Hash) []*Node {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	start, ok := bc.nodes[fromHash]
	startHeight := int32(-1)
	if ok {
		startHeight = start.Height
	}
	var out []*Node
	for h := startHeight + 1; h <= bc.nodes[bc.best].Height; h++ {
		hash, ok := bc.byHeight[h]
		if !ok {
			break
		}
		out = append(out, bc.nodes[hash])
	}
	return out
}

// RevIter returns the best-chain nodes from fromHash down to genesis, in
// descending height order.
func (bc *Blockchain) RevIter(fromHash chainhash.Hash) []*Node {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	start, ok := bc.nodes[fromHash]
	if !ok {
		return nil
	}
	var out []*Node
	for h := start.Height; h >= 0; h-- {
		hash, ok := bc.byHeight[h]
		if !ok {
			break
		}
		out = append(out, bc.nodes[hash])
	}
	return out
}

// RevStaleIter returns the ancestors of fromHash (the UTXO set's
// previous committed tip) that are no longer on the current best chain,
// nearest-to-tip first — the blocks UtxoSet.Rewind must walk (GLOSSARY:
// Stale block).
func (bc *Blockchain) RevStaleIter(fromHash chainhash.Hash) []*Node {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	node, ok := bc.nodes[fromHash]
	if !ok || bc.byHeight[node.Height] == node.Hash {
		return nil
	}
	var out []*Node
	for node != nil {
		onBest := bc.byHeight[node.Height] == node.Hash
		if !onBest {
			out = append(out, node)
		} else if len(out) > 0 {
			// Reached the fork point: every further ancestor is common
			// to both chains, hence not stale.
			break
		}
		if node.Height == 0 {
			break
		}
		parent, ok := bc.nodes[node.Header.PrevBlock]
		if !ok {
			break
		}
		node = parent
	}
	return out
}

func (bc *Blockchain) setBestLocked(hash chainhash.Hash) {
	node := bc.nodes[hash]
	// Record every ancestor not yet indexed by height on the new path.
	for n := node; n != nil; {
		bc.byHeight[n.Height] = n.Hash
		if n.Height == 0 {
			break
		}
		parent, ok := bc.nodes[n.Header.PrevBlock]
		if !ok {
			break
		}
		n = parent
	}
	bc.best = hash
	logger.Info("best tip advanced", "hash", hash, "height", node.Height)
}
