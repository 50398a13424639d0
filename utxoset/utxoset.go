// Package utxoset implements the UtxoSet collaborator named by §6: the
// set of unspent transaction outputs as of a committed tip, with forward
// (Update) and reverse (Rewind) application.
package utxoset

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleUtxo)

// Set is the unspent-output map as of Set.lastHash.
type Set struct {
	mu       sync.RWMutex
	nFull    int
	outputs  map[wire.OutPoint]*wire.TxOut
	lastHash chainhash.Hash
}

// New builds an empty set committed against genesisHash, matching
// UtxoSet::new(network, n_full) of §6 (the original derives genesis
// from the network parameter; callers here pass it explicitly since
// this collaborator does not itself import chaincfg). Seeding lastHash
// at genesis rather than the zero hash means the forward pass's
// blockchain.iter(utxo_set.last_hash()) never re-offers the genesis
// block itself, matching the spec's ".skip(1)" of that same call.
func New(nFull int, genesisHash chainhash.Hash) *Set {
	return &Set{
		nFull:    nFull,
		outputs:  make(map[wire.OutPoint]*wire.TxOut),
		lastHash: genesisHash,
	}
}

// LastHash returns the tip this set is committed against.
func (s *Set) LastHash() chainhash.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHash
}

// NUtxos returns the number of unspent outputs currently tracked.
func (s *Set) NUtxos() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outputs)
}

// Lookup reports whether op is currently unspent, and its output if so.
// Used by the RPC dispatcher's raw_validate/raw_trace (§4.E).
func (s *Set) Lookup(op wire.OutPoint) (*wire.TxOut, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[op]
	return out, ok
}

// Update applies block forward: every input it spends is removed, every
// output it creates is added, and lastHash advances to the block's hash.
// Returns false (a soft failure per §6, not a Go error) if any input
// being spent is not in the set — an inconsistent batch per §4.C.2.
func (s *Set) Update(block *wire.MsgBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for _, tx := range block.Transactions {
		for _, txin := range tx.TxIn {
			if isCoinbaseInput(txin) {
				continue
			}
			if _, found := s.outputs[txin.PreviousOutPoint]; !found {
				logger.Warn("spending unknown output", "outpoint", txin.PreviousOutPoint)
				ok = false
				continue
			}
			delete(s.outputs, txin.PreviousOutPoint)
		}
	}
	if !ok {
		return false
	}
	for _, tx := range block.Transactions {
		txHash := tx.TxHash()
		for i, txout := range tx.TxOut {
			s.outputs[wire.OutPoint{Hash: txHash, Index: uint32(i)}] = txout
		}
	}
	s.lastHash = block.Header.BlockHash()
	return true
}

// Rewind reverses block's effect: outputs it created are removed and
// lastHash regresses to the block's parent. Inputs it spent cannot be
// resurrected without historical data this narrow collaborator does not
// retain, matching §9's open question on rewind's under-specified
// escalation policy — a failed rewind is logged by the caller, not
// retried here.
func (s *Set) Rewind(block *wire.MsgBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range block.Transactions {
		txHash := tx.TxHash()
		for i := range tx.TxOut {
			delete(s.outputs, wire.OutPoint{Hash: txHash, Index: uint32(i)})
		}
	}
	s.lastHash = block.Header.PrevBlock
	return true
}

func isCoinbaseInput(txin *wire.TxIn) bool {
	return txin.PreviousOutPoint.Index == wire.MaxPrevOutIndex &&
		txin.PreviousOutPoint.Hash == (chainhash.Hash{})
}
