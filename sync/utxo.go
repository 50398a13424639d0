package sync

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/wizardswallet/btcnode/chain"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/pump"
	"github.com/wizardswallet/btcnode/utxoset"
)

// syncUtxoSet implements §4.C.2: rewind any stale suffix, then build
// forward from the UTXO set's last committed tip in batches of
// UtxoSyncNBlocks, finishing with the block-body pruning pass. It
// returns retry=true on the sole retryable failure (a bad batch),
// signalling the caller to re-enter syncBlockchain (§7, the one
// retry edge).
func syncUtxoSet(st *idle.State) (retry bool, err error) {
	var lastHash chainhash.Hash
	st.WithUtxoRead(func(u *utxoset.Set) { lastHash = u.LastHash() })

	var stale []*chain.Node
	st.WithChainRead(func(bc *chain.Blockchain) { stale = bc.RevStaleIter(lastHash) })
	for _, n := range stale {
		if n.Block == nil {
			logger.Warn("stale block has no body, cannot rewind", "hash", n.Hash)
			continue
		}
		ok := true
		st.WithUtxoWrite(func(u *utxoset.Set) { ok = u.Rewind(n.Block) })
		if !ok {
			logger.Warn("rewind failed during stale suffix walk", "hash", n.Hash)
		}
	}

	for {
		st.WithUtxoRead(func(u *utxoset.Set) { lastHash = u.LastHash() })
		var pending []*chain.Node
		st.WithChainRead(func(bc *chain.Blockchain) { pending = bc.Iter(lastHash) })
		if len(pending) == 0 {
			break
		}
		if len(pending) > UtxoSyncNBlocks {
			pending = pending[:UtxoSyncNBlocks]
		}

		ok, err := applyUtxoBatch(st, pending)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}

	pruneBlockBodies(st)
	return false, nil
}

// applyUtxoBatch requests one inventory batch's worth of blocks and
// applies them to the UTXO set in request order (§4.C.2's ordering
// requirement — batched replies are reapplied in request order, not
// receipt order). Each applied block is also attached to the chain as
// its body, so the pruning pass does not request it a second time.
func applyUtxoBatch(st *idle.State, pending []*chain.Node) (bool, error) {
	inv := wire.NewMsgGetData()
	for _, n := range pending {
		hash := n.Hash
		inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash))
	}
	if err := st.Socket.SendMessage(inv); err != nil {
		logger.Warn("failed to send getdata during utxo sync", "err", err)
	}

	received := make(map[chainhash.Hash]*wire.MsgBlock, len(pending))
	notFound := make(map[chainhash.Hash]bool, len(pending))
	for i := 0; i < len(pending); i++ {
		result, err := pump.Next(st.Inbox, st.Socket, map[string]pump.Arm{
			wire.CmdBlock: func(msg wire.Message) (interface{}, bool) {
				b := msg.(*wire.MsgBlock)
				return b, true
			},
			wire.CmdNotFound: func(msg wire.Message) (interface{}, bool) {
				return msg.(*wire.MsgNotFound), true
			},
		})
		if err != nil {
			return false, err
		}
		switch m := result.(type) {
		case *wire.MsgBlock:
			received[m.Header.BlockHash()] = m
		case *wire.MsgNotFound:
			for _, inv := range m.InvList {
				notFound[inv.Hash] = true
			}
		}
	}

	ok := true
	for _, n := range pending {
		if notFound[n.Hash] {
			ok = false
			continue
		}
		block, found := received[n.Hash]
		if !found {
			ok = false
			continue
		}
		applied := false
		st.WithUtxoWrite(func(u *utxoset.Set) { applied = u.Update(block) })
		if !applied {
			ok = false
			continue
		}
		st.WithChainWrite(func(bc *chain.Blockchain) {
			if err := bc.AddTxdata(block); err != nil {
				logger.Warn("failed to attach body received during utxo sync", "err", err)
			}
		})
	}
	return ok, nil
}

// pruneBlockBodies implements §3's body-pruning rule and §4.C.4's
// fetch/drop pass: the first NFullBlocks entries from the tip gain
// bodies, everything beyond that window loses them.
func pruneBlockBodies(st *idle.State) {
	var tip chainhash.Hash
	st.WithChainRead(func(bc *chain.Blockchain) { tip = bc.BestTipHash() })

	var nodes []*chain.Node
	st.WithChainRead(func(bc *chain.Blockchain) { nodes = bc.RevIter(tip) })

	var toFetch []chainhash.Hash
	for i, n := range nodes {
		if i < NFullBlocks {
			if !n.HasTxData {
				toFetch = append(toFetch, n.Hash)
			}
			continue
		}
		if n.HasTxData {
			st.WithChainWrite(func(bc *chain.Blockchain) {
				if err := bc.RemoveTxdata(n.Hash); err != nil {
					logger.Warn("failed to drop stale block body", "hash", n.Hash, "err", err)
				}
			})
		}
	}

	if len(toFetch) == 0 {
		return
	}

	inv := wire.NewMsgGetData()
	for _, hash := range toFetch {
		hash := hash
		inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash))
	}
	if err := st.Socket.SendMessage(inv); err != nil {
		logger.Warn("failed to send getdata for body pruning pass", "err", err)
		return
	}

	for i := 0; i < len(toFetch); i++ {
		result, err := pump.Next(st.Inbox, st.Socket, map[string]pump.Arm{
			wire.CmdBlock: func(msg wire.Message) (interface{}, bool) { return msg.(*wire.MsgBlock), true },
			wire.CmdNotFound: func(msg wire.Message) (interface{}, bool) {
				return msg.(*wire.MsgNotFound), true
			},
		})
		if err != nil {
			logger.Warn("body pruning pass aborted, reorg depth degraded", "err", err)
			return
		}
		block, ok := result.(*wire.MsgBlock)
		if !ok {
			continue
		}
		st.WithChainWrite(func(bc *chain.Blockchain) {
			if err := bc.AddTxdata(block); err != nil {
				logger.Warn("failed to attach fetched body", "err", err)
			}
		})
	}
}
