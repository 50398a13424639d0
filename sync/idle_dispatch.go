package sync

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/wizardswallet/btcnode/chain"
	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/utxoset"
)

// saveToDisk implements §4.C's SaveToDisk phase: checkpoint both
// collaborators, logging (never aborting on) individual write failures.
func saveToDisk(st *idle.State, cfg *config.Config) {
	st.WithChainRead(func(bc *chain.Blockchain) {
		if err := bc.Serialize(cfg.ResolvePath(cfg.BlockchainFile)); err != nil {
			logger.Warn("failed to checkpoint blockchain", "err", err)
		}
	})
	st.WithUtxoRead(func(u *utxoset.Set) {
		if err := u.Serialize(cfg.ResolvePath(cfg.UtxoSetFile)); err != nil {
			logger.Warn("failed to checkpoint utxo set", "err", err)
		}
	})
}

// idleLoop implements §4.A/§4.D: block on the inbox, dispatch one
// message, loop, until ctx is cancelled or the inbox closes.
func idleLoop(ctx context.Context, st *idle.State) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-st.Inbox:
			if !ok {
				return ErrFatal
			}
			dispatchIdle(st, msg)
		}
	}
}

// dispatchIdle implements the table in §4.D exactly, one case per
// message command. All send failures are logged and swallowed — they
// must never bubble out of Idle.
func dispatchIdle(st *idle.State, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgVersion:
		send(st, wire.NewMsgVerAck())
	case *wire.MsgVerAck:
		// no-op
	case *wire.MsgAddr:
		// no-op (single-peer mode)
	case *wire.MsgBlock:
		st.Requested.Remove(m.Header.BlockHash())
		st.WithChainWrite(func(bc *chain.Blockchain) {
			if err := bc.AddBlock(m); err != nil {
				logger.Warn("failed to add block received in idle", "err", err)
			}
		})
	case *wire.MsgHeaders:
		logger.Info("received headers outside sync", "count", len(m.Headers))
	case *wire.MsgInv:
		getdata := wire.NewMsgGetData()
		for _, inv := range m.InvList {
			if st.Requested.Contains(inv.Hash) {
				continue
			}
			st.Requested.Add(inv.Hash, struct{}{})
			getdata.AddInvVect(inv)
		}
		if len(getdata.InvList) > 0 {
			send(st, getdata)
		}
	case *wire.MsgNotFound:
		for _, inv := range m.InvList {
			st.Requested.Remove(inv.Hash)
		}
	case *wire.MsgGetData, *wire.MsgGetBlocks, *wire.MsgGetHeaders:
		// no-op: this node does not serve
	case *wire.MsgPing:
		send(st, wire.NewMsgPong(m.Nonce))
	case *wire.MsgPong:
		// no-op
	default:
		logger.Info("discarding unhandled message in idle", "cmd", msg.Command())
	}
}

func send(st *idle.State, m wire.Message) {
	if err := st.Socket.SendMessage(m); err != nil {
		logger.Warn("failed to send message from idle dispatcher", "err", err)
	}
}
