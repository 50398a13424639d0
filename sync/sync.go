// Package sync drives the phase state machine of §4.C: Init ->
// LoadFromDisk -> SyncBlockchain -> SyncUtxoSet -> SaveToDisk -> Idle,
// plus the Idle dispatcher of §4.D. It is the largest component of the
// node, grounded on the teacher's own worker-loop shape
// (blockchain/task.go's dedicated goroutine driving a phase-by-phase
// pipeline) generalized from block-import tasks to this sync core's
// phases.
package sync

import (
	"context"
	"net"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/chain"
	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/internal/applog"
	"github.com/wizardswallet/btcnode/pump"
	"github.com/wizardswallet/btcnode/utxoset"
	"github.com/wizardswallet/btcnode/walletstub"
)

var logger = applog.NewModuleLogger(applog.ModuleSync)

const (
	// NFullBlocks is the depth from the best tip within which block
	// bodies are kept on disk (§3, the has_txdata window).
	NFullBlocks = 288
	// UtxoSyncNBlocks is the inventory batch size used while building
	// the UTXO set forward from its last committed tip (§4.C.2).
	UtxoSyncNBlocks = 64
)

// ErrFatal wraps an error that must abort the whole run (Init's I/O
// failure, or the inbox closing — §4.C, §4.B).
var ErrFatal = errors.New("sync: fatal")

// Run drives the full phase machine until ctx is cancelled or a fatal
// error occurs. cfg supplies the peer address, network, and checkpoint
// paths. onReady, if non-nil, is invoked once with the constructed Idle
// State as soon as it exists, so a caller (the RPC HTTP server) can
// start serving against the same State the sync worker mutates.
func Run(ctx context.Context, cfg *config.Config, onReady func(*idle.State)) error {
	params, err := cfg.Params()
	if err != nil {
		return errors.Wrap(err, "resolving network params")
	}

	st, err := loadFromDisk(cfg, params)
	if err != nil {
		return errors.Wrap(ErrFatal, err.Error())
	}
	if onReady != nil {
		onReady(st)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := syncBlockchain(st); err != nil {
			return errors.Wrap(ErrFatal, err.Error())
		}

		retry, err := syncUtxoSet(st)
		if err != nil {
			return errors.Wrap(ErrFatal, err.Error())
		}
		if retry {
			logger.Warn("utxo batch failed, retrying header sync")
			continue
		}

		saveToDisk(st, cfg)

		if err := idleLoop(ctx, st); err != nil {
			return errors.Wrap(ErrFatal, err.Error())
		}
		return nil
	}
}

// loadFromDisk realizes Init -> LoadFromDisk -> SyncBlockchain's
// construction edge (§4.C): dial the peer, then substitute fresh
// collaborators on any checkpoint error. A checkpoint error is never
// fatal; the initial dial, and opening the wallet when cfg.WalletOn is
// set, are the failures that abort the run.
func loadFromDisk(cfg *config.Config, params *chaincfg.Params) (*idle.State, error) {
	addr := net.JoinHostPort(cfg.PeerAddress, strconv.Itoa(int(cfg.PeerPort)))
	sock, inbox, err := idle.Dial(addr, wire.ProtocolVersion, networkMagic(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "opening peer socket")
	}

	bc, err := chain.DeserializeFile(cfg.ResolvePath(cfg.BlockchainFile), params)
	if err != nil {
		logger.Warn("failed to load blockchain checkpoint, starting fresh", "err", err)
		bc = chain.New(params)
	}

	utxo, err := utxoset.DeserializeFile(cfg.ResolvePath(cfg.UtxoSetFile))
	if err != nil {
		logger.Warn("failed to load utxo checkpoint, starting fresh", "err", err)
		utxo = utxoset.New(NFullBlocks, bc.GenesisHash())
	}

	var wallet *walletstub.Wallet
	if cfg.WalletOn {
		wallet, err = walletstub.Open(cfg.ResolvePath(cfg.WalletFile), params)
		if err != nil {
			return nil, errors.Wrap(err, "opening wallet")
		}
	}

	return idle.New(sock, inbox, bc, utxo, wallet, cfg), nil
}

func networkMagic(cfg *config.Config) wire.BitcoinNet {
	switch cfg.Network {
	case "testnet":
		return wire.TestNet3
	case "regtest":
		return wire.TestNet
	default:
		return wire.MainNet
	}
}

// syncBlockchain implements §4.C's headers-first download loop: send
// getheaders with the current locator, consume exactly one headers
// reply, apply it, and stop once a reply comes back empty.
func syncBlockchain(st *idle.State) error {
	for {
		getheaders := wire.NewMsgGetHeaders()
		getheaders.ProtocolVersion = wire.ProtocolVersion
		st.WithChainRead(func(bc *chain.Blockchain) {
			for _, h := range bc.LocatorHashes() {
				h := h
				getheaders.AddBlockLocatorHash(&h)
			}
		})

		if err := st.Socket.SendMessage(getheaders); err != nil {
			logger.Warn("failed to send getheaders", "err", err)
		}

		result, err := pump.Next(st.Inbox, st.Socket, map[string]pump.Arm{
			wire.CmdHeaders: func(msg wire.Message) (interface{}, bool) {
				return msg.(*wire.MsgHeaders), true
			},
		})
		if err != nil {
			return err
		}
		headers := result.(*wire.MsgHeaders)

		st.WithChainWrite(func(bc *chain.Blockchain) {
			for _, h := range headers.Headers {
				if err := bc.AddHeader(h); err != nil {
					logger.Warn("rejected header during sync", "err", err)
				}
			}
		})

		if len(headers.Headers) == 0 {
			return nil
		}
	}
}
