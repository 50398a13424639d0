package idle

import (
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/wizardswallet/btcnode/chain"
	"github.com/wizardswallet/btcnode/coinjoin"
	"github.com/wizardswallet/btcnode/common"
	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/utxoset"
	"github.com/wizardswallet/btcnode/walletstub"
)

// requestedCacheSize bounds the Idle phase's "already requested"
// inventory dedup cache (§4.D) — large enough to outlive any single
// getdata round trip to the peer without needing exact accounting.
const requestedCacheSize = 4096

// State is the Idle State of §4.A: the singular owner of every piece of
// mutable domain data, passed by exclusive reference through every
// phase. Chain/Utxo are guarded by mu so the sync worker's Idle-phase
// mutations and the RPC workers' concurrent reads never race (§5 —
// the hardening the DESIGN NOTES call "the single most important
// requirement").
type State struct {
	Socket *Socket
	Inbox  <-chan wire.Message

	mu    sync.RWMutex
	chain *chain.Blockchain
	utxo  *utxoset.Set

	coinjoinMu sync.Mutex
	Coinjoin   *coinjoin.Server // nil until the first coinjoin RPC
	Wallet     *walletstub.Wallet
	Config     *config.Config

	// Requested dedupes inventory announcements in the Idle phase so a
	// peer re-announcing the same hash before the first getdata round
	// trip completes doesn't queue a second request for it.
	Requested *common.Cache
}

// New builds the Idle State exactly once, at the LoadFromDisk ->
// SyncBlockchain edge (§4.A, §4.C).
func New(socket *Socket, inbox <-chan wire.Message, bc *chain.Blockchain, utxo *utxoset.Set, wallet *walletstub.Wallet, cfg *config.Config) *State {
	requested, err := common.NewCache(requestedCacheSize)
	if err != nil {
		panic(err) // requestedCacheSize is a positive constant; only a bad size errors here
	}
	return &State{Socket: socket, Inbox: inbox, chain: bc, utxo: utxo, Wallet: wallet, Config: cfg, Requested: requested}
}

// WithChainRead/WithChainWrite/WithUtxoRead/WithUtxoWrite force every
// call site to declare its access mode, so the sharing discipline of §5
// is enforced by the type rather than by convention.

func (s *State) WithChainRead(f func(*chain.Blockchain)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(s.chain)
}

func (s *State) WithChainWrite(f func(*chain.Blockchain)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.chain)
}

func (s *State) WithUtxoRead(f func(*utxoset.Set)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(s.utxo)
}

func (s *State) WithUtxoWrite(f func(*utxoset.Set)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.utxo)
}

// SetChain and SetUtxo replace the whole collaborator outright under the
// writer lock. Nothing in this module calls them: LoadFromDisk's
// checkpoint-or-genesis substitution happens before the State exists and
// passes the result to New, and the SyncUtxoSet -> SyncBlockchain retry
// edge keeps the same collaborators.
func (s *State) SetChain(bc *chain.Blockchain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = bc
}

func (s *State) SetUtxo(u *utxoset.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxo = u
}

// EnsureCoinjoin lazily instantiates the coinjoin session manager on the
// first coinjoin-gated RPC call (§4.E: "lazily instantiate the session
// manager"), safely against concurrent RPC workers racing to do so.
func (s *State) EnsureCoinjoin() *coinjoin.Server {
	s.coinjoinMu.Lock()
	defer s.coinjoinMu.Unlock()
	if s.Coinjoin == nil {
		s.Coinjoin = coinjoin.NewServer()
	}
	return s.Coinjoin
}

// CoinjoinOrNil returns the session manager without creating it —
// coinjoin_status/add_raw_unsigned/add_raw_signed treat an absent
// manager as SessionNotFound rather than lazily starting one.
func (s *State) CoinjoinOrNil() *coinjoin.Server {
	s.coinjoinMu.Lock()
	defer s.coinjoinMu.Unlock()
	return s.Coinjoin
}
