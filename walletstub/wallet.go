// Package walletstub is the opaque wallet collaborator named by §3 — the
// sync core never touches it; only the RPC dispatcher's coinjoin
// procedures reach into it for a donation address (§4.E). Address book
// state lives in a small goleveldb instance rather than the whole-file
// chain/UTXO checkpoints, since it is genuinely key-addressable.
package walletstub

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleWallet)

// ErrAccountNotFound mirrors the original's AccountNotFound variant.
var ErrAccountNotFound = errors.New("wallet: account not found")

// AddressKind distinguishes external (user-facing) from internal
// (change) addresses.
type AddressKind int

const (
	External AddressKind = iota
	Internal
)

// Wallet is a minimal keystore-backed address book.
type Wallet struct {
	mu       sync.Mutex
	params   *chaincfg.Params
	db       *leveldb.DB
	accounts map[string][]btcutil.Address
}

// Open opens (or creates) the wallet's address-book database at path.
func Open(path string, params *chaincfg.Params) (*Wallet, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening wallet database")
	}
	return &Wallet{params: params, db: db, accounts: make(map[string][]btcutil.Address)}, nil
}

func (w *Wallet) Close() error {
	return w.db.Close()
}

// AccountInsert registers a new named account.
func (w *Wallet) AccountInsert(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.accounts[name]; ok {
		return nil
	}
	w.accounts[name] = nil
	if err := w.db.Put([]byte("account:"+name), []byte{1}, nil); err != nil {
		return errors.Wrap(err, "persisting account")
	}
	return nil
}

// NewAddress returns a fresh address for the named account, generating
// one deterministically from the account name, the account's address
// count and the address kind, so repeated calls within a process never
// collide.
func (w *Wallet) NewAddress(account string, kind AddressKind) (btcutil.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	addrs, ok := w.accounts[account]
	if !ok {
		return nil, ErrAccountNotFound
	}
	hash := make([]byte, 20)
	binary.BigEndian.PutUint64(hash[:8], uint64(len(addrs)))
	hash[8] = byte(kind)
	accountSum := sha256.Sum256([]byte(account))
	copy(hash[9:], accountSum[:])
	addr, err := btcutil.NewAddressPubKeyHash(hash, w.params)
	if err != nil {
		return nil, errors.Wrap(err, "deriving address")
	}
	w.accounts[account] = append(addrs, addr)
	return addr, nil
}
