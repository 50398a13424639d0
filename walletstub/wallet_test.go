package walletstub

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestWallet(t *testing.T) *Wallet {
	dir, err := ioutil.TempDir("", "walletstub")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	w, err := Open(filepath.Join(dir, "wallet.db"), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestNewAddressUnknownAccount(t *testing.T) {
	w := openTestWallet(t)
	_, err := w.NewAddress("nope", External)
	assert.Equal(t, ErrAccountNotFound, err)
}

func TestAccountInsertThenNewAddress(t *testing.T) {
	w := openTestWallet(t)
	require.NoError(t, w.AccountInsert("coinjoin"))
	addr, err := w.NewAddress("coinjoin", External)
	require.NoError(t, err)
	assert.NotNil(t, addr)
}

func TestNewAddressNeverRepeats(t *testing.T) {
	w := openTestWallet(t)
	require.NoError(t, w.AccountInsert("coinjoin"))
	a1, err := w.NewAddress("coinjoin", External)
	require.NoError(t, err)
	a2, err := w.NewAddress("coinjoin", External)
	require.NoError(t, err)
	assert.NotEqual(t, a1.String(), a2.String())
}

func TestAccountInsertIdempotent(t *testing.T) {
	w := openTestWallet(t)
	require.NoError(t, w.AccountInsert("coinjoin"))
	require.NoError(t, w.AccountInsert("coinjoin"))
}
