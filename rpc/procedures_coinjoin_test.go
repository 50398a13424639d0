package rpc

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/walletstub"
)

func openTestWalletForState(t *testing.T) *walletstub.Wallet {
	t.Helper()
	w, err := walletstub.Open(filepath.Join(t.TempDir(), "wallet.db"), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func coinjoinTestConfig() *config.Config {
	cfg := config.Default()
	cfg.CoinjoinOn = true
	return cfg
}

func TestCoinjoinStatusWithoutSessionReportsNotFound(t *testing.T) {
	st := newTestState(t, coinjoinTestConfig())
	_, rpcErr := Dispatch("coinjoin_status", nil, st)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeSessionNotFound, rpcErr.Code)
}

func TestCoinjoinStartCreatesSessionAndInsertsAccount(t *testing.T) {
	st := newTestState(t, coinjoinTestConfig())
	st.Wallet = openTestWalletForState(t)

	params := []json.RawMessage{rawParam(t, uint64(1000)), rawParam(t, int64(60)), rawParam(t, int64(60))}
	result, rpcErr := Dispatch("coinjoin_start", params, st)
	require.Nil(t, rpcErr)
	assert.NotNil(t, result)
}

func TestCoinjoinStartBadArity(t *testing.T) {
	st := newTestState(t, coinjoinTestConfig())
	st.Wallet = openTestWalletForState(t)
	_, rpcErr := Dispatch("coinjoin_start", []json.RawMessage{rawParam(t, uint64(1000))}, st)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestCoinjoinStatusAfterStart(t *testing.T) {
	st := newTestState(t, coinjoinTestConfig())
	st.Wallet = openTestWalletForState(t)

	params := []json.RawMessage{rawParam(t, uint64(1000)), rawParam(t, int64(60)), rawParam(t, int64(60))}
	_, rpcErr := Dispatch("coinjoin_start", params, st)
	require.Nil(t, rpcErr)

	result, rpcErr := Dispatch("coinjoin_status", nil, st)
	require.Nil(t, rpcErr)
	m := result.(map[string]interface{})
	assert.Equal(t, false, m["has_signed"])
}

func TestCoinjoinAddRawUnsignedWithoutSessionNotFound(t *testing.T) {
	st := newTestState(t, coinjoinTestConfig())
	st.Wallet = openTestWalletForState(t)

	tx := coinbaseTx()
	_, rpcErr := Dispatch("coinjoin_add_raw_unsigned", []json.RawMessage{hexTx(t, tx)}, st)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeSessionNotFound, rpcErr.Code)
}

func TestCoinjoinAddRawSignedCompletesSessionAndBroadcasts(t *testing.T) {
	st, sent := newTestStateWithPeer(t, coinjoinTestConfig())
	st.Wallet = openTestWalletForState(t)

	startParams := []json.RawMessage{rawParam(t, uint64(1000)), rawParam(t, int64(60)), rawParam(t, int64(60))}
	_, rpcErr := Dispatch("coinjoin_start", startParams, st)
	require.Nil(t, rpcErr)

	tx := coinbaseTx()
	result, rpcErr := Dispatch("coinjoin_add_raw_signed", []json.RawMessage{hexTx(t, tx)}, st)
	require.Nil(t, rpcErr)
	assert.Equal(t, true, result)

	broadcast, ok := nextSent(t, sent).(*wire.MsgTx)
	require.True(t, ok)
	assert.Equal(t, tx.TxHash(), broadcast.TxHash())

	status, rpcErr := Dispatch("coinjoin_status", nil, st)
	require.Nil(t, rpcErr)
	m := status.(map[string]interface{})
	assert.Equal(t, true, m["has_signed"])
}
