package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardswallet/btcnode/config"
	"github.com/wizardswallet/btcnode/utxoset"
)

func hexTx(t *testing.T, tx *wire.MsgTx) json.RawMessage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return rawParam(t, hex.EncodeToString(buf.Bytes()))
}

func coinbaseTx() *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex}})
	tx.AddTxOut(&wire.TxOut{Value: 50, PkScript: []byte{0x51}})
	return tx
}

func TestRawDecodeRoundTrips(t *testing.T) {
	st := newTestState(t, config.Default())
	tx := coinbaseTx()
	result, rpcErr := Dispatch("raw_decode", []json.RawMessage{hexTx(t, tx)}, st)
	require.Nil(t, rpcErr)
	decoded := result.(*wire.MsgTx)
	assert.Equal(t, tx.TxHash(), decoded.TxHash())
}

func TestRawDecodeRejectsGarbageHex(t *testing.T) {
	st := newTestState(t, config.Default())
	_, rpcErr := Dispatch("raw_decode", []json.RawMessage{rawParam(t, "zz")}, st)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestRawValidateCoinbaseAlwaysPasses(t *testing.T) {
	st := newTestState(t, config.Default())
	tx := coinbaseTx()
	result, rpcErr := Dispatch("raw_validate", []json.RawMessage{hexTx(t, tx)}, st)
	require.Nil(t, rpcErr)
	assert.Equal(t, true, result)
}

func TestRawValidateRejectsUnknownInput(t *testing.T) {
	st := newTestState(t, config.Default())
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})

	_, rpcErr := Dispatch("raw_validate", []json.RawMessage{hexTx(t, tx)}, st)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidTx, rpcErr.Code)
}

func TestRawValidateAcceptsKnownUtxo(t *testing.T) {
	st := newTestState(t, config.Default())
	spend := coinbaseTx()
	st.WithUtxoWrite(func(u *utxoset.Set) {
		u.Update(&wire.MsgBlock{Header: wire.BlockHeader{}, Transactions: []*wire.MsgTx{spend}})
	})

	outpoint := wire.OutPoint{Hash: spend.TxHash(), Index: 0}
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint})
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})

	result, rpcErr := Dispatch("raw_validate", []json.RawMessage{hexTx(t, tx)}, st)
	require.Nil(t, rpcErr)
	assert.Equal(t, true, result)
}

func TestRawTraceReportsKnownOutputFlag(t *testing.T) {
	st := newTestState(t, config.Default())
	coinbase := coinbaseTx()
	st.WithUtxoWrite(func(u *utxoset.Set) {
		u.Update(&wire.MsgBlock{Header: wire.BlockHeader{}, Transactions: []*wire.MsgTx{coinbase}})
	})

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: coinbase.TxHash(), Index: 0}})
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: coinbase.TxHash(), Index: 99}})
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})

	result, rpcErr := Dispatch("raw_trace", []json.RawMessage{hexTx(t, tx)}, st)
	require.Nil(t, rpcErr)
	trace := result.([]traceEntry)
	require.Len(t, trace, 2)
	assert.True(t, trace[0].KnownOutput)
	assert.False(t, trace[1].KnownOutput)
}

func TestScriptTraceDisassemblesOpReturn(t *testing.T) {
	st := newTestState(t, config.Default())
	script := []byte{0x6a, 0x00} // OP_RETURN OP_0
	result, rpcErr := Dispatch("script_trace", []json.RawMessage{rawParam(t, hex.EncodeToString(script))}, st)
	require.Nil(t, rpcErr)
	m := result.(map[string]interface{})
	assert.Equal(t, "nulldata", m["class"])
}

func TestScriptUnspendableDetectsOpReturn(t *testing.T) {
	st := newTestState(t, config.Default())
	script := []byte{0x6a, 0x00}
	result, rpcErr := Dispatch("script_unspendable", []json.RawMessage{rawParam(t, hex.EncodeToString(script))}, st)
	require.Nil(t, rpcErr)
	assert.Equal(t, "unspendable", result)
}

func TestScriptUnspendableReportsSpendableForOrdinaryScript(t *testing.T) {
	st := newTestState(t, config.Default())
	script := []byte{0x51} // OP_1, trivially spendable
	result, rpcErr := Dispatch("script_unspendable", []json.RawMessage{rawParam(t, hex.EncodeToString(script))}, st)
	require.Nil(t, rpcErr)
	assert.Equal(t, "spendable", result)
}
