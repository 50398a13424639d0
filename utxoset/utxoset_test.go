package utxoset

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coinbaseBlock(reward int64) *wire.MsgBlock {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
	})
	tx.AddTxOut(&wire.TxOut{Value: reward, PkScript: []byte{0x51}})
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	block.AddTransaction(tx)
	return block
}

func TestUpdateAddsCoinbaseOutput(t *testing.T) {
	s := New(288, chainhash.Hash{})
	block := coinbaseBlock(5000000000)

	ok := s.Update(block)
	require.True(t, ok)
	assert.Equal(t, 1, s.NUtxos())
	assert.Equal(t, block.Header.BlockHash(), s.LastHash())
}

func TestUpdateFailsOnUnknownInput(t *testing.T) {
	s := New(288, chainhash.Hash{})
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x1}, Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
	block.AddTransaction(tx)

	ok := s.Update(block)
	assert.False(t, ok)
	assert.Equal(t, 0, s.NUtxos())
}

func TestRewindRemovesOutputsAndRegressesTip(t *testing.T) {
	s := New(288, chainhash.Hash{})
	block := coinbaseBlock(5000000000)
	require.True(t, s.Update(block))

	ok := s.Rewind(block)
	require.True(t, ok)
	assert.Equal(t, 0, s.NUtxos())
	assert.Equal(t, block.Header.PrevBlock, s.LastHash())
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := New(288, chainhash.Hash{})
	require.True(t, s.Update(coinbaseBlock(100)))

	dir, err := ioutil.TempDir("", "utxocheckpoint")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "utxo.dat")

	require.NoError(t, s.Serialize(path))
	loaded, err := DeserializeFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.NUtxos(), loaded.NUtxos())
	assert.Equal(t, s.LastHash(), loaded.LastHash())
}
