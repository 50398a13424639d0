package utxoset

import (
	"bytes"
	"encoding/gob"
	"io/ioutil"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// entry is a flattened, gob-friendly (hash, index, value, pkScript)
// tuple standing in for one wire.OutPoint -> wire.TxOut pair.
type entry struct {
	TxHash   chainhash.Hash
	Index    uint32
	Value    int64
	PkScript []byte
}

type checkpointFile struct {
	NFull    int
	LastHash chainhash.Hash
	Entries  []entry
}

// Serialize writes the whole UTXO set to path as a single opaque blob,
// matching §6's "whole-file serialization."
func (s *Set) Serialize(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := checkpointFile{NFull: s.nFull, LastHash: s.lastHash}
	for outpoint, txout := range s.outputs {
		cp.Entries = append(cp.Entries, entry{
			TxHash:   outpoint.Hash,
			Index:    outpoint.Index,
			Value:    txout.Value,
			PkScript: txout.PkScript,
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cp); err != nil {
		return errors.Wrap(err, "encoding utxo checkpoint")
	}
	return ioutil.WriteFile(path, buf.Bytes(), 0o600)
}

// DeserializeFile loads a UTXO checkpoint written by Serialize.
func DeserializeFile(path string) (*Set, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp checkpointFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "decoding utxo checkpoint")
	}

	s := New(cp.NFull, cp.LastHash)
	for _, e := range cp.Entries {
		outpoint := wire.OutPoint{Hash: e.TxHash, Index: e.Index}
		s.outputs[outpoint] = &wire.TxOut{Value: e.Value, PkScript: e.PkScript}
	}
	return s, nil
}
