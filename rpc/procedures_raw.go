package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/utxoset"
)

// decodeHexTx decodes a hex-encoded, wire-format transaction — the
// "as-is" mode of §4.E, since wire.MsgTx's own serialization already
// carries its own length-prefixed fields.
func decodeHexTx(raw json.RawMessage) (*wire.MsgTx, *Error) {
	var hexStr string
	if err := decodeParam(raw, &hexStr); err != nil {
		return nil, err
	}
	data, hexErr := hex.DecodeString(hexStr)
	if hexErr != nil {
		return nil, errInvalidParams(hexErr.Error())
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, errInvalidParams(err.Error())
	}
	return tx, nil
}

// decodeHexScript decodes a hex-encoded script. Scripts carry no outer
// length prefix of their own (§4.E's "prepend-length" mode describes a
// generic consensus decoder's needs); here the hex-decoded bytes are
// already the whole script, so no prefix manipulation is required.
func decodeHexScript(raw json.RawMessage) ([]byte, *Error) {
	var hexStr string
	if err := decodeParam(raw, &hexStr); err != nil {
		return nil, err
	}
	data, hexErr := hex.DecodeString(hexStr)
	if hexErr != nil {
		return nil, errInvalidParams(hexErr.Error())
	}
	return data, nil
}

var rawDecodeEntry = &Entry{
	Name:  "raw_decode",
	Desc:  "Decodes a raw transaction",
	Usage: "<hex-encoded tx data>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		tx, err := decodeHexTx(params[0])
		if err != nil {
			return nil, err
		}
		return tx, nil
	},
}

var rawValidateEntry = &Entry{
	Name:  "raw_validate",
	Desc:  "Validates a raw transaction",
	Usage: "<hex-encoded tx data>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		tx, err := decodeHexTx(params[0])
		if err != nil {
			return nil, err
		}
		if verr := validateTx(st, tx); verr != nil {
			return nil, errInvalidTx(verr.Error())
		}
		return true, nil
	},
}

var rawTraceEntry = &Entry{
	Name:  "raw_trace",
	Desc:  "Traces execution of a raw transaction's scripts",
	Usage: "<hex-encoded tx data>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		tx, err := decodeHexTx(params[0])
		if err != nil {
			return nil, err
		}
		return traceTx(st, tx), nil
	},
}

var scriptTraceEntry = &Entry{
	Name:  "script_trace",
	Desc:  "Traces execution of an individual script",
	Usage: "<hex-encoded script>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		script, err := decodeHexScript(params[0])
		if err != nil {
			return nil, err
		}
		class := txscript.GetScriptClass(script)
		disasm, disErr := txscript.DisasmString(script)
		if disErr != nil {
			return nil, errInvalidParams(disErr.Error())
		}
		return map[string]interface{}{
			"class":         class.String(),
			"disassembly":   disasm,
			"script_length": len(script),
		}, nil
	},
}

var scriptUnspendableEntry = &Entry{
	Name:  "script_unspendable",
	Desc:  "Checks whether a script pubkey can be proven to have no satisfying input. Returns 'spendable' or 'unspendable'.",
	Usage: "<hex-encoded script>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		script, err := decodeHexScript(params[0])
		if err != nil {
			return nil, err
		}
		if txscript.GetScriptClass(script) == txscript.NullDataTy {
			return "unspendable", nil
		}
		return "spendable", nil
	},
}

// validateTx checks every non-coinbase input against the live UTXO set,
// standing in for the original's `tx.validate(&utxo_set)` (full script
// execution is out of scope for this narrow collaborator; the
// structural and UTXO-presence checks are what raw_validate actually
// gates on here).
func validateTx(st *idle.State, tx *wire.MsgTx) error {
	var err error
	st.WithUtxoRead(func(u *utxoset.Set) {
		for _, txin := range tx.TxIn {
			if isCoinbaseOutpoint(txin.PreviousOutPoint) {
				continue
			}
			if _, ok := u.Lookup(txin.PreviousOutPoint); !ok {
				err = errors.Errorf("spends unknown or already-spent output %s", txin.PreviousOutPoint)
				return
			}
		}
	})
	return err
}

func isCoinbaseOutpoint(op wire.OutPoint) bool {
	return op.Index == wire.MaxPrevOutIndex && op.Hash == (chainhash.Hash{})
}

// traceEntry is one step of raw_trace's per-input report.
type traceEntry struct {
	Input       int    `json:"input"`
	OutPoint    string `json:"outpoint"`
	KnownOutput bool   `json:"known_output"`
}

func traceTx(st *idle.State, tx *wire.MsgTx) []traceEntry {
	var out []traceEntry
	st.WithUtxoRead(func(u *utxoset.Set) {
		for i, txin := range tx.TxIn {
			_, known := u.Lookup(txin.PreviousOutPoint)
			out = append(out, traceEntry{
				Input:       i,
				OutPoint:    txin.PreviousOutPoint.String(),
				KnownOutput: known,
			})
		}
	})
	return out
}
