package rpc

import (
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/wizardswallet/btcnode/chain"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/utxoset"
)

var helpEntry = &Entry{
	Name:  "help",
	Desc:  "Fetches a list of commands",
	Usage: "",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		ret := make(map[string]interface{}, len(registry))
		coinjoinOn := st.Config != nil && st.Config.CoinjoinOn
		for _, entry := range registry {
			if entry.Coinjoin && !coinjoinOn {
				continue
			}
			ret[entry.Name] = map[string]string{
				"description": entry.Desc,
				"usage":       entry.Usage,
			}
		}
		return ret, nil
	},
}

var getblockEntry = &Entry{
	Name:  "getblock",
	Desc:  "Gets a specific block from the blockchain",
	Usage: "<hash>",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 {
			return nil, usageError(e)
		}
		var hashStr string
		if err := decodeParam(params[0], &hashStr); err != nil {
			return nil, err
		}
		hash, hexErr := chainhash.NewHashFromStr(hashStr)
		if hexErr != nil {
			return nil, errInvalidParams(hexErr.Error())
		}

		var node *chain.Node
		var found bool
		st.WithChainRead(func(bc *chain.Blockchain) { node, found = bc.GetBlock(*hash) })
		if !found {
			return nil, errBlockNotFound(hashStr)
		}

		ret := map[string]interface{}{
			"header":     node.Header,
			"has_txdata": node.HasTxData,
		}
		if node.HasTxData && node.Block != nil {
			ret["transactions"] = node.Block.Transactions
		}
		return ret, nil
	},
}

var getutxocountEntry = &Entry{
	Name:  "getutxocount",
	Desc:  "Gets the current number of unspent outputs on the blockchain.",
	Usage: "",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 0 {
			return nil, usageError(e)
		}
		var n int
		st.WithUtxoRead(func(u *utxoset.Set) { n = u.NUtxos() })
		return n, nil
	},
}

var getblockcountEntry = &Entry{
	Name:  "getblockcount",
	Desc:  "Gets the length of the longest chain, starting from the given hash or genesis.",
	Usage: "[start hash]",
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		var start chainhash.Hash
		var hashParam string
		haveHash := false

		switch len(params) {
		case 0:
			st.WithChainRead(func(bc *chain.Blockchain) { start = bc.GenesisHash() })
		case 1:
			if err := decodeParam(params[0], &hashParam); err != nil {
				return nil, err
			}
			haveHash = true
			h, hexErr := chainhash.NewHashFromStr(hashParam)
			if hexErr != nil {
				return nil, errInvalidParams(hexErr.Error())
			}
			start = *h
		default:
			return nil, usageError(e)
		}

		if haveHash {
			var exists bool
			st.WithChainRead(func(bc *chain.Blockchain) { _, exists = bc.GetBlock(start) })
			if !exists {
				return nil, errBlockNotFound(hashParam)
			}
		}

		var nodes []*chain.Node
		st.WithChainRead(func(bc *chain.Blockchain) { nodes = bc.Iter(start) })
		return len(nodes), nil
	},
}
