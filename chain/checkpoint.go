package chain

import (
	"bytes"
	"encoding/gob"
	"io/ioutil"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// checkpointNode is the on-disk representation of a Node. Headers and
// bodies are serialized with the wire codec (the actual Bitcoin binary
// format); gob only wraps the resulting byte strings into one file, so
// the checkpoint stays a single opaque blob per §6 ("whole-file
// serialization via a checkpoint codec").
type checkpointNode struct {
	HeaderBytes []byte
	Height      int32
	HasTxData   bool
	BlockBytes  []byte // empty unless HasTxData
}

type checkpointFile struct {
	Nodes    []checkpointNode
	BestHash chainhash.Hash
}

// Serialize writes the best chain to path, matching the checkpoint
// contract of §4.C's SaveToDisk phase. Only the nodes indexed by height
// on the best chain are written; headers on side branches are not, so a
// chain loaded by DeserializeFile holds the best chain only.
func (bc *Blockchain) Serialize(path string) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var cp checkpointFile
	cp.BestHash = bc.best
	for _, hash := range bc.byHeight {
		node := bc.nodes[hash]
		var hbuf bytes.Buffer
		if err := node.Header.Serialize(&hbuf); err != nil {
			return errors.Wrapf(err, "serializing header %s", hash)
		}
		cn := checkpointNode{HeaderBytes: hbuf.Bytes(), Height: node.Height, HasTxData: node.HasTxData}
		if node.HasTxData && node.Block != nil {
			var bbuf bytes.Buffer
			if err := node.Block.Serialize(&bbuf); err != nil {
				return errors.Wrapf(err, "serializing block %s", hash)
			}
			cn.BlockBytes = bbuf.Bytes()
		}
		cp.Nodes = append(cp.Nodes, cn)
	}

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(&cp); err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	return ioutil.WriteFile(path, out.Bytes(), 0o600)
}

// DeserializeFile loads a chain checkpoint written by Serialize. A
// missing or corrupt file is reported to the caller, who (per §4.C's
// LoadFromDisk phase) falls back to New(network) without aborting.
// params is recorded on the returned Blockchain exactly as New does, so
// a loaded chain is never left with a nil network identity.
func DeserializeFile(path string, params *chaincfg.Params) (*Blockchain, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "reading checkpoint %s", path)
	}
	var cp checkpointFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}

	bc := &Blockchain{
		params:   params,
		nodes:    make(map[chainhash.Hash]*Node),
		byHeight: make(map[int32]chainhash.Hash),
	}
	for _, cn := range cp.Nodes {
		var header wire.BlockHeader
		if err := header.Deserialize(bytes.NewReader(cn.HeaderBytes)); err != nil {
			return nil, errors.Wrap(err, "decoding header")
		}
		hash := header.BlockHash()
		node := &Node{Header: header, Hash: hash, Height: cn.Height, HasTxData: cn.HasTxData}
		if cn.HasTxData {
			var block wire.MsgBlock
			if err := block.Deserialize(bytes.NewReader(cn.BlockBytes)); err != nil {
				return nil, errors.Wrap(err, "decoding block")
			}
			node.Block = &block
		}
		bc.nodes[hash] = node
		bc.byHeight[cn.Height] = hash
	}
	bc.best = cp.BestHash
	return bc, nil
}
