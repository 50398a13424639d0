// Package config holds the node's network identity, peer address,
// checkpoint paths, and feature gates, loaded from a TOML file the way
// the teacher's node package loads its own Config.
package config

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Config is the node's network identity (§3) plus the feature gates
// consulted by the RPC dispatcher (§4.E).
type Config struct {
	Network     string `toml:"network"` // "mainnet", "testnet", "regtest"
	PeerAddress string `toml:"peer_address"`
	PeerPort    uint16 `toml:"peer_port"`

	DataDir          string `toml:"data_dir"`
	BlockchainFile   string `toml:"blockchain_file"`
	UtxoSetFile      string `toml:"utxo_set_file"`
	WalletFile       string `toml:"wallet_file"`

	RPCBind string `toml:"rpc_bind"`

	CoinjoinOn bool `toml:"coinjoin_on"`
	WalletOn   bool `toml:"wallet_on"`
}

// Default returns reasonable defaults, mirroring the teacher's
// DefaultConfig pattern.
func Default() *Config {
	return &Config{
		Network:        "mainnet",
		PeerAddress:    "127.0.0.1",
		PeerPort:       8333,
		DataDir:        DefaultDataDir(),
		BlockchainFile: "blockchain.dat",
		UtxoSetFile:    "utxoset.dat",
		WalletFile:     "wallet.db",
		RPCBind:        "localhost:8556",
		CoinjoinOn:     false,
		WalletOn:       true,
	}
}

// Load reads a TOML config file, falling back to Default() for any field
// left unset. A missing file is not an error; it simply yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Params maps the Network tag to the btcsuite chain parameters backing
// the Network identity of §3.
func (c *Config) Params() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errors.Errorf("unknown network %q", c.Network)
	}
}

// ResolvePath resolves a user-supplied path into the data directory, the
// on-disk path resolver named as an external collaborator by §1.
func (c *Config) ResolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// DefaultDataDir is adapted from the teacher's node.DefaultDataDir.
func DefaultDataDir() string {
	dirname := "btcnode"
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", strings.Title(dirname))
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", strings.Title(dirname))
	default:
		return filepath.Join(home, "."+dirname)
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
