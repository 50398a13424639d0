package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Network, cfg.Network)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
network = "testnet"
peer_address = "10.0.0.1"
peer_port = 18333
coinjoin_on = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, "10.0.0.1", cfg.PeerAddress)
	assert.Equal(t, uint16(18333), cfg.PeerPort)
	assert.True(t, cfg.CoinjoinOn)
}

func TestParamsRejectsUnknownNetwork(t *testing.T) {
	cfg := Default()
	cfg.Network = "nonesuch"
	_, err := cfg.Params()
	assert.Error(t, err)
}

func TestResolvePathJoinsDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	assert.Equal(t, filepath.Join("/data", "blockchain.dat"), cfg.ResolvePath("blockchain.dat"))
}

func TestResolvePathPassesThroughAbsolute(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	abs := filepath.Join(string(os.PathSeparator), "elsewhere", "x.dat")
	assert.Equal(t, abs, cfg.ResolvePath(abs))
}
