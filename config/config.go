package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string `json:"chain_id" env:"PUNK_CHAIN_ID"`
	// Alloc maps pubkey hex → initial native balance (decimal string, so
	// ether-scale amounts survive JSON).
	Alloc map[string]string `json:"alloc"`
	// MarketAdmin is the pubkey hex of the marketplace admin. Empty means
	// the genesis proposer.
	MarketAdmin string `json:"market_admin" env:"PUNK_MARKET_ADMIN"`
}

// SeedPeer identifies a peer to dial at startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// TLSConfig holds the PEM paths for mutual-TLS P2P. All empty → plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert" env:"PUNK_TLS_CA"`
	NodeCert string `json:"node_cert" env:"PUNK_TLS_CERT"`
	NodeKey  string `json:"node_key" env:"PUNK_TLS_KEY"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `json:"node_id" env:"PUNK_NODE_ID"`
	DataDir      string        `json:"data_dir" env:"PUNK_DATA_DIR"`
	RPCPort      int           `json:"rpc_port" env:"PUNK_RPC_PORT"`
	RPCAuthToken string        `json:"rpc_auth_token" env:"PUNK_RPC_AUTH_TOKEN"`
	P2PPort      int           `json:"p2p_port" env:"PUNK_P2P_PORT"`
	MaxBlockTxs  int           `json:"max_block_txs"` // max transactions per block; 0 → 500
	Validators   []string      `json:"validators"`    // authorised proposer pubkey hexes
	SeedPeers    []SeedPeer    `json:"seed_peers"`
	TLS          *TLSConfig    `json:"tls,omitempty"`
	Genesis      GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID: "punkchain-dev",
			Alloc:   map[string]string{},
		},
	}
}

// Load reads a JSON config file from path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays PUNK_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
