package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0: it credits the alloc
// accounts, seeds the marketplace record (admin identity, full unassigned
// supply), and commits the resulting state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	// Credit all alloc accounts
	for pubkeyHex, balanceDec := range cfg.Genesis.Alloc {
		balance, err := uint256.FromDecimal(balanceDec)
		if err != nil {
			return nil, fmt.Errorf("alloc %s: bad balance %q: %w", pubkeyHex, balanceDec, err)
		}
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	admin := cfg.Genesis.MarketAdmin
	if admin == "" {
		admin = proposerPub.Hex()
	}
	if _, err := crypto.PubKeyFromHex(admin); err != nil {
		return nil, fmt.Errorf("market admin: %w", err)
	}
	if err := state.SetMarket(&core.MarketInfo{
		Admin:             admin,
		RemainingToAssign: core.TotalPunks,
	}); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// Embed chain ID in the TxRoot for identification.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
