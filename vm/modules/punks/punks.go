// Package punks implements the fixed-supply collectible marketplace:
// initial assignment, the ownership registry, the offer and bid books, and
// the pending-withdrawal escrow ledger. Every operation is a transaction
// handler over the shared chain state; the executor's snapshot gives each
// call (including the batched forms) all-or-nothing semantics.
package punks

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/crypto"
	"github.com/tolelom/punkchain/vm"
)

func init() {
	vm.Register(core.TxSetInitialOwner, handleSetInitialOwner)
	vm.Register(core.TxSetInitialOwners, handleSetInitialOwners)
	vm.Register(core.TxAllOwnersAssigned, handleAllOwnersAssigned)
	vm.Register(core.TxClaimPunk, handleClaimPunk)
	vm.Register(core.TxTransferPunk, handleTransferPunk)
	vm.Register(core.TxTransferPunks, handleTransferPunks)
	vm.Register(core.TxSetMarketAdmin, handleSetMarketAdmin)

	vm.Register(core.TxOfferPunk, handleOfferPunk)
	vm.Register(core.TxOfferPunkToAddress, handleOfferPunkToAddress)
	vm.Register(core.TxPunkNotForSale, handlePunkNotForSale)
	vm.Register(core.TxBuyPunk, handleBuyPunk)

	vm.Register(core.TxEnterBid, handleEnterBid)
	vm.Register(core.TxAcceptBid, handleAcceptBid)
	vm.Register(core.TxWithdrawBid, handleWithdrawBid)

	vm.Register(core.TxWithdraw, handleWithdraw)
	vm.Register(core.TxSweepWithdrawal, handleSweepWithdrawal)
}

// requireAdmin loads the marketplace singleton and checks the caller is the
// current admin.
func requireAdmin(ctx *vm.Context) (*core.MarketInfo, error) {
	info, err := ctx.State.GetMarket()
	if err != nil {
		return nil, fmt.Errorf("get market info: %w", err)
	}
	if ctx.Tx.From != info.Admin {
		return nil, core.ErrUnauthorized
	}
	return info, nil
}

func checkIndex(idx uint64) error {
	if !core.ValidPunkIndex(idx) {
		return fmt.Errorf("%w: %d", core.ErrOutOfRange, idx)
	}
	return nil
}

func validRecipient(addr string) error {
	if addr == "" {
		return errors.New("to address required")
	}
	if _, err := crypto.PubKeyFromHex(addr); err != nil {
		return fmt.Errorf("invalid recipient pubkey: %w", err)
	}
	return nil
}

// movePunk reassigns ownership of one punk and keeps the per-account punk
// counts in step. An empty from means the punk was unassigned; an empty to
// returns it to the unassigned pool.
func movePunk(st core.State, from, to string, idx uint64) error {
	if err := st.SetPunkOwner(idx, to); err != nil {
		return err
	}
	if from != "" {
		acc, err := st.GetAccount(from)
		if err != nil {
			return err
		}
		if acc.Punks > 0 {
			acc.Punks--
		}
		if err := st.SetAccount(acc); err != nil {
			return err
		}
	}
	if to != "" {
		acc, err := st.GetAccount(to)
		if err != nil {
			return err
		}
		acc.Punks++
		if err := st.SetAccount(acc); err != nil {
			return err
		}
	}
	return nil
}

// clearOffer writes the inactive offer record for idx. Offers are
// invalidated explicitly on every ownership change rather than left to go
// stale; seller records who held the punk when the offer was cleared.
func clearOffer(st core.State, idx uint64, seller string) error {
	return st.SetOffer(&core.PunkOffer{
		PunkIndex: idx,
		Seller:    seller,
		MinPrice:  uint256.NewInt(0),
	})
}

func clearBid(st core.State, idx uint64) error {
	return st.SetBid(&core.PunkBid{PunkIndex: idx, Amount: uint256.NewInt(0)})
}

// creditPending adds amount to the account's escrow balance.
func creditPending(st core.State, address string, amount *uint256.Int) error {
	pending, err := st.GetPending(address)
	if err != nil {
		return err
	}
	pending.Add(pending, amount)
	return st.SetPending(address, pending)
}

// debitSpendable removes amount from the account's native balance, failing
// if the balance does not cover it.
func debitSpendable(st core.State, address string, amount *uint256.Int) error {
	acc, err := st.GetAccount(address)
	if err != nil {
		return err
	}
	if acc.Spendable().Lt(amount) {
		return fmt.Errorf("insufficient balance: have %s need %s", acc.Balance.Dec(), amount.Dec())
	}
	acc.Balance.Sub(acc.Balance, amount)
	return st.SetAccount(acc)
}

// transferOwnership is the full ownership-change path used by transfers and
// initial assignment: move the punk, invalidate its offer, and refund any
// active bid to its bidder (clearing a bid without the refund would destroy
// escrowed value).
func transferOwnership(st core.State, from, to string, idx uint64) error {
	if err := movePunk(st, from, to, idx); err != nil {
		return err
	}
	if err := clearOffer(st, idx, to); err != nil {
		return err
	}
	bid, err := st.GetBid(idx)
	if err != nil {
		return err
	}
	if bid.Active {
		if err := creditPending(st, bid.Bidder, bid.Amount); err != nil {
			return err
		}
		if err := clearBid(st, idx); err != nil {
			return err
		}
	}
	return nil
}
