package punks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/events"
	"github.com/tolelom/punkchain/vm"
)

func handleEnterBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.EnterBidPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode enter_bid payload: %w", err)
	}
	if err := checkIndex(p.PunkIndex); err != nil {
		return err
	}

	amount := ctx.Tx.AttachedValue()
	if amount.IsZero() {
		return errors.New("bid must carry value")
	}

	owner, err := ctx.State.GetPunkOwner(p.PunkIndex)
	if err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("%w: punk %d", core.ErrUnassignedPunk, p.PunkIndex)
	}
	if owner == ctx.Tx.From {
		return core.ErrSelfBid
	}

	existing, err := ctx.State.GetBid(p.PunkIndex)
	if err != nil {
		return err
	}
	// A tie keeps the incumbent: the new bid must strictly exceed it.
	if existing.Active && amount.Cmp(existing.Amount) <= 0 {
		return fmt.Errorf("%w: bid %s, current %s", core.ErrBidTooLow, amount.Dec(), existing.Amount.Dec())
	}

	// Escrow the new bid before refunding the outbid party.
	if err := debitSpendable(ctx.State, ctx.Tx.From, amount); err != nil {
		return err
	}
	if existing.Active {
		if err := creditPending(ctx.State, existing.Bidder, existing.Amount); err != nil {
			return err
		}
	}
	if err := ctx.State.SetBid(&core.PunkBid{
		Active:    true,
		PunkIndex: p.PunkIndex,
		Bidder:    ctx.Tx.From,
		Amount:    amount,
	}); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventBidEntered,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"punk_index": p.PunkIndex,
				"bidder":     ctx.Tx.From,
				"amount":     amount.Dec(),
			},
		})
	}
	return nil
}

func handleAcceptBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AcceptBidPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode accept_bid payload: %w", err)
	}
	if err := checkIndex(p.PunkIndex); err != nil {
		return err
	}

	owner, err := ctx.State.GetPunkOwner(p.PunkIndex)
	if err != nil {
		return err
	}
	if owner != ctx.Tx.From {
		return core.ErrNotAuthorized
	}

	bid, err := ctx.State.GetBid(p.PunkIndex)
	if err != nil {
		return err
	}
	if !bid.Active {
		return fmt.Errorf("%w: punk %d", core.ErrNoActiveBid, p.PunkIndex)
	}

	minPrice := p.MinPrice
	if minPrice == nil {
		minPrice = uint256.NewInt(0)
	}
	if bid.Amount.Lt(minPrice) {
		return fmt.Errorf("%w: bid %s, minimum %s", core.ErrBidBelowMinimum, bid.Amount.Dec(), minPrice.Dec())
	}

	// The escrowed bid becomes the seller's proceeds; the punk changes hands
	// and its offer is invalidated.
	if err := movePunk(ctx.State, owner, bid.Bidder, p.PunkIndex); err != nil {
		return err
	}
	if err := clearOffer(ctx.State, p.PunkIndex, bid.Bidder); err != nil {
		return err
	}
	if err := creditPending(ctx.State, owner, bid.Amount); err != nil {
		return err
	}
	if err := clearBid(ctx.State, p.PunkIndex); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventBidAccepted,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"punk_index": p.PunkIndex,
				"seller":     owner,
				"buyer":      bid.Bidder,
				"price":      bid.Amount.Dec(),
			},
		})
	}
	return nil
}

func handleWithdrawBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.WithdrawBidPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode withdraw_bid payload: %w", err)
	}
	if err := checkIndex(p.PunkIndex); err != nil {
		return err
	}

	bid, err := ctx.State.GetBid(p.PunkIndex)
	if err != nil {
		return err
	}
	if !bid.Active || bid.Bidder != ctx.Tx.From {
		return core.ErrNotAuthorized
	}

	if err := creditPending(ctx.State, bid.Bidder, bid.Amount); err != nil {
		return err
	}
	if err := clearBid(ctx.State, p.PunkIndex); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventBidWithdrawn,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"punk_index": p.PunkIndex,
				"bidder":     bid.Bidder,
				"amount":     bid.Amount.Dec(),
			},
		})
	}
	return nil
}
