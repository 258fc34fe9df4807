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

func handleOfferPunk(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OfferPunkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode offer_punk payload: %w", err)
	}
	return openOffer(ctx, p.PunkIndex, p.MinPrice, "")
}

func handleOfferPunkToAddress(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OfferPunkToAddressPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode offer_punk_to_address payload: %w", err)
	}
	if err := validRecipient(p.OnlySellTo); err != nil {
		return fmt.Errorf("only_sell_to: %w", err)
	}
	return openOffer(ctx, p.PunkIndex, p.MinPrice, p.OnlySellTo)
}

// openOffer lists a punk for sale, overwriting any prior offer on it.
func openOffer(ctx *vm.Context, idx uint64, minPrice *uint256.Int, onlySellTo string) error {
	if err := checkIndex(idx); err != nil {
		return err
	}

	owner, err := ctx.State.GetPunkOwner(idx)
	if err != nil {
		return err
	}
	if owner != ctx.Tx.From {
		return core.ErrNotAuthorized
	}

	if minPrice == nil {
		minPrice = uint256.NewInt(0)
	}
	if err := ctx.State.SetOffer(&core.PunkOffer{
		Active:     true,
		PunkIndex:  idx,
		Seller:     ctx.Tx.From,
		MinPrice:   minPrice,
		OnlySellTo: onlySellTo,
	}); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventPunkOffered,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"punk_index":   idx,
				"seller":       ctx.Tx.From,
				"min_price":    minPrice.Dec(),
				"only_sell_to": onlySellTo,
			},
		})
	}
	return nil
}

func handlePunkNotForSale(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PunkNotForSalePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode punk_no_longer_for_sale payload: %w", err)
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

	// Idempotent: clearing an already-inactive offer is a no-op.
	if err := clearOffer(ctx.State, p.PunkIndex, ctx.Tx.From); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventPunkOfferWithdrawn,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"punk_index": p.PunkIndex, "seller": ctx.Tx.From},
		})
	}
	return nil
}

func handleBuyPunk(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyPunkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_punk payload: %w", err)
	}
	if err := checkIndex(p.PunkIndex); err != nil {
		return err
	}

	offer, err := ctx.State.GetOffer(p.PunkIndex)
	if err != nil {
		return err
	}
	if !offer.Active {
		return fmt.Errorf("%w: punk %d", core.ErrNotForSale, p.PunkIndex)
	}

	// An offer left behind by a previous owner is stale, not purchasable.
	owner, err := ctx.State.GetPunkOwner(p.PunkIndex)
	if err != nil {
		return err
	}
	if owner != offer.Seller {
		return fmt.Errorf("%w: stale offer on punk %d", core.ErrNotForSale, p.PunkIndex)
	}

	buyer := ctx.Tx.From
	if buyer == offer.Seller {
		return errors.New("seller cannot buy their own listing")
	}
	if offer.OnlySellTo != "" && offer.OnlySellTo != buyer {
		return core.ErrBuyerNotPermitted
	}

	payment := ctx.Tx.AttachedValue()
	if payment.Lt(offer.MinPrice) {
		return fmt.Errorf("%w: paid %s, asking %s", core.ErrPriceTooLow, payment.Dec(), offer.MinPrice.Dec())
	}

	if err := debitSpendable(ctx.State, buyer, payment); err != nil {
		return err
	}
	if err := movePunk(ctx.State, offer.Seller, buyer, p.PunkIndex); err != nil {
		return err
	}
	if err := clearOffer(ctx.State, p.PunkIndex, buyer); err != nil {
		return err
	}
	// The full payment (not just the minimum) goes to the seller's escrow.
	if err := creditPending(ctx.State, offer.Seller, payment); err != nil {
		return err
	}

	// Self-bid cleanup: a standing bid by the new owner is refunded, so the
	// buyer is not left bidding against themselves.
	bid, err := ctx.State.GetBid(p.PunkIndex)
	if err != nil {
		return err
	}
	if bid.Active && bid.Bidder == buyer {
		if err := creditPending(ctx.State, buyer, bid.Amount); err != nil {
			return err
		}
		if err := clearBid(ctx.State, p.PunkIndex); err != nil {
			return err
		}
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventPunkBought,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"punk_index": p.PunkIndex,
				"seller":     offer.Seller,
				"buyer":      buyer,
				"price":      payment.Dec(),
			},
		})
	}
	return nil
}
