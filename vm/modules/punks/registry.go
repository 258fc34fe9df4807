package punks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/events"
	"github.com/tolelom/punkchain/vm"
)

func handleSetInitialOwner(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetInitialOwnerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_initial_owner payload: %w", err)
	}

	info, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := assignInitialOwner(ctx, info, p.To, p.PunkIndex); err != nil {
		return err
	}
	if err := ctx.State.SetMarket(info); err != nil {
		return err
	}

	emitAssigned(ctx, p.To, p.PunkIndex)
	return nil
}

func handleSetInitialOwners(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetInitialOwnersPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_initial_owners payload: %w", err)
	}
	if len(p.To) == 0 {
		return errors.New("empty assignment batch")
	}
	if len(p.To) != len(p.PunkIndexes) {
		return fmt.Errorf("batch length mismatch: %d recipients, %d indexes", len(p.To), len(p.PunkIndexes))
	}

	info, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	// Any invalid pair aborts the handler; the executor's snapshot discards
	// the partially applied batch.
	for i := range p.To {
		if err := assignInitialOwner(ctx, info, p.To[i], p.PunkIndexes[i]); err != nil {
			return fmt.Errorf("batch entry %d: %w", i, err)
		}
	}
	if err := ctx.State.SetMarket(info); err != nil {
		return err
	}

	for i := range p.To {
		emitAssigned(ctx, p.To[i], p.PunkIndexes[i])
	}
	return nil
}

// assignInitialOwner sets the owner of one punk, correcting the previous
// owner's count and the remaining-to-assign counter. It mutates info but
// does not persist it; callers write the market record once per batch.
func assignInitialOwner(ctx *vm.Context, info *core.MarketInfo, to string, idx uint64) error {
	if err := validRecipient(to); err != nil {
		return err
	}
	if to == info.Admin {
		return core.ErrSelfAssignment
	}
	if err := checkIndex(idx); err != nil {
		return err
	}

	current, err := ctx.State.GetPunkOwner(idx)
	if err != nil {
		return err
	}
	if current == to {
		return nil
	}
	if err := transferOwnership(ctx.State, current, to, idx); err != nil {
		return err
	}
	if current == "" {
		info.RemainingToAssign--
	}
	return nil
}

func handleAllOwnersAssigned(ctx *vm.Context, payload json.RawMessage) error {
	info, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	// One-way flag; repeat calls are a no-op.
	if info.AllAssigned {
		return nil
	}
	info.AllAssigned = true
	if err := ctx.State.SetMarket(info); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventMarketLive,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"remaining_to_assign": info.RemainingToAssign},
		})
	}
	return nil
}

func handleClaimPunk(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimPunkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_punk payload: %w", err)
	}
	if err := checkIndex(p.PunkIndex); err != nil {
		return err
	}

	info, err := ctx.State.GetMarket()
	if err != nil {
		return err
	}
	if !info.AllAssigned {
		return core.ErrNotYetAssignable
	}

	owner, err := ctx.State.GetPunkOwner(p.PunkIndex)
	if err != nil {
		return err
	}
	if owner != "" {
		return fmt.Errorf("%w: punk %d", core.ErrAlreadyOwned, p.PunkIndex)
	}

	if err := movePunk(ctx.State, "", ctx.Tx.From, p.PunkIndex); err != nil {
		return err
	}
	info.RemainingToAssign--
	if err := ctx.State.SetMarket(info); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventPunkClaimed,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"punk_index": p.PunkIndex, "owner": ctx.Tx.From},
		})
	}
	return nil
}

func handleTransferPunk(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPunkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_punk payload: %w", err)
	}
	if err := transferOne(ctx, p.To, p.PunkIndex); err != nil {
		return err
	}
	emitTransfer(ctx, ctx.Tx.From, p.To, p.PunkIndex)
	return nil
}

func handleTransferPunks(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPunksPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_punks payload: %w", err)
	}
	if len(p.To) == 0 {
		return errors.New("empty transfer batch")
	}
	if len(p.To) != len(p.PunkIndexes) {
		return fmt.Errorf("batch length mismatch: %d recipients, %d indexes", len(p.To), len(p.PunkIndexes))
	}

	for i := range p.To {
		if err := transferOne(ctx, p.To[i], p.PunkIndexes[i]); err != nil {
			return fmt.Errorf("batch entry %d: %w", i, err)
		}
	}
	for i := range p.To {
		emitTransfer(ctx, ctx.Tx.From, p.To[i], p.PunkIndexes[i])
	}
	return nil
}

// transferOne applies the plain-transfer policy: a punk can only be handed
// over while it is actively listed for sale. The transfer invalidates the
// offer and refunds any standing bid.
func transferOne(ctx *vm.Context, to string, idx uint64) error {
	if err := validRecipient(to); err != nil {
		return err
	}
	if err := checkIndex(idx); err != nil {
		return err
	}

	offer, err := ctx.State.GetOffer(idx)
	if err != nil {
		return err
	}
	if !offer.Active {
		return fmt.Errorf("%w: punk %d", core.ErrNotForSale, idx)
	}

	owner, err := ctx.State.GetPunkOwner(idx)
	if err != nil {
		return err
	}
	if owner != ctx.Tx.From {
		return core.ErrNotTokenOwner
	}

	return transferOwnership(ctx.State, owner, to, idx)
}

func handleSetMarketAdmin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetMarketAdminPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_market_admin payload: %w", err)
	}

	info, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := validRecipient(p.NewAdmin); err != nil {
		return err
	}

	previous := info.Admin
	info.Admin = p.NewAdmin
	if err := ctx.State.SetMarket(info); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventAdminChanged,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"previous": previous, "admin": p.NewAdmin},
		})
	}
	return nil
}

func emitAssigned(ctx *vm.Context, to string, idx uint64) {
	if ctx.Emitter == nil {
		return
	}
	ctx.Emitter.Emit(events.Event{
		Type:        events.EventPunkAssigned,
		TxID:        ctx.Tx.ID,
		BlockHeight: ctx.Block.Header.Height,
		Data:        map[string]any{"punk_index": idx, "owner": to},
	})
}

func emitTransfer(ctx *vm.Context, from, to string, idx uint64) {
	if ctx.Emitter == nil {
		return
	}
	ctx.Emitter.Emit(events.Event{
		Type:        events.EventPunkTransfer,
		TxID:        ctx.Tx.ID,
		BlockHeight: ctx.Block.Header.Height,
		Data:        map[string]any{"punk_index": idx, "from": from, "to": to},
	})
}
