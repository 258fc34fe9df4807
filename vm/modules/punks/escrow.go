package punks

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/events"
	"github.com/tolelom/punkchain/vm"
)

func handleWithdraw(ctx *vm.Context, payload json.RawMessage) error {
	amount, err := payOut(ctx.State, ctx.Tx.From)
	if err != nil {
		return err
	}
	emitWithdrawal(ctx, ctx.Tx.From, amount, false)
	return nil
}

// handleSweepWithdrawal lets the admin force payout of a stuck pending
// balance. The proceeds always go to the account that earned them; the
// admin only triggers the release.
func handleSweepWithdrawal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SweepWithdrawalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode sweep_withdrawal payload: %w", err)
	}

	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := validRecipient(p.Address); err != nil {
		return err
	}

	amount, err := payOut(ctx.State, p.Address)
	if err != nil {
		return err
	}
	emitWithdrawal(ctx, p.Address, amount, true)
	return nil
}

// payOut drains the account's pending balance into its spendable balance.
// The pending balance is zeroed before the credit so a reentrant observer
// can never see the funds in both places.
func payOut(st core.State, address string) (*uint256.Int, error) {
	pending, err := st.GetPending(address)
	if err != nil {
		return nil, err
	}
	if pending.IsZero() {
		return nil, core.ErrNoPendingWithdrawal
	}

	if err := st.SetPending(address, uint256.NewInt(0)); err != nil {
		return nil, err
	}
	acc, err := st.GetAccount(address)
	if err != nil {
		return nil, err
	}
	balance := acc.Spendable()
	balance.Add(balance, pending)
	if err := st.SetAccount(acc); err != nil {
		return nil, err
	}
	return pending, nil
}

func emitWithdrawal(ctx *vm.Context, address string, amount *uint256.Int, swept bool) {
	if ctx.Emitter == nil {
		return
	}
	ctx.Emitter.Emit(events.Event{
		Type:        events.EventWithdrawal,
		TxID:        ctx.Tx.ID,
		BlockHeight: ctx.Block.Header.Height,
		Data: map[string]any{
			"address": address,
			"amount":  amount.Dec(),
			"swept":   swept,
		},
	})
}
