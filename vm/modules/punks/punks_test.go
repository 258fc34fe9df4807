package punks

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/events"
	"github.com/tolelom/punkchain/internal/testutil"
	"github.com/tolelom/punkchain/vm"
	"github.com/tolelom/punkchain/wallet"
)

const chainID = "punk-test"

// actor pairs a wallet with its account nonce so tests read naturally.
type actor struct {
	*wallet.Wallet
	nonce uint64
}

type env struct {
	t     *testing.T
	state core.State
	exec  *vm.Executor
	block *core.Block
	admin *actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	state := testutil.NewStateDB()
	exec := vm.NewExecutor(state, events.NewEmitter())

	admin := newActor(t)
	if err := state.SetMarket(&core.MarketInfo{
		Admin:             admin.PubKey(),
		RemainingToAssign: core.TotalPunks,
	}); err != nil {
		t.Fatal(err)
	}

	e := &env{
		t:     t,
		state: state,
		exec:  exec,
		block: core.NewBlock(1, "0000", admin.PubKey(), nil),
		admin: admin,
	}
	e.fund(admin, 0)
	return e
}

func newActor(t *testing.T) *actor {
	t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return &actor{Wallet: w}
}

func (e *env) fund(a *actor, balance uint64) {
	e.t.Helper()
	if err := e.state.SetAccount(&core.Account{
		Address: a.PubKey(),
		Balance: uint256.NewInt(balance),
		Nonce:   a.nonce,
	}); err != nil {
		e.t.Fatal(err)
	}
}

// run executes a signed transaction and advances the actor's nonce on success.
func (e *env) run(a *actor, typ core.TxType, value *uint256.Int, payload any) error {
	e.t.Helper()
	var tx *core.Transaction
	var err error
	if value != nil {
		tx, err = a.NewPayableTx(chainID, typ, a.nonce, 0, value, payload)
	} else {
		tx, err = a.NewTx(chainID, typ, a.nonce, 0, payload)
	}
	if err != nil {
		e.t.Fatal(err)
	}
	if err := e.exec.ExecuteTx(e.block, tx); err != nil {
		return err
	}
	a.nonce++
	return nil
}

func (e *env) mustRun(a *actor, typ core.TxType, value *uint256.Int, payload any) {
	e.t.Helper()
	if err := e.run(a, typ, value, payload); err != nil {
		e.t.Fatalf("%s: %v", typ, err)
	}
}

func (e *env) wantErr(target error, a *actor, typ core.TxType, value *uint256.Int, payload any) {
	e.t.Helper()
	err := e.run(a, typ, value, payload)
	if err == nil {
		e.t.Fatalf("%s: expected error %v, got nil", typ, target)
	}
	if target != nil && !errors.Is(err, target) {
		e.t.Fatalf("%s: got %v, want %v", typ, err, target)
	}
}

func (e *env) owner(idx uint64) string {
	e.t.Helper()
	owner, err := e.state.GetPunkOwner(idx)
	if err != nil {
		e.t.Fatal(err)
	}
	return owner
}

func (e *env) pending(a *actor) uint64 {
	e.t.Helper()
	p, err := e.state.GetPending(a.PubKey())
	if err != nil {
		e.t.Fatal(err)
	}
	return p.Uint64()
}

func (e *env) balance(a *actor) uint64 {
	e.t.Helper()
	acc, err := e.state.GetAccount(a.PubKey())
	if err != nil {
		e.t.Fatal(err)
	}
	return acc.Spendable().Uint64()
}

func (e *env) market() *core.MarketInfo {
	e.t.Helper()
	info, err := e.state.GetMarket()
	if err != nil {
		e.t.Fatal(err)
	}
	return info
}

// assign gives a punk to an actor via the admin assignment path.
func (e *env) assign(to *actor, idx uint64) {
	e.t.Helper()
	e.mustRun(e.admin, core.TxSetInitialOwner, nil, core.SetInitialOwnerPayload{
		To: to.PubKey(), PunkIndex: idx,
	})
}

// TestInitialAssignment covers the admin assignment path: counter movement,
// reassignment as a correction, and the self-assignment guard.
func TestInitialAssignment(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 0)

	e.assign(alice, 0)
	if got := e.owner(0); got != alice.PubKey() {
		t.Errorf("owner: got %s want alice", got)
	}
	if got := e.market().RemainingToAssign; got != core.TotalPunks-1 {
		t.Errorf("remaining: got %d want %d", got, core.TotalPunks-1)
	}

	// Reassigning the same punk corrects the owner without double-counting.
	e.assign(bob, 0)
	if got := e.owner(0); got != bob.PubKey() {
		t.Errorf("owner after correction: got %s want bob", got)
	}
	if got := e.market().RemainingToAssign; got != core.TotalPunks-1 {
		t.Errorf("remaining after correction: got %d want %d", got, core.TotalPunks-1)
	}
	aliceAcc, _ := e.state.GetAccount(alice.PubKey())
	if aliceAcc.Punks != 0 {
		t.Errorf("alice punk count: got %d want 0", aliceAcc.Punks)
	}

	// The admin cannot assign to themselves.
	e.wantErr(core.ErrSelfAssignment, e.admin, core.TxSetInitialOwner, nil,
		core.SetInitialOwnerPayload{To: e.admin.PubKey(), PunkIndex: 1})

	// Non-admin callers are rejected.
	e.wantErr(core.ErrUnauthorized, alice, core.TxSetInitialOwner, nil,
		core.SetInitialOwnerPayload{To: bob.PubKey(), PunkIndex: 1})

	// Out-of-range index.
	e.wantErr(core.ErrOutOfRange, e.admin, core.TxSetInitialOwner, nil,
		core.SetInitialOwnerPayload{To: alice.PubKey(), PunkIndex: core.TotalPunks})
}

// TestBatchAssignmentAtomic verifies the all-or-nothing property of the
// batched form: one bad entry discards the whole batch.
func TestBatchAssignmentAtomic(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	e.fund(alice, 0)

	err := e.run(e.admin, core.TxSetInitialOwners, nil, core.SetInitialOwnersPayload{
		To:          []string{alice.PubKey(), alice.PubKey(), alice.PubKey()},
		PunkIndexes: []uint64{10, 11, core.TotalPunks}, // last entry out of range
	})
	if !errors.Is(err, core.ErrOutOfRange) {
		t.Fatalf("batch: got %v, want %v", err, core.ErrOutOfRange)
	}
	if got := e.owner(10); got != "" {
		t.Errorf("punk 10 should be unassigned after rollback, owner=%s", got)
	}
	if got := e.market().RemainingToAssign; got != core.TotalPunks {
		t.Errorf("remaining: got %d want untouched %d", got, core.TotalPunks)
	}

	// Mismatched slice lengths never reach the state.
	if err := e.run(e.admin, core.TxSetInitialOwners, nil, core.SetInitialOwnersPayload{
		To:          []string{alice.PubKey()},
		PunkIndexes: []uint64{1, 2},
	}); err == nil {
		t.Error("length mismatch should fail")
	}
}

// TestClaimPunk checks the free-claim path gated by the one-way flag.
func TestClaimPunk(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 0)

	// Claims are rejected until the admin declares assignment finished.
	e.wantErr(core.ErrNotYetAssignable, alice, core.TxClaimPunk, nil,
		core.ClaimPunkPayload{PunkIndex: 7})

	e.mustRun(e.admin, core.TxAllOwnersAssigned, nil, core.AllOwnersAssignedPayload{})
	// The flag is idempotent.
	e.mustRun(e.admin, core.TxAllOwnersAssigned, nil, core.AllOwnersAssignedPayload{})

	e.mustRun(alice, core.TxClaimPunk, nil, core.ClaimPunkPayload{PunkIndex: 7})
	if got := e.owner(7); got != alice.PubKey() {
		t.Errorf("owner: got %s want alice", got)
	}
	if got := e.market().RemainingToAssign; got != core.TotalPunks-1 {
		t.Errorf("remaining: got %d want %d", got, core.TotalPunks-1)
	}

	// A claimed punk cannot be claimed again.
	e.wantErr(core.ErrAlreadyOwned, bob, core.TxClaimPunk, nil,
		core.ClaimPunkPayload{PunkIndex: 7})

	// Assignment remains available to the admin after the flag.
	e.assign(bob, 8)
	if got := e.owner(8); got != bob.PubKey() {
		t.Errorf("post-flag assignment: got %s want bob", got)
	}
}

// TestTransferRequiresActiveOffer pins the transfer policy: a punk changes
// hands via plain transfer only while it is actively listed.
func TestTransferRequiresActiveOffer(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	mallory := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 0)
	e.fund(mallory, 0)

	e.assign(alice, 3)

	// No offer yet: even the owner cannot transfer.
	e.wantErr(core.ErrNotForSale, alice, core.TxTransferPunk, nil,
		core.TransferPunkPayload{To: bob.PubKey(), PunkIndex: 3})

	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{
		PunkIndex: 3, MinPrice: uint256.NewInt(5),
	})

	// Listed, but the caller is not the owner.
	e.wantErr(core.ErrNotTokenOwner, mallory, core.TxTransferPunk, nil,
		core.TransferPunkPayload{To: mallory.PubKey(), PunkIndex: 3})

	e.mustRun(alice, core.TxTransferPunk, nil,
		core.TransferPunkPayload{To: bob.PubKey(), PunkIndex: 3})
	if got := e.owner(3); got != bob.PubKey() {
		t.Errorf("owner: got %s want bob", got)
	}
	// The transfer invalidated the offer.
	offer, _ := e.state.GetOffer(3)
	if offer.Active {
		t.Error("offer should be inactive after transfer")
	}
}

// TestTransferRefundsStandingBid verifies escrow conservation: any active bid
// on a punk that changes hands outside the bid path is refunded.
func TestTransferRefundsStandingBid(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	carol := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 0)
	e.fund(carol, 100)

	e.assign(alice, 42)
	e.mustRun(carol, core.TxEnterBid, uint256.NewInt(30), core.EnterBidPayload{PunkIndex: 42})
	if got := e.balance(carol); got != 70 {
		t.Fatalf("carol balance after bid: got %d want 70", got)
	}

	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{PunkIndex: 42, MinPrice: uint256.NewInt(0)})
	e.mustRun(alice, core.TxTransferPunk, nil, core.TransferPunkPayload{To: bob.PubKey(), PunkIndex: 42})

	bid, _ := e.state.GetBid(42)
	if bid.Active {
		t.Error("bid should be cleared by the transfer")
	}
	if got := e.pending(carol); got != 30 {
		t.Errorf("carol refund: got %d want 30", got)
	}
}

// TestOfferLifecycle covers listing, restricted listing, and withdrawal.
func TestOfferLifecycle(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)

	e.assign(alice, 9)

	// Only the owner can list.
	e.wantErr(core.ErrNotAuthorized, bob, core.TxOfferPunk, nil,
		core.OfferPunkPayload{PunkIndex: 9, MinPrice: uint256.NewInt(1)})

	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{
		PunkIndex: 9, MinPrice: uint256.NewInt(10),
	})
	offer, _ := e.state.GetOffer(9)
	if !offer.Active || offer.MinPrice.Uint64() != 10 {
		t.Fatalf("offer not recorded: %+v", offer)
	}

	// Relisting overwrites the previous terms.
	e.mustRun(alice, core.TxOfferPunkToAddress, nil, core.OfferPunkToAddressPayload{
		PunkIndex: 9, MinPrice: uint256.NewInt(15), OnlySellTo: bob.PubKey(),
	})
	offer, _ = e.state.GetOffer(9)
	if offer.OnlySellTo != bob.PubKey() || offer.MinPrice.Uint64() != 15 {
		t.Fatalf("restricted offer not recorded: %+v", offer)
	}

	// Only the owner can delist; delisting is idempotent.
	e.wantErr(core.ErrNotAuthorized, bob, core.TxPunkNotForSale, nil,
		core.PunkNotForSalePayload{PunkIndex: 9})
	e.mustRun(alice, core.TxPunkNotForSale, nil, core.PunkNotForSalePayload{PunkIndex: 9})
	e.mustRun(alice, core.TxPunkNotForSale, nil, core.PunkNotForSalePayload{PunkIndex: 9})
	offer, _ = e.state.GetOffer(9)
	if offer.Active {
		t.Error("offer should be inactive after delisting")
	}

	// A delisted punk cannot be bought.
	e.wantErr(core.ErrNotForSale, bob, core.TxBuyPunk, uint256.NewInt(20),
		core.BuyPunkPayload{PunkIndex: 9})
}

// TestBuyPunk walks the purchase path: payment moves to the seller's escrow,
// ownership flips, and the offer dies with the sale.
func TestBuyPunk(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)

	e.assign(alice, 4)
	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{
		PunkIndex: 4, MinPrice: uint256.NewInt(20),
	})

	// Underpayment is rejected and leaves no partial state.
	e.wantErr(core.ErrPriceTooLow, bob, core.TxBuyPunk, uint256.NewInt(19),
		core.BuyPunkPayload{PunkIndex: 4})
	if got := e.balance(bob); got != 100 {
		t.Fatalf("bob balance after failed buy: got %d want 100", got)
	}

	e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(20), core.BuyPunkPayload{PunkIndex: 4})
	if got := e.owner(4); got != bob.PubKey() {
		t.Errorf("owner: got %s want bob", got)
	}
	if got := e.balance(bob); got != 80 {
		t.Errorf("bob balance: got %d want 80", got)
	}
	if got := e.pending(alice); got != 20 {
		t.Errorf("alice escrow: got %d want 20", got)
	}
	offer, _ := e.state.GetOffer(4)
	if offer.Active {
		t.Error("offer should be consumed by the sale")
	}
	bobAcc, _ := e.state.GetAccount(bob.PubKey())
	if bobAcc.Punks != 1 {
		t.Errorf("bob punk count: got %d want 1", bobAcc.Punks)
	}
}

// TestBuyPunkRestrictedToAddress checks the only-sell-to restriction.
func TestBuyPunkRestrictedToAddress(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	carol := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)
	e.fund(carol, 100)

	e.assign(alice, 5)
	e.mustRun(alice, core.TxOfferPunkToAddress, nil, core.OfferPunkToAddressPayload{
		PunkIndex: 5, MinPrice: uint256.NewInt(10), OnlySellTo: bob.PubKey(),
	})

	e.wantErr(core.ErrBuyerNotPermitted, carol, core.TxBuyPunk, uint256.NewInt(10),
		core.BuyPunkPayload{PunkIndex: 5})
	e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(10), core.BuyPunkPayload{PunkIndex: 5})
	if got := e.owner(5); got != bob.PubKey() {
		t.Errorf("owner: got %s want bob", got)
	}
}

// TestBuyPunkRefundsBuyersOwnBid: a buyer with a standing bid on the punk
// gets that bid back, otherwise they would be bidding against themselves.
func TestBuyPunkRefundsBuyersOwnBid(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)

	e.assign(alice, 6)
	e.mustRun(bob, core.TxEnterBid, uint256.NewInt(15), core.EnterBidPayload{PunkIndex: 6})
	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{PunkIndex: 6, MinPrice: uint256.NewInt(25)})
	e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(25), core.BuyPunkPayload{PunkIndex: 6})

	// 100 - 15 (bid) - 25 (purchase) spendable, 15 refunded to escrow.
	if got := e.balance(bob); got != 60 {
		t.Errorf("bob balance: got %d want 60", got)
	}
	if got := e.pending(bob); got != 15 {
		t.Errorf("bob refund: got %d want 15", got)
	}
	bid, _ := e.state.GetBid(6)
	if bid.Active {
		t.Error("bob's bid should be cleared by his purchase")
	}
}

// TestBidFlow covers entering, outbidding, and accepting bids with escrow
// accounting at every step.
func TestBidFlow(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	carol := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)
	e.fund(carol, 100)

	e.assign(alice, 2222)

	// Bids on unassigned punks are rejected.
	e.wantErr(core.ErrUnassignedPunk, bob, core.TxEnterBid, uint256.NewInt(1),
		core.EnterBidPayload{PunkIndex: 2223})
	// The owner cannot bid on their own punk.
	e.wantErr(core.ErrSelfBid, alice, core.TxEnterBid, uint256.NewInt(1),
		core.EnterBidPayload{PunkIndex: 2222})
	// A bid must carry value.
	e.wantErr(nil, bob, core.TxEnterBid, nil, core.EnterBidPayload{PunkIndex: 2222})

	e.mustRun(bob, core.TxEnterBid, uint256.NewInt(10), core.EnterBidPayload{PunkIndex: 2222})
	if got := e.balance(bob); got != 90 {
		t.Fatalf("bob balance after bid: got %d want 90", got)
	}

	// A tie keeps the incumbent.
	e.wantErr(core.ErrBidTooLow, carol, core.TxEnterBid, uint256.NewInt(10),
		core.EnterBidPayload{PunkIndex: 2222})

	// Outbidding refunds the previous bidder into escrow.
	e.mustRun(carol, core.TxEnterBid, uint256.NewInt(11), core.EnterBidPayload{PunkIndex: 2222})
	if got := e.pending(bob); got != 10 {
		t.Errorf("bob refund: got %d want 10", got)
	}
	bid, _ := e.state.GetBid(2222)
	if bid.Bidder != carol.PubKey() || bid.Amount.Uint64() != 11 {
		t.Fatalf("bid not replaced: %+v", bid)
	}

	// Only the owner accepts, and only at or above their minimum.
	e.wantErr(core.ErrNotAuthorized, bob, core.TxAcceptBid, nil,
		core.AcceptBidPayload{PunkIndex: 2222, MinPrice: uint256.NewInt(1)})
	e.wantErr(core.ErrBidBelowMinimum, alice, core.TxAcceptBid, nil,
		core.AcceptBidPayload{PunkIndex: 2222, MinPrice: uint256.NewInt(12)})

	e.mustRun(alice, core.TxAcceptBid, nil, core.AcceptBidPayload{
		PunkIndex: 2222, MinPrice: uint256.NewInt(1),
	})
	if got := e.owner(2222); got != carol.PubKey() {
		t.Errorf("owner: got %s want carol", got)
	}
	if got := e.pending(alice); got != 11 {
		t.Errorf("alice escrow: got %d want 11", got)
	}
	bid, _ = e.state.GetBid(2222)
	if bid.Active {
		t.Error("bid should be cleared by acceptance")
	}
	// Accepting again fails: there is no bid left.
	e.wantErr(core.ErrNotAuthorized, alice, core.TxAcceptBid, nil,
		core.AcceptBidPayload{PunkIndex: 2222, MinPrice: uint256.NewInt(1)})
}

// TestWithdrawBid verifies only the bidder can cancel, and the escrow flows
// back through the pending ledger.
func TestWithdrawBid(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	mallory := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 50)
	e.fund(mallory, 0)

	e.assign(alice, 77)
	e.mustRun(bob, core.TxEnterBid, uint256.NewInt(20), core.EnterBidPayload{PunkIndex: 77})

	e.wantErr(core.ErrNotAuthorized, mallory, core.TxWithdrawBid, nil,
		core.WithdrawBidPayload{PunkIndex: 77})

	e.mustRun(bob, core.TxWithdrawBid, nil, core.WithdrawBidPayload{PunkIndex: 77})
	if got := e.pending(bob); got != 20 {
		t.Errorf("bob refund: got %d want 20", got)
	}
	bid, _ := e.state.GetBid(77)
	if bid.Active {
		t.Error("bid should be inactive after withdrawal")
	}
	// Nothing left to withdraw.
	e.wantErr(core.ErrNotAuthorized, bob, core.TxWithdrawBid, nil,
		core.WithdrawBidPayload{PunkIndex: 77})
}

// TestWithdrawals covers the self-claim and the admin sweep of the escrow
// ledger, including the empty-ledger edge.
func TestWithdrawals(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)

	// Nothing pending yet.
	e.wantErr(core.ErrNoPendingWithdrawal, alice, core.TxWithdraw, nil, core.WithdrawPayload{})

	e.assign(alice, 1)
	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{PunkIndex: 1, MinPrice: uint256.NewInt(40)})
	e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(40), core.BuyPunkPayload{PunkIndex: 1})

	e.mustRun(alice, core.TxWithdraw, nil, core.WithdrawPayload{})
	if got := e.balance(alice); got != 40 {
		t.Errorf("alice balance: got %d want 40", got)
	}
	if got := e.pending(alice); got != 0 {
		t.Errorf("alice escrow: got %d want 0", got)
	}
	// The ledger drains completely; a second withdraw has nothing to pay.
	e.wantErr(core.ErrNoPendingWithdrawal, alice, core.TxWithdraw, nil, core.WithdrawPayload{})
}

// TestSweepWithdrawal checks the admin-triggered release: funds always land
// in the account that earned them, never the admin's.
func TestSweepWithdrawal(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	e.fund(alice, 0)
	e.fund(bob, 100)

	e.assign(alice, 12)
	e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{PunkIndex: 12, MinPrice: uint256.NewInt(25)})
	e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(25), core.BuyPunkPayload{PunkIndex: 12})

	// Only the admin can sweep.
	e.wantErr(core.ErrUnauthorized, bob, core.TxSweepWithdrawal, nil,
		core.SweepWithdrawalPayload{Address: alice.PubKey()})
	// Sweeping an empty ledger fails.
	e.wantErr(core.ErrNoPendingWithdrawal, e.admin, core.TxSweepWithdrawal, nil,
		core.SweepWithdrawalPayload{Address: bob.PubKey()})

	e.mustRun(e.admin, core.TxSweepWithdrawal, nil,
		core.SweepWithdrawalPayload{Address: alice.PubKey()})
	if got := e.balance(alice); got != 25 {
		t.Errorf("alice balance after sweep: got %d want 25", got)
	}
	if got := e.balance(e.admin); got != 0 {
		t.Errorf("admin must not receive swept funds, got %d", got)
	}
}

// TestSetMarketAdmin verifies the handover and that the old admin loses
// their privileges immediately.
func TestSetMarketAdmin(t *testing.T) {
	e := newEnv(t)
	successor := newActor(t)
	alice := newActor(t)
	e.fund(successor, 0)
	e.fund(alice, 0)

	e.wantErr(core.ErrUnauthorized, alice, core.TxSetMarketAdmin, nil,
		core.SetMarketAdminPayload{NewAdmin: alice.PubKey()})

	e.mustRun(e.admin, core.TxSetMarketAdmin, nil,
		core.SetMarketAdminPayload{NewAdmin: successor.PubKey()})
	if got := e.market().Admin; got != successor.PubKey() {
		t.Fatalf("admin: got %s want successor", got)
	}

	// The previous admin is now an ordinary account.
	e.wantErr(core.ErrUnauthorized, e.admin, core.TxAllOwnersAssigned, nil,
		core.AllOwnersAssignedPayload{})
	e.mustRun(successor, core.TxAllOwnersAssigned, nil, core.AllOwnersAssignedPayload{})
}

// TestCurrencyConservation runs a mixed scenario and checks that spendable
// balances, escrowed bids, and pending withdrawals always sum to the amount
// that entered the system.
func TestCurrencyConservation(t *testing.T) {
	e := newEnv(t)
	alice := newActor(t)
	bob := newActor(t)
	carol := newActor(t)
	actors := []*actor{e.admin, alice, bob, carol}
	e.fund(alice, 100)
	e.fund(bob, 100)
	e.fund(carol, 100)
	const total = 300

	sum := func() uint64 {
		var s uint64
		for _, a := range actors {
			s += e.balance(a) + e.pending(a)
		}
		for _, idx := range []uint64{50, 51} {
			bid, err := e.state.GetBid(idx)
			if err != nil {
				t.Fatal(err)
			}
			if bid.Active {
				s += bid.Amount.Uint64()
			}
		}
		return s
	}

	e.assign(alice, 50)
	e.assign(alice, 51)
	steps := []func(){
		func() {
			e.mustRun(bob, core.TxEnterBid, uint256.NewInt(30), core.EnterBidPayload{PunkIndex: 50})
		},
		func() {
			e.mustRun(carol, core.TxEnterBid, uint256.NewInt(35), core.EnterBidPayload{PunkIndex: 50})
		},
		func() {
			e.mustRun(alice, core.TxAcceptBid, nil, core.AcceptBidPayload{PunkIndex: 50, MinPrice: uint256.NewInt(1)})
		},
		func() {
			e.mustRun(alice, core.TxOfferPunk, nil, core.OfferPunkPayload{PunkIndex: 51, MinPrice: uint256.NewInt(20)})
		},
		func() {
			e.mustRun(bob, core.TxBuyPunk, uint256.NewInt(22), core.BuyPunkPayload{PunkIndex: 51})
		},
		func() { e.mustRun(alice, core.TxWithdraw, nil, core.WithdrawPayload{}) },
		func() { e.mustRun(bob, core.TxWithdraw, nil, core.WithdrawPayload{}) },
	}
	for i, step := range steps {
		step()
		if got := sum(); got != total {
			t.Fatalf("step %d: conservation violated, got %d want %d", i, got, total)
		}
	}
}
