package tests

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/events"
	"github.com/tolelom/punkchain/indexer"
	"github.com/tolelom/punkchain/internal/testutil"
	"github.com/tolelom/punkchain/rpc"
	"github.com/tolelom/punkchain/storage"
	"github.com/tolelom/punkchain/wallet"
)

// newTestRPCHandler builds an RPC handler backed by in-memory state.
func newTestRPCHandler(t *testing.T) *rpc.Handler {
	t.Helper()
	state := storage.NewStateDB(testutil.NewMemDB())
	blockStore := testutil.NewMemBlockStore()
	bc := core.NewBlockchain(blockStore)
	mp := core.NewMempool()
	emitter := events.NewEmitter()
	idx, err := indexer.New(t.TempDir()+"/index.db", emitter)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return rpc.NewHandler(bc, mp, state, idx, testChainID)
}

func dispatch(handler *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

// TestRPCGetBlockHeight verifies that getBlockHeight returns 0 for a fresh chain.
func TestRPCGetBlockHeight(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getBlockHeight", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	// Dispatch is called directly (no HTTP round-trip), so result is int64, not float64.
	var height int64
	switch v := resp.Result.(type) {
	case int64:
		height = v
	case float64:
		height = int64(v)
	default:
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if height != 0 {
		t.Errorf("height: got %d want 0", height)
	}
}

// TestRPCGetBalance verifies getBalance returns zeros for an unknown account.
func TestRPCGetBalance(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getBalance", map[string]string{"address": "nonexistent"})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if result["balance"] != "0" || result["pending"] != "0" {
		t.Errorf("zero account expected, got %v", result)
	}
}

// TestRPCGetPunk verifies the punk view for an unassigned index and the
// range check.
func TestRPCGetPunk(t *testing.T) {
	handler := newTestRPCHandler(t)

	resp := dispatch(handler, "getPunk", map[string]uint64{"punk_index": 1234})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	result := resp.Result.(map[string]any)
	if result["assigned"] != false || result["owner"] != "" {
		t.Errorf("unassigned punk expected, got %v", result)
	}

	resp = dispatch(handler, "getPunk", map[string]uint64{"punk_index": core.TotalPunks})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("out-of-range index should return invalid params, got %+v", resp)
	}
}

// TestRPCGetMarketInfo verifies the fresh-market defaults.
func TestRPCGetMarketInfo(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getMarketInfo", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	info, ok := resp.Result.(*core.MarketInfo)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if info.AllAssigned || info.RemainingToAssign != core.TotalPunks {
		t.Errorf("fresh market expected, got %+v", info)
	}
}

// TestRPCSendTxChainMismatch verifies cross-chain transactions are rejected.
func TestRPCSendTxChainMismatch(t *testing.T) {
	handler := newTestRPCHandler(t)
	w, _ := wallet.Generate()
	tx, _ := w.ClaimPunk("other-chain", 1, 0, 0)

	raw, _ := json.Marshal(tx)
	resp := handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: "sendTx", Params: raw})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("chain mismatch should be rejected, got %+v", resp)
	}
}

// TestRPCGetMempoolSize verifies getMempoolSize returns 0 for an empty mempool.
func TestRPCGetMempoolSize(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "getMempoolSize", struct{}{})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error.Message)
	}
	size, ok := resp.Result.(int)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if size != 0 {
		t.Errorf("mempool size: got %d want 0", size)
	}
}

// TestRPCMethodNotFound verifies that unknown methods return a -32601 error.
func TestRPCMethodNotFound(t *testing.T) {
	handler := newTestRPCHandler(t)
	resp := dispatch(handler, "nonExistentMethod", struct{}{})
	if resp.Error == nil {
		t.Error("expected error for unknown method")
	}
	if resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeMethodNotFound)
	}
}
