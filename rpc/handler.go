package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/punkchain/core"
	"github.com/tolelom/punkchain/indexer"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getPunk":
		return h.getPunk(req)

	case "getMarketInfo":
		return h.getMarketInfo(req)

	case "getPunksByOwner":
		return h.getPunksByOwner(req)

	case "getTradeHistory":
		return h.getTradeHistory(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	pending, err := h.state.GetPending(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address": params.Address,
		"balance": acc.Spendable().Dec(),
		"pending": pending.Dec(),
		"punks":   acc.Punks,
		"nonce":   acc.Nonce,
	})
}

// getPunk returns the full market view of one punk: its owner plus the
// current offer and bid records.
func (h *Handler) getPunk(req Request) Response {
	var params struct {
		PunkIndex uint64 `json:"punk_index"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if !core.ValidPunkIndex(params.PunkIndex) {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("punk index %d out of range", params.PunkIndex))
	}
	owner, err := h.state.GetPunkOwner(params.PunkIndex)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	offer, err := h.state.GetOffer(params.PunkIndex)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	bid, err := h.state.GetBid(params.PunkIndex)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"punk_index": params.PunkIndex,
		"owner":      owner,
		"assigned":   owner != "",
		"offer":      offer,
		"bid":        bid,
	})
}

func (h *Handler) getMarketInfo(req Request) Response {
	info, err := h.state.GetMarket()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, info)
}

func (h *Handler) getPunksByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner is required")
	}
	ids, err := h.indexer.PunksByOwner(params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

// getTradeHistory returns trades for one punk when punk_index is given,
// otherwise the most recent trades market-wide.
func (h *Handler) getTradeHistory(req Request) Response {
	var params struct {
		PunkIndex *uint64 `json:"punk_index"`
		Limit     int     `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var trades []indexer.Trade
	var err error
	if params.PunkIndex != nil {
		trades, err = h.indexer.TradesForPunk(*params.PunkIndex, limit)
	} else {
		trades, err = h.indexer.RecentTrades(limit)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, trades)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
