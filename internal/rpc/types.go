package rpc

import (
	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeProgramError   = -32010
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ProgramErrorData is attached to CodeProgramError responses so clients can
// tell retryable failures from parameter and permission errors.
type ProgramErrorData struct {
	Kind      string `json:"kind"`
	Class     string `json:"class"`
	Retryable bool   `json:"retryable"`
}

// ── Param types ─────────────────────────────────────────────────────────

// SubmitParam is used by program_submit.
type SubmitParam struct {
	Transaction string `json:"transaction"` // Hex of the borsh wire encoding.
}

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// TokenParam selects a token by record address or by mint.
type TokenParam struct {
	Address string `json:"address,omitempty"`
	Mint    string `json:"mint,omitempty"`
}

// QuoteBuyParam is used by token_quoteBuy.
type QuoteBuyParam struct {
	Address  string `json:"address"`
	AmountIn uint64 `json:"amount_in"`
}

// QuoteSellParam is used by token_quoteSell.
type QuoteSellParam struct {
	Address  string `json:"address"`
	TokensIn uint64 `json:"tokens_in"`
}

// HoldingParam is used by token_getHolding.
type HoldingParam struct {
	Mint  string `json:"mint"`
	Owner string `json:"owner"`
}

// AllocationParam is used by launch_getAllocation.
type AllocationParam struct {
	Mint        string `json:"mint"`
	Participant string `json:"participant"`
}

// CreatorParam is used by token_nextRecord.
type CreatorParam struct {
	Creator string `json:"creator"`
}

// LimitParam is used by list endpoints.
type LimitParam struct {
	Limit int `json:"limit"`
}

// ── Result types ────────────────────────────────────────────────────────

// ConfigResult is the public program configuration.
type ConfigResult struct {
	ProgramID   types.Address      `json:"program_id"`
	Name        string             `json:"name"`
	Hash        string             `json:"hash"`
	Authorities config.Authorities `json:"authorities"`
	Fees        config.FeeRules    `json:"fees"`
	Mint        config.MintRules   `json:"mint"`
	Curve       config.CurveRules  `json:"curve"`
	Launch      config.LaunchRules `json:"launch"`
}

// TokenResult is a token record with its current price.
type TokenResult struct {
	*state.TokenRecord
	Price       uint64 `json:"price"`
	PriceScaled uint64 `json:"price_scaled"` // Price times curve.PriceScale.
	MarketCap   uint64 `json:"market_cap"`
}

// TokenListResult is returned by token_list.
type TokenListResult struct {
	Tokens []TokenResult `json:"tokens"`
	Count  int           `json:"count"`
}

// BalanceResult is returned by account_getBalance.
type BalanceResult struct {
	Address types.Address `json:"address"`
	Balance uint64        `json:"balance"`
}

// HoldingResult is returned by token_getHolding.
type HoldingResult struct {
	Account types.Address `json:"account"`
	Mint    types.Address `json:"mint"`
	Owner   types.Address `json:"owner"`
	Amount  uint64        `json:"amount"`
}

// AllocationResult is returned by launch_getAllocation.
type AllocationResult struct {
	Account     types.Address `json:"account"`
	Mint        types.Address `json:"mint"`
	Participant types.Address `json:"participant"`
	Amount      uint64        `json:"amount"`
	Remaining   uint64        `json:"remaining"` // Lesser of wallet and global headroom; 0 outside a launch.
}

// NextRecordResult is returned by token_nextRecord.
type NextRecordResult struct {
	Mint   types.Address `json:"mint"`
	Record types.Address `json:"record"`
}
