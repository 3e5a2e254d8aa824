package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/pumpbox/internal/curve"
	"github.com/Klingon-tech/pumpbox/internal/events"
	"github.com/Klingon-tech/pumpbox/internal/mint"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// defaultEventLimit caps program_recentEvents when no limit is given.
const defaultEventLimit = 50

// ── Program endpoints ───────────────────────────────────────────────────

func (s *Server) handleProgramSubmit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params SubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}
	raw, err := hex.DecodeString(params.Transaction)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid transaction: must be hex"}
	}

	rcpt, err := s.rt.Submit(ctx, raw)
	if err != nil {
		return nil, programError(err)
	}
	return rcpt, nil
}

func (s *Server) handleProgramGetConfig(_ *Request) (interface{}, *Error) {
	cfg := s.rt.Config()
	hash, err := cfg.Hash()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &ConfigResult{
		ProgramID:   cfg.ProgramID,
		Name:        cfg.Name,
		Hash:        hash.String(),
		Authorities: cfg.Authorities,
		Fees:        cfg.Fees,
		Mint:        cfg.Mint,
		Curve:       cfg.Curve,
		Launch:      cfg.Launch,
	}, nil
}

func (s *Server) handleProgramRecentEvents(req *Request) (interface{}, *Error) {
	if s.recorder == nil {
		return nil, &Error{Code: CodeNotFound, Message: "event history not enabled"}
	}
	limit := defaultEventLimit
	if req.Params != nil {
		var params LimitParam
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
		if params.Limit > 0 {
			limit = params.Limit
		}
	}
	evs := s.recorder.Recent(limit)
	if evs == nil {
		evs = []*events.Event{}
	}
	return evs, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGet(req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	rec, rpcErr := s.lookupToken(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return newTokenResult(rec), nil
}

func (s *Server) handleTokenList(_ *Request) (interface{}, *Error) {
	recs, err := s.rt.Store().Records()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	out := make([]TokenResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newTokenResult(rec))
	}
	return &TokenListResult{Tokens: out, Count: len(out)}, nil
}

func (s *Server) handleTokenNextRecord(req *Request) (interface{}, *Error) {
	var params CreatorParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	m, rec, err := mint.NextRecord(s.rt.Store(), s.rt.Config().ProgramID, creator)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &NextRecordResult{Mint: m, Record: rec}, nil
}

func (s *Server) handleTokenQuoteBuy(req *Request) (interface{}, *Error) {
	var params QuoteBuyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	rec, rpcErr := s.lookupToken(TokenParam{Address: params.Address})
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := curve.CheckTradable(rec); err != nil {
		return nil, programError(err)
	}
	q, err := curve.QuoteBuy(rec.Curve, rec.Supply, params.AmountIn, s.rt.Config().Fees.TradeFeeBps)
	if err != nil {
		return nil, programError(err)
	}
	return q, nil
}

func (s *Server) handleTokenQuoteSell(req *Request) (interface{}, *Error) {
	var params QuoteSellParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	rec, rpcErr := s.lookupToken(TokenParam{Address: params.Address})
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := curve.CheckTradable(rec); err != nil {
		return nil, programError(err)
	}
	q, err := curve.QuoteSell(rec.Curve, rec.Supply, params.TokensIn, s.rt.Config().Fees.TradeFeeBps)
	if err != nil {
		return nil, programError(err)
	}
	if q.Gross > rec.Reserve {
		return nil, programError(fmt.Errorf("%w: need %d, reserve %d", state.ErrInsufficientReserve, q.Gross, rec.Reserve))
	}
	return q, nil
}

func (s *Server) handleTokenGetHolding(req *Request) (interface{}, *Error) {
	var params HoldingParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	mintAddr, rpcErr := parseAddress("mint", params.Mint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}

	acct, err := state.HoldingAddress(s.rt.Config().ProgramID, mintAddr, owner)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	h, err := s.rt.Store().Holding(acct)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &HoldingResult{Account: acct, Mint: mintAddr, Owner: owner, Amount: h.Amount}, nil
}

// ── Account endpoints ───────────────────────────────────────────────────

func (s *Server) handleAccountGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.rt.Store().Balance(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr, Balance: bal}, nil
}

// ── Launch endpoints ────────────────────────────────────────────────────

func (s *Server) handleLaunchGetAllocation(req *Request) (interface{}, *Error) {
	var params AllocationParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	mintAddr, rpcErr := parseAddress("mint", params.Mint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, rpcErr := s.lookupToken(TokenParam{Mint: params.Mint})
	if rpcErr != nil {
		return nil, rpcErr
	}

	acct, err := state.AllocationAddress(s.rt.Config().ProgramID, mintAddr, participant)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	a, err := s.rt.Store().Allocation(acct)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	res := &AllocationResult{Account: acct, Mint: mintAddr, Participant: participant, Amount: a.Amount}
	if l := rec.Launch; rec.Phase == types.PhaseFairLaunch && l != nil &&
		l.PerWalletCap > a.Amount && l.GlobalCap > l.Allocated {
		res.Remaining = min(l.PerWalletCap-a.Amount, l.GlobalCap-l.Allocated)
	}
	return res, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

// lookupToken resolves a record by address, or by mint when no address is
// given.
func (s *Server) lookupToken(p TokenParam) (*state.TokenRecord, *Error) {
	var (
		rec *state.TokenRecord
		err error
	)
	switch {
	case p.Address != "":
		addr, rpcErr := parseAddress("address", p.Address)
		if rpcErr != nil {
			return nil, rpcErr
		}
		rec, err = s.rt.Store().Record(addr)
	case p.Mint != "":
		m, rpcErr := parseAddress("mint", p.Mint)
		if rpcErr != nil {
			return nil, rpcErr
		}
		rec, err = s.rt.Store().RecordByMint(s.rt.Config().ProgramID, m)
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: "address or mint is required"}
	}
	if errors.Is(err, state.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: "token not found"}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return rec, nil
}

func parseAddress(field, s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}

func newTokenResult(rec *state.TokenRecord) TokenResult {
	res := TokenResult{TokenRecord: rec}
	// Pricing a stored record only fails on corrupt curve data; leave zero.
	if p, err := curve.SpotPrice(rec.Curve, rec.Supply); err == nil {
		res.Price = p
	}
	if p, err := curve.SpotPriceScaled(rec.Curve, rec.Supply); err == nil {
		res.PriceScaled = p
	}
	if m, err := curve.MarketCap(rec.Curve, rec.Supply); err == nil {
		res.MarketCap = m
	}
	return res
}
