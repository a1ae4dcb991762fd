package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/internal/earnings"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/payout"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
)

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

func itemIDs(ids []uint64) []types.ItemID {
	out := make([]types.ItemID, len(ids))
	for i, id := range ids {
		out[i] = types.ItemID(id)
	}
	return out
}

// requireOperator checks that caller is the configured operator.
func (s *Server) requireOperator(caller types.Address) *Error {
	if s.backend.Operator.IsZero() {
		return &Error{Code: CodeRejected, Message: "operator methods are disabled on this node"}
	}
	if caller != s.backend.Operator {
		return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf("%s is not the operator", caller)}
	}
	return nil
}

// ── Provenance ──────────────────────────────────────────────────────────

func (s *Server) handleProvenanceGetInfo(req *Request) (interface{}, *Error) {
	return s.backend.Provenance.Info(), nil
}

func (s *Server) handleProvenanceGetItem(req *Request) (interface{}, *Error) {
	var params ItemParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	e, prev, ok := s.backend.Provenance.Entry(types.ItemID(params.ID))
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("item %d not committed", params.ID)}
	}
	return &ProvenanceItemResult{Entry: e, PrevRunning: prev}, nil
}

func (s *Server) handleProvenanceVerify(req *Request) (interface{}, *Error) {
	res := &VerifyResult{Valid: true, Length: s.backend.Provenance.Len()}
	if err := s.backend.Provenance.Audit(); err != nil {
		res.Valid = false
		res.Error = err.Error()
		var mm *provenance.MismatchError
		if errors.As(err, &mm) {
			idx := mm.Index
			res.Index = &idx
		}
		klog.RPC.Warn().Err(err).Msg("Provenance audit failed")
	}
	return res, nil
}

// provenance_initialize takes a Publication; its signature authenticates the
// operator, so no request envelope is needed.
func (s *Server) handleProvenanceInitialize(req *Request) (interface{}, *Error) {
	if s.backend.Operator.IsZero() {
		return nil, &Error{Code: CodeRejected, Message: "operator methods are disabled on this node"}
	}
	var pub provenance.Publication
	if err := parseParams(req, &pub); err != nil {
		return nil, err
	}
	if err := s.backend.Provenance.InitializePublished(&pub, s.backend.Operator); err != nil {
		return nil, mapError(err)
	}
	return s.backend.Provenance.Info(), nil
}

// ── Collection ──────────────────────────────────────────────────────────

func (s *Server) itemResult(id types.ItemID) (*ItemResult, *Error) {
	it, ok := s.backend.Collection.Item(id)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("item %d not found", id)}
	}
	res := &ItemResult{Item: it}
	if uri, err := s.backend.Collection.TokenURI(id); err == nil {
		res.TokenURI = uri
	}
	if _, staked, err := s.backend.Ledger.StakeInfo(id); err == nil {
		res.Staked = staked
	}
	return res, nil
}

func (s *Server) handleCollectionMint(req *Request) (interface{}, *Error) {
	var payload MintPayload
	caller, rpcErr := s.parseSigned(req, &payload)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireOperator(caller); rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", payload.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	it, err := s.backend.Collection.Mint(to, types.ItemID(payload.ID), payload.Rarity, payload.ItemHash, payload.RunningHash)
	if err != nil {
		return nil, mapError(err)
	}
	return s.itemResult(it.ID)
}

func (s *Server) handleCollectionTransfer(req *Request) (interface{}, *Error) {
	var payload TransferPayload
	caller, rpcErr := s.parseSigned(req, &payload)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", payload.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id := types.ItemID(payload.ID)
	if err := s.backend.Collection.Transfer(id, caller, to); err != nil {
		return nil, mapError(err)
	}
	return s.itemResult(id)
}

func (s *Server) handleCollectionOwnerOf(req *Request) (interface{}, *Error) {
	var params ItemParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, err := s.backend.Collection.OwnerOf(types.ItemID(params.ID))
	if err != nil {
		return nil, mapError(err)
	}
	return &OwnerResult{ID: params.ID, Owner: owner.String()}, nil
}

func (s *Server) handleCollectionGetItem(req *Request) (interface{}, *Error) {
	var params ItemParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	return s.itemResult(types.ItemID(params.ID))
}

// ── Staking ─────────────────────────────────────────────────────────────

func (s *Server) handleStakingStake(req *Request) (interface{}, *Error) {
	var payload ItemsPayload
	caller, rpcErr := s.parseSigned(req, &payload)
	if rpcErr != nil {
		return nil, rpcErr
	}
	settlement, err := s.backend.Ledger.Stake(caller, itemIDs(payload.IDs))
	if err != nil {
		return nil, mapError(err)
	}
	return &StakeOpResult{Holder: caller.String(), IDs: payload.IDs, Settlement: newSettlementResult(settlement)}, nil
}

func (s *Server) handleStakingUnstake(req *Request) (interface{}, *Error) {
	var payload ItemsPayload
	caller, rpcErr := s.parseSigned(req, &payload)
	if rpcErr != nil {
		return nil, rpcErr
	}
	settlement, err := s.backend.Ledger.Unstake(caller, itemIDs(payload.IDs))
	if err != nil {
		return nil, mapError(err)
	}
	return &StakeOpResult{Holder: caller.String(), IDs: payload.IDs, Settlement: newSettlementResult(settlement)}, nil
}

func (s *Server) handleStakingClaim(req *Request) (interface{}, *Error) {
	var payload ClaimPayload
	caller, rpcErr := s.parseSigned(req, &payload)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.backend.Ledger.Claim(caller)
	if err != nil {
		return nil, mapError(err)
	}
	return &ClaimResult{
		Holder:  caller.String(),
		Claimed: NewAmount(amount),
		Balance: NewAmount(s.backend.Token.BalanceOf(caller)),
	}, nil
}

func (s *Server) handleStakingSetPayouts(req *Request) (interface{}, *Error) {
	settlement, err := s.backend.Ledger.SetPayouts()
	if err != nil {
		return nil, mapError(err)
	}
	return newSettlementResult(settlement), nil
}

func (s *Server) handleStakingGetPayout(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	preview, err := s.backend.Ledger.PreviewPayout(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return &PayoutQueryResult{
		Address: addr.String(),
		Settled: NewAmount(s.backend.Ledger.Payout(addr)),
		Preview: NewAmount(preview),
	}, nil
}

func (s *Server) earningsResult(amount func() Amount) *EarningsResult {
	l := s.backend.Ledger
	now := l.Now()
	var elapsed uint64
	if start := l.ContractStart(); now > start {
		elapsed = now - start
	}
	return &EarningsResult{Now: now, Elapsed: elapsed, Amount: amount()}
}

func (s *Server) handleStakingGetEarnings(req *Request) (interface{}, *Error) {
	return s.earningsResult(func() Amount { return NewAmount(s.backend.Ledger.Earnings()) }), nil
}

func (s *Server) handleStakingGetEarningsForEra(req *Request) (interface{}, *Error) {
	return s.earningsResult(func() Amount { return NewAmount(s.backend.Ledger.EarningsForEra()) }), nil
}

func (s *Server) handleStakingGetTotalStaked(req *Request) (interface{}, *Error) {
	return s.backend.Ledger.TotalStaked(), nil
}

func (s *Server) handleStakingGetStake(req *Request) (interface{}, *Error) {
	var params ItemParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	st, ok, err := s.backend.Ledger.StakeInfo(types.ItemID(params.ID))
	if err != nil {
		return nil, mapError(err)
	}
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("item %d is not staked", params.ID)}
	}
	return newStakeResult(st), nil
}

func (s *Server) handleStakingGetStakes(req *Request) (interface{}, *Error) {
	var params StakesParam
	if hasParams(req) {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}

	l := s.backend.Ledger
	ranked, err := l.Ranks()
	if params.Address != "" {
		addr, rpcErr := parseAddress("address", params.Address)
		if rpcErr != nil {
			return nil, rpcErr
		}
		ranked, err = l.StakesOf(addr)
	}
	if err != nil {
		return nil, mapError(err)
	}

	res := &StakesResult{Total: l.TotalStaked(), Stakes: make([]StakeResult, 0, len(ranked))}
	for _, st := range ranked {
		res.Stakes = append(res.Stakes, newStakeResult(st))
	}
	return res, nil
}

func (s *Server) handleStakingGetTotals(req *Request) (interface{}, *Error) {
	l := s.backend.Ledger
	t := l.Totals()
	curve := l.Curve()
	return &TotalsResult{
		ContractStart: t.ContractStart,
		LastSettledAt: t.LastSettledAt,
		Staked:        t.Staked,
		Emitted:       NewAmount(t.Emitted),
		Unallocated:   NewAmount(t.Unallocated),
		Claimed:       NewAmount(t.Claimed),
		Outstanding:   NewAmount(t.Outstanding),
		P0:            NewAmount(curve.P0()),
		PTotal:        NewAmount(curve.Total()),
		Custody:       l.Custody().String(),
	}, nil
}

// ── Token ───────────────────────────────────────────────────────────────

func (s *Server) handleTokenGetInfo(req *Request) (interface{}, *Error) {
	tok := s.backend.Token
	meta := tok.Metadata()
	res := &TokenInfoResult{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: NewAmount(tok.TotalSupply()),
	}
	for _, c := range tok.Controllers() {
		res.Controllers = append(res.Controllers, c.String())
	}
	return res, nil
}

func (s *Server) handleTokenGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &TokenBalanceResult{
		Address: addr.String(),
		Balance: NewAmount(s.backend.Token.BalanceOf(addr)),
	}, nil
}

// ── Math ────────────────────────────────────────────────────────────────

func (s *Server) handleMathCalculateEarnings(req *Request) (interface{}, *Error) {
	var params EarningsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	p0, err := fixed.Parse(params.P0)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid p0: %v", err)}
	}
	total, err := fixed.Parse(params.PTotal)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid pTotal: %v", err)}
	}
	e, err := earnings.Earnings(params.T, p0, total)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return NewAmount(e), nil
}

func (s *Server) handleMathCalculatePayoutRatio(req *Request) (interface{}, *Error) {
	var params RatioParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	ratio, err := payout.Ratio(params.Rank, params.N)
	if params.RankSum != "" {
		sum, perr := fixed.ParseUnits(params.RankSum)
		if perr != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid rankSum: %v", perr)}
		}
		ratio, err = payout.RatioWithSum(params.Rank, params.N, sum)
	}
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &RatioResult{Rank: params.Rank, N: params.N, Ratio: NewAmount(ratio)}, nil
}
