package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/locker/internal/collection"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/holiman/uint256"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001 // precondition violated; state unchanged
	CodeUnauthorized   = -32002 // missing, expired or bad request signature
)

// Request is a JSON-RPC 2.0 request. Params are kept raw so signed
// payloads are verified over the exact bytes the client sent.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
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

func (e *Error) Error() string {
	return e.Message
}

// ── Param types ─────────────────────────────────────────────────────────

// ItemParam is used by endpoints that take a single item id.
type ItemParam struct {
	ID uint64 `json:"id"`
}

// AddressParam is used by balance and payout queries.
type AddressParam struct {
	Address string `json:"address"`
}

// StakesParam filters staking_getStakes; an empty address lists every stake.
type StakesParam struct {
	Address string `json:"address,omitempty"`
}

// ItemsPayload is the signed payload of staking_stake and staking_unstake.
type ItemsPayload struct {
	IDs []uint64 `json:"ids"`
}

// ClaimPayload is the signed payload of staking_claim. Nonce lets a client
// issue two claims within one expiry window.
type ClaimPayload struct {
	Nonce uint64 `json:"nonce,omitempty"`
}

// TransferPayload is the signed payload of collection_transfer.
type TransferPayload struct {
	To string `json:"to"`
	ID uint64 `json:"id"`
}

// MintPayload is the operator-signed payload of collection_mint.
type MintPayload struct {
	To          string     `json:"to"`
	ID          uint64     `json:"id"`
	Rarity      uint64     `json:"rarity"`
	ItemHash    types.Hash `json:"itemHash"`
	RunningHash types.Hash `json:"runningHash"`
}

// EarningsParam is used by math_calculateEarnings. Rates are decimal
// token strings.
type EarningsParam struct {
	T      uint64 `json:"t"`
	P0     string `json:"p0"`
	PTotal string `json:"pTotal"`
}

// RatioParam is used by math_calculatePayoutRatio.
type RatioParam struct {
	Rank    uint64 `json:"rank"`
	N       uint64 `json:"n"`
	RankSum string `json:"rankSum,omitempty"` // optional precomputed n(n+1)/2
}

// ── Result types ────────────────────────────────────────────────────────

// Amount is a token quantity in base units and as a decimal string.
type Amount struct {
	Units  string `json:"units"`
	Tokens string `json:"tokens"`
}

// NewAmount formats x.
func NewAmount(x *uint256.Int) Amount {
	if x == nil {
		x = new(uint256.Int)
	}
	return Amount{Units: x.Dec(), Tokens: fixed.Format(x)}
}

// Int parses the base-unit string back.
func (a Amount) Int() (*uint256.Int, error) {
	return fixed.ParseUnits(a.Units)
}

// HealthResult is returned by GET /health.
type HealthResult struct {
	Status        string `json:"status"`
	Params        string `json:"params"`
	Staked        uint64 `json:"staked"`
	ProvenanceLen int    `json:"provenanceLength"`
}

// ProvenanceItemResult is returned by provenance_getItem.
type ProvenanceItemResult struct {
	provenance.Entry
	PrevRunning types.Hash `json:"prevRunningHash"`
}

// VerifyResult is returned by provenance_verify.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Index  *int   `json:"index,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ItemResult is returned by collection_getItem and collection_mint.
type ItemResult struct {
	collection.Item
	TokenURI string `json:"tokenURI,omitempty"`
	Staked   bool   `json:"staked"`
}

// OwnerResult is returned by collection_ownerOf.
type OwnerResult struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
}

// PayoutResult is one item's credit in a settlement.
type PayoutResult struct {
	ItemID uint64 `json:"itemId"`
	Holder string `json:"holder"`
	Rank   uint64 `json:"rank"`
	Amount Amount `json:"amount"`
}

// SettlementResult is returned by staking_setPayouts and embedded in stake,
// unstake and claim results.
type SettlementResult struct {
	At          uint64         `json:"at"`
	Era         uint64         `json:"era"`
	Skipped     bool           `json:"skipped"`
	Staked      uint64         `json:"staked"`
	Pool        Amount         `json:"pool"`
	Distributed Amount         `json:"distributed"`
	Unallocated Amount         `json:"unallocated"`
	Dust        Amount         `json:"dust"`
	Payouts     []PayoutResult `json:"payouts"`
}

func newSettlementResult(s *staking.Settlement) *SettlementResult {
	if s == nil {
		return nil
	}
	r := &SettlementResult{
		At:          s.At,
		Era:         s.Era,
		Skipped:     s.Skipped,
		Staked:      s.Staked,
		Pool:        NewAmount(s.Pool),
		Distributed: NewAmount(s.Distributed),
		Unallocated: NewAmount(s.Unallocated),
		Dust:        NewAmount(s.Dust),
		Payouts:     make([]PayoutResult, 0, len(s.Payouts)),
	}
	for _, p := range s.Payouts {
		r.Payouts = append(r.Payouts, PayoutResult{
			ItemID: uint64(p.ItemID),
			Holder: p.Holder.String(),
			Rank:   p.Rank,
			Amount: NewAmount(p.Amount),
		})
	}
	return r
}

// StakeOpResult is returned by staking_stake and staking_unstake.
type StakeOpResult struct {
	Holder     string            `json:"holder"`
	IDs        []uint64          `json:"ids"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
}

// ClaimResult is returned by staking_claim.
type ClaimResult struct {
	Holder  string `json:"holder"`
	Claimed Amount `json:"claimed"`
	Balance Amount `json:"balance"`
}

// PayoutQueryResult is returned by staking_getPayout.
type PayoutQueryResult struct {
	Address string `json:"address"`
	Settled Amount `json:"settled"`
	Preview Amount `json:"preview"` // settled plus what settling now would add
}

// EarningsResult is returned by staking_getEarnings and
// staking_getEarningsForEra.
type EarningsResult struct {
	Now     uint64 `json:"now"`
	Elapsed uint64 `json:"elapsed"`
	Amount  Amount `json:"amount"`
}

// StakeResult describes one staked item.
type StakeResult struct {
	ItemID    uint64 `json:"itemId"`
	Holder    string `json:"holder"`
	Rank      uint64 `json:"rank"`
	StakedAt  uint64 `json:"stakedAt"`
	SettledAt uint64 `json:"settledAt"`
}

func newStakeResult(s staking.RankedStake) StakeResult {
	return StakeResult{
		ItemID:    uint64(s.ItemID),
		Holder:    s.Holder.String(),
		Rank:      s.Rank,
		StakedAt:  s.StakedAt,
		SettledAt: s.SettledAt,
	}
}

// StakesResult is returned by staking_getStakes.
type StakesResult struct {
	Total  uint64        `json:"total"`
	Stakes []StakeResult `json:"stakes"`
}

// TotalsResult is returned by staking_getTotals.
type TotalsResult struct {
	ContractStart uint64 `json:"contractStart"`
	LastSettledAt uint64 `json:"lastSettledAt"`
	Staked        uint64 `json:"staked"`
	Emitted       Amount `json:"emitted"`
	Unallocated   Amount `json:"unallocated"`
	Claimed       Amount `json:"claimed"`
	Outstanding   Amount `json:"outstanding"`
	P0            Amount `json:"p0"`
	PTotal        Amount `json:"pTotal"`
	Custody       string `json:"custody"`
}

// TokenInfoResult is returned by token_getInfo.
type TokenInfoResult struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply Amount   `json:"totalSupply"`
	Controllers []string `json:"controllers"`
}

// TokenBalanceResult is returned by token_getBalance.
type TokenBalanceResult struct {
	Address string `json:"address"`
	Balance Amount `json:"balance"`
}

// RatioResult is returned by math_calculatePayoutRatio.
type RatioResult struct {
	Rank  uint64 `json:"rank"`
	N     uint64 `json:"n"`
	Ratio Amount `json:"ratio"` // 1e18-scaled fraction
}
