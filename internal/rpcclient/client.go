// Package rpcclient provides a JSON-RPC 2.0 client for locker nodes.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/locker/internal/rpc"
	"github.com/Klingon-tech/locker/pkg/crypto"
)

// DefaultSignatureTTL is how long signed requests stay valid.
const DefaultSignatureTTL = 2 * time.Minute

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	ttl      time.Duration
	now      func() time.Time
	nextID   int
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
		ttl: DefaultSignatureTTL,
		now: time.Now,
	}
}

// SetClock overrides the time source used for signature expiry.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	c.nextID++
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("http request: %s (check rpc.allowed on the node)", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// CallSigned signs payload with signer and invokes method.
func (c *Client) CallSigned(signer crypto.Signer, method string, payload, result interface{}) error {
	params, err := rpc.Sign(signer, method, payload, c.now().Add(c.ttl))
	if err != nil {
		return err
	}
	return c.Call(method, params, result)
}

// Stake stakes ids for the signer.
func (c *Client) Stake(signer crypto.Signer, ids []uint64) (*rpc.StakeOpResult, error) {
	var res rpc.StakeOpResult
	if err := c.CallSigned(signer, "staking_stake", rpc.ItemsPayload{IDs: ids}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Unstake returns ids to the signer.
func (c *Client) Unstake(signer crypto.Signer, ids []uint64) (*rpc.StakeOpResult, error) {
	var res rpc.StakeOpResult
	if err := c.CallSigned(signer, "staking_unstake", rpc.ItemsPayload{IDs: ids}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Claim mints the signer's pending rewards.
func (c *Client) Claim(signer crypto.Signer) (*rpc.ClaimResult, error) {
	var res rpc.ClaimResult
	payload := rpc.ClaimPayload{Nonce: uint64(c.now().UnixNano())}
	if err := c.CallSigned(signer, "staking_claim", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetPayouts triggers a settlement.
func (c *Client) SetPayouts() (*rpc.SettlementResult, error) {
	var res rpc.SettlementResult
	if err := c.Call("staking_setPayouts", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Totals returns the ledger counters.
func (c *Client) Totals() (*rpc.TotalsResult, error) {
	var res rpc.TotalsResult
	if err := c.Call("staking_getTotals", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Payout returns the settled and previewed balance of address.
func (c *Client) Payout(address string) (*rpc.PayoutQueryResult, error) {
	var res rpc.PayoutQueryResult
	if err := c.Call("staking_getPayout", rpc.AddressParam{Address: address}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
