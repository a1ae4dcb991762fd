package rpcclient

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Klingon-tech/locker/config"
	"github.com/Klingon-tech/locker/internal/collection"
	"github.com/Klingon-tech/locker/internal/earnings"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/rpc"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/internal/token"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
)

type testNode struct {
	client *Client
	clock  *staking.ManualClock
	coll   *collection.Collection
	ledger *staking.Ledger
}

func setupTestNode(t *testing.T) *testNode {
	t.Helper()
	klog.Init("error", false, "")

	db := storage.NewMemory()
	clock := staking.NewManualClock(1_700_000_000)

	chain, err := provenance.New(storage.NewPrefixDB(db, []byte("p/")), crypto.HasherKeccak256)
	if err != nil {
		t.Fatalf("provenance: %v", err)
	}
	seed := crypto.Keccak256([]byte("client seed"))
	if err := chain.Initialize(seed); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	coll, err := collection.Open(storage.NewPrefixDB(db, []byte("c/")), chain, collection.Config{Name: "Test", Symbol: "T"})
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	tok, err := token.Open(storage.NewPrefixDB(db, []byte("t/")), token.DefaultMetadata())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	custody := crypto.AddressFromLabel(staking.CustodyLabel)
	if err := tok.AddController(custody); err != nil {
		t.Fatalf("add controller: %v", err)
	}
	curve, err := earnings.NewCurve(fixed.Units(1), fixed.Units(1000))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	ledger, err := staking.Open(storage.NewPrefixDB(db, []byte("s/")), curve, coll,
		token.NewMinter(tok, custody), staking.Options{AutoSettle: true, Custody: custody, Clock: clock})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	srv := rpc.New("127.0.0.1:0", rpc.Backend{
		Provenance: chain,
		Collection: coll,
		Token:      tok,
		Ledger:     ledger,
		Params:     config.TestnetParams(),
	})
	now := func() time.Time { return time.Unix(int64(clock.Now()), 0) }
	srv.SetClock(now)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	c := New(fmt.Sprintf("http://%s/", srv.Addr()))
	c.SetClock(now)
	return &testNode{client: c, clock: clock, coll: coll, ledger: ledger}
}

// mint mints ids 1..n to owner with a valid provenance chain.
func (n *testNode) mint(t *testing.T, owner types.Address, count int) {
	t.Helper()
	seed := crypto.Keccak256([]byte("client seed"))
	assignments := make([]provenance.Assignment, count)
	for i := range assignments {
		assignments[i] = provenance.Assignment{ItemID: types.ItemID(i + 1), Rarity: uint64(i + 1)}
	}
	entries, err := provenance.Build(crypto.Keccak256, seed, crypto.Keccak256([]byte("salt")), assignments)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, en := range entries {
		if _, err := n.coll.Mint(owner, en.ItemID, en.Rarity, en.ItemHash, en.Running); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
}

func TestClient_TokenGetInfo(t *testing.T) {
	n := setupTestNode(t)

	var info rpc.TokenInfoResult
	if err := n.client.Call("token_getInfo", nil, &info); err != nil {
		t.Fatalf("token_getInfo: %v", err)
	}
	if info.Symbol != "LOCK" || info.Decimals != 18 {
		t.Errorf("info = %+v", info)
	}
	if len(info.Controllers) != 1 {
		t.Errorf("controllers = %v", info.Controllers)
	}
}

func TestClient_StakeClaimUnstake(t *testing.T) {
	n := setupTestNode(t)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	n.mint(t, key.Address(), 2)

	res, err := n.client.Stake(key, []uint64{1, 2})
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if res.Holder != key.Address().String() || len(res.IDs) != 2 {
		t.Errorf("stake result = %+v", res)
	}

	n.clock.Advance(60)
	settlement, err := n.client.SetPayouts()
	if err != nil {
		t.Fatalf("setPayouts: %v", err)
	}
	if settlement.Staked != 2 || settlement.Distributed.Units == "0" {
		t.Fatalf("settlement = %+v", settlement)
	}

	pay, err := n.client.Payout(key.Address().String())
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if pay.Settled.Units != settlement.Distributed.Units {
		t.Errorf("payout %s, distributed %s", pay.Settled.Units, settlement.Distributed.Units)
	}

	claim, err := n.client.Claim(key)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Claimed.Units != pay.Settled.Units {
		t.Errorf("claimed %s, want %s", claim.Claimed.Units, pay.Settled.Units)
	}

	if _, err := n.client.Unstake(key, []uint64{2}); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	totals, err := n.client.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Staked != 1 {
		t.Errorf("staked = %d, want 1", totals.Staked)
	}
}

func TestClient_Stake_NotOwner(t *testing.T) {
	n := setupTestNode(t)
	owner, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	n.mint(t, owner.Address(), 1)

	_, err := n.client.Stake(other, []uint64{1})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != rpc.CodeRejected {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeRejected)
	}
	if n.ledger.TotalStaked() != 0 {
		t.Error("rejected stake changed the ledger")
	}
}

func TestClient_ExpiredSignature(t *testing.T) {
	n := setupTestNode(t)
	key, _ := crypto.GenerateKey()
	n.mint(t, key.Address(), 1)

	// Sign against a clock that lags the server by more than the TTL.
	n.client.SetClock(func() time.Time {
		return time.Unix(int64(n.clock.Now()), 0).Add(-2 * DefaultSignatureTTL)
	})
	_, err := n.client.Stake(key, []uint64{1})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	c := NewWithTimeout("http://127.0.0.1:1/", 500*time.Millisecond)
	if err := c.Call("token_getInfo", nil, nil); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	n := setupTestNode(t)

	err := n.client.Call("nonexistent_method", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}
