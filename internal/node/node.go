// Package node assembles a locker node: storage, provenance chain,
// collection, reward token, staking ledger, metrics and the RPC server.
// It can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Klingon-tech/locker/config"
	"github.com/Klingon-tech/locker/internal/collection"
	"github.com/Klingon-tech/locker/internal/earnings"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/metrics"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/rpc"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/internal/storage"
	"github.com/Klingon-tech/locker/internal/token"
	"github.com/Klingon-tech/locker/pkg/crypto"
	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/rs/zerolog"
)

// ErrParamsMismatch is returned when the params file no longer matches the
// parameters the database was created with.
var ErrParamsMismatch = errors.New("params differ from the ones this database was created with")

// Key prefixes partitioning the shared database.
var (
	prefixNode       = []byte("n/")
	prefixProvenance = []byte("p/")
	prefixCollection = []byte("c/")
	prefixToken      = []byte("t/")
	prefixStaking    = []byte("s/")

	keyParamsHash = []byte("params")
)

// Option customizes a node.
type Option func(*options)

type options struct {
	clock   staking.Clock
	skipLog bool
}

// WithClock replaces the system clock used by the ledger and RPC auth.
func WithClock(c staking.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithoutLogInit leaves the global logger as the caller configured it.
func WithoutLogInit() Option {
	return func(o *options) { o.skipLog = true }
}

// Node is a fully-initialized locker node.
type Node struct {
	cfg    *config.Config
	params *config.Params
	logger zerolog.Logger
	clock  staking.Clock

	db         storage.DB
	chain      *provenance.Chain
	collection *collection.Collection
	token      *token.Token
	ledger     *staking.Ledger
	metrics    *metrics.Recorder

	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node. It opens storage and builds every
// component but does not start the RPC server or the settlement loop; call
// Start for that.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	o := options{clock: staking.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	// ── 1. Logger ───────────────────────────────────────────────────
	if !o.skipLog {
		logFile := cfg.Log.File
		if logFile == "" {
			logsDir := cfg.LogsDir()
			if err := os.MkdirAll(logsDir, 0755); err != nil {
				return nil, fmt.Errorf("creating logs dir: %w", err)
			}
			logFile = filepath.Join(logsDir, "locker.log")
		}
		if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}
	logger := klog.Node

	// ── 2. Params ───────────────────────────────────────────────────
	params, err := loadParams(cfg)
	if err != nil {
		return nil, err
	}
	p0, err := params.InitialRate()
	if err != nil {
		return nil, err
	}
	total, err := params.TotalPool()
	if err != nil {
		return nil, err
	}
	curve, err := earnings.NewCurve(p0, total)
	if err != nil {
		return nil, fmt.Errorf("reward curve: %w", err)
	}

	logger.Info().
		Str("params", params.Name).
		Str("network", string(cfg.Network)).
		Str("p0", fixed.Format(p0)).
		Str("ptotal", fixed.Format(total)).
		Str("hasher", params.Provenance.Hasher).
		Msg("Starting Locker node")

	// ── 3. Storage ──────────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	closeOnErr := func(err error) (*Node, error) {
		db.Close()
		return nil, err
	}
	if err := checkParams(storage.NewPrefixDB(db, prefixNode), params); err != nil {
		return closeOnErr(err)
	}

	// ── 4. Provenance + collection ──────────────────────────────────
	chain, err := provenance.New(storage.NewPrefixDB(db, prefixProvenance), params.Provenance.Hasher)
	if err != nil {
		return closeOnErr(fmt.Errorf("open provenance chain: %w", err))
	}
	coll, err := collection.Open(storage.NewPrefixDB(db, prefixCollection), chain, collection.Config{
		Name:      params.Collection.Name,
		Symbol:    params.Collection.Symbol,
		MaxSupply: params.Collection.MaxSupply,
		BaseURI:   params.Collection.BaseURI,
	})
	if err != nil {
		return closeOnErr(fmt.Errorf("open collection: %w", err))
	}

	// ── 5. Reward token ─────────────────────────────────────────────
	tok, err := token.Open(storage.NewPrefixDB(db, prefixToken), token.Metadata{
		Name:     params.Token.Name,
		Symbol:   params.Token.Symbol,
		Decimals: params.Token.Decimals,
	})
	if err != nil {
		return closeOnErr(fmt.Errorf("open token: %w", err))
	}
	custody := crypto.AddressFromLabel(staking.CustodyLabel)
	if !tok.IsController(custody) {
		if err := tok.AddController(custody); err != nil {
			return closeOnErr(fmt.Errorf("register ledger as token controller: %w", err))
		}
	}

	// ── 6. Staking ledger ───────────────────────────────────────────
	ledger, err := staking.Open(storage.NewPrefixDB(db, prefixStaking), curve, coll,
		token.NewMinter(tok, custody), staking.Options{
			AutoSettle: cfg.Staking.AutoSettle,
			Custody:    custody,
			Clock:      o.clock,
		})
	if err != nil {
		return closeOnErr(fmt.Errorf("open staking ledger: %w", err))
	}

	// ── 7. Metrics ──────────────────────────────────────────────────
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
		ledger.SetObserver(rec)
		chain.SetCommitHandler(rec.OnProvenanceCommit)
		rec.SetTotals(ledger.Totals())
		rec.SetProvenanceLength(chain.Len())
	}

	// ── 8. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(addr, rpc.Backend{
			Provenance: chain,
			Collection: coll,
			Token:      tok,
			Ledger:     ledger,
			Params:     params,
			Operator:   cfg.OperatorAddress(),
		}, cfg.RPC)
		clock := o.clock
		rpcServer.SetClock(func() time.Time { return time.Unix(int64(clock.Now()), 0) })
		if rec != nil {
			rpcServer.SetMetricsHandler(rec.Handler())
		}
	}

	totals := ledger.Totals()
	logger.Info().
		Int("provenance", chain.Len()).
		Uint64("minted", coll.Supply()).
		Uint64("staked", totals.Staked).
		Uint64("contract_start", totals.ContractStart).
		Str("custody", custody.String()).
		Msg("Ledger ready")

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:        cfg,
		params:     params,
		logger:     logger,
		clock:      o.clock,
		db:         db,
		chain:      chain,
		collection: coll,
		token:      tok,
		ledger:     ledger,
		metrics:    rec,
		rpcServer:  rpcServer,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the RPC server and the periodic settlement loop.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server listening")
	}

	if interval := n.cfg.Staking.SettleInterval; interval > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSettleLoop(interval)
		}()
	}

	n.logger.Info().
		Uint64("staked", n.ledger.TotalStaked()).
		Dur("settle_interval", n.cfg.Staking.SettleInterval).
		Bool("auto_settle", n.cfg.Staking.AutoSettle).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on, or "" when
// RPC is disabled or the node has not been started.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil || !n.rpcServer.Listening() {
		return ""
	}
	return n.rpcServer.Addr()
}

// Params returns the deployment parameters.
func (n *Node) Params() *config.Params { return n.params }

// Ledger returns the staking ledger.
func (n *Node) Ledger() *staking.Ledger { return n.ledger }

// Provenance returns the provenance chain.
func (n *Node) Provenance() *provenance.Chain { return n.chain }

// Collection returns the item registry.
func (n *Node) Collection() *collection.Collection { return n.collection }

// Token returns the reward token.
func (n *Node) Token() *token.Token { return n.token }

// Metrics returns the recorder, or nil when metrics are disabled.
func (n *Node) Metrics() *metrics.Recorder { return n.metrics }

// ── Settlement ──────────────────────────────────────────────────────

func (n *Node) runSettleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.logger.Info().Dur("interval", interval).Msg("Periodic settlement started")
	for {
		select {
		case <-n.ctx.Done():
			n.logger.Info().Msg("Periodic settlement stopped")
			return
		case <-ticker.C:
			n.settle()
		}
	}
}

// settle runs one settlement and logs its outcome.
func (n *Node) settle() {
	s, err := n.ledger.SetPayouts()
	if err != nil {
		n.logger.Error().Err(err).Msg("Periodic settlement failed")
		return
	}
	if s.Skipped {
		n.logger.Debug().Uint64("at", s.At).Msg("Settlement skipped")
		return
	}
	n.logger.Debug().
		Uint64("at", s.At).
		Uint64("staked", s.Staked).
		Str("distributed", fixed.Format(s.Distributed)).
		Msg("Periodic settlement")
}

// ── Setup helpers ───────────────────────────────────────────────────

func loadParams(cfg *config.Config) (*config.Params, error) {
	var (
		params *config.Params
		err    error
	)
	if cfg.ParamsFile != "" {
		params, err = config.LoadParams(expandHome(cfg.ParamsFile))
	} else {
		params, err = config.LoadOrCreateParams(cfg.ParamsPath(), cfg.Network)
	}
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}
	return params, nil
}

func openStorage(cfg *config.Config) (storage.DB, error) {
	switch cfg.Storage.Engine {
	case config.StorageMemory:
		klog.Storage.Warn().Msg("Using in-memory storage; state is lost on shutdown")
		return storage.NewMemory(), nil
	case config.StorageBadger, "":
		db, err := storage.NewBadger(cfg.DBDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
		}
		klog.Storage.Info().Str("path", cfg.DBDir()).Msg("Database opened")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// checkParams records the params hash on first start and rejects a
// different one afterwards.
func checkParams(db storage.DB, params *config.Params) error {
	h, err := params.Hash()
	if err != nil {
		return err
	}
	stored, err := db.Get(keyParamsHash)
	if errors.Is(err, storage.ErrNotFound) {
		return db.Put(keyParamsHash, h[:])
	}
	if err != nil {
		return err
	}
	var want types.Hash
	copy(want[:], stored)
	if want != h {
		return fmt.Errorf("%w: database %s, params file %s", ErrParamsMismatch, want, h)
	}
	return nil
}
