// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Klingon-tech/locker/config"
	"github.com/Klingon-tech/locker/internal/collection"
	klog "github.com/Klingon-tech/locker/internal/log"
	"github.com/Klingon-tech/locker/internal/provenance"
	"github.com/Klingon-tech/locker/internal/staking"
	"github.com/Klingon-tech/locker/internal/token"
	"github.com/Klingon-tech/locker/pkg/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Backend holds the components served over RPC.
type Backend struct {
	Provenance *provenance.Chain
	Collection *collection.Collection
	Token      *token.Token
	Ledger     *staking.Ledger
	Params     *config.Params
	// Operator may mint items and publish the provenance seed. Zero
	// disables both methods.
	Operator types.Address
}

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	backend     Backend
	auth        *authenticator
	metrics     http.Handler // nil = /metrics disabled
	router      *mux.Router
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, backend Backend, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:    addr,
		backend: backend,
		auth:    newAuthenticator(nil),
		logger:  klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	r := mux.NewRouter()
	r.Use(s.ipFilter)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.handleRequest)
	s.router = r

	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// SetMetricsHandler serves h on GET /metrics. Call before Start.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// SetClock replaces the wall clock used to check signature expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.auth = newAuthenticator(now)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Listening reports whether Start has bound the listener.
func (s *Server) Listening() bool {
	return s.ln != nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// ipFilter rejects requests from addresses outside the allow-list.
func (s *Server) ipFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := HealthResult{Status: "ok"}
	if s.backend.Params != nil {
		res.Params = s.backend.Params.Name
	}
	if s.backend.Ledger != nil {
		res.Staked = s.backend.Ledger.TotalStaked()
	}
	if s.backend.Provenance != nil {
		res.ProvenanceLen = s.backend.Provenance.Len()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "provenance_getInfo":
		return s.handleProvenanceGetInfo(req)
	case "provenance_getItem":
		return s.handleProvenanceGetItem(req)
	case "provenance_verify":
		return s.handleProvenanceVerify(req)
	case "provenance_initialize":
		return s.handleProvenanceInitialize(req)
	case "collection_mint":
		return s.handleCollectionMint(req)
	case "collection_transfer":
		return s.handleCollectionTransfer(req)
	case "collection_ownerOf":
		return s.handleCollectionOwnerOf(req)
	case "collection_getItem":
		return s.handleCollectionGetItem(req)
	case "staking_stake":
		return s.handleStakingStake(req)
	case "staking_unstake":
		return s.handleStakingUnstake(req)
	case "staking_claim":
		return s.handleStakingClaim(req)
	case "staking_setPayouts":
		return s.handleStakingSetPayouts(req)
	case "staking_getPayout":
		return s.handleStakingGetPayout(req)
	case "staking_getEarnings":
		return s.handleStakingGetEarnings(req)
	case "staking_getEarningsForEra":
		return s.handleStakingGetEarningsForEra(req)
	case "staking_getTotalStaked":
		return s.handleStakingGetTotalStaked(req)
	case "staking_getStake":
		return s.handleStakingGetStake(req)
	case "staking_getStakes":
		return s.handleStakingGetStakes(req)
	case "staking_getTotals":
		return s.handleStakingGetTotals(req)
	case "token_getInfo":
		return s.handleTokenGetInfo(req)
	case "token_getBalance":
		return s.handleTokenGetBalance(req)
	case "math_calculateEarnings":
		return s.handleMathCalculateEarnings(req)
	case "math_calculatePayoutRatio":
		return s.handleMathCalculatePayoutRatio(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// hasParams reports whether the request carried a non-null params value.
func hasParams(req *Request) bool {
	return len(req.Params) > 0 && string(req.Params) != "null"
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if !hasParams(req) {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseSigned verifies a signed call and decodes its payload into target.
// It returns the authenticated caller.
func (s *Server) parseSigned(req *Request, target interface{}) (types.Address, *Error) {
	var signed SignedParams
	if err := parseParams(req, &signed); err != nil {
		return types.Address{}, err
	}
	caller, err := s.auth.verify(req.Method, &signed)
	if err != nil {
		return types.Address{}, &Error{Code: CodeUnauthorized, Message: err.Error()}
	}
	if len(signed.Payload) > 0 {
		if err := json.Unmarshal(signed.Payload, target); err != nil {
			return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid payload: %v", err)}
		}
	}
	return caller, nil
}

// rejected lists the precondition failures reported as CodeRejected.
var rejected = []error{
	staking.ErrEmptyItems,
	staking.ErrDuplicateItem,
	staking.ErrNotOwner,
	staking.ErrAlreadyStaked,
	staking.ErrNotStakedByCaller,
	staking.ErrNothingToClaim,
	provenance.ErrAlreadyInitialized,
	provenance.ErrNotInitialized,
	provenance.ErrChainMismatch,
	provenance.ErrAlreadyCommitted,
	provenance.ErrDuplicateRarity,
	provenance.ErrZeroItem,
	provenance.ErrZeroSeed,
	provenance.ErrBadPublication,
	provenance.ErrWrongOperator,
	provenance.ErrHasherMismatch,
	collection.ErrSoldOut,
	collection.ErrItemExists,
	collection.ErrNotItemOwner,
	collection.ErrZeroAddress,
}

// mapError converts a component error into a JSON-RPC error.
func mapError(err error) *Error {
	if errors.Is(err, collection.ErrUnknownItem) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	for _, target := range rejected {
		if errors.Is(err, target) {
			return &Error{Code: CodeRejected, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
