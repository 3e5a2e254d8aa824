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

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/events"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/metrics"
	"github.com/Klingon-tech/pumpbox/internal/runtime"
	"github.com/Klingon-tech/pumpbox/internal/state"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	rt          *runtime.Runtime
	recorder    *events.Recorder // For program_recentEvents (nil = disabled).
	metrics     *metrics.Metrics // For /metrics and request counts (nil = disabled).
	mux         *http.ServeMux
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, rt *runtime.Runtime, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		rt:     rt,
		logger: klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetRecorder enables program_recentEvents.
func (s *Server) SetRecorder(r *events.Recorder) {
	s.recorder = r
}

// SetMetrics counts requests per method and serves GET /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	h := m.Handler()
	s.mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if !s.allowRemote(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.mux
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

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if !s.allowRemote(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

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

	result, rpcErr := s.dispatch(r.Context(), &req)
	if s.metrics != nil && (rpcErr == nil || rpcErr.Code != CodeMethodNotFound) {
		s.metrics.ObserveRPC(req.Method)
	}
	if rpcErr != nil {
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
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "program_submit":
		return s.handleProgramSubmit(ctx, req)
	case "program_getConfig":
		return s.handleProgramGetConfig(req)
	case "program_recentEvents":
		return s.handleProgramRecentEvents(req)
	case "token_get":
		return s.handleTokenGet(req)
	case "token_list":
		return s.handleTokenList(req)
	case "token_nextRecord":
		return s.handleTokenNextRecord(req)
	case "token_quoteBuy":
		return s.handleTokenQuoteBuy(req)
	case "token_quoteSell":
		return s.handleTokenQuoteSell(req)
	case "token_getHolding":
		return s.handleTokenGetHolding(req)
	case "account_getBalance":
		return s.handleAccountGetBalance(req)
	case "launch_getAllocation":
		return s.handleLaunchGetAllocation(req)
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

// allowRemote applies IP filtering to the request's remote address.
func (s *Server) allowRemote(r *http.Request) bool {
	if len(s.allowedNets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && s.isIPAllowed(ip)
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

	// Check if origin is allowed.
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

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// programError converts an error from the program into a JSON-RPC error.
// Program errors carry their kind and class; anything else is internal.
func programError(err error) *Error {
	if pe, ok := state.AsError(err); ok {
		return &Error{
			Code:    CodeProgramError,
			Message: err.Error(),
			Data: ProgramErrorData{
				Kind:      pe.Kind,
				Class:     pe.Class.String(),
				Retryable: state.Retryable(err),
			},
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeInternalError, Message: "request cancelled"}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
