package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/clock"
	"github.com/Klingon-tech/pumpbox/internal/curve"
	"github.com/Klingon-tech/pumpbox/internal/events"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/metrics"
	"github.com/Klingon-tech/pumpbox/internal/mint"
	"github.com/Klingon-tech/pumpbox/internal/runtime"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/internal/storage"
	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/tx"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server  *Server
	rt      *runtime.Runtime
	cfg     *config.ProgramConfig
	clk     *clock.Manual
	creator *crypto.PrivateKey
	oracle  *crypto.PrivateKey
	url     string
}

func setupTestEnv(t *testing.T, rpcCfg ...config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	creator, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := config.TestnetProgram()
	cfg.Alloc = map[string]uint64{creator.Address().String(): 100 * config.Coin}

	store := state.NewStore(storage.NewMemory())
	if _, err := store.Init(cfg); err != nil {
		t.Fatalf("init store: %v", err)
	}

	clk := clock.NewManual(time.Unix(1_800_000_000, 0))
	m := metrics.New("")
	rt := runtime.New(cfg, store, runtime.Options{Clock: clk, Metrics: m})

	rec := events.NewRecorder(16)
	if err := rt.Bus().Subscribe(events.TopicAll, rec.Record); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	srv := New("127.0.0.1:0", rt, rpcCfg...)
	srv.SetRecorder(rec)
	srv.SetMetrics(m)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:  srv,
		rt:      rt,
		cfg:     cfg,
		clk:     clk,
		creator: creator,
		oracle:  config.TestnetKey(config.TestnetOracleKey),
		url:     fmt.Sprintf("http://%s/", srv.Addr()),
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// decodeResult re-decodes a generic result into out.
func decodeResult(t *testing.T, resp Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func submit(t *testing.T, env *testEnv, tr *tx.Transaction) Response {
	t.Helper()
	raw, err := tr.Marshal()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	return rpcCall(t, env.url, "program_submit", SubmitParam{Transaction: hex.EncodeToString(raw)})
}

// createToken creates and fulfills a token through the API and returns its
// record address.
func createToken(t *testing.T, env *testEnv, ticker string) types.Address {
	t.Helper()
	var next NextRecordResult
	decodeResult(t, rpcCall(t, env.url, "token_nextRecord", CreatorParam{Creator: env.creator.Address().String()}), &next)

	create, err := tx.NewBuilder(env.cfg.ProgramID).
		Instruction(instruction.CreateToken{Description: "a box", SocialLink: "https://x.com/box"}).
		Signer(env.creator.Address(), true).
		Writable(next.Record).
		Sign(env.creator)
	if err != nil {
		t.Fatalf("build create: %v", err)
	}
	var rcpt runtime.Receipt
	decodeResult(t, submit(t, env, create), &rcpt)
	if rcpt.Record != next.Record {
		t.Fatalf("record = %s, want %s", rcpt.Record, next.Record)
	}
	if rcpt.Mint != next.Mint {
		t.Fatalf("mint = %s, want %s", rcpt.Mint, next.Mint)
	}

	fulfill, err := tx.NewBuilder(env.cfg.ProgramID).
		Instruction(instruction.FulfillMysteryBox{Name: "Box", Ticker: ticker, ImageRef: "ar://img"}).
		Signer(env.oracle.Address(), false).
		Writable(next.Record).
		Writable(env.cfg.Authorities.FeeRecipient).
		Sign(env.oracle)
	if err != nil {
		t.Fatalf("build fulfill: %v", err)
	}
	decodeResult(t, submit(t, env, fulfill), &rcpt)
	if rcpt.Phase != types.PhaseTrading {
		t.Fatalf("phase = %s, want trading", rcpt.Phase)
	}
	return next.Record
}

func buyTx(t *testing.T, env *testEnv, recAddr types.Address, amountIn uint64) *tx.Transaction {
	t.Helper()
	rec, err := env.rt.Store().Record(recAddr)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	buyer := env.creator.Address()
	holding, _ := state.HoldingAddress(env.cfg.ProgramID, rec.Mint, buyer)
	alloc, _ := state.AllocationAddress(env.cfg.ProgramID, rec.Mint, buyer)
	tr, err := tx.NewBuilder(env.cfg.ProgramID).
		Instruction(instruction.Buy{AmountIn: amountIn}).
		Signer(buyer, true).
		Writable(recAddr).
		Writable(holding).
		Writable(env.cfg.Authorities.FeeRecipient).
		Writable(alloc).
		Sign(env.creator)
	if err != nil {
		t.Fatalf("build buy: %v", err)
	}
	return tr
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_ProgramGetConfig(t *testing.T) {
	env := setupTestEnv(t)

	var result ConfigResult
	decodeResult(t, rpcCall(t, env.url, "program_getConfig", nil), &result)

	if result.ProgramID != env.cfg.ProgramID {
		t.Errorf("program_id = %s, want %s", result.ProgramID, env.cfg.ProgramID)
	}
	if result.Name != env.cfg.Name {
		t.Errorf("name = %q, want %q", result.Name, env.cfg.Name)
	}
	want, _ := env.cfg.Hash()
	if result.Hash != want.String() {
		t.Errorf("hash = %s, want %s", result.Hash, want)
	}
	if result.Fees.TradeFeeBps != env.cfg.Fees.TradeFeeBps {
		t.Errorf("trade_fee_bps = %d, want %d", result.Fees.TradeFeeBps, env.cfg.Fees.TradeFeeBps)
	}
}

func TestRPC_TokenLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	recAddr := createToken(t, env, "BOX")

	var tok TokenResult
	decodeResult(t, rpcCall(t, env.url, "token_get", TokenParam{Address: recAddr.String()}), &tok)
	if tok.TokenRecord == nil {
		t.Fatal("token record is nil")
	}
	if tok.Ticker != "BOX" {
		t.Errorf("ticker = %q, want BOX", tok.Ticker)
	}
	if tok.Price == 0 {
		t.Error("price is zero")
	}

	// Lookup by mint resolves the same record.
	var byMint TokenResult
	decodeResult(t, rpcCall(t, env.url, "token_get", TokenParam{Mint: tok.Mint.String()}), &byMint)
	if byMint.Address != recAddr {
		t.Errorf("by mint address = %s, want %s", byMint.Address, recAddr)
	}

	var list TokenListResult
	decodeResult(t, rpcCall(t, env.url, "token_list", nil), &list)
	if list.Count != 1 || len(list.Tokens) != 1 {
		t.Fatalf("token count = %d, want 1", list.Count)
	}

	// The quote must match the executed buy.
	var quote curve.BuyQuote
	decodeResult(t, rpcCall(t, env.url, "token_quoteBuy", QuoteBuyParam{Address: recAddr.String(), AmountIn: config.Coin}), &quote)
	if quote.TokensOut == 0 {
		t.Fatal("quoted zero tokens")
	}

	var rcpt runtime.Receipt
	decodeResult(t, submit(t, env, buyTx(t, env, recAddr, config.Coin)), &rcpt)
	if rcpt.TokensOut != quote.TokensOut {
		t.Errorf("tokens_out = %d, quoted %d", rcpt.TokensOut, quote.TokensOut)
	}
	if rcpt.Fee != quote.Fee {
		t.Errorf("fee = %d, quoted %d", rcpt.Fee, quote.Fee)
	}

	var holding HoldingResult
	decodeResult(t, rpcCall(t, env.url, "token_getHolding", HoldingParam{
		Mint:  tok.Mint.String(),
		Owner: env.creator.Address().String(),
	}), &holding)
	if holding.Amount != quote.TokensOut {
		t.Errorf("holding = %d, want %d", holding.Amount, quote.TokensOut)
	}

	var sell curve.SellQuote
	decodeResult(t, rpcCall(t, env.url, "token_quoteSell", QuoteSellParam{Address: recAddr.String(), TokensIn: holding.Amount}), &sell)
	if sell.BaseOut == 0 || sell.BaseOut >= config.Coin {
		t.Errorf("sell base_out = %d, want in (0, %d)", sell.BaseOut, config.Coin)
	}

	var bal BalanceResult
	decodeResult(t, rpcCall(t, env.url, "account_getBalance", AddressParam{Address: env.creator.Address().String()}), &bal)
	want := 100*config.Coin - env.cfg.Fees.CreationFee - quote.Charged
	if bal.Balance != want {
		t.Errorf("balance = %d, want %d", bal.Balance, want)
	}

	var evs []*events.Event
	decodeResult(t, rpcCall(t, env.url, "program_recentEvents", LimitParam{Limit: 2}), &evs)
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	if evs[0].Topic != events.TopicTrade {
		t.Errorf("newest topic = %q, want %q", evs[0].Topic, events.TopicTrade)
	}
}

func TestRPC_LaunchGetAllocation(t *testing.T) {
	env := setupTestEnv(t)
	recAddr := createToken(t, env, "LNCH")
	rec, err := env.rt.Store().Record(recAddr)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	var res AllocationResult
	decodeResult(t, rpcCall(t, env.url, "launch_getAllocation", AllocationParam{
		Mint:        rec.Mint.String(),
		Participant: env.creator.Address().String(),
	}), &res)
	if res.Amount != 0 || res.Remaining != 0 {
		t.Errorf("allocation outside launch = %+v, want zero", res)
	}
	want, _ := state.AllocationAddress(env.cfg.ProgramID, rec.Mint, env.creator.Address())
	if res.Account != want {
		t.Errorf("account = %s, want %s", res.Account, want)
	}

	// Stage a launch with 100 allocated to the creator.
	cs := env.rt.Store().Begin()
	rec.Phase = types.PhaseFairLaunch
	rec.Launch = &state.LaunchState{PerWalletCap: 500, GlobalCap: 1000, Deadline: env.clk.Unix() + 60}
	if err := cs.PutAllocation(want, state.Allocation{Mint: rec.Mint, Participant: env.creator.Address(), Amount: 100}); err != nil {
		t.Fatalf("put allocation: %v", err)
	}

	tests := []struct {
		name      string
		allocated uint64
		remaining uint64
	}{
		{"wallet cap binds", 100, 400},
		{"global cap binds", 950, 50},
		{"global cap used up", 1000, 0},
	}
	for _, tt := range tests {
		rec.Launch.Allocated = tt.allocated
		if err := cs.PutRecord(rec); err != nil {
			t.Fatalf("put record: %v", err)
		}
		if err := cs.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		cs = env.rt.Store().Begin()

		var got AllocationResult
		decodeResult(t, rpcCall(t, env.url, "launch_getAllocation", AllocationParam{
			Mint:        rec.Mint.String(),
			Participant: env.creator.Address().String(),
		}), &got)
		if got.Amount != 100 || got.Remaining != tt.remaining {
			t.Errorf("%s: amount %d remaining %d, want 100 and %d", tt.name, got.Amount, got.Remaining, tt.remaining)
		}
	}
}

func TestRPC_ProgramError(t *testing.T) {
	env := setupTestEnv(t)
	recAddr := createToken(t, env, "DUP")

	tr := buyTx(t, env, recAddr, config.Coin)
	if resp := submit(t, env, tr); resp.Error != nil {
		t.Fatalf("first buy: %s", resp.Error.Message)
	}

	resp := submit(t, env, tr)
	if resp.Error == nil {
		t.Fatal("expected error for resubmitted transaction")
	}
	if resp.Error.Code != CodeProgramError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, CodeProgramError)
	}
	data, _ := json.Marshal(resp.Error.Data)
	var pe ProgramErrorData
	json.Unmarshal(data, &pe)
	if pe.Kind != "duplicate_transaction" {
		t.Errorf("kind = %q, want duplicate_transaction", pe.Kind)
	}
	if pe.Class != "state" {
		t.Errorf("class = %q, want state", pe.Class)
	}
}

func TestRPC_QuoteBeforeFulfill(t *testing.T) {
	env := setupTestEnv(t)

	var next NextRecordResult
	decodeResult(t, rpcCall(t, env.url, "token_nextRecord", CreatorParam{Creator: env.creator.Address().String()}), &next)
	create, _ := tx.NewBuilder(env.cfg.ProgramID).
		Instruction(instruction.CreateToken{Description: "a box", SocialLink: "https://x.com/box"}).
		Signer(env.creator.Address(), true).
		Writable(next.Record).
		Sign(env.creator)
	decodeResult(t, submit(t, env, create), &runtime.Receipt{})

	resp := rpcCall(t, env.url, "token_quoteBuy", QuoteBuyParam{Address: next.Record.String(), AmountIn: config.Coin})
	if resp.Error == nil || resp.Error.Code != CodeProgramError {
		t.Fatalf("expected program error, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "phase") {
		t.Errorf("message = %q, want phase error", resp.Error.Message)
	}
}

func TestRPC_SubmitMalformed(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "program_submit", SubmitParam{Transaction: "zz"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("non-hex: expected invalid params, got %+v", resp.Error)
	}

	resp = rpcCall(t, env.url, "program_submit", SubmitParam{Transaction: "deadbeef"})
	if resp.Error == nil || resp.Error.Code != CodeProgramError {
		t.Fatalf("garbage: expected program error, got %+v", resp.Error)
	}
}

func TestRPC_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	missing := crypto.Hash([]byte("missing"))
	var addr types.Address
	copy(addr[:], missing[:])
	resp := rpcCall(t, env.url, "token_get", TokenParam{Address: addr.String()})
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Fatalf("expected not found, got %+v", resp.Error)
	}
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		method string
		params interface{}
	}{
		{"token_get", TokenParam{}},
		{"token_get", TokenParam{Address: "not-an-address"}},
		{"account_getBalance", nil},
		{"account_getBalance", AddressParam{Address: ""}},
		{"token_getHolding", HoldingParam{Mint: "x"}},
		{"token_nextRecord", CreatorParam{}},
		{"program_submit", SubmitParam{}},
	}
	for _, tt := range tests {
		resp := rpcCall(t, env.url, tt.method, tt.params)
		if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
			t.Errorf("%s(%+v): expected invalid params, got %+v", tt.method, tt.params, resp.Error)
		}
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error, got %+v", rpcResp.Error)
	}
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := `{"jsonrpc":"1.0","method":"program_getConfig","id":1}`
	resp, err := http.Post(env.url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", rpcResp.Error)
	}
}

func TestRPC_GetNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", rpcResp.Error)
	}
}

func TestRPC_IPFilter(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{AllowedIPs: []string{"10.0.0.0/8"}})
	h := env.server.Handler()

	body := `{"jsonrpc":"2.0","method":"program_getConfig","id":1}`
	for _, tt := range []struct {
		remote string
		want   int
	}{
		{"10.1.2.3:5000", http.StatusOK},
		{"192.168.1.1:5000", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.RemoteAddr = tt.remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.remote, w.Code, tt.want)
		}
	}

	// Metrics share the filter.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.168.1.1:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("metrics status = %d, want 403", w.Code)
	}
}

func TestRPC_CORS(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{CORSOrigins: []string{"https://app.example"}})
	h := env.server.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for foreign origin = %q, want empty", got)
	}
}

func TestRPC_Metrics(t *testing.T) {
	env := setupTestEnv(t)
	createToken(t, env, "MTR")

	resp, err := http.Get(env.url + "metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`pumpbox_rpc_requests_total{method="program_submit"} 2`,
		`pumpbox_program_requests_total{instruction="create_token",result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRPC_NextRecordMatchesMint(t *testing.T) {
	env := setupTestEnv(t)

	var next NextRecordResult
	decodeResult(t, rpcCall(t, env.url, "token_nextRecord", CreatorParam{Creator: env.creator.Address().String()}), &next)
	m, rec, err := mint.NextRecord(env.rt.Store(), env.cfg.ProgramID, env.creator.Address())
	if err != nil {
		t.Fatalf("next record: %v", err)
	}
	if next.Mint != m || next.Record != rec {
		t.Errorf("next = %+v, want mint %s record %s", next, m, rec)
	}
}
