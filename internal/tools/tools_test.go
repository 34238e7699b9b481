package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/endpoint"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/fetch"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/mcpserver"
)

const (
	genesisTx   = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	genesisHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	satoshiAddr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

// recorder is a Fetcher that remembers requested URLs.
type recorder struct {
	mu   sync.Mutex
	urls []string
	body string
	err  error
}

func (r *recorder) Fetch(_ context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return r.body, r.err
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.urls) == 0 {
		return ""
	}
	return r.urls[len(r.urls)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, f fetch.Fetcher) *mcpserver.Server {
	t.Helper()
	registry, err := mcpserver.NewRegistry(Catalog(endpoint.DefaultTable(), f)...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return mcpserver.New("bitcoin-data-mcp", "test", registry, mcpserver.WithLogger(quietLogger()))
}

func call(sess *mcpserver.Session, id int, method string, params any) *mcpserver.JSONRPCResponse {
	return sess.HandleRequest(context.Background(), &mcpserver.JSONRPCRequest{
		JSONRPC: "2.0", ID: id, Method: method, Params: params,
	})
}

func ready(t *testing.T, srv *mcpserver.Server) *mcpserver.Session {
	t.Helper()
	sess := srv.NewSession("")
	if resp := call(sess, 1, "initialize", map[string]any{"protocolVersion": "2025-06-18"}); resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}
	sess.HandleRequest(context.Background(), &mcpserver.JSONRPCRequest{
		JSONRPC: "2.0", Method: "notifications/initialized",
	})
	return sess
}

func callTool(sess *mcpserver.Session, name string, args map[string]any) *mcpserver.JSONRPCResponse {
	return call(sess, 7, "tools/call", map[string]any{"name": name, "arguments": args})
}

func TestCatalog_UniqueNames(t *testing.T) {
	handlers := Catalog(endpoint.DefaultTable(), &recorder{})
	if len(handlers) != 17 {
		t.Fatalf("expected 17 tools, got %d", len(handlers))
	}
	seen := make(map[string]bool)
	for _, h := range handlers {
		if seen[h.Name()] {
			t.Fatalf("duplicate tool %q", h.Name())
		}
		seen[h.Name()] = true
		if h.Description() == "" {
			t.Errorf("tool %q has no description", h.Name())
		}
		var doc map[string]any
		if err := json.Unmarshal(h.Shape().Schema(), &doc); err != nil {
			t.Fatalf("tool %q: invalid schema: %v", h.Name(), err)
		}
		if doc["type"] != "object" {
			t.Errorf("tool %q: schema type %v", h.Name(), doc["type"])
		}
	}
}

func TestCatalog_NetworkFieldPerFamily(t *testing.T) {
	for _, h := range Catalog(endpoint.DefaultTable(), &recorder{}) {
		f, ok := h.Shape().Field("network")
		if !ok {
			t.Fatalf("tool %q has no network field", h.Name())
		}
		if f.Required() {
			t.Errorf("tool %q: network must be optional", h.Name())
		}
		def, _ := f.DefaultValue()
		if def != "mainnet" {
			t.Errorf("tool %q: default network %v", h.Name(), def)
		}
		schemaText := string(h.Shape().Schema())
		hasSignet := strings.Contains(schemaText, `"signet"`)
		if strings.HasPrefix(h.Name(), "blockstream_") == hasSignet {
			t.Errorf("tool %q: unexpected network enum in %s", h.Name(), schemaText)
		}
	}
}

func TestCatalog_SchemaSnapshot(t *testing.T) {
	srv := newServer(t, &recorder{})
	h, ok := srv.Registry().Lookup("blockstream_get_transaction")
	if !ok {
		t.Fatal("blockstream_get_transaction not registered")
	}
	want := `{"$schema":"http://json-schema.org/draft-07/schema#","title":"BlockstreamTransactionParams","type":"object","properties":{` +
		`"txid":{"type":"string","description":"Transaction id as 64 hex characters.","pattern":"^[0-9a-fA-F]{64}$"},` +
		`"network":{"type":"string","description":"Bitcoin network to query on blockstream.info. One of: mainnet, testnet. Defaults to mainnet.",` +
		`"enum":["mainnet","testnet"],"default":"mainnet"}},"required":["txid"]}`
	got := h.Shape().Schema()
	var gotDoc, wantDoc map[string]any
	if err := json.Unmarshal(got, &gotDoc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if err := json.Unmarshal([]byte(want), &wantDoc); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotDoc, wantDoc) {
		t.Fatalf("unexpected schema:\n got: %s\nwant: %s", got, want)
	}
	if strings.Index(string(got), `"txid":{`) > strings.Index(string(got), `"network":{`) {
		t.Fatalf("network must follow txid: %s", got)
	}
}

func TestTools_URLs(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"get_tip_height", nil, "https://mempool.space/api/blocks/tip/height"},
		{"get_tip_hash", map[string]any{"network": "signet"}, "https://mempool.space/signet/api/blocks/tip/hash"},
		{"get_block", map[string]any{"hash": genesisHash}, "https://mempool.space/api/block/" + genesisHash},
		{"get_block_hash", map[string]any{"height": 0}, "https://mempool.space/api/block-height/0"},
		{"get_block_txids", map[string]any{"hash": strings.ToUpper(genesisHash)}, "https://mempool.space/api/block/" + genesisHash + "/txids"},
		{"get_transaction", map[string]any{"txid": genesisTx}, "https://mempool.space/api/tx/" + genesisTx},
		{"get_transaction_status", map[string]any{"txid": genesisTx, "network": "testnet"}, "https://mempool.space/testnet/api/tx/" + genesisTx + "/status"},
		{"get_transaction_hex", map[string]any{"txid": genesisTx}, "https://mempool.space/api/tx/" + genesisTx + "/hex"},
		{"get_address", map[string]any{"address": satoshiAddr}, "https://mempool.space/api/address/" + satoshiAddr},
		{"get_address_transactions", map[string]any{"address": satoshiAddr}, "https://mempool.space/api/address/" + satoshiAddr + "/txs"},
		{"get_address_utxos", map[string]any{"address": satoshiAddr}, "https://mempool.space/api/address/" + satoshiAddr + "/utxo"},
		{"get_mempool_info", nil, "https://mempool.space/api/mempool"},
		{"get_recommended_fees", nil, "https://mempool.space/api/v1/fees/recommended"},
		{"blockstream_get_tip_height", map[string]any{"network": "testnet"}, "https://blockstream.info/testnet/api/blocks/tip/height"},
		{"blockstream_get_transaction", map[string]any{"txid": genesisTx}, "https://blockstream.info/api/tx/" + genesisTx},
		{"blockstream_get_address", map[string]any{"address": satoshiAddr}, "https://blockstream.info/api/address/" + satoshiAddr},
		{"blockstream_get_fee_estimates", nil, "https://blockstream.info/api/fee-estimates"},
	}

	rec := &recorder{body: "ok"}
	sess := ready(t, newServer(t, rec))
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			resp := callTool(sess, tt.tool, tt.args)
			if resp.Error != nil {
				t.Fatalf("unexpected error: %+v", resp.Error)
			}
			if got := rec.last(); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// Scenario A: initialize reports the server, tools/list returns the catalog.
func TestScenario_InitializeAndList(t *testing.T) {
	srv := newServer(t, &recorder{})
	sess := srv.NewSession("")

	resp := call(sess, 1, "initialize", map[string]any{"protocolVersion": "2025-06-18"})
	if resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}
	initResult := resp.Result.(*mcpserver.InitializeResult)
	if initResult.ServerInfo.Name != "bitcoin-data-mcp" || initResult.ServerInfo.Version != "test" {
		t.Fatalf("unexpected server info: %+v", initResult.ServerInfo)
	}

	if resp := call(sess, 2, "tools/list", nil); resp.Error == nil || resp.Error.Kind() != "protocol_ordering" {
		t.Fatalf("expected ordering error before initialized, got %+v", resp)
	}
	sess.HandleRequest(context.Background(), &mcpserver.JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"})

	resp = call(sess, 3, "tools/list", nil)
	if resp.Error != nil {
		t.Fatalf("tools/list: %+v", resp.Error)
	}
	list := resp.Result.(*mcpserver.ToolsListResult)
	if len(list.Tools) != srv.Registry().Len() {
		t.Fatalf("expected %d tools, got %d", srv.Registry().Len(), len(list.Tools))
	}
	for _, def := range list.Tools {
		var doc map[string]any
		if err := json.Unmarshal(def.InputSchema, &doc); err != nil || len(doc) == 0 {
			t.Fatalf("tool %q: empty or invalid schema", def.Name)
		}
	}
}

// Scenarios B and C: omitted network uses the default address, an explicit
// legal one uses its own.
func TestScenario_DefaultAndExplicitNetwork(t *testing.T) {
	rec := &recorder{body: `{"txid":"` + genesisTx + `"}`}
	sess := ready(t, newServer(t, rec))

	resp := callTool(sess, "get_transaction", map[string]any{"txid": genesisTx})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	mainnet := rec.last()
	if !strings.HasPrefix(mainnet, "https://mempool.space/api/") {
		t.Fatalf("expected mainnet address, got %s", mainnet)
	}
	result := resp.Result.(*mcpserver.ToolCallResult)
	if result.Content[0].Text != rec.body {
		t.Fatalf("expected body passed through, got %q", result.Content[0].Text)
	}

	resp = callTool(sess, "get_transaction", map[string]any{"txid": genesisTx, "network": "testnet"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	testnet := rec.last()
	if !strings.HasPrefix(testnet, "https://mempool.space/testnet/api/") || testnet == mainnet {
		t.Fatalf("expected distinct testnet address, got %s", testnet)
	}
}

// Scenario D: a tag the family does not support fails without a request.
func TestScenario_UnsupportedNetwork(t *testing.T) {
	rec := &recorder{}
	sess := ready(t, newServer(t, rec))

	resp := callTool(sess, "blockstream_get_transaction", map[string]any{"txid": genesisTx, "network": "signet"})
	if resp.Error == nil || resp.Error.Kind() != "invalid_parameters" {
		t.Fatalf("expected invalid_parameters, got %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, `unsupported network "signet" for blockstream`) {
		t.Fatalf("unexpected message: %s", resp.Error.Message)
	}
	if len(rec.urls) != 0 {
		t.Fatalf("expected no backend request, got %v", rec.urls)
	}

	resp = callTool(sess, "get_tip_height", map[string]any{"network": "regtest"})
	if resp.Error == nil || resp.Error.Kind() != "invalid_parameters" {
		t.Fatalf("expected invalid_parameters for regtest, got %+v", resp)
	}
}

func TestTools_Failures(t *testing.T) {
	rec := &recorder{}
	sess := ready(t, newServer(t, rec))

	resp := callTool(sess, "get_transaction", map[string]any{"network": "mainnet"})
	if resp.Error == nil || resp.Error.Kind() != "invalid_parameters" || !strings.Contains(resp.Error.Message, "txid") {
		t.Fatalf("expected missing txid, got %+v", resp)
	}

	resp = callTool(sess, "get_transaction", map[string]any{"txid": "not-a-txid"})
	if resp.Error == nil || resp.Error.Kind() != "invalid_parameters" {
		t.Fatalf("expected malformed txid rejected, got %+v", resp)
	}

	resp = callTool(sess, "get_block_hash", map[string]any{"height": -1})
	if resp.Error == nil || resp.Error.Kind() != "invalid_parameters" {
		t.Fatalf("expected negative height rejected, got %+v", resp)
	}

	resp = callTool(sess, "get_utxo_set", nil)
	if resp.Error == nil || resp.Error.Kind() != "unknown_tool" || !strings.Contains(resp.Error.Message, "get_utxo_set") {
		t.Fatalf("expected unknown tool naming get_utxo_set, got %+v", resp)
	}

	rec.err = &fetch.StatusError{URL: "https://mempool.space/api/tx/x", StatusCode: 404, Body: "Transaction not found"}
	resp = callTool(sess, "get_transaction", map[string]any{"txid": genesisTx})
	if resp.Error == nil || resp.Error.Kind() != "internal_error" {
		t.Fatalf("expected internal_error, got %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, "Transaction not found") {
		t.Fatalf("expected backend message, got %s", resp.Error.Message)
	}

	// the session keeps serving after failures
	rec.err = nil
	if resp := callTool(sess, "get_tip_height", nil); resp.Error != nil {
		t.Fatalf("unexpected error after failures: %+v", resp.Error)
	}
}

func TestTool_URLFromValues(t *testing.T) {
	handlers := Catalog(endpoint.DefaultTable(), &recorder{})
	var tx mcpserver.ToolHandler
	for _, h := range handlers {
		if h.Name() == "blockstream_get_transaction" {
			tx = h
		}
	}
	values, err := tx.Shape().Bind(map[string]any{"txid": strings.ToUpper(genesisTx), "network": "testnet"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	typed, ok := tx.(*tool[endpoint.BlockstreamNetwork, TxParams[endpoint.BlockstreamNetwork]])
	if !ok {
		t.Fatalf("unexpected tool type %T", tx)
	}
	u, err := typed.URL(values)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if want := "https://blockstream.info/testnet/api/tx/" + genesisTx; u != want {
		t.Fatalf("expected %s, got %s", want, u)
	}
}
