// Package tools defines the Bitcoin data tools served over MCP. Each tool
// binds its arguments to a typed parameter struct, resolves the base URL of
// its service family for the chosen network and returns the body of one GET.
package tools

import (
	"context"
	"net/url"
	"strconv"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/endpoint"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/fetch"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/mcpserver"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/schema"
)

// Catalog returns every tool in listing order. Names, fields and defaults
// are part of the public contract; change them only with a version bump.
func Catalog(table *endpoint.Table, fetcher fetch.Fetcher) []mcpserver.ToolHandler {
	m := newBuilder(newFamily(endpoint.Mempool, "mempool.space", "Mempool", endpoint.ParseMempoolNetwork), table, fetcher)
	b := newBuilder(newFamily(endpoint.Blockstream, "blockstream.info", "Blockstream", endpoint.ParseBlockstreamNetwork), table, fetcher)

	return []mcpserver.ToolHandler{
		networkTool(m, "get_tip_height",
			"Get the height of the latest block on the chain.", "/blocks/tip/height"),
		networkTool(m, "get_tip_hash",
			"Get the hash of the latest block on the chain.", "/blocks/tip/hash"),
		blockTool(m, "get_block",
			"Get block header details (height, timestamp, tx count, size, weight) by block hash.", ""),
		heightTool(m, "get_block_hash",
			"Get the hash of the block at a given height."),
		blockTool(m, "get_block_txids",
			"Get the ids of all transactions in a block.", "/txids"),
		txTool(m, "get_transaction",
			"Get a transaction with its inputs, outputs, fee and confirmation status.", ""),
		txTool(m, "get_transaction_status",
			"Get the confirmation status of a transaction.", "/status"),
		txTool(m, "get_transaction_hex",
			"Get the raw transaction as hex.", "/hex"),
		addressTool(m, "get_address",
			"Get funded and spent totals and transaction counts for an address.", ""),
		addressTool(m, "get_address_transactions",
			"Get the most recent transactions of an address.", "/txs"),
		addressTool(m, "get_address_utxos",
			"Get the unspent outputs of an address.", "/utxo"),
		networkTool(m, "get_mempool_info",
			"Get mempool backlog statistics: transaction count, virtual size, total fees and fee histogram.", "/mempool"),
		networkTool(m, "get_recommended_fees",
			"Get currently recommended fee rates in sat/vB.", "/v1/fees/recommended"),

		networkTool(b, "blockstream_get_tip_height",
			"Get the height of the latest block from blockstream.info.", "/blocks/tip/height"),
		txTool(b, "blockstream_get_transaction",
			"Get a transaction from blockstream.info.", ""),
		addressTool(b, "blockstream_get_address",
			"Get address statistics from blockstream.info.", ""),
		networkTool(b, "blockstream_get_fee_estimates",
			"Get fee estimates in sat/vB keyed by confirmation target (blocks) from blockstream.info.", "/fee-estimates"),
	}
}

// builder creates the tools of one family, sharing its shapes.
type builder[N endpoint.Network] struct {
	family  family[N]
	shapes  shapes
	table   *endpoint.Table
	fetcher fetch.Fetcher
}

func newBuilder[N endpoint.Network](f family[N], table *endpoint.Table, fetcher fetch.Fetcher) *builder[N] {
	return &builder[N]{family: f, shapes: f.shapes(), table: table, fetcher: fetcher}
}

// tool is a catalog entry: decode bound values into P, map P to a network
// and a path, GET the result.
type tool[N endpoint.Network, P any] struct {
	mcpserver.BaseTool
	decode  func(schema.Values) (P, error)
	target  func(P) (N, string)
	table   *endpoint.Table
	fetcher fetch.Fetcher
}

func newTool[N endpoint.Network, P any](b *builder[N], name, description string, shape *schema.Shape,
	decode func(schema.Values) (P, error), target func(P) (N, string)) *tool[N, P] {
	return &tool[N, P]{
		BaseTool: mcpserver.BaseTool{
			ToolName:        name,
			ToolDescription: description,
			ToolShape:       shape,
		},
		decode:  decode,
		target:  target,
		table:   b.table,
		fetcher: b.fetcher,
	}
}

// URL returns the backend URL for already bound arguments.
func (t *tool[N, P]) URL(args schema.Values) (string, error) {
	p, err := t.decode(args)
	if err != nil {
		return "", err
	}
	network, path := t.target(p)
	return t.table.Resolve(network) + path, nil
}

func (t *tool[N, P]) Execute(ctx context.Context, args schema.Values) (string, error) {
	u, err := t.URL(args)
	if err != nil {
		return "", err
	}
	return t.fetcher.Fetch(ctx, u)
}

func networkTool[N endpoint.Network](b *builder[N], name, description, path string) mcpserver.ToolHandler {
	return newTool(b, name, description, b.shapes.network, b.family.decodeNetwork,
		func(p NetworkParams[N]) (N, string) { return p.Network, path })
}

func txTool[N endpoint.Network](b *builder[N], name, description, suffix string) mcpserver.ToolHandler {
	return newTool(b, name, description, b.shapes.tx, b.family.decodeTx,
		func(p TxParams[N]) (N, string) { return p.Network, "/tx/" + url.PathEscape(p.TxID) + suffix })
}

func blockTool[N endpoint.Network](b *builder[N], name, description, suffix string) mcpserver.ToolHandler {
	return newTool(b, name, description, b.shapes.block, b.family.decodeBlock,
		func(p BlockParams[N]) (N, string) { return p.Network, "/block/" + url.PathEscape(p.Hash) + suffix })
}

func heightTool[N endpoint.Network](b *builder[N], name, description string) mcpserver.ToolHandler {
	return newTool(b, name, description, b.shapes.height, b.family.decodeHeight,
		func(p HeightParams[N]) (N, string) {
			return p.Network, "/block-height/" + strconv.FormatInt(p.Height, 10)
		})
}

func addressTool[N endpoint.Network](b *builder[N], name, description, suffix string) mcpserver.ToolHandler {
	return newTool(b, name, description, b.shapes.address, b.family.decodeAddress,
		func(p AddressParams[N]) (N, string) { return p.Network, "/address/" + url.PathEscape(p.Address) + suffix })
}
