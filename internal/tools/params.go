package tools

import (
	"fmt"
	"strings"

	"github.com/RobinCoderZhao/bitcoin-data-mcp/internal/endpoint"
	"github.com/RobinCoderZhao/bitcoin-data-mcp/pkg/schema"
)

const (
	hex64        = `^[0-9a-fA-F]{64}$`
	addressChars = `^[a-zA-Z0-9]{14,90}$`
)

// Parameter structs are generic over the family's network type, so a
// TxParams[endpoint.MempoolNetwork] can never carry a blockstream tag.

// NetworkParams selects only a network.
type NetworkParams[N endpoint.Network] struct {
	Network N
}

// TxParams identifies a transaction.
type TxParams[N endpoint.Network] struct {
	TxID    string
	Network N
}

// BlockParams identifies a block by hash.
type BlockParams[N endpoint.Network] struct {
	Hash    string
	Network N
}

// HeightParams identifies a block by height.
type HeightParams[N endpoint.Network] struct {
	Height  int64
	Network N
}

// AddressParams identifies an address.
type AddressParams[N endpoint.Network] struct {
	Address string
	Network N
}

// family ties a service family to its typed network parser.
type family[N endpoint.Network] struct {
	spec  endpoint.Spec
	host  string
	title string
	parse func(string) (N, error)
}

// shapes holds one schema.Shape per parameter struct of a family.
type shapes struct {
	network *schema.Shape
	tx      *schema.Shape
	block   *schema.Shape
	height  *schema.Shape
	address *schema.Shape
}

func newFamily[N endpoint.Network](f endpoint.Family, host, title string, parse func(string) (N, error)) family[N] {
	spec, ok := endpoint.SpecFor(f)
	if !ok {
		panic(fmt.Sprintf("tools: unknown family %q", f))
	}
	return family[N]{spec: spec, host: host, title: title, parse: parse}
}

func (f family[N]) networkField() *schema.Field {
	desc := fmt.Sprintf("Bitcoin network to query on %s. One of: %s. Defaults to %s.",
		f.host, strings.Join(f.spec.Networks, ", "), f.spec.Default)
	return schema.Enum("network", desc, f.spec.Networks...).
		Validate(func(tag string) error {
			_, err := f.parse(tag)
			return err
		}).
		Default(f.spec.Default)
}

func (f family[N]) shapes() shapes {
	return shapes{
		network: schema.NewShape(f.title+"NetworkParams",
			f.networkField(),
		),
		tx: schema.NewShape(f.title+"TransactionParams",
			schema.String("txid", "Transaction id as 64 hex characters.").Pattern(hex64),
			f.networkField(),
		),
		block: schema.NewShape(f.title+"BlockParams",
			schema.String("hash", "Block hash as 64 hex characters.").Pattern(hex64),
			f.networkField(),
		),
		height: schema.NewShape(f.title+"HeightParams",
			schema.Integer("height", "Block height; 0 is the genesis block.").Min(0),
			f.networkField(),
		),
		address: schema.NewShape(f.title+"AddressParams",
			schema.String("address", "Bitcoin address (base58 or bech32).").Pattern(addressChars),
			f.networkField(),
		),
	}
}

func (f family[N]) network(v schema.Values) (N, error) {
	n, err := f.parse(v.String("network"))
	if err != nil {
		var zero N
		return zero, &schema.FieldError{Field: "network", Err: err}
	}
	return n, nil
}

func (f family[N]) decodeNetwork(v schema.Values) (NetworkParams[N], error) {
	n, err := f.network(v)
	return NetworkParams[N]{Network: n}, err
}

func (f family[N]) decodeTx(v schema.Values) (TxParams[N], error) {
	n, err := f.network(v)
	return TxParams[N]{TxID: strings.ToLower(v.String("txid")), Network: n}, err
}

func (f family[N]) decodeBlock(v schema.Values) (BlockParams[N], error) {
	n, err := f.network(v)
	return BlockParams[N]{Hash: strings.ToLower(v.String("hash")), Network: n}, err
}

func (f family[N]) decodeHeight(v schema.Values) (HeightParams[N], error) {
	n, err := f.network(v)
	return HeightParams[N]{Height: v.Int("height"), Network: n}, err
}

func (f family[N]) decodeAddress(v schema.Values) (AddressParams[N], error) {
	n, err := f.network(v)
	return AddressParams[N]{Address: v.String("address"), Network: n}, err
}
