// Package endpoint maps a backend service family and a Bitcoin network to
// the base URL of that service's REST API.
package endpoint

import (
	"fmt"
	"strings"
)

// Family identifies a backend service whose API shape is shared by all of
// its networks.
type Family string

const (
	// Mempool is mempool.space.
	Mempool Family = "mempool"
	// Blockstream is the blockstream.info Esplora deployment.
	Blockstream Family = "blockstream"
)

// Network is a network tag that belongs to exactly one family.
type Network interface {
	Family() Family
	Tag() string
}

// MempoolNetwork is a network served by mempool.space.
type MempoolNetwork string

const (
	MempoolMainnet MempoolNetwork = "mainnet"
	MempoolTestnet MempoolNetwork = "testnet"
	MempoolSignet  MempoolNetwork = "signet"
)

func (MempoolNetwork) Family() Family { return Mempool }
func (n MempoolNetwork) Tag() string  { return string(n) }

// BlockstreamNetwork is a network served by blockstream.info.
type BlockstreamNetwork string

const (
	BlockstreamMainnet BlockstreamNetwork = "mainnet"
	BlockstreamTestnet BlockstreamNetwork = "testnet"
)

func (BlockstreamNetwork) Family() Family { return Blockstream }
func (n BlockstreamNetwork) Tag() string  { return string(n) }

// Spec lists the legal network tags of a family and its default.
type Spec struct {
	Family   Family
	Networks []string
	Default  string
}

var specs = []Spec{
	{
		Family:   Mempool,
		Networks: []string{string(MempoolMainnet), string(MempoolTestnet), string(MempoolSignet)},
		Default:  string(MempoolMainnet),
	},
	{
		Family:   Blockstream,
		Networks: []string{string(BlockstreamMainnet), string(BlockstreamTestnet)},
		Default:  string(BlockstreamMainnet),
	},
}

// Specs returns every family in a fixed order.
func Specs() []Spec {
	out := make([]Spec, len(specs))
	for i, s := range specs {
		out[i] = Spec{Family: s.Family, Networks: append([]string(nil), s.Networks...), Default: s.Default}
	}
	return out
}

// SpecFor returns the spec of family f.
func SpecFor(f Family) (Spec, bool) {
	for _, s := range Specs() {
		if s.Family == f {
			return s, true
		}
	}
	return Spec{}, false
}

// Supports reports whether tag is a legal network of the family.
func (s Spec) Supports(tag string) bool {
	for _, n := range s.Networks {
		if n == tag {
			return true
		}
	}
	return false
}

// UnsupportedNetworkError is returned when a tag is not legal for a family,
// even if another family accepts it.
type UnsupportedNetworkError struct {
	Family  Family
	Tag     string
	Allowed []string
}

func (e *UnsupportedNetworkError) Error() string {
	return fmt.Sprintf("unsupported network %q for %s (supported: %s)",
		e.Tag, e.Family, strings.Join(e.Allowed, ", "))
}

func check(f Family, tag string) error {
	s, ok := SpecFor(f)
	if !ok {
		return fmt.Errorf("unknown service family %q", f)
	}
	if !s.Supports(tag) {
		return &UnsupportedNetworkError{Family: f, Tag: tag, Allowed: s.Networks}
	}
	return nil
}

// ParseMempoolNetwork converts a tag to a MempoolNetwork.
func ParseMempoolNetwork(tag string) (MempoolNetwork, error) {
	if err := check(Mempool, tag); err != nil {
		return "", err
	}
	return MempoolNetwork(tag), nil
}

// ParseBlockstreamNetwork converts a tag to a BlockstreamNetwork.
func ParseBlockstreamNetwork(tag string) (BlockstreamNetwork, error) {
	if err := check(Blockstream, tag); err != nil {
		return "", err
	}
	return BlockstreamNetwork(tag), nil
}
