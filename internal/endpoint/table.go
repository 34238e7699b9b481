package endpoint

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var defaultAddresses = map[Family]map[string]string{
	Mempool: {
		"mainnet": "https://mempool.space/api",
		"testnet": "https://mempool.space/testnet/api",
		"signet":  "https://mempool.space/signet/api",
	},
	Blockstream: {
		"mainnet": "https://blockstream.info/api",
		"testnet": "https://blockstream.info/testnet/api",
	},
}

// Table is the immutable (family, network) -> base URL mapping. Every legal
// pair has an entry, so Resolve never fails.
type Table struct {
	addrs map[Family]map[string]string
}

// DefaultTable returns the built-in public endpoints.
func DefaultTable() *Table {
	t, err := NewTable(nil)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable returns the built-in table with overrides applied. Overrides may
// only name legal (family, network) pairs and must be absolute http(s) URLs.
func NewTable(overrides map[Family]map[string]string) (*Table, error) {
	addrs := make(map[Family]map[string]string, len(defaultAddresses))
	for f, nets := range defaultAddresses {
		addrs[f] = make(map[string]string, len(nets))
		for tag, u := range nets {
			addrs[f][tag] = u
		}
	}

	families := make([]string, 0, len(overrides))
	for f := range overrides {
		families = append(families, string(f))
	}
	sort.Strings(families)
	for _, name := range families {
		f := Family(name)
		for tag, raw := range overrides[f] {
			if err := check(f, tag); err != nil {
				return nil, fmt.Errorf("endpoint override: %w", err)
			}
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, fmt.Errorf("endpoint override %s/%s: invalid base url %q", f, tag, raw)
			}
			addrs[f][tag] = strings.TrimRight(raw, "/")
		}
	}

	for _, s := range specs {
		for _, tag := range s.Networks {
			if addrs[s.Family][tag] == "" {
				return nil, fmt.Errorf("endpoint table: no address for %s/%s", s.Family, tag)
			}
		}
	}
	return &Table{addrs: addrs}, nil
}

// Resolve returns the base URL for a typed network. Network values can only
// be built for legal pairs, all of which are present.
func (t *Table) Resolve(n Network) string {
	return t.addrs[n.Family()][n.Tag()]
}

// Lookup is the untyped form of Resolve.
func (t *Table) Lookup(f Family, tag string) (string, error) {
	if err := check(f, tag); err != nil {
		return "", err
	}
	return t.addrs[f][tag], nil
}
