package entity

import (
	"fmt"
	"strings"
)

// AddressEntry is one known ledger account attributed to an owning group.
type AddressEntry struct {
	Address string `json:"address" yaml:"address"`
	Label   string `json:"label" yaml:"label"`
	Group   string `json:"group" yaml:"-"`
}

// RegistryGroup is an exchange and its wallets, in file order.
type RegistryGroup struct {
	Name    string         `json:"name" yaml:"name"`
	Wallets []AddressEntry `json:"wallets" yaml:"wallets"`
}

// Registry maps owning groups to their addresses. It is read-only once validated.
type Registry struct {
	Groups []RegistryGroup `json:"groups" yaml:"groups"`
}

// Validate checks the registry can drive a refresh cycle.
func (r Registry) Validate() error {
	if len(r.Groups) == 0 {
		return ErrEmptyRegistry
	}
	groups := make(map[string]struct{}, len(r.Groups))
	addresses := make(map[string]string)
	total := 0
	for i, g := range r.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return fmt.Errorf("%w: group #%d has no name", ErrInvalidEntry, i+1)
		}
		if _, ok := groups[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
		}
		groups[name] = struct{}{}
		for j, w := range g.Wallets {
			addr := strings.TrimSpace(w.Address)
			if addr == "" {
				return fmt.Errorf("%w: wallet #%d of %q has no address", ErrInvalidEntry, j+1, name)
			}
			if owner, ok := addresses[addr]; ok {
				return fmt.Errorf("%w: %s (in %q and %q)", ErrDuplicateAddress, addr, owner, name)
			}
			addresses[addr] = name
			total++
		}
	}
	if total == 0 {
		return ErrEmptyRegistry
	}
	return nil
}

// Entries flattens the registry into address entries, keeping file order.
func (r Registry) Entries() []AddressEntry {
	entries := make([]AddressEntry, 0, r.Size())
	for _, g := range r.Groups {
		for _, w := range g.Wallets {
			entries = append(entries, AddressEntry{Address: w.Address, Label: w.Label, Group: g.Name})
		}
	}
	return entries
}

// Size returns the number of addresses across all groups.
func (r Registry) Size() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Wallets)
	}
	return n
}

// GroupNames returns the group names in file order.
func (r Registry) GroupNames() []string {
	names := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		names = append(names, g.Name)
	}
	return names
}

// Lookup finds the entry for address.
func (r Registry) Lookup(address string) (AddressEntry, bool) {
	for _, g := range r.Groups {
		for _, w := range g.Wallets {
			if w.Address == address {
				return AddressEntry{Address: w.Address, Label: w.Label, Group: g.Name}, true
			}
		}
	}
	return AddressEntry{}, false
}
