package registryloader

import (
	"fmt"
	"os"
	"strings"

	"holdings_tracker/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

const defaultRegistryFilePath = "data/registry.yaml"

// RegistryFileLoader loads the exchange address registry from a YAML file:
//
//	groups:
//	  - name: Bitstamp
//	    wallets:
//	      - address: rvYAfWj5gh67oV6fW32ZzP3Aw4Eubs59B
//	        label: Bitstamp1
type RegistryFileLoader struct {
	filePath   string
	loggerInfo func(msg string, args ...any)
}

// NewRegistryFileLoader creates a new RegistryFileLoader. An empty path uses data/registry.yaml.
func NewRegistryFileLoader(filePath string, loggerInfo func(msg string, args ...any)) *RegistryFileLoader {
	if filePath == "" {
		filePath = defaultRegistryFilePath
	}
	return &RegistryFileLoader{filePath: filePath, loggerInfo: loggerInfo}
}

// Path returns the file the loader reads.
func (l *RegistryFileLoader) Path() string {
	return l.filePath
}

// GetRegistry reads, normalizes and validates the registry file.
func (l *RegistryFileLoader) GetRegistry() (entity.Registry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return entity.Registry{}, fmt.Errorf("failed to read registry file %s: %w", l.filePath, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return entity.Registry{}, fmt.Errorf("registry file %s: %w", l.filePath, err)
	}

	if l.loggerInfo != nil {
		for _, e := range reg.Entries() {
			if !looksLikeAccount(e.Address) {
				// Не отбрасываем: некорректный адрес просто вернет ошибку от узла
				l.loggerInfo("Registry address does not look like a ledger account", "path", l.filePath, "group", e.Group, "address", e.Address)
			}
		}
		l.loggerInfo("Registry loaded successfully from file", "groups", len(reg.Groups), "addresses", reg.Size(), "path", l.filePath)
	}
	return reg, nil
}

// Parse decodes registry YAML, trims whitespace, fills missing labels and validates the result.
func Parse(data []byte) (entity.Registry, error) {
	var reg entity.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return entity.Registry{}, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	for gi := range reg.Groups {
		g := &reg.Groups[gi]
		g.Name = strings.TrimSpace(g.Name)
		for wi := range g.Wallets {
			w := &g.Wallets[wi]
			w.Address = strings.TrimSpace(w.Address)
			w.Label = strings.TrimSpace(w.Label)
			if w.Label == "" {
				w.Label = fmt.Sprintf("%s%d", g.Name, wi+1)
			}
			w.Group = g.Name
		}
	}
	if err := reg.Validate(); err != nil {
		return entity.Registry{}, err
	}
	return reg, nil
}

// looksLikeAccount is a cheap shape check for classic r-addresses (base58, 25-35 chars).
func looksLikeAccount(addr string) bool {
	if len(addr) < 25 || len(addr) > 35 || addr[0] != 'r' {
		return false
	}
	for _, c := range addr {
		if !strings.ContainsRune(base58Alphabet, c) {
			return false
		}
	}
	return true
}

const base58Alphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
