package entity

// LedgerEndpoint describes one rippled JSON-RPC server.
// Endpoints are tried in the order they are configured.
type LedgerEndpoint struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Label returns the name used in logs and metric labels.
func (e LedgerEndpoint) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.URL
}
