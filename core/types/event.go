package types

// Event is the wire form of an asset manager event. Amounts, ids and
// addresses are rendered as decimal or hex strings in Attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
