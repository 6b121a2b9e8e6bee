// Package toxiproxy provides a client for the Toxiproxy HTTP API, for
// testing the resiliency of Go applications against network faults.
//
// For use with Toxiproxy 2.x
package toxiproxy

// Stream directions a toxic can be attached to.
const (
	StreamUpstream   = "upstream"
	StreamDownstream = "downstream"
)

// Attributes holds the type-specific settings of a toxic, such as
// latency and jitter for a latency toxic.
type Attributes map[string]uint32

// Toxic is a fault-injection rule attached to one stream direction of a
// proxy. Values returned by listing calls are snapshots; the authoritative
// copy lives on the server.
type Toxic struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Stream     string     `json:"stream,omitempty"`
	Toxicity   float32    `json:"toxicity"`
	Attributes Attributes `json:"attributes"`
}

type Toxics []Toxic

// NewToxic builds a toxic named <type>_<stream>. The derived name is the
// idempotency key: re-attaching the same type on the same stream replaces
// the existing toxic instead of accumulating duplicates.
func NewToxic(typeName, stream string, toxicity float32, attrs Attributes) *Toxic {
	if attrs == nil {
		attrs = Attributes{}
	}
	return &Toxic{
		Name:       typeName + "_" + stream,
		Type:       typeName,
		Stream:     stream,
		Toxicity:   toxicity,
		Attributes: attrs,
	}
}
