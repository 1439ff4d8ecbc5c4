package types

// Event is a typed record emitted by the settlement engine as state
// changes settle. Attributes carry decimal amounts and bech32 addresses
// as strings so events serialize the same way everywhere.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy so consumers can hold events without
// aliasing the emitter's attribute map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type}
	if e.Attributes != nil {
		out.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
