// File: api/schemas/wire.go
// Description: Request/response contract for the remote inference bridge.
package schemas

// WireHistoryEntry is the bounded history element sent over the bridge. The
// bridge is stateless; session identity lives entirely in this payload.
type WireHistoryEntry struct {
	Decision Decision `json:"decision"`
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
}

// WireInferRequest is the body of POST /v1/infer. Image is base64 PNG in
// downsampled resolution.
type WireInferRequest struct {
	Image       string             `json:"image"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Instruction string             `json:"instruction"`
	History     []WireHistoryEntry `json:"history,omitempty"`
	Role        Role               `json:"role,omitempty"`
}

// WirePayload holds the variant-specific fields of a decision. Coordinates
// are in downsampled image space, exactly as the model produced them.
type WirePayload struct {
	Point      *Point      `json:"point,omitempty"`
	End        *Point      `json:"end,omitempty"`
	Text       string      `json:"text,omitempty"`
	Keys       []string    `json:"keys,omitempty"`
	Delta      ScrollDelta `json:"delta,omitempty"`
	Normalized bool        `json:"normalized,omitempty"`
}

// WireInferResponse is the bridge reply.
type WireInferResponse struct {
	DecisionKind DecisionKind `json:"decisionKind"`
	Payload      WirePayload  `json:"payload"`
	TokensUsed   int          `json:"tokensUsed"`
}

// WireError is the bridge error body.
type WireError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ToWire splits a Decision into the (kind, payload) wire shape.
func (d Decision) ToWire(tokens int) WireInferResponse {
	return WireInferResponse{
		DecisionKind: d.Kind,
		Payload: WirePayload{
			Point:      d.Point,
			End:        d.End,
			Text:       d.Text,
			Keys:       d.Keys,
			Delta:      d.Delta,
			Normalized: d.Normalized,
		},
		TokensUsed: tokens,
	}
}

// Decision reassembles the canonical Decision from the wire shape.
func (r WireInferResponse) ToDecision() Decision {
	return Decision{
		Kind:       r.DecisionKind,
		Point:      r.Payload.Point,
		End:        r.Payload.End,
		Text:       r.Payload.Text,
		Keys:       r.Payload.Keys,
		Delta:      r.Payload.Delta,
		Normalized: r.Payload.Normalized,
	}
}

// WireHistory converts session history into the wire form, dropping fields
// the remote model has no use for.
func WireHistory(entries []HistoryEntry) []WireHistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]WireHistoryEntry, 0, len(entries))
	for _, e := range entries {
		w := WireHistoryEntry{Decision: e.Decision, Error: e.Err}
		if e.Outcome != nil {
			w.OK = e.Outcome.OK
			if !e.Outcome.OK && w.Error == "" {
				w.Error = e.Outcome.Reason
			}
		}
		out = append(out, w)
	}
	return out
}
