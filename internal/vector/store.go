package vector

import "context"

// Match is one scored nearest-neighbor hit.
type Match struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Point is one upserted vector with its back-reference payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store is the optional vector collaborator. Absence is a valid state: role
// classification and semantic lookups are skipped when nil.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	QueryMatches(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error)
}
