// Package detection turns camera frames into face observations carrying an
// appearance descriptor.
package detection

import (
	"encoding/json"
	"fmt"
)

// Box is a face bounding box in pixel coordinates. It serializes as [x, y, w, h].
type Box struct {
	X, Y, W, H int
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X, b.Y, b.W, b.H})
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox must have 4 elements, got %d", len(v))
	}
	*b = Box{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// Observation is one detected face. Descriptor is transient and never persisted.
type Observation struct {
	Box        Box       `json:"bbox"`
	Descriptor []float64 `json:"descriptor"`
	Confidence *float64  `json:"confidence,omitempty"`
}
