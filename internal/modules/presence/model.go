// README: Rider location ping; ephemeral, only the latest per rider is kept.
package presence

import (
	"time"

	"deliverd/internal/types"
)

type Ping struct {
	RiderID   types.ID    `json:"rider_id"`
	OrderID   types.ID    `json:"order_id,omitempty"`
	Position  types.Point `json:"location"`
	Accuracy  float64     `json:"accuracy,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
