// README: Common identifier and geo types shared across modules.
package types

// ID is an opaque entity identifier (order, customer, rider, session).
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
