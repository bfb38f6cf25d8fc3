// README: Common money value object used across modules.
package types

// Money carries an amount in minor units plus its currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
