package domain

// Tick is a single price observation pushed by the trading API.
type Tick struct {
	Symbol string  `json:"symbol"`
	Epoch  int64   `json:"epoch"`
	Quote  float64 `json:"quote"`
	ID     string  `json:"id"`
}

type Direction string

const (
	DirectionNone Direction = ""
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)
