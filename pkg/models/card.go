package models

import "time"

// CardStatus tracks whether a generated card has been consumed by a checkout
type CardStatus string

const (
	CardUnused CardStatus = "Unused"
	CardUsed   CardStatus = "Used"
)

// Region is a screen rectangle in CSS pixels
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Card is a generated virtual card record
type Card struct {
	ID           string     `json:"id"`
	Number       string     `json:"number"`
	CVV          string     `json:"cvv"`
	Expiry       string     `json:"expiry"`
	Amount       string     `json:"amount"`
	Status       CardStatus `json:"status"`
	SnapshotPath string     `json:"snapshot,omitempty"`
	Region       *Region    `json:"region,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

// Last4 returns the last four digits of the card number, or "0000"
func (c *Card) Last4() string {
	if len(c.Number) < 4 {
		return "0000"
	}
	return c.Number[len(c.Number)-4:]
}

// DeleteCardsRequest is the payload for removing cards
type DeleteCardsRequest struct {
	IDs []string `json:"ids"`
}
