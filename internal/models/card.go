// internal/models/card.go
package models

import (
	"encoding/json"
	"strings"
)

// Card is the descriptor of a single card as it is carried over the wire. The card
// database owns these records; the game core treats them as immutable values.
type Card struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Atk       int    `json:"atk"`
	Def       int    `json:"def"`
	Level     int    `json:"level"`
	Attribute string `json:"attribute"`
	Race      string `json:"race"`
	Type      string `json:"type"`
	Desc      string `json:"desc"`
}

// Defaults used when the card API omits a field.
const (
	DefaultAttribute = "DARK"
	DefaultRace      = "Unknown"
	DefaultType      = "Monster"
)

// UnmarshalJSON decodes a card descriptor and fills in the defaults the card API
// leaves out, so that two clients decoding the same payload hold equal values.
func (c *Card) UnmarshalJSON(data []byte) error {
	type rawCard Card
	var rc rawCard
	if err := json.Unmarshal(data, &rc); err != nil {
		return err
	}
	*c = Card(rc)
	c.normalize()
	return nil
}

func (c *Card) normalize() {
	if c.Attribute == "" {
		c.Attribute = DefaultAttribute
	}
	c.Attribute = strings.ToUpper(c.Attribute)
	if c.Race == "" {
		c.Race = DefaultRace
	}
	if c.Type == "" {
		c.Type = DefaultType
	}
}
