package physics

import (
	_ "embed"
	"fmt"
)

//go:embed default.yaml
var defaultDescription []byte

// DefaultModel returns the minimal built-in scene used when no model asset is
// available: a floor and a two-link pendulum with one tendon.
func DefaultModel() *Model {
	m, err := LoadDescription(defaultDescription)
	if err != nil {
		panic(fmt.Sprintf("physics: built-in model is invalid: %v", err))
	}
	return m
}
