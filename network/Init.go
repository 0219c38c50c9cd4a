package network

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Weight initialization schemes available by name
const (
	GlorotU = "glorot_uniform"
	GlorotN = "glorot_normal"
	HeU     = "he_uniform"
	HeN     = "he_normal"
	Zeroes  = "zeroes"
)

// NewInitWFn returns the Gorgonia weight initialization function with
// the given name. The gain is ignored by Zeroes.
func NewInitWFn(name string, gain float64) (G.InitWFn, error) {
	switch strings.ToLower(name) {
	case GlorotU:
		return G.GlorotU(gain), nil
	case GlorotN:
		return G.GlorotN(gain), nil
	case HeU:
		return G.HeU(gain), nil
	case HeN:
		return G.HeN(gain), nil
	case Zeroes:
		return G.Zeroes(), nil
	default:
		return nil, fmt.Errorf("newInitWFn: unknown initialization %q", name)
	}
}
