package network

import (
	"fmt"
	"sort"
	"strings"

	G "gorgonia.org/gorgonia"
)

type nodeFn func(x *G.Node) (*G.Node, error)

func identityFn(x *G.Node) (*G.Node, error) { return x, nil }

// activationFns maps the configuration name of each activation to the
// graph operation it applies
var activationFns = map[string]nodeFn{
	"identity": identityFn,
	"relu":     G.Rectify,
	"tanh":     G.Tanh,
	"sigmoid":  G.Sigmoid,
}

// Activation is an element-wise activation function applied to the
// output of a layer
type Activation struct {
	name string
	f    nodeFn
}

func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

func (a *Activation) String() string {
	return a.name
}

// IsIdentity returns whether the Activation leaves its input unchanged
func (a *Activation) IsIdentity() bool {
	return a.name == "identity"
}

// NewActivation returns the Activation with the given case-insensitive
// name, see Activations for the accepted names
func NewActivation(name string) (*Activation, error) {
	key := strings.ToLower(name)
	f, ok := activationFns[key]
	if !ok {
		return nil, fmt.Errorf("newActivation: unknown activation %q, "+
			"want one of %v", name, Activations())
	}
	return &Activation{name: key, f: f}, nil
}

// Activations returns the sorted names accepted by NewActivation
func Activations() []string {
	names := make([]string, 0, len(activationFns))
	for name := range activationFns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustActivation(name string) *Activation {
	a, err := NewActivation(name)
	if err != nil {
		panic(err)
	}
	return a
}

// Identity returns the identity Activation
func Identity() *Activation { return mustActivation("identity") }

// ReLU returns the rectified linear Activation
func ReLU() *Activation { return mustActivation("relu") }

// TanH returns the hyperbolic tangent Activation
func TanH() *Activation { return mustActivation("tanh") }

// Sigmoid returns the logistic sigmoid Activation
func Sigmoid() *Activation { return mustActivation("sigmoid") }
