package flock

// Link is an optional reference to another flock in the chain.
type Link struct {
	Index int
	Valid bool
}

// Relation is one flock's position in the threat chain.
type Relation struct {
	Prey     Link // flock this one hunts
	Predator Link // flock that hunts this one
}

// ThreatChain is the predator/prey relation derived once from flock order.
type ThreatChain struct {
	relations []Relation
}

// NewThreatChain derives the relation for every flock of c
func NewThreatChain(c *Collection) *ThreatChain {
	n := c.Len()
	tc := &ThreatChain{relations: make([]Relation, n)}
	for i := 0; i < n; i++ {
		if i > 0 {
			tc.relations[i].Prey = Link{Index: i - 1, Valid: true}
		}
		if i < n-1 {
			tc.relations[i].Predator = Link{Index: i + 1, Valid: true}
		}
	}
	return tc
}

// Of returns the relation of flock i
func (tc *ThreatChain) Of(i int) Relation {
	return tc.relations[i]
}

// Len returns the number of flocks in the chain
func (tc *ThreatChain) Len() int {
	return len(tc.relations)
}
