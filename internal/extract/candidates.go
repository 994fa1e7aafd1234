package extract

// CandidateSet is an insertion-ordered set of normalized candidate strings.
type CandidateSet struct {
	order []string
	seen  map[string]struct{}
}

// NewCandidateSet returns an empty set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{seen: make(map[string]struct{})}
}

// Add inserts v unless it is empty or already present. It reports whether v was added.
func (c *CandidateSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if _, ok := c.seen[v]; ok {
		return false
	}
	c.seen[v] = struct{}{}
	c.order = append(c.order, v)
	return true
}

// Len returns the number of candidates.
func (c *CandidateSet) Len() int {
	return len(c.order)
}

// Values returns the candidates in insertion order.
func (c *CandidateSet) Values() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Best returns the first candidate accepted by keep.
func (c *CandidateSet) Best(keep func(string) bool) (string, bool) {
	for _, v := range c.order {
		if keep(v) {
			return v, true
		}
	}
	return "", false
}
