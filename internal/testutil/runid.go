package testutil

// DefaultRunID is returned by a FixedRunIDGenerator built with "".
const DefaultRunID = "test-run-default"

// FixedRunIDGenerator returns the same run id every time, so golden
// output of recorded runs is byte-identical between test executions.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
