package trace

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares a recorder's formatted trace against the named
// golden file under testdata/golden. Regenerate with `go test -update`.
func AssertGolden(t *testing.T, name string, r *Recorder) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, r.Format())
}
