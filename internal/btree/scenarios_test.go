package btree

import (
	"math/rand"
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

// scenarioFile describes the "insert (i, 2*i) in random order, then look
// up every i" case table declaratively instead of as hand-written Go
// literals.
type scenarioFile struct {
	Scenarios []struct {
		Name string `yaml:"name"`
		N    int    `yaml:"n"`
		Seed int64  `yaml:"seed"`
	} `yaml:"scenarios"`
}

// TestInsertLookupScenarioTable runs every case in
// testdata/scenarios.yaml: insert (i, 2*i) for i = 0..n in a seeded random
// order, then assert lookup(i) == 2*i for every i and that a non-empty
// tree reports a depth of at least 1.
func TestInsertLookupScenarioTable(t *testing.T) {
	b, err := os.ReadFile("testdata/scenarios.yaml")
	if err != nil {
		t.Fatalf("read testdata/scenarios.yaml: %v", err)
	}
	var sf scenarioFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		t.Fatalf("parse testdata/scenarios.yaml: %v", err)
	}
	if len(sf.Scenarios) == 0 {
		t.Fatalf("testdata/scenarios.yaml declared no scenarios")
	}

	for _, sc := range sf.Scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			tree := newTestTree(t)
			order := rand.New(rand.NewSource(sc.Seed)).Perm(sc.N)
			for _, i := range order {
				tree.Insert(uint64(i), uint64(2*i))
			}
			for i := 0; i < sc.N; i++ {
				v, found := tree.Lookup(uint64(i))
				if !found || v != uint64(2*i) {
					t.Fatalf("Lookup(%d) = (%d, %v), want (%d, true)", i, v, found, 2*i)
				}
			}
			if sc.N > 0 {
				if d := tree.Depth(); d < 1 {
					t.Fatalf("non-empty tree reported depth %d", d)
				}
			}
		})
	}
}
