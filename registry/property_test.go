package registry

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// nameRune is any rune that can appear inside an entry: no comment
// character and no line break.
var nameRune = rapid.Rune().Filter(func(r rune) bool {
	return r != '#' && r != '\n' && r != '\r'
})

// identifierGen draws names that survive trimming: the first and last
// runes are above U+0020.
var identifierGen = rapid.Custom(func(t *rapid.T) string {
	edge := nameRune.Filter(func(r rune) bool { return r > ' ' })
	first := edge.Draw(t, "first")
	middle := rapid.SliceOfN(nameRune, 0, 28).Draw(t, "middle")
	if rapid.Bool().Draw(t, "single") {
		return string(first)
	}
	last := edge.Draw(t, "last")
	return string(first) + string(middle) + string(last)
})

func registrationsGen(maxLen int) *rapid.Generator[Registrations] {
	return rapid.Custom(func(t *rapid.T) Registrations {
		names := rapid.SliceOfN(identifierGen, 0, maxLen).Draw(t, "names")
		regs := make(Registrations, len(names))
		for i, name := range names {
			regs.Add(name, rapid.Int().Draw(t, fmt.Sprintf("priority-%d", i)))
		}
		return regs
	})
}

func TestProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		regs := registrationsGen(20).Draw(t, "regs")

		got, err := Parse(strings.NewReader(EncodeString(regs)))
		require.NoError(t, err)
		assert.Equal(t, regs, got)
	})
}

func TestProperty_MergeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := registrationsGen(10).Draw(t, "discovered")
		y := registrationsGen(10).Draw(t, "existing")

		once := Merge(x, y)
		assert.Equal(t, once, Merge(x, once))
		assert.Equal(t, once, Merge(Registrations{}, once))
	})
}

func TestProperty_DiscoveredWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := identifierGen.Draw(t, "name")
		p1 := rapid.Int().Draw(t, "p1")
		p2 := rapid.Int().Draw(t, "p2")

		x := registrationsGen(5).Draw(t, "discovered")
		y := registrationsGen(5).Draw(t, "existing")
		x.Add(name, p1)
		y.Add(name, p2)

		assert.Equal(t, p1, Merge(x, y)[name].Priority)
	})
}

func TestProperty_MergeKeepsEveryName(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := registrationsGen(10).Draw(t, "discovered")
		y := registrationsGen(10).Draw(t, "existing")

		merged := Merge(x, y)
		for name := range x {
			assert.Contains(t, merged, name)
		}
		for name := range y {
			assert.Contains(t, merged, name)
		}
		for name := range merged {
			_, inX := x[name]
			_, inY := y[name]
			assert.True(t, inX || inY, "merge invented %q", name)
		}
	})
}

func TestProperty_EncodeOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		regs := registrationsGen(20).Draw(t, "regs")

		var order []Registration
		current := 0
		for _, line := range strings.Split(strings.TrimSuffix(EncodeString(regs), "\n"), "\n") {
			if line == "" {
				continue
			}
			var p int
			if _, err := fmt.Sscanf(line, "# priority %d", &p); err == nil {
				current = p
				continue
			}
			order = append(order, Registration{Name: line, Priority: current})
		}

		require.Len(t, order, len(regs))
		for i := 1; i < len(order); i++ {
			a, b := order[i-1], order[i]
			if a.Priority == b.Priority {
				assert.Less(t, a.Name, b.Name)
			} else {
				assert.Greater(t, a.Priority, b.Priority)
			}
		}
	})
}

func TestScenarioA(t *testing.T) {
	existing, err := Parse(strings.NewReader("# priority 0\npkg.Impl2\n"))
	require.NoError(t, err)

	merged := Merge(regsOf("pkg.Impl1", 5), existing)

	assert.Equal(t, regsOf("pkg.Impl1", 5, "pkg.Impl2", 0), merged)
	assert.Equal(t, "# priority 5\npkg.Impl1\n# priority 0\npkg.Impl2\n", EncodeString(merged))
}

func TestScenarioB(t *testing.T) {
	merged := Merge(regsOf("pkg.A", 0, "pkg.B", 0), Registrations{})
	assert.Equal(t, "pkg.A\npkg.B\n", EncodeString(merged))
}
