//go:build property

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCacheProperties checks that loads happen exactly once per observed
// timestamp.
func TestCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// true = compile, false = edit the source
	properties.Property("one load per observed timestamp", prop.ForAll(
		func(ops []bool) bool {
			l := newLoader(map[string]string{"index.b": `p("0")`})
			c := New()

			expected := int64(0)
			dirty := true
			for i, compile := range ops {
				if !compile {
					l.Set("index.b", fmt.Sprintf(`p("%d")`, i))
					dirty = true
					continue
				}
				if _, err := c.Compile(context.Background(), "index.b", ".", l); err != nil {
					return false
				}
				if dirty {
					expected++
					dirty = false
				}
			}
			return atomic.LoadInt64(&l.loads) == expected &&
				c.Stats().Compiles == expected
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("bounded cache never exceeds its bound", prop.ForAll(
		func(bound int, picks []int) bool {
			sources := map[string]string{}
			for i := 0; i < 8; i++ {
				sources[fmt.Sprintf("t%d.b", i)] = fmt.Sprintf(`p("%d")`, i)
			}
			l := newLoader(sources)
			c := New(WithMaxEntries(bound))

			for _, p := range picks {
				if _, err := c.Compile(context.Background(), fmt.Sprintf("t%d.b", p), ".", l); err != nil {
					return false
				}
				if c.Len() > bound {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}
