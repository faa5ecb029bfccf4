package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/breve/internal/testutils"
	"github.com/conneroisu/breve/pkg/compiler"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/loader"
)

// countingLoader wraps a MapLoader and counts Load calls.
type countingLoader struct {
	*loader.MapLoader
	loads int64
}

func (c *countingLoader) Load(uid string) (string, error) {
	atomic.AddInt64(&c.loads, 1)
	return c.MapLoader.Load(uid)
}

func newLoader(sources map[string]string) *countingLoader {
	return &countingLoader{MapLoader: loader.NewMapLoader(sources)}
}

func uidOf(t *testing.T, l loader.Loader, id string) string {
	t.Helper()
	uid, _, err := l.Stat(id, ".")
	require.NoError(t, err)
	return uid
}

func TestCache_Compile(t *testing.T) {
	ctx := context.Background()

	t.Run("unchanged timestamp reuses the unit", func(t *testing.T) {
		l := newLoader(map[string]string{"index.b": `p("x")`})
		c := New()

		first, err := c.Compile(ctx, "index.b", ".", l)
		require.NoError(t, err)
		second, err := c.Compile(ctx, "index.b", ".", l)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int64(1), atomic.LoadInt64(&l.loads))

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.Compiles)
		assert.Equal(t, 1, stats.Entries)
		assert.InDelta(t, 0.5, stats.HitRate(), 0.0001)
	})

	t.Run("changed timestamp recompiles once", func(t *testing.T) {
		l := newLoader(map[string]string{"index.b": `p("old")`})
		c := New()

		old, err := c.Compile(ctx, "index.b", ".", l)
		require.NoError(t, err)

		l.Set("index.b", `p("new")`)
		fresh, err := c.Compile(ctx, "index.b", ".", l)
		require.NoError(t, err)
		again, err := c.Compile(ctx, "index.b", ".", l)
		require.NoError(t, err)

		assert.NotSame(t, old, fresh)
		assert.Same(t, fresh, again)
		assert.Greater(t, fresh.Timestamp, old.Timestamp)
		assert.Equal(t, `p("new")`, fresh.Program.Source)
		assert.Equal(t, int64(2), atomic.LoadInt64(&l.loads))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("compile failures are not cached", func(t *testing.T) {
		l := newLoader(map[string]string{"bad.b": `p(`})
		c := New()

		_, err := c.Compile(ctx, "bad.b", ".", l)
		require.Error(t, err)
		assert.True(t, berrors.IsCompileError(err))
		assert.Equal(t, 0, c.Len())

		_, err = c.Compile(ctx, "bad.b", ".", l)
		require.Error(t, err)
		assert.Equal(t, int64(2), atomic.LoadInt64(&l.loads))

		l.Set("bad.b", `p("fixed")`)
		u, err := c.Compile(ctx, "bad.b", ".", l)
		require.NoError(t, err)
		assert.Equal(t, uidOf(t, l, "bad.b"), u.ID)
	})

	t.Run("missing template", func(t *testing.T) {
		c := New()
		_, err := c.Compile(ctx, "nope.b", ".", newLoader(nil))
		assert.True(t, berrors.IsTemplateNotFound(err))
		assert.Equal(t, int64(0), c.Stats().Misses)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := New()
		_, err := c.Compile(cctx, "index.b", ".", newLoader(map[string]string{"index.b": `"x"`}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCache_ConcurrentFirstAccess(t *testing.T) {
	l := newLoader(map[string]string{"index.b": `div(p("x"))`})

	var compiles int64
	release := make(chan struct{})
	c := New(WithCompiler(func(name, src string) (*compiler.Program, error) {
		atomic.AddInt64(&compiles, 1)
		<-release
		return compiler.Compile(name, src)
	}))

	const workers = 16
	var wg sync.WaitGroup
	units := make([]*Unit, workers)
	errs := make([]error, workers)
	var started sync.WaitGroup
	started.Add(workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			units[i], errs[i] = c.Compile(context.Background(), "index.b", ".", l)
		}(i)
	}
	started.Wait()
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, units[0], units[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&compiles))
	assert.Equal(t, int64(1), c.Stats().Compiles)
}

func TestCache_ConcurrentFailuresAreNotShared(t *testing.T) {
	l := newLoader(map[string]string{"index.b": `div(`})
	release := make(chan struct{})
	c := New(WithCompiler(func(name, src string) (*compiler.Program, error) {
		<-release
		return compiler.Compile(name, src)
	}))

	const workers = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	started.Add(workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			_, errs[i] = c.Compile(context.Background(), "index.b", ".", l)
			if be, ok := berrors.AsBreveError(errs[i]); ok {
				be.WithContext("worker", i)
			}
		}(i)
	}
	started.Wait()
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.True(t, berrors.IsCompileError(errs[i]))
		be, _ := berrors.AsBreveError(errs[i])
		assert.Equal(t, i, be.Context["worker"])
		for j := 0; j < i; j++ {
			assert.NotSame(t, errs[j], errs[i])
		}
	}
	assert.Equal(t, 0, c.Len())
}

func TestCache_LoadersDoNotShareUnits(t *testing.T) {
	ctx := context.Background()
	a := loader.NewMapLoader(map[string]string{"page.b": `p("from a")`})
	b := loader.NewMapLoader(map[string]string{"page.b": `p("from b")`})
	c := New()

	fromA, err := c.Compile(ctx, "page.b", ".", a)
	require.NoError(t, err)
	fromB, err := c.Compile(ctx, "page.b", ".", b)
	require.NoError(t, err)

	assert.NotSame(t, fromA, fromB)
	assert.Equal(t, `p("from a")`, fromA.Program.Source)
	assert.Equal(t, `p("from b")`, fromB.Program.Source)
	assert.Equal(t, 2, c.Len())
}

func TestCache_LRU(t *testing.T) {
	ctx := context.Background()
	sources := map[string]string{}
	for i := 1; i <= 4; i++ {
		sources[fmt.Sprintf("t%d.b", i)] = fmt.Sprintf(`p("%d")`, i)
	}
	l := newLoader(sources)

	t.Run("evicts least recently used", func(t *testing.T) {
		c := New(WithMaxEntries(3))
		for i := 1; i <= 3; i++ {
			_, err := c.Compile(ctx, fmt.Sprintf("t%d.b", i), ".", l)
			require.NoError(t, err)
		}

		// Touch t1 so t2 becomes the oldest.
		_, err := c.Compile(ctx, "t1.b", ".", l)
		require.NoError(t, err)

		_, err = c.Compile(ctx, "t4.b", ".", l)
		require.NoError(t, err)

		assert.Equal(t, 3, c.Len())
		assert.Equal(t, int64(1), c.Stats().Evictions)
		assert.False(t, c.Invalidate(uidOf(t, l, "t2.b")), "t2 should have been evicted")
		assert.True(t, c.Invalidate(uidOf(t, l, "t1.b")))
		assert.Equal(t, 2, c.Len())
	})

	t.Run("clear resets everything", func(t *testing.T) {
		c := New(WithMaxEntries(2))
		_, err := c.Compile(ctx, "t1.b", ".", l)
		require.NoError(t, err)

		c.Clear()
		assert.Equal(t, Stats{}, c.Stats())
	})

	t.Run("non-positive bound means unbounded", func(t *testing.T) {
		c := New(WithMaxEntries(0))
		for i := 1; i <= 4; i++ {
			_, err := c.Compile(ctx, fmt.Sprintf("t%d.b", i), ".", l)
			require.NoError(t, err)
		}
		assert.Equal(t, 4, c.Len())
		assert.Equal(t, int64(0), c.Stats().Evictions)
	})
}

func TestCache_Logging(t *testing.T) {
	logger, logs := testutils.NewTestLogger()
	c := New(WithLogger(logger), WithMaxEntries(1))
	l := newLoader(map[string]string{"a.b": `p("a")`, "b.b": `p("b")`})

	_, err := c.Compile(context.Background(), "a.b", ".", l)
	require.NoError(t, err)
	_, err = c.Compile(context.Background(), "b.b", ".", l)
	require.NoError(t, err)

	recs := logs.Records(t)
	require.NotEmpty(t, recs)
	assert.Equal(t, "cache", recs[0]["component"])
	assert.Equal(t, "compile", recs[0]["operation"])
	assert.Contains(t, logs.Messages(t), "Operation completed")
	assert.Contains(t, logs.Messages(t), "Evicted compiled unit")
}
