package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/operator-framework/alpha-decomposition/pkg/oracle"
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestScanner(t *testing.T, options ...Option) *Scanner {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := New(append([]Option{WithLogger(logger)}, options...)...)
	require.NoError(t, err)
	return s
}

// fakeEngine treats every n in infeasible as exceeding k and records the
// values it was asked about.
type fakeEngine struct {
	mu         sync.Mutex
	infeasible map[int]bool
	fail       map[int]error
	calls      []int
}

func (f *fakeEngine) Decide(ctx context.Context, n, k int) (*search.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, n)
	f.mu.Unlock()
	if err := f.fail[n]; err != nil {
		return nil, err
	}
	if f.infeasible[n] {
		return nil, &search.ExhaustedError{N: n, K: k}
	}
	return &search.Result{N: n, K: k}, nil
}

type fakeOracle struct {
	status oracle.Status
	calls  []int
}

func (f *fakeOracle) Decide(ctx context.Context, n, k int) (*oracle.Decision, error) {
	f.calls = append(f.calls, n)
	return &oracle.Decision{N: n, K: k, Status: f.status}, nil
}

func TestFindFirstExceeding(t *testing.T) {
	type tc struct {
		Name    string
		K       int
		Start   int
		End     int
		Workers int
		N       int
		Found   bool
		Long    bool
	}

	for _, tt := range []tc{
		{Name: "two sets", K: 2, Start: 1, End: 100, N: 13, Found: true},
		{Name: "two sets in parallel", K: 2, Start: 1, End: 100, Workers: 4, N: 13, Found: true},
		{Name: "range below the first counterexample", K: 2, Start: 1, End: 12},
		{Name: "three sets", K: 3, Start: 1, End: 500, N: 419, Found: true},
		{Name: "three sets in parallel", K: 3, Start: 400, End: 500, Workers: 8, N: 419, Found: true},
		{Name: "four sets", K: 4, Start: 238100, End: 238200, Workers: 4, N: 238117, Found: true, Long: true},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			if tt.Long && testing.Short() {
				t.Skip("skipping slow scan in short mode")
			}
			s := newTestScanner(t, WithWorkers(tt.Workers))
			n, found, err := s.FindFirstExceeding(context.Background(), tt.K, tt.Start, tt.End)
			require.NoError(t, err)
			assert.Equal(t, tt.Found, found)
			assert.Equal(t, tt.N, n)
		})
	}
}

func TestFindFirstExceedingFullRange(t *testing.T) {
	if os.Getenv("ALPHA_LONG_TESTS") == "" {
		t.Skip("set ALPHA_LONG_TESTS to scan from 1")
	}
	s := newTestScanner(t, WithWorkers(8))
	n, found, err := s.FindFirstExceeding(context.Background(), 4, 1, 240000)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 238117, n)
}

func TestFindFirstExceedingRejectsArguments(t *testing.T) {
	s := newTestScanner(t, WithEngine(&fakeEngine{}), WithOracle(&fakeOracle{}))
	for _, args := range [][3]int{{0, 1, 10}, {2, 0, 10}, {2, 10, 9}} {
		_, _, err := s.FindFirstExceeding(context.Background(), args[0], args[1], args[2])
		assert.Error(t, err, "%v", args)
	}
}

func TestFindFirstExceedingRoutesToOracle(t *testing.T) {
	engine := &fakeEngine{}
	o := &fakeOracle{status: oracle.Infeasible}
	s := newTestScanner(t, WithEngine(engine), WithOracle(o), WithExhaustiveBound(5))

	n, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 10)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, engine.calls)
	assert.Equal(t, []int{6}, o.calls)
}

func TestFindFirstExceedingWithGiniOracle(t *testing.T) {
	// Everything above 10 goes to the solver, which must still find 13.
	s := newTestScanner(t, WithExhaustiveBound(10))
	n, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 20)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 13, n)
}

func TestFindFirstExceedingUnknown(t *testing.T) {
	s := newTestScanner(t, WithEngine(&fakeEngine{}), WithOracle(&fakeOracle{status: oracle.Unknown}), WithExhaustiveBound(3))

	_, _, err := s.FindFirstExceeding(context.Background(), 2, 1, 10)
	var unknown *UnknownError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 4, unknown.N)
	assert.ErrorIs(t, err, oracle.ErrUnknown)
}

func TestRun(t *testing.T) {
	engine := &fakeEngine{infeasible: map[int]bool{3: true}}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}))
	n, found, err := s.Run(context.Background(), Task{K: 1, Start: 2, End: 5})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, n)
}

func TestFindFirstExceedingParallelIsDeterministic(t *testing.T) {
	// Several infeasible values land in the same window; the smallest wins.
	engine := &fakeEngine{infeasible: map[int]bool{9: true, 7: true, 8: true}}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithWorkers(8))

	n, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 20)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, n)
}

func TestFindFirstExceedingCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")

	engine := &fakeEngine{infeasible: map[int]bool{13: true}}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithCheckpoint(path, time.Hour))
	n, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 13, n)

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 13, cp.LastChecked)
	assert.Equal(t, []int{13}, cp.Found)

	// A recorded counterexample is returned without deciding anything.
	again := &fakeEngine{}
	s = newTestScanner(t, WithEngine(again), WithOracle(&fakeOracle{}), WithCheckpoint(path, time.Hour))
	n, found, err = s.FindFirstExceeding(context.Background(), 2, 1, 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 13, n)
	assert.Empty(t, again.calls)
}

func TestFindFirstExceedingResumes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	cp, err := NewCheckpoint(Task{K: 2, Start: 1, End: 10})
	require.NoError(t, err)
	cp.LastChecked = 7
	require.NoError(t, cp.Save(path))

	engine := &fakeEngine{}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithCheckpoint(path, 0))
	_, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 10)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []int{8, 9, 10}, engine.calls)

	cp, err = LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cp.LastChecked)
	assert.Equal(t, 3, cp.Checks)
	assert.Empty(t, cp.Found)
}

func TestFindFirstExceedingIgnoresOtherCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	cp, err := NewCheckpoint(Task{K: 3, Start: 1, End: 3})
	require.NoError(t, err)
	cp.LastChecked = 2
	require.NoError(t, cp.Save(path))

	engine := &fakeEngine{}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithCheckpoint(path, time.Hour))
	_, _, err = s.FindFirstExceeding(context.Background(), 2, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, engine.calls)
}

func TestFindFirstExceedingSavesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	boom := errors.New("boom")
	engine := &fakeEngine{fail: map[int]error{5: boom}}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithCheckpoint(path, time.Hour))

	_, _, err := s.FindFirstExceeding(context.Background(), 2, 1, 10)
	assert.ErrorIs(t, err, boom)

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cp.LastChecked)
}

func TestFindFirstExceedingIgnoresEditedCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	cp, err := NewCheckpoint(Task{K: 2, Start: 2, End: 3})
	require.NoError(t, err)
	cp.Start, cp.LastChecked = 1, 2
	require.NoError(t, cp.Save(path))

	engine := &fakeEngine{}
	s := newTestScanner(t, WithEngine(engine), WithOracle(&fakeOracle{}), WithCheckpoint(path, time.Hour))
	_, _, err = s.FindFirstExceeding(context.Background(), 2, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, engine.calls)
}

func TestTaskFingerprint(t *testing.T) {
	a, err := Task{K: 2, Start: 1, End: 20}.fingerprint()
	require.NoError(t, err)
	b, err := Task{K: 2, Start: 1, End: 20}.fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Task{K: 2, Start: 2, End: 20}.fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFindFirstExceedingWithoutCheckpoint(t *testing.T) {
	s := newTestScanner(t)
	n, found, err := s.FindFirstExceeding(context.Background(), 2, 1, 20)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 13, n)
}

func TestLoadCheckpoint(t *testing.T) {
	dir := t.TempDir()

	cp, err := LoadCheckpoint(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, cp)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("k: 2\nunexpected: true\n"), 0o600))
	_, err = LoadCheckpoint(bad)
	assert.Error(t, err)
}
