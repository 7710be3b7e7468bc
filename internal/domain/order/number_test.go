package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSequence struct {
	mu   sync.Mutex
	next map[string]int64
	err  error
}

func (m *mockSequence) GetNextSequenceValue(_ context.Context, name string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.next[name]
	if !ok {
		v = 1
	}
	m.next[name] = v + 1
	return v, nil
}

func TestSequenceNumberGenerator(t *testing.T) {
	seq := &mockSequence{next: map[string]int64{}}
	g := NewSequenceNumberGenerator("ORD-", seq, zerolog.Nop())

	first, err := g.NewOrderNumber(context.Background())
	require.NoError(t, err)
	second, err := g.NewOrderNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", first)
	assert.Equal(t, "ORD-2", second)
	assert.Equal(t, int64(3), seq.next[PropNextOrderNumberSeed])
}

func TestSequenceNumberGenerator_Concurrent(t *testing.T) {
	g := NewSequenceNumberGenerator("", &mockSequence{next: map[string]int64{}}, zerolog.Nop())

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := g.NewOrderNumber(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestSequenceNumberGenerator_Error(t *testing.T) {
	g := NewSequenceNumberGenerator("ORD-", &mockSequence{err: errors.New("db down")}, zerolog.Nop())
	_, err := g.NewOrderNumber(context.Background())
	assert.Error(t, err)
}
