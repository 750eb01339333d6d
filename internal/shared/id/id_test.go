package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsUnique(t *testing.T) {
	gen := NewGenerator()

	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{SessionPrefix, RequestPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		require.True(t, strings.HasPrefix(id, prefix+"_"), id)
		parts := strings.Split(id, "_")
		require.Len(t, parts, 2)
		assert.Len(t, parts[1], 26)
	}
}

func TestTypedIDs(t *testing.T) {
	sess := NewSessionID()
	req := NewRequestID()

	assert.True(t, strings.HasPrefix(sess.String(), "sess_"))
	assert.True(t, strings.HasPrefix(req.String(), "req_"))
	assert.NotEqual(t, NewSessionID(), sess)
}

func TestIDsSortByCreation(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateWithPrefix(SessionPrefix)
	for i := 0; i < 1000; i++ {
		next := gen.GenerateWithPrefix(SessionPrefix)
		require.Less(t, prev, next)
		prev = next
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 16, 200

	var (
		mu   sync.Mutex
		seen = make(map[SessionID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewSessionID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestParseSessionID(t *testing.T) {
	minted := NewSessionID()

	parsed, err := ParseSessionID(minted.String())
	require.NoError(t, err)
	assert.Equal(t, minted, parsed)

	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no prefix", in: strings.TrimPrefix(minted.String(), "sess_")},
		{name: "request prefix", in: "req_" + strings.TrimPrefix(minted.String(), "sess_")},
		{name: "not a ulid", in: "sess_not-a-ulid"},
		{name: "too short", in: "sess_01J"},
		{name: "path traversal", in: "sess_../../etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionID(tt.in)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}
