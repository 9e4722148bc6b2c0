package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCount(t *testing.T) {
	assert.Equal(t, 0, Heuristic{}.Count(""))
	assert.Equal(t, 1, Heuristic{}.Count("abc"))
	assert.Equal(t, 1, Heuristic{}.Count("abcd"))
	assert.Equal(t, 2, Heuristic{}.Count("abcde"))
	// counts runes, not bytes
	assert.Equal(t, 1, Heuristic{}.Count("héé"))
}

func TestTiktokenFallsBackOnUnknownEncoding(t *testing.T) {
	est := NewTiktoken("no_such_encoding")
	assert.Equal(t, Heuristic{}.Count("hello world"), est.Count("hello world"))
	assert.Error(t, est.Err())
	assert.Equal(t, 0, est.Count(""))
}
