package moderation

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// Automaton build time for a large dictionary, paid once at startup.
func BenchmarkNewModerator(b *testing.B) {
	words := make([]string, 100_000)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	log := logs.GetLoggerFromLevel(slog.LevelError)

	for b.Loop() {
		_, err := NewModerator(words, '*', log)
		require.NoError(b, err)
	}
}

// Censoring a message at the maximum content length, on the send path.
func BenchmarkModerator_Censor(b *testing.B) {
	censored, err := LoadCensoredWords()
	require.NoError(b, err)
	moderator, err := NewModerator(censored.Words, '*', logs.GetLoggerFromLevel(slog.LevelError))
	require.NoError(b, err)
	text := strings.Repeat("a perfectly ordinary sentence with nothing to hide ", 100)

	b.ReportAllocs()
	for b.Loop() {
		moderator.Censor(text)
	}
}
