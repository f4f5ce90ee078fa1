package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `📊 *Foreign Accumulation Report (10 Days)*
Generated: 2024-03-15 08:30:00

*BBCA* — Foreign Buy 8/10 days (Strong Accumulation)
Avg foreign price: Rp 9,800
*TLKM* — Foreign Buy 6/10 days (Moderate Accumulation)
*not a symbol line*
*ASII* — Foreign Sell 3/10 days (Neutral)
*BMRI* — Foreign Buy 7/10 days (Moderate Accumulation)

_Scoring_: net foreign flow (25%)`

func TestWatchlist(t *testing.T) {
	tests := []struct {
		name   string
		report string
		size   int
		want   string
	}{
		{
			name:   "first three",
			report: sampleReport,
			size:   3,
			want: WatchlistHeader + "\n" +
				"*BBCA* — Foreign Buy 8/10 days (Strong Accumulation)\n" +
				"*TLKM* — Foreign Buy 6/10 days (Moderate Accumulation)\n" +
				"*ASII* — Foreign Sell 3/10 days (Neutral)",
		},
		{
			name:   "fewer than requested",
			report: "*BBCA* — Foreign Buy 1/3 days (Neutral)",
			size:   3,
			want:   WatchlistHeader + "\n*BBCA* — Foreign Buy 1/3 days (Neutral)",
		},
		{"no symbol lines", "📊 *Foreign Accumulation Report (10 Days)*\nNo liquid symbols", 3, ""},
		{"zero size", sampleReport, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Watchlist(tt.report, tt.size))
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	})

	t.Run("splits at line boundaries", func(t *testing.T) {
		text := "aaaa\nbbbb\ncccc\ndddd"
		chunks := SplitMessage(text, 10)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc\ndddd"}, chunks)
	})

	t.Run("hard splits long lines without breaking runes", func(t *testing.T) {
		text := strings.Repeat("🔥", 10) // 40 bytes
		chunks := SplitMessage(text, 15)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 15)
			assert.True(t, utf8.ValidString(c))
		}
		assert.Equal(t, text, strings.Join(chunks, ""))
	})

	t.Run("report sized to the telegram limit", func(t *testing.T) {
		text := strings.Repeat(strings.Repeat("x", 99)+"\n", 100)
		chunks := SplitMessage(text, MaxMessageLength)
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), MaxMessageLength)
		}
	})
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier("console", &buf)

	require.NoError(t, n.Send(context.Background(), "first\n"))
	require.NoError(t, n.Send(context.Background(), "second"))
	assert.Equal(t, "first\n\nsecond\n\n", buf.String())
	assert.Equal(t, "console", n.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, "late"), context.Canceled)
}

type failingNotifier struct{ name string }

func (f failingNotifier) Name() string { return f.name }
func (f failingNotifier) Send(context.Context, string) error {
	return errors.New("unreachable")
}

func TestMulti(t *testing.T) {
	var buf bytes.Buffer
	m := Multi{failingNotifier{name: "telegram"}, NewWriterNotifier("console", &buf)}

	err := m.Send(context.Background(), "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: unreachable")
	assert.Equal(t, "report\n\n", buf.String(), "later notifiers still run")
	assert.Equal(t, "telegram+console", m.Name())
}
