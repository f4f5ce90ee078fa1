package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// WatchlistHeader opens every watchlist message
const WatchlistHeader = "🔥 *Watchlist Alert (Top signals)*"

// Notifier delivers a text message to one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// WriterNotifier writes messages to w, separated by a blank line
type WriterNotifier struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewWriterNotifier creates a notifier named name writing to w
func NewWriterNotifier(name string, w io.Writer) *WriterNotifier {
	return &WriterNotifier{name: name, w: w}
}

// Name implements Notifier
func (n *WriterNotifier) Name() string { return n.name }

// Send implements Notifier
func (n *WriterNotifier) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "%s\n\n", strings.TrimRight(text, "\n"))
	return err
}

// Multi fans a message out to every notifier and joins their errors
type Multi []Notifier

// Name implements Notifier
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, "+")
}

// Send implements Notifier. Every notifier is tried even when one fails.
func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Watchlist picks the first size symbol headline lines of a rendered report,
// the bold "*SYMBOL* — Foreign ..." lines, and formats them as an alert.
// It returns "" when the report has no such line or size is not positive.
func Watchlist(report string, size int) string {
	if size <= 0 {
		return ""
	}

	var picked []string
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "*") && strings.Contains(line, "Foreign") {
			picked = append(picked, line)
			if len(picked) == size {
				break
			}
		}
	}
	if len(picked) == 0 {
		return ""
	}
	return WatchlistHeader + "\n" + strings.Join(picked, "\n")
}

// SplitMessage breaks text into chunks of at most limit bytes, cutting at line
// boundaries where possible. A single line longer than limit is hard-split.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		b      strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(b.String(), "\n"))
			b.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if b.Len()+len(line) > limit {
			flush()
		}
		for len(line) > limit {
			cut := safeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		b.WriteString(line)
	}
	flush()
	return chunks
}

// safeCut backs off from limit so a multi-byte rune is never split
func safeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

