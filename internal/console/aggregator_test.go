package console

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mastershell/internal/session"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type slowWriter struct {
	lockedBuffer
	delay time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	return w.lockedBuffer.Write(p)
}

func plainLine(name string, stream session.StreamKind, text string, seq uint64) session.OutputLine {
	return session.OutputLine{Session: name, Stream: stream, Text: text, Seq: seq, At: time.Now().UTC()}
}

func TestAggregatorPreservesPerStreamOrder(t *testing.T) {
	out := &lockedBuffer{}
	agg := NewAggregator(AggregatorOptions{Writer: out, Formatter: NewFormatter(true)})

	const perSession = 200
	var wg sync.WaitGroup
	for _, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 1; i <= perSession; i++ {
				agg.Publish(plainLine(name, session.StreamStdout, name+"-"+strconv.Itoa(i), uint64(i)))
			}
		}(name)
	}
	wg.Wait()
	agg.Close()

	counts := map[string]int{}
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		text := scanner.Text()
		for _, name := range []string{"alpha", "beta"} {
			prefix := "[" + name + "] " + name + "-"
			if strings.HasPrefix(text, prefix) {
				got, err := strconv.Atoi(strings.TrimPrefix(text, prefix))
				if err != nil {
					t.Fatalf("malformed line %q: %v", text, err)
				}
				counts[name]++
				if got != counts[name] {
					t.Fatalf("session %s delivered out of order: got %d at position %d", name, got, counts[name])
				}
			}
		}
	}
	if counts["alpha"] != perSession || counts["beta"] != perSession {
		t.Fatalf("lost lines: %v", counts)
	}
}

func TestAggregatorLinesAreAtomic(t *testing.T) {
	out := &lockedBuffer{}
	agg := NewAggregator(AggregatorOptions{Writer: out, Formatter: NewFormatter(true)})

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			name := fmt.Sprintf("s%d", s)
			for i := 1; i <= 100; i++ {
				agg.Publish(plainLine(name, session.StreamStdout, strings.Repeat("x", 40), uint64(i)))
			}
		}(s)
	}
	wg.Wait()
	agg.Close()

	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	total := 0
	for scanner.Scan() {
		text := scanner.Text()
		// A torn line would not match the exact tag-plus-payload shape.
		if !strings.HasSuffix(text, " "+strings.Repeat("x", 40)) || !strings.HasPrefix(text, "[s") {
			t.Fatalf("torn console line: %q", text)
		}
		total++
	}
	if total != 400 {
		t.Fatalf("expected 400 lines, got %d", total)
	}
}

func TestAggregatorPublishDoesNotBlockOnSlowConsole(t *testing.T) {
	out := &slowWriter{delay: 5 * time.Millisecond}
	agg := NewAggregator(AggregatorOptions{Writer: out, Formatter: NewFormatter(true)})
	defer agg.Close()

	start := time.Now()
	for i := 1; i <= 100; i++ {
		agg.Publish(plainLine("busy", session.StreamStdout, "line", uint64(i)))
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("publish blocked behind slow console: %s", elapsed)
	}
}

func TestAggregatorCloseFlushesQueue(t *testing.T) {
	out := &lockedBuffer{}
	agg := NewAggregator(AggregatorOptions{Writer: out, Formatter: NewFormatter(true)})

	for i := 1; i <= 50; i++ {
		agg.Publish(plainLine("alpha", session.StreamStdout, strconv.Itoa(i), uint64(i)))
	}
	agg.Close()

	if got := strings.Count(out.String(), "\n"); got != 50 {
		t.Fatalf("expected 50 flushed lines, got %d", got)
	}
	if agg.Delivered() != 50 {
		t.Fatalf("expected 50 delivered, got %d", agg.Delivered())
	}

	// After close, publishes are dropped rather than queued.
	agg.Publish(plainLine("alpha", session.StreamStdout, "late", 51))
	if got := strings.Count(out.String(), "\n"); got != 50 {
		t.Fatalf("late publish reached console")
	}
}

func TestAggregatorNoticeSerializesWithOutput(t *testing.T) {
	out := &lockedBuffer{}
	agg := NewAggregator(AggregatorOptions{Writer: out, Formatter: NewFormatter(true)})

	agg.Publish(plainLine("alpha", session.StreamStdout, "before", 1))
	agg.Notice("session %q exited unexpectedly (exit code %d)", "beta", 3)
	agg.Close()

	text := out.String()
	if !strings.Contains(text, `[mastershell] session "beta" exited unexpectedly (exit code 3)`) {
		t.Fatalf("missing notice, got %q", text)
	}
}

func TestAggregatorSubscribeMirrorsDeliveredLines(t *testing.T) {
	agg := NewAggregator(AggregatorOptions{Formatter: NewFormatter(true)})
	ch, cancel := agg.Subscribe()
	defer cancel()

	agg.Publish(plainLine("alpha", session.StreamStderr, "oops", 1))

	select {
	case got := <-ch:
		if got.Session != "alpha" || got.Stream != session.StreamStderr || got.Text != "oops" {
			t.Fatalf("unexpected mirrored line: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for mirrored line")
	}
	agg.Close()
}

func TestAggregatorRecentLines(t *testing.T) {
	agg := NewAggregator(AggregatorOptions{Formatter: NewFormatter(true), BufferLines: 3})

	for i := 1; i <= 5; i++ {
		agg.Publish(plainLine("alpha", session.StreamStdout, strconv.Itoa(i), uint64(i)))
	}
	agg.Close()

	recent := agg.RecentLines(0)
	if len(recent) != 3 || recent[0].Text != "3" || recent[2].Text != "5" {
		t.Fatalf("unexpected recent lines: %+v", recent)
	}
}
