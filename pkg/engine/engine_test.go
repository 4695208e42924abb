package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"

	"github.com/japaniel/openings/pkg/position"
)

// fakeEngine answers searches from a table of info lines keyed by FEN.
// A FEN listed in hang searches until stopped.
type fakeEngine struct {
	mu      sync.Mutex
	info    map[string]string
	hang    map[string]bool
	fen     string
	results uci.SearchResults
	stop    chan struct{}
	ran     []string
}

func newFakeEngine(info map[string]string) *fakeEngine {
	return &fakeEngine{info: info, hang: map[string]bool{}, stop: make(chan struct{}, 1)}
}

func (f *fakeEngine) Run(cmds ...uci.Cmd) error {
	for _, cmd := range cmds {
		if cmd.String() == uci.CmdStop.String() {
			f.stop <- struct{}{}
			continue
		}
		f.mu.Lock()
		f.ran = append(f.ran, cmd.String())
		f.mu.Unlock()
		switch c := cmd.(type) {
		case uci.CmdPosition:
			f.fen = c.Position.String()
		case uci.CmdGo:
			if f.hang[f.fen] {
				<-f.stop
			}
			var info uci.Info
			if line, ok := f.info[f.fen]; ok {
				if err := info.UnmarshalText([]byte(line)); err != nil {
					return err
				}
			}
			f.mu.Lock()
			f.results = uci.SearchResults{Info: info}
			f.mu.Unlock()
		}
	}
	return nil
}

func (f *fakeEngine) SearchResults() uci.SearchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

func (f *fakeEngine) Close() error { return nil }

func mustFEN(t *testing.T, seq ...string) string {
	t.Helper()
	fen, err := position.FEN(seq)
	if err != nil {
		t.Fatal(err)
	}
	return fen
}

func startFake(t *testing.T, f *fakeEngine) *UCI {
	t.Helper()
	u, err := newUCI(f, 8)
	if err != nil {
		t.Fatalf("newUCI: %v", err)
	}
	return u
}

func TestHandshakeAndSearchCommands(t *testing.T) {
	fen := mustFEN(t, "e4", "e5")
	f := newFakeEngine(map[string]string{fen: "info depth 8 score cp 25"})
	u := startFake(t, f)
	if _, err := u.Evaluate(context.Background(), fen); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []string{"uci", "isready", "ucinewgame", "position fen " + fen, "go depth 8"}
	if len(f.ran) != len(want) {
		t.Fatalf("commands = %q, want %q", f.ran, want)
	}
	for i := range want {
		if f.ran[i] != want[i] {
			t.Fatalf("commands = %q, want %q", f.ran, want)
		}
	}
}

func TestEvaluateWhiteRelative(t *testing.T) {
	afterE4 := mustFEN(t, "e4")
	afterE4E5 := mustFEN(t, "e4", "e5")
	f := newFakeEngine(map[string]string{
		afterE4:   "info depth 8 score cp -40",
		afterE4E5: "info depth 8 score cp 25",
	})
	u := startFake(t, f)

	ev, err := u.Evaluate(context.Background(), afterE4)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Pawns != 0.4 || ev.Advantage() != "white" {
		t.Errorf("black-to-move score should flip: %+v", ev)
	}

	ev, err = u.Evaluate(context.Background(), afterE4E5)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Pawns != 0.25 {
		t.Errorf("Pawns = %v, want 0.25", ev.Pawns)
	}
}

func TestFromScore(t *testing.T) {
	tests := []struct {
		line  string
		turn  chess.Color
		pawns float64
		mate  int
	}{
		{"info depth 10 seldepth 14 score cp 31 nodes 1000", chess.White, 0.31, 0},
		{"info depth 10 score cp 31", chess.Black, -0.31, 0},
		{"info depth 5 score mate -2", chess.White, -MatePawns, -2},
		{"info depth 5 score mate 1", chess.Black, -MatePawns, -1},
		{"info depth 5 score mate -3", chess.Black, MatePawns, 3},
	}
	for _, tt := range tests {
		var info uci.Info
		if err := info.UnmarshalText([]byte(tt.line)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", tt.line, err)
		}
		ev := fromScore(info.Score, tt.turn)
		if ev.Pawns != tt.pawns || ev.Mate != tt.mate {
			t.Errorf("fromScore(%q, %v) = %+v", tt.line, tt.turn, ev)
		}
	}
}

func TestEvaluateCheckmatedPosition(t *testing.T) {
	// Fool's mate: white to move and mated.
	fen := mustFEN(t, "f3", "e5", "g4", "Qh4#")
	f := newFakeEngine(nil)
	u := startFake(t, f)

	ev, err := u.Evaluate(context.Background(), fen)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Pawns != -MatePawns || ev.Advantage() != "black" {
		t.Fatalf("mated white should favour black: %+v", ev)
	}
	for _, c := range f.ran {
		if c == "go depth 8" {
			t.Fatalf("no search expected on a finished game, ran %q", f.ran)
		}
	}
}

func TestEvaluateTimeoutStopsSearch(t *testing.T) {
	slow := mustFEN(t, "d4")
	fast := mustFEN(t, "c4")
	f := newFakeEngine(map[string]string{fast: "info depth 8 score cp 10"})
	f.hang[slow] = true
	u := startFake(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := u.Evaluate(ctx, slow); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	ev, err := u.Evaluate(context.Background(), fast)
	if err != nil {
		t.Fatalf("client should survive a stopped search: %v", err)
	}
	if ev.Pawns != -0.1 {
		t.Errorf("Pawns = %v, want -0.1", ev.Pawns)
	}
	if err := u.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

type stubEvaluator struct{ calls int }

func (s *stubEvaluator) Evaluate(ctx context.Context, fen string) (Evaluation, error) {
	s.calls++
	if fen == "bad" {
		return Evaluation{}, errors.New("boom")
	}
	if fen == "slow" {
		<-ctx.Done()
		return Evaluation{}, ctx.Err()
	}
	return Evaluation{Pawns: -0.5}, nil
}

func (s *stubEvaluator) Close() error { return nil }

func TestEvaluateAll(t *testing.T) {
	s := &stubEvaluator{}
	out, errs, err := EvaluateAll(context.Background(), s, []string{"a", "", "bad", "slow", "b"}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if s.calls != 4 {
		t.Fatalf("expected 4 evaluations, got %d", s.calls)
	}
	if out[0] == nil || out[1] != nil || out[2] != nil || out[3] != nil || out[4].Advantage() != "black" {
		t.Fatalf("unexpected results %v", out)
	}
	if errs[2] == nil || !errors.Is(errs[3], context.DeadlineExceeded) || errs[0] != nil || errs[4] != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
}

func TestEvaluateAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := EvaluateAll(ctx, &stubEvaluator{}, []string{"a"}, 0); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
