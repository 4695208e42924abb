package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"

	"github.com/japaniel/openings/pkg/position"
)

// MatePawns is the score, in pawns, reported for a forced mate.
const MatePawns = 100.0

// stopGrace bounds how long a stopped search may take to report bestmove.
const stopGrace = 2 * time.Second

// Evaluation is an engine verdict on one position.
type Evaluation struct {
	// Pawns is the score from white's point of view.
	Pawns    float64
	Mate     int // moves to mate, white-relative sign; 0 when no mate was found
	BestMove string
}

// Advantage names the side the score favours: "white" when positive, else "black".
func (e Evaluation) Advantage() string {
	if e.Pawns > 0 {
		return "white"
	}
	return "black"
}

// Evaluator scores a position given as FEN.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (Evaluation, error)
	Close() error
}

// ErrEngineBroken is returned once a stopped search never finished.
var ErrEngineBroken = &EngineError{"engine did not finish a stopped search"}

// EngineError provides a simple typed error for engine operations.
type EngineError struct{ msg string }

func (e *EngineError) Error() string { return e.msg }

// searcher is the part of *uci.Engine the client drives.
type searcher interface {
	Run(cmds ...uci.Cmd) error
	SearchResults() uci.SearchResults
	Close() error
}

// UCI evaluates positions with a UCI engine process.
type UCI struct {
	eng   searcher
	depth int

	mu     sync.Mutex
	broken bool
}

// Start launches the engine binary at path and performs the UCI handshake.
// logger, when set, receives the raw protocol traffic.
func Start(path string, depth int, logger *log.Logger) (*UCI, error) {
	var opts []func(*uci.Engine)
	if logger != nil {
		opts = append(opts, uci.Debug, uci.Logger(logger))
	}
	eng, err := uci.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	u, err := newUCI(eng, depth)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	return u, nil
}

func newUCI(eng searcher, depth int) (*UCI, error) {
	if depth <= 0 {
		depth = 12
	}
	if err := eng.Run(uci.CmdUCI, uci.CmdIsReady, uci.CmdUCINewGame); err != nil {
		return nil, fmt.Errorf("uci handshake: %w", err)
	}
	return &UCI{eng: eng, depth: depth}, nil
}

// Evaluate searches fen to the configured depth. When ctx ends first the
// search is stopped and ctx's error returned; the client stays usable unless
// the engine ignores the stop.
func (u *UCI) Evaluate(ctx context.Context, fen string) (Evaluation, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.broken {
		return Evaluation{}, ErrEngineBroken
	}
	pos, err := position.Parse(fen)
	if err != nil {
		return Evaluation{}, err
	}
	// Engines answer "bestmove (none)" here, which uci cannot decode.
	switch pos.Status() {
	case chess.Checkmate:
		return mated(pos.Turn()), nil
	case chess.Stalemate:
		return Evaluation{}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- u.eng.Run(uci.CmdPosition{Position: pos}, uci.CmdGo{Depth: u.depth})
	}()

	select {
	case err := <-done:
		if err != nil {
			return Evaluation{}, fmt.Errorf("search: %w", err)
		}
	case <-ctx.Done():
		_ = u.eng.Run(uci.CmdStop)
		select {
		case <-done:
		case <-time.After(stopGrace):
			u.broken = true
		}
		return Evaluation{}, ctx.Err()
	}

	res := u.eng.SearchResults()
	ev := fromScore(res.Info.Score, pos.Turn())
	if res.BestMove != nil {
		ev.BestMove = res.BestMove.String()
	}
	return ev, nil
}

// fromScore converts a side-to-move score into a white-relative Evaluation.
func fromScore(s uci.Score, turn chess.Color) Evaluation {
	cp, mate := s.CP, s.Mate
	if turn == chess.Black {
		cp, mate = -cp, -mate
	}
	ev := Evaluation{Pawns: float64(cp) / 100, Mate: mate}
	switch {
	case mate > 0:
		ev.Pawns = MatePawns
	case mate < 0:
		ev.Pawns = -MatePawns
	}
	return ev
}

// mated is the verdict on a position where turn has been checkmated.
func mated(turn chess.Color) Evaluation {
	if turn == chess.White {
		return Evaluation{Pawns: -MatePawns}
	}
	return Evaluation{Pawns: MatePawns}
}

// Close quits the engine. After a broken search the process is left to exit
// with the program.
func (u *UCI) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.broken {
		return ErrEngineBroken
	}
	return u.eng.Close()
}

// EvaluateAll scores every non-empty FEN in order with ev, one position at a
// time. timeout bounds each position; 0 means no limit. Results and errors
// are indexed like fens: an empty FEN or a failed position leaves a nil
// result, and a failure is reported in errs without stopping the run. The
// returned error is only set when ctx itself ends.
func EvaluateAll(ctx context.Context, ev Evaluator, fens []string, timeout time.Duration) ([]*Evaluation, []error, error) {
	out := make([]*Evaluation, len(fens))
	errs := make([]error, len(fens))
	for i, fen := range fens {
		if err := ctx.Err(); err != nil {
			return out, errs, err
		}
		if fen == "" {
			continue
		}
		pctx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, timeout)
		}
		e, err := ev.Evaluate(pctx, fen)
		cancel()
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return out, errs, ctx.Err()
			}
			errs[i] = err
			continue
		}
		out[i] = &e
	}
	return out, errs, nil
}
