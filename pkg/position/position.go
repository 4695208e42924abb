package position

import (
	"context"
	"fmt"

	"github.com/notnil/chess"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/openings/pkg/catalog"
)

// StartFEN is the FEN of the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// IllegalMoveError reports the first half-move of a line that cannot be played.
type IllegalMoveError struct {
	Ply   int // 1-based half-move number
	Token string
	Err   error
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal half-move %d %q: %v", e.Ply, e.Token, e.Err)
}

func (e *IllegalMoveError) Unwrap() error { return e.Err }

// FEN plays seq from the initial position and returns the resulting FEN.
func FEN(seq []string) (string, error) {
	g := chess.NewGame()
	for i, tok := range seq {
		if err := g.MoveStr(tok); err != nil {
			return "", &IllegalMoveError{Ply: i + 1, Token: tok, Err: err}
		}
	}
	return g.Position().String(), nil
}

// Annotator computes final positions for catalog entries.
type Annotator struct {
	// Workers bounds concurrent replays.
	Workers int
}

// NewAnnotator returns an Annotator with default settings.
func NewAnnotator() *Annotator {
	return &Annotator{Workers: 4}
}

// Annotate returns the FEN of every entry, indexed like entries. An entry
// whose line is not legal gets an empty FEN and an illegal_move diagnostic;
// that never fails the call.
func (a *Annotator) Annotate(ctx context.Context, entries []catalog.Entry) ([]string, []catalog.Diagnostic, error) {
	fens := make([]string, len(entries))
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.Workers, 1))
	for i := range entries {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fens[i], errs[i] = FEN(entries[i].Moves)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var diags []catalog.Diagnostic
	for i, err := range errs {
		if err == nil {
			continue
		}
		diags = append(diags, catalog.Diagnostic{
			Index:   entries[i].Index,
			Kind:    catalog.KindIllegalMove,
			Name:    entries[i].Name,
			Message: err.Error(),
		})
	}
	return fens, diags, nil
}

// Parse returns the position described by fen.
func Parse(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return chess.NewGame(opt).Position(), nil
}
