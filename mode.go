package linestream

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Mode selects the sequence adapter used to read a stream. Every mode
// yields the same messages for the same bytes.
type Mode string

const (
	// ModeNext reads with Reader: one blocking call per message.
	ModeNext Mode = "next"
	// ModeLend reads with LendingReader: frames are borrowed, then decoded.
	ModeLend Mode = "lend"
	// ModeGenerator reads with Messages, pulled through Pull.
	ModeGenerator Mode = "gen"
	// ModePoll reads with Poller, driven by PollNext.
	ModePoll Mode = "poll"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeNext, ModeLend, ModeGenerator, ModePoll}

var modeAliases = map[string]Mode{
	"afit":      ModeNext,
	"lend-afit": ModeLend,
	"async-gen": ModeGenerator,
	"generator": ModeGenerator,
}

// ParseMode parses a mode name. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes {
		if string(m) == name {
			return m, nil
		}
	}
	if m, ok := modeAliases[name]; ok {
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidMode, "%q", s)
}

// NewSequence builds the sequence adapter for mode over src. The returned
// function releases the adapter's resources and must be called when done.
func NewSequence(ctx context.Context, mode Mode, src Source, opt ...Option) (Sequence, func() error, error) {
	switch mode {
	case ModeNext:
		return NewReader(src, opt...), nop, nil
	case ModeLend:
		return NewLendingReader(src, opt...), nop, nil
	case ModeGenerator:
		seq, stop := Pull(Messages(ctx, src, opt...))
		return seq, func() error { stop(); return nil }, nil
	case ModePoll:
		p := NewPoller(ctx, src, opt...)
		return PollSequence{p}, p.Close, nil
	default:
		return nil, nil, errors.Wrapf(ErrInvalidMode, "%q", mode)
	}
}

func nop() error { return nil }
