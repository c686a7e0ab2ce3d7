package linestream

import (
	"context"
	"io"
)

// Consume pulls messages from seq and passes each to fn until the
// sequence ends. It returns nil on a clean end of stream, otherwise the
// first error from seq or fn, without pulling again.
func Consume(ctx context.Context, seq Sequence, fn func(Message) error) error {
	for {
		msg, err := seq.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// Summary aggregates a consumed sequence.
type Summary struct {
	Messages uint64
	Pings    uint64
	Hellos   uint64
	// Count is the sum of every Hello.Count.
	Count uint64
}

// Add accounts for msg.
func (s *Summary) Add(msg Message) {
	s.Messages++
	switch m := msg.(type) {
	case Ping:
		s.Pings++
	case Hello:
		s.Hellos++
		s.Count += uint64(m.Count)
	}
}

// Tally consumes seq and summarizes it. On error the summary covers the
// messages received before it.
func Tally(ctx context.Context, seq Sequence) (Summary, error) {
	var sum Summary
	err := Consume(ctx, seq, func(msg Message) error {
		sum.Add(msg)
		return nil
	})
	return sum, err
}

// Transform returns a Sequence applying fn to every message of seq.
// fn may block; it receives the ctx passed to Next.
func Transform(seq Sequence, fn func(context.Context, Message) (Message, error)) Sequence {
	return &transformed{seq: seq, fn: fn}
}

type transformed struct {
	seq Sequence
	fn  func(context.Context, Message) (Message, error)
}

func (t *transformed) Next(ctx context.Context) (Message, error) {
	msg, err := t.seq.Next(ctx)
	if err != nil {
		return nil, err
	}
	return t.fn(ctx, msg)
}
