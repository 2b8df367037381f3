package canlog

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/banshee-data/canpilot/internal/can"
	"github.com/banshee-data/canpilot/internal/canbus"
	"github.com/banshee-data/canpilot/internal/timeutil"
)

// CycleFunc receives one control cycle worth of frames. nanos is the end of
// the cycle window in Unix nanoseconds.
type CycleFunc func(nanos int64, frames []can.Frame) error

// Replay slices the capture into fixed windows of length interval, starting
// at the first record, and calls fn once per window in order. Windows with no
// traffic are delivered with an empty batch so validity watchdogs see the
// silence the live loop would have seen.
func Replay(r *Reader, interval time.Duration, fn CycleFunc) error {
	if interval <= 0 {
		return errors.New("canlog: replay interval must be positive")
	}

	rec, err := r.Next()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	end := rec.Time.Add(interval)
	batch := []can.Frame{rec.Frame}
	for {
		rec, err = r.Next()
		if errors.Is(err, io.EOF) {
			return fn(end.UnixNano(), batch)
		}
		if err != nil {
			return err
		}
		for !rec.Time.Before(end) {
			if err := fn(end.UnixNano(), batch); err != nil {
				return err
			}
			batch = nil
			end = end.Add(interval)
		}
		batch = append(batch, rec.Frame)
	}
}

// Capture writes every frame received on bus to w until ctx is done or the
// subscription closes.
func Capture(ctx context.Context, bus canbus.Bus, w *Writer, clock timeutil.Clock) error {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-ch:
			if !ok {
				return nil
			}
			if err := w.WriteFrame(clock.Now(), f); err != nil {
				return err
			}
		}
	}
}
