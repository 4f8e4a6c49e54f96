package flow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Frame is one rendering of the processing animation.
type Frame struct {
	Percent int
	Text    string
}

const progressBarWidth = 12

var progressPercents = []int{15, 30, 45, 60, 80, 100}

// DefaultFrames returns the processing frames in display order.
func DefaultFrames() []Frame {
	frames := make([]Frame, 0, len(progressPercents))
	for _, pct := range progressPercents {
		frames = append(frames, Frame{Percent: pct, Text: renderFrame(pct)})
	}
	return frames
}

func renderFrame(percent int) string {
	filled := (percent*progressBarWidth + 50) / 100
	if filled < 1 {
		filled = 1
	}
	bar := strings.Repeat("▓", filled) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("📱 Processing Airtime Request [%s] %d%%", bar, percent)
}

// Animation plays frames as a sequence of (delay, render) steps. The first
// frame renders immediately; every later frame waits Delay first.
type Animation struct {
	Frames []Frame
	Delay  time.Duration
}

// RenderFunc draws frame number step. Returning an error stops the animation.
type RenderFunc func(ctx context.Context, step int, frame Frame) error

// Run renders every frame in order. It stops early with ctx.Err() when the
// context is cancelled while waiting, or with the render error.
func (a Animation) Run(ctx context.Context, render RenderFunc) error {
	for i, frame := range a.Frames {
		if i > 0 {
			if err := sleep(ctx, a.Delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := render(ctx, i, frame); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
