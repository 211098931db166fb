package browser

import (
	"context"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/contentflow/uploadflow/internal/config"
)

// Point is one cursor waypoint in page coordinates.
type Point struct {
	X float64
	Y float64
}

// Humanizer produces the timing jitter and cursor paths used to make
// driven input look hand-made. Keystroke delays are drawn from a normal
// distribution rather than a fixed interval, which is what upload-page
// bot heuristics key on.
type Humanizer struct {
	keyDelay distuv.Normal
	uniform  distuv.Uniform
	steps    int
	pauseMin time.Duration
	pauseMax time.Duration
	rng      *exprand.Rand
}

func NewHumanizer(cfg config.HumanConfig) *Humanizer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	src := exprand.NewSource(uint64(seed))
	return &Humanizer{
		keyDelay: distuv.Normal{
			Mu:    cfg.KeyDelayMeanMs,
			Sigma: cfg.KeyDelaySigmaMs,
			Src:   src,
		},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
		steps:   cfg.CursorSteps,
		pauseMin: time.Duration(cfg.PauseMinMs) * time.Millisecond,
		pauseMax: time.Duration(cfg.PauseMaxMs) * time.Millisecond,
		rng:     exprand.New(src),
	}
}

// KeyDelay samples one inter-keystroke delay, clamped to a plausible
// typing range.
func (h *Humanizer) KeyDelay() time.Duration {
	ms := h.keyDelay.Rand()
	if ms < 30 {
		ms = 30
	}
	if ms > 400 {
		ms = 400
	}
	return time.Duration(ms) * time.Millisecond
}

// Pause samples a think-time pause between page interactions.
func (h *Humanizer) Pause() time.Duration {
	if h.pauseMax <= h.pauseMin {
		return h.pauseMin
	}
	span := float64(h.pauseMax - h.pauseMin)
	return h.pauseMin + time.Duration(h.uniform.Rand()*span)
}

// CursorPath builds a quadratic Bezier arc between two points with small
// per-step jitter. Straight constant-velocity lines are a bot tell.
func (h *Humanizer) CursorPath(from, to Point) []Point {
	steps := h.steps
	if steps < 2 {
		steps = 2
	}

	// Control point perpendicular-ish to the travel line, randomized.
	ctrl := Point{
		X: (from.X+to.X)/2 + (h.uniform.Rand()-0.5)*120,
		Y: (from.Y+to.Y)/2 + (h.uniform.Rand()-0.5)*120,
	}

	path := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		inv := 1 - t
		x := inv*inv*from.X + 2*inv*t*ctrl.X + t*t*to.X
		y := inv*inv*from.Y + 2*inv*t*ctrl.Y + t*t*to.Y
		if i > 0 && i < steps {
			x += (h.uniform.Rand() - 0.5) * 3
			y += (h.uniform.Rand() - 0.5) * 3
		}
		path = append(path, Point{X: x, Y: y})
	}
	return path
}

// GlideTo moves the cursor along a humanized path to the element's center
// without clicking it.
func (h *Humanizer) GlideTo(ctx context.Context, dom DOM, el Element) error {
	x, y, err := el.Center(ctx)
	if err != nil {
		return err
	}

	start := Point{
		X: h.uniform.Rand() * 200,
		Y: h.uniform.Rand() * 200,
	}
	for _, p := range h.CursorPath(start, Point{X: x, Y: y}) {
		if err := dom.MoveMouse(ctx, p.X, p.Y); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(5+h.uniform.Rand()*15) * time.Millisecond):
		}
	}
	return nil
}
