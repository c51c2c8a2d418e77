package hardware

import (
	"context"
	"sync"

	"github.com/oshokin/silent-alarm/internal/logger"
)

// LogPins logs output changes instead of driving hardware. It remembers the
// last level per channel.
type LogPins struct {
	ctx    context.Context //nolint:containedctx // Logger scope only.
	mu     sync.Mutex
	levels map[int]Level
}

// NewLogPins creates log-only pins.
func NewLogPins(ctx context.Context) *LogPins {
	return &LogPins{
		ctx:    logger.WithName(ctx, "pins"),
		levels: make(map[int]Level),
	}
}

// SetDigitalOutput records the level and logs changes.
func (p *LogPins) SetDigitalOutput(channel int, level Level) error {
	p.mu.Lock()
	previous, known := p.levels[channel]
	p.levels[channel] = level
	p.mu.Unlock()

	if !known || previous != level {
		logger.InfoKV(p.ctx, "Output changed", "channel", channel, "level", level.String())
	}

	return nil
}

// Level returns the last level written to channel.
func (p *LogPins) Level(channel int) (Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	level, ok := p.levels[channel]
	if !ok {
		return Low, errUnknownChannel
	}

	return level, nil
}

// Close implements Pins.
func (p *LogPins) Close() error {
	return nil
}
