package slideshow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command controls a running Player.
type Command int

const (
	CommandNext Command = iota
	CommandPrev
	CommandPause
	CommandQuit
)

// ParseCommand maps a line of user input to a Command.
func ParseCommand(s string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "next", "":
		return CommandNext, true
	case "p", "prev", "previous":
		return CommandPrev, true
	case "pause", "play", "space", "s":
		return CommandPause, true
	case "q", "quit", "exit":
		return CommandQuit, true
	}
	return 0, false
}

// DefaultInterval is the auto-advance interval when none is configured.
const DefaultInterval = 5 * time.Second

// Player renders a Session to a writer, advancing on a timer and on commands.
type Player struct {
	out      io.Writer
	interval time.Duration
	logger   *zap.Logger
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// NewPlayer returns a player writing to out. A non-positive interval uses DefaultInterval.
func NewPlayer(out io.Writer, interval time.Duration, opts ...PlayerOption) *Player {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Player{out: out, interval: interval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run shows the current slide, then advances every interval unless paused. It returns when ctx is
// done, CommandQuit is received or commands is closed.
func (p *Player) Run(ctx context.Context, s *Session, commands <-chan Command) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.render(s.Current()); err != nil {
		return err
	}
	for {
		var slide Slide
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.Paused() {
				continue
			}
			slide = s.Next()
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			switch cmd {
			case CommandQuit:
				return nil
			case CommandNext:
				slide = s.Next()
			case CommandPrev:
				slide = s.Prev()
			case CommandPause:
				paused := s.TogglePause()
				if p.logger != nil {
					p.logger.Debug("slideshow pause toggled", zap.Bool("paused", paused))
				}
				if paused {
					if _, err := fmt.Fprintln(p.out, "(paused)"); err != nil {
						return err
					}
					continue
				}
				slide = s.Current()
			default:
				continue
			}
			ticker.Reset(p.interval)
		}
		if err := p.render(slide); err != nil {
			return err
		}
	}
}

func (p *Player) render(slide Slide) error {
	_, err := fmt.Fprintf(p.out, "[%d/%d] %s\n%s\n\n", slide.Position, slide.Total, slide.Image, strings.TrimSpace(slide.Caption))
	return err
}
