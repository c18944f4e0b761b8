package mot

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// CommandKind is the kind of operator command issued while tracking
type CommandKind uint8

const (
	CommandNone CommandKind = iota
	CommandQuit
	CommandPause
	CommandRestart
	CommandRewind
	CommandFaster
	CommandSlower
)

// Command is an operator request. Subject is the subject index for CommandRestart
type Command struct {
	Kind    CommandKind
	Subject int
}

// BoxSelector prompts for a bounding box of a subject on a frame.
// Returns ErrSelectionCancelled when the operator gives up.
type BoxSelector[F any] interface {
	SelectBox(frame F, subject Identity) (BBox, error)
}

// Operator is the interactive side of a tracking session: it displays frames and issues commands
type Operator[F any] interface {
	BoxSelector[F]
	// Show displays image and waits for a command at most delay. Zero delay waits forever
	Show(image F, delay time.Duration) Command
}

// RunOptions tunes operator commands
type RunOptions struct {
	// Frames dropped by a rewind command
	RewindSteps int
	// Playback delay change (milliseconds) for faster/slower commands
	DelayStepMs int
}

// DefaultRunOptions returns default RunOptions
func DefaultRunOptions() RunOptions {
	return RunOptions{
		RewindSteps: 10,
		DelayStepMs: 5,
	}
}

// Run drives the session until the video is exhausted, the operator quits or ctx is cancelled.
// Committed trails are persisted in every case; cancellation returns ctx.Err() afterwards.
func (s *Session[F]) Run(ctx context.Context, operator Operator[F], options RunOptions) error {
	if s.state == StateInitializing {
		if err := s.Initialize(operator); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			Opsf("session interrupted at frame %d", s.currentFrame)
			if ferr := s.Finalize(); ferr != nil {
				return ferr
			}
			return err
		}
		step, err := s.Advance()
		if err != nil {
			if errors.Is(err, ErrFrameExhausted) {
				return nil
			}
			return err
		}
		command := operator.Show(step.Image, s.PlaybackDelay())
		if command.Kind == CommandPause {
			Diagf("paused at frame %d", s.currentFrame)
			command = operator.Show(step.Image, 0)
		}
		done, err := s.dispatch(operator, command, options)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// dispatch applies a command. Returns true when the session is over
func (s *Session[F]) dispatch(operator Operator[F], command Command, options RunOptions) (bool, error) {
	switch command.Kind {
	case CommandQuit:
		Opsf("quit requested at frame %d", s.currentFrame)
		return true, s.Finalize()
	case CommandRestart:
		if command.Subject < 0 || command.Subject >= len(s.subjects) {
			Opsf("restart ignored: %v", errors.Wrapf(ErrInvalidIndex, "no subject with index %d", command.Subject))
			return false, nil
		}
		s.state = StatePausedForROI
		box, err := operator.SelectBox(s.current.Image, s.subjects[command.Subject].Identity)
		if err != nil {
			s.state = StateRunning
			if errors.Is(err, ErrSelectionCancelled) {
				Diagf("restart of subject %s cancelled", s.subjects[command.Subject].Label())
				return false, nil
			}
			return false, err
		}
		err = s.RestartTracker(command.Subject, box)
		s.state = StateRunning
		if errors.Is(err, ErrSelectionCancelled) || errors.Is(err, ErrTrackerLost) {
			Opsf("restart failed: %v", err)
			return false, nil
		}
		return false, err
	case CommandRewind:
		err := s.Rewind(options.RewindSteps)
		if errors.Is(err, ErrTrackerLost) {
			return false, nil
		}
		return false, err
	case CommandFaster:
		s.AdjustPlaybackDelay(-options.DelayStepMs)
	case CommandSlower:
		s.AdjustPlaybackDelay(options.DelayStepMs)
	}
	return false, nil
}
