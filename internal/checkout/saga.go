package checkout

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/obs"
)

// Step is one mutation of shared state inside a commit, paired with the
// action that reverts it.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

type funcStep struct {
	name       string
	resource   string
	execute    func(context.Context) error
	compensate func(context.Context) error
}

func (s funcStep) Name() string                         { return s.name }
func (s funcStep) Resource() string                     { return s.resource }
func (s funcStep) Execute(ctx context.Context) error    { return s.execute(ctx) }
func (s funcStep) Compensate(ctx context.Context) error { return s.compensate(ctx) }

func resourceOf(step Step) string {
	if r, ok := step.(interface{ Resource() string }); ok {
		return r.Resource()
	}
	return ""
}

// saga runs steps one at a time and remembers the ones that succeeded so
// they can be reverted last-in first-out.
type saga struct {
	logger *zerolog.Logger
	done   []Step
}

func (s *saga) run(ctx context.Context, step Step) error {
	if err := step.Execute(ctx); err != nil {
		s.logger.Warn().Err(err).Str("step", step.Name()).Str("resource", resourceOf(step)).Msg("commit step failed")
		return err
	}
	s.done = append(s.done, step)
	return nil
}

// rollback compensates every completed step and reports whether all of them
// were reverted.
func (s *saga) rollback(ctx context.Context) bool {
	ok := true
	for i := len(s.done) - 1; i >= 0; i-- {
		step := s.done[i]
		obs.CountCompensation(step.Name())
		if err := step.Compensate(ctx); err != nil {
			ok = false
			s.logger.Error().Err(err).Str("step", step.Name()).Str("resource", resourceOf(step)).Msg("compensation failed, manual reconciliation required")
			continue
		}
		s.logger.Info().Str("step", step.Name()).Str("resource", resourceOf(step)).Msg("compensated")
	}
	s.done = nil
	return ok
}
