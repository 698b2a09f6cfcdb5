package indicator

import (
	"context"

	"ledtools/core"
)

// Service runs Controller calls on the event loop that owns its timers, so
// callers on any goroutine never race the blink and demo ticks.
type Service struct {
	loop *core.Loop
	ctrl *Controller
}

func NewService(loop *core.Loop, ctrl *Controller) *Service {
	return &Service{loop: loop, ctrl: ctrl}
}

func (s *Service) Blink(ctx context.Context, color core.Color, intervalMs int) error {
	return s.do(ctx, func() error { return s.ctrl.Blink(color, intervalMs) })
}

func (s *Service) Shine(ctx context.Context, color core.Color) error {
	return s.do(ctx, func() error { return s.ctrl.Shine(color) })
}

func (s *Service) Off(ctx context.Context, color core.Color) error {
	return s.do(ctx, func() error { return s.ctrl.Off(color) })
}

func (s *Service) Cancel(ctx context.Context) error {
	return s.do(ctx, s.ctrl.Cancel)
}

func (s *Service) Demo(ctx context.Context) error {
	return s.do(ctx, s.ctrl.Demo)
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() error {
		var err error
		st, err = s.ctrl.Status()
		return err
	})
	return st, err
}

func (s *Service) SetOptions(ctx context.Context, opts Options) error {
	return s.do(ctx, func() error {
		s.ctrl.SetOptions(opts)
		return nil
	})
}

func (s *Service) Options(ctx context.Context) (Options, error) {
	var opts Options
	err := s.do(ctx, func() error {
		opts = s.ctrl.Options()
		return nil
	})
	return opts, err
}

func (s *Service) do(ctx context.Context, fn func() error) error {
	var err error
	if lerr := s.loop.Do(ctx, func() { err = fn() }); lerr != nil {
		return lerr
	}
	return err
}
