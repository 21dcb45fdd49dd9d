package host

import (
	"context"

	"github.com/robfig/cron/v3"

	logx "pluginlister/pkg/logx"
)

// Scheduler runs recurring jobs on the loop. Schedules use the standard
// five-field cron syntax plus descriptors such as "@every 5m".
type Scheduler struct {
	c    *cron.Cron
	loop Poster
	log  logx.Logger
}

func NewScheduler(loop Poster, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{c: cron.New(), loop: loop, log: log}
}

// Every registers fn under name. Each firing is posted to the loop, so fn
// runs serialized with every other plugin callback.
func (s *Scheduler) Every(name, spec string, fn func()) error {
	_, err := s.c.AddFunc(spec, func() {
		if !s.loop.Post(fn) {
			s.log.Warn("scheduled job skipped", logx.String("job", name))
		}
	})
	if err != nil {
		return err
	}
	s.log.Debug("job scheduled", logx.String("job", name), logx.String("spec", spec))
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop stops firing new jobs and waits for a running trigger to return.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
