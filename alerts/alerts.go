// Package alerts publishes test keywords on the broadcast channel so that the
// alert system watching them can be exercised.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Name is the controller name
const Name = "alerts"

// DefaultPeriod is used when alerts.period is not set
const DefaultPeriod = 15 * time.Second

// Nominal keywords, published every period
const (
	Keytest1 = "keytest1=-99,10,23"
	Keytest2 = "keytest2=23.3,nan"
	Keytest3 = "keytest3=3.193e-05"
)

// Controller publishes the test keywords
type Controller struct {
	svc actor.Services
	log *zap.Logger

	mu       sync.Mutex
	period   time.Duration
	suspend  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	now      func() time.Time
	generate chan struct{}
}

// New returns an alerts controller
func New(svc actor.Services, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, log: log, now: time.Now, generate: make(chan struct{}, 1)}
}

// Factory builds the alerts controller for the actor
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	return New(svc, log), nil
}

// Period is the publication period
func (c *Controller) Period() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

// Start begins publishing every alerts.period
func (c *Controller) Start(ctx context.Context) error {
	period := c.svc.Config().Alerts.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.period = period
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	go c.loop(ctx, period, done)
	return nil
}

// Stop ends the publication and waits for the loop to exit
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Controller) loop(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.generate:
		}
		if c.suspended() {
			c.log.Debug("publication suspended")
			continue
		}
		c.Generate(c.svc.Bcast())
	}
}

func (c *Controller) suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.suspend)
}

// Generate publishes the nominal keywords on cmd
func (c *Controller) Generate(cmd *actor.Command) {
	cmd.Inform(Keytest1)
	cmd.Inform(Keytest2)
	cmd.Finish(Keytest3)
}

// Trigger publishes keytest1 outside of its alert limits
func (c *Controller) Trigger(cmd *actor.Command) error {
	cmd.Inform(`text="publishing keytest1 out of range"`)
	c.svc.Bcast().Inform("keytest1=-999,10,23")
	return nil
}

// Invalid publishes keytest2 with invalid values
func (c *Controller) Invalid(cmd *actor.Command) error {
	cmd.Inform(`text="publishing invalid keytest2"`)
	c.svc.Bcast().Inform("keytest2=invalid,invalid")
	return nil
}

// Timeout stops the publication for two periods so the keywords go stale
func (c *Controller) Timeout(cmd *actor.Command) error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return fmt.Errorf("alerts controller is not running")
	}
	pause := 2 * c.period
	c.suspend = c.now().Add(pause)
	c.mu.Unlock()
	cmd.Inform(fmt.Sprintf(`text="alerts publication suspended for %s"`, pause))
	return nil
}

// Resume publishes again at once, ending a Timeout early
func (c *Controller) Resume() {
	c.mu.Lock()
	c.suspend = time.Time{}
	c.mu.Unlock()
	select {
	case c.generate <- struct{}{}:
	default:
	}
}
