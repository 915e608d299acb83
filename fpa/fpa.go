// Package fpa measures the range and repeatability of the three focal plane
// motors of a camera, driven through its xcu actor.
package fpa

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RMcDOttawa/goMockableDelay"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Name is the controller name
const Name = "fpa"

// Axes are the motor axes, in ccdMotor1..3 order
var Axes = []string{"a", "b", "c"}

const (
	// findRange drives this far to be sure to land on the far switch
	rangeFarDist = 5000

	// steps from home the motors are parked at before inching onto the switch
	nearDist = 25

	// position reported when a motor has just left the home switch
	homeOffset = 100

	// largest acceptable residual, in steps
	residualTolerance = 2

	homeTries = 3
)

// Positions are the states of the three motors
type Positions struct {
	Steps   [3]int
	Microns [3]float64
	Home    [3]bool
	Far     [3]bool
}

// RangeOptions are the arguments of findRange
type RangeOptions struct {
	Cam  string
	Axes []string

	// Current overrides the motor current, in percent, when not nil
	Current *int
}

// RepeatOptions are the arguments of checkRepeats
type RepeatOptions struct {
	Cam string

	// Axis restricts the test to one axis, all of them move in piston if ""
	Axis string

	Reps     int
	Delay    time.Duration
	Distance int
}

// Controller runs the motor tests
type Controller struct {
	svc   actor.Services
	delay goMockableDelay.DelayService
	log   *zap.Logger

	// RetryPause separates the attempts to reach the home switch
	RetryPause time.Duration
}

// New returns a controller.  delay paces the motor moves.
func New(svc actor.Services, delay goMockableDelay.DelayService, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, delay: delay, log: log, RetryPause: 2 * time.Second}
}

// Factory builds the fpa controller for the actor
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	return New(svc, goMockableDelay.NewDelayService(false, 0), log), nil
}

// Start does nothing
func (c *Controller) Start(ctx context.Context) error { return nil }

// Stop does nothing
func (c *Controller) Stop() {}

func axisIndex(ax string) int {
	for i, a := range Axes {
		if a == ax {
			return i
		}
	}
	return -1
}

// filter returns the values of the given axes
func filter(vals [3]bool, axes []string) []bool {
	out := []bool{}
	for _, ax := range axes {
		if i := axisIndex(ax); i >= 0 {
			out = append(out, vals[i])
		}
	}
	return out
}

func anyOf(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

func allOf(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

func (c *Controller) call(cmd *actor.Command, xcu, cmdStr string, timeLim time.Duration) error {
	c.log.Debug("calling", zap.String("actor", xcu), zap.String("cmd", cmdStr))
	_, err := c.svc.SafeCall(cmd, xcu, cmdStr, timeLim)
	return err
}

func (c *Controller) pause(secs int) error {
	_, err := c.delay.DelayDuration(secs)
	return err
}

// grabPositions refreshes the motor status and reports one line per motor at
// the given level
func (c *Controller) grabPositions(cmd *actor.Command, xcu, legend string, level func(string)) (Positions, error) {
	var p Positions
	if err := c.call(cmd, xcu, "motors status", 5*time.Second); err != nil {
		return p, err
	}
	for i := range Axes {
		kw, err := c.svc.Key(xcu, fmt.Sprintf("ccdMotor%d", i+1))
		if err != nil {
			return p, err
		}
		if kw.Len() < 5 {
			return p, fmt.Errorf("%s has %d values, expected 5", kw.Name, kw.Len())
		}
		home, far := kw.Values[1], kw.Values[2]
		p.Home[i], _ = home.Bool()
		p.Far[i], _ = far.Bool()
		if steps, err := kw.Values[3].Int(); err == nil {
			p.Steps[i] = steps
		}
		p.Microns[i] = kw.Values[4].Float()
		level(fmt.Sprintf(`text="%s: %d %s %s %d %0.2f"`, legend, i+1, home.String(), far.String(), p.Steps[i], p.Microns[i]))
	}
	return p, nil
}

func axisArgs(axes []string, dist int) string {
	args := make([]string, len(axes))
	for i, ax := range axes {
		args[i] = fmt.Sprintf("%s=%d", ax, dist)
	}
	return strings.Join(args, " ")
}

// FindRange measures the full range of motion:
// home, slam into the far limit, inch off it, slew back near home, inch onto
// the home switch, then home again and store the range in the xcu actor
func (c *Controller) FindRange(cmd *actor.Command, opts RangeOptions) error {
	axes := opts.Axes
	if len(axes) == 0 {
		axes = Axes
	}
	xcu := "xcu_" + opts.Cam
	if err := c.svc.RequireModel(cmd, xcu); err != nil {
		return err
	}

	cmd.Inform(`text="fpa findRange: initializing and homing motors."`)
	if err := c.call(cmd, xcu, "motors init", 5*time.Second); err != nil {
		return err
	}
	if err := c.pause(1); err != nil {
		return err
	}
	home := "motors home axes=" + strings.Join(axes, ",")
	if err := c.call(cmd, xcu, home, 60*time.Second); err != nil {
		return err
	}
	if err := c.pause(1); err != nil {
		return err
	}

	if opts.Current != nil {
		current := *opts.Current
		cmd.Warn(fmt.Sprintf(`text="overriding current to %d percent."`, current))
		for _, ax := range axes {
			raw := fmt.Sprintf("motors raw=aM%dm%dR", axisIndex(ax)+1, current)
			if err := c.call(cmd, xcu, raw, 0); err != nil {
				return err
			}
		}
	}

	cmd.Inform(`text="fpa findRange: driving past far limit."`)
	if err := c.call(cmd, xcu, "motors move "+axisArgs(axes, rangeFarDist), 30*time.Second); err != nil {
		return err
	}
	pastFar, err := c.grabPositions(cmd, xcu, "pastFar", cmd.Inform)
	if err != nil {
		return err
	}
	if !allOf(filter(pastFar.Far, axes)) {
		return fmt.Errorf("some axes are not on far limit: %v", pastFar.Far)
	}
	if err := c.pause(1); err != nil {
		return err
	}

	cmd.Inform(`text="fpa findRange: inching off far limit."`)
	for _, ax := range axes {
		if err := c.call(cmd, xcu, fmt.Sprintf("motors toSwitch %s far clear", ax), 60*time.Second); err != nil {
			return err
		}
	}
	offFar, err := c.grabPositions(cmd, xcu, "offFar", cmd.Inform)
	if err != nil {
		return err
	}
	if anyOf(filter(offFar.Far, axes)) {
		return fmt.Errorf("some axes are not off far limit: %v", offFar.Far)
	}

	cmd.Inform(`text="fpa findRange: driving motors back to near home switch"`)
	if err := c.call(cmd, xcu, "motors move "+axisArgs(axes, nearDist)+" abs force", 30*time.Second); err != nil {
		return err
	}
	nearHome, err := c.grabPositions(cmd, xcu, "nearHome", cmd.Inform)
	if err != nil {
		return err
	}
	if anyOf(filter(nearHome.Home, axes)) {
		return fmt.Errorf("some axes are on home limit: %v", nearHome.Home)
	}

	cmd.Inform(`text="fpa findRange: inching onto home switch."`)
	for _, ax := range axes {
		if err := c.call(cmd, xcu, fmt.Sprintf("motors toSwitch %s home set", ax), 15*time.Second); err != nil {
			return err
		}
	}
	onHome, err := c.grabPositions(cmd, xcu, "onHome", cmd.Inform)
	if err != nil {
		return err
	}
	if !allOf(filter(onHome.Home, axes)) {
		return fmt.Errorf("some axes are not on home limit: %v", onHome.Home)
	}

	var (
		ranges, overshoot [3]int
		rangesMicrons     [3]float64
	)
	for i := range Axes {
		ranges[i] = offFar.Steps[i] - onHome.Steps[i] - 1
		overshoot[i] = pastFar.Steps[i] - offFar.Steps[i] - 1
		rangesMicrons[i] = offFar.Microns[i] - onHome.Microns[i] - 1
	}

	cmd.Inform(`text="fpa findRange: homing motors."`)
	if err := c.call(cmd, xcu, home, 60*time.Second); err != nil {
		return err
	}
	for _, ax := range axes {
		if err := c.call(cmd, xcu, fmt.Sprintf("motors setRange %s=%d", ax, ranges[axisIndex(ax)]), 0); err != nil {
			return err
		}
	}
	cmd.Inform(fmt.Sprintf("fpaMotorsOvershoot=%s,%d,%d,%d", opts.Cam, overshoot[0], overshoot[1], overshoot[2]))
	cmd.Finish(fmt.Sprintf("fpaMotorsRange=%s,%d,%d,%d,%0.2f,%0.2f,%0.2f", opts.Cam,
		ranges[0], ranges[1], ranges[2], rangesMicrons[0], rangesMicrons[1], rangesMicrons[2]))
	return nil
}

// CheckRepeats measures how repeatable the motion is.  Each loop homes,
// slews out by Distance, slews back near home, inches onto then off the home
// switch and reports the distance from the nominal switch position.
func (c *Controller) CheckRepeats(cmd *actor.Command, opts RepeatOptions) error {
	if opts.Reps < 1 {
		opts.Reps = 1
	}
	xcu := "xcu_" + opts.Cam
	if err := c.svc.RequireModel(cmd, xcu); err != nil {
		return err
	}
	axes, moveAxis := Axes, "piston"
	if opts.Axis != "" {
		axes, moveAxis = []string{opts.Axis}, opts.Axis
	}

	cmd.Inform(fmt.Sprintf(`text="fpa checkRepeats starting %d-cycle repeatability test on %s:%s...."`,
		opts.Reps, opts.Cam, strings.Join(axes, ",")))
	cmd.Inform(`text="fpa checkRepeats: initializing motors."`)
	if err := c.call(cmd, xcu, "motors init", 5*time.Second); err != nil {
		return err
	}

	didFail := false
	for i := 0; i < opts.Reps; i++ {
		cmd.Inform(fmt.Sprintf(`text="fpa checkRepeats: homing for loop %d/%d"`, i+1, opts.Reps))
		home := "motors home"
		if opts.Axis != "" {
			home += " axes=" + opts.Axis
		}
		if err := c.call(cmd, xcu, home, 60*time.Second); err != nil {
			return err
		}
		if err := c.pause(1); err != nil {
			return err
		}

		cmd.Inform(`text="fpa checkRepeats: driving to near far limit."`)
		if err := c.call(cmd, xcu, fmt.Sprintf("motors move %s=%d", moveAxis, opts.Distance), 30*time.Second); err != nil {
			return err
		}
		nearFar, err := c.grabPositions(cmd, xcu, fmt.Sprintf("loop %d nearFar", i+1), cmd.Debug)
		if err != nil {
			return err
		}
		if anyOf(filter(nearFar.Far, axes)) {
			return fmt.Errorf("some axes hit the far switch: %v", nearFar.Far)
		}
		if err := c.pause(1); err != nil {
			return err
		}

		cmd.Inform(`text="fpa checkRepeats: driving to near home switch."`)
		if err := c.call(cmd, xcu, fmt.Sprintf("motors move %s=%d abs", moveAxis, nearDist), 30*time.Second); err != nil {
			return err
		}
		nearHome, err := c.grabPositions(cmd, xcu, fmt.Sprintf("loop %d nearHome", i+1), cmd.Debug)
		if err != nil {
			return err
		}
		if anyOf(filter(nearHome.Home, axes)) {
			return fmt.Errorf("some axes hit the home switch: %v", nearHome.Home)
		}
		if err := c.pause(1); err != nil {
			return err
		}

		for _, ax := range axes {
			if err := c.inchOntoHome(cmd, xcu, ax, i); err != nil {
				return err
			}
		}
		if _, err := c.grabPositions(cmd, xcu, fmt.Sprintf("loop %d onHome", i+1), cmd.Inform); err != nil {
			return err
		}

		cmd.Inform(`text="fpa checkRepeats: inching off home switch"`)
		for _, ax := range axes {
			if err := c.call(cmd, xcu, fmt.Sprintf("motors toSwitch %s home clear", ax), 15*time.Second); err != nil {
				return err
			}
		}
		final, err := c.grabPositions(cmd, xcu, fmt.Sprintf("loop %d offHome", i+1), cmd.Inform)
		if err != nil {
			return err
		}
		var offsets [3]int
		level := cmd.Inform
		for a := range Axes {
			offsets[a] = final.Steps[a] - homeOffset
		}
		for _, ax := range axes {
			if o := offsets[axisIndex(ax)]; o > residualTolerance || o < -residualTolerance {
				level = cmd.Warn
				didFail = true
			}
		}
		level(fmt.Sprintf("fpaMotorResiduals=%s,%d,%d,%d,%d", opts.Cam, i, offsets[0], offsets[1], offsets[2]))

		if i < opts.Reps-1 {
			cmd.Inform(fmt.Sprintf(`text="cooling down for %s...."`, opts.Delay))
			if err := c.pause(int(math.Round(opts.Delay.Seconds()))); err != nil {
				return err
			}
		}
	}

	cmd.Inform(`text="fpa checkRepeats: finished and homing"`)
	if err := c.call(cmd, xcu, "motors home", 60*time.Second); err != nil {
		return err
	}
	if didFail {
		return fmt.Errorf("some residual was too high: look at the fpaMotorResiduals")
	}
	cmd.Finish(`text="done and homed"`)
	return nil
}

// inchOntoHome moves axis ax onto its home switch, trying homeTries times
func (c *Controller) inchOntoHome(cmd *actor.Command, xcu, ax string, loop int) error {
	var (
		try     int
		lastPos Positions
	)
	op := func() error {
		try++
		level := cmd.Inform
		if try > 1 {
			level = cmd.Warn
		}
		level(fmt.Sprintf(`text="fpa checkRepeats: inching %s onto home switch, try %d/%d"`, ax, try, homeTries))
		err := c.call(cmd, xcu, fmt.Sprintf("motors toSwitch %s home set", ax), 30*time.Second)
		if err == nil {
			return nil
		}
		if p, perr := c.grabPositions(cmd, xcu, fmt.Sprintf("toHome %d", loop+1), cmd.Warn); perr == nil {
			lastPos = p
		}
		cmd.Warn(fmt.Sprintf(`text="MISSED switch %d/%d times:"`, try, homeTries))
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryPause), homeTries-1), cmd.Context())
	notify := func(err error, next time.Duration) {
		c.log.Warn("missed home switch", zap.String("axis", ax), zap.Duration("next", next), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("completely failed to reach home switch on %s: %v", ax, lastPos.Steps)
	}
	return nil
}
