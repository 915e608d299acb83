// Package enu tests the entrance unit of a spectrograph module through its
// enu_smN actor.
package enu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RMcDOttawa/goMockableDelay"
	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Name is the controller name
const Name = "enu"

// SpecModules are the spectrograph modules the tests accept
var SpecModules = []string{"sm1", "sm2", "sm3", "sm4"}

const (
	tempsSamples = 3
	tempsPause   = 3
)

// action is one command sent to a device and the state it must report after it
type action struct {
	cmdStr  string
	timeLim time.Duration

	// key must hold want in its first value, skipped if key is ""
	key  string
	want string
}

// devices maps each device test to its actions, in order
var devices = map[string][]action{
	"slit": {
		{cmdStr: "slit home", timeLim: 2 * time.Minute}},
	"bia": {
		{cmdStr: "bia on", key: "bia", want: "on"},
		{cmdStr: "bia off", key: "bia", want: "off"}},
	"shutters": {
		{cmdStr: "shutters open", key: "shutters", want: "open"},
		{cmdStr: "shutters close", key: "shutters", want: "close"}},
	"rexm": {
		{cmdStr: "rexm moveTo low", timeLim: 3 * time.Minute, key: "rexm", want: "low"},
		{cmdStr: "rexm moveTo mid", timeLim: 3 * time.Minute, key: "rexm", want: "mid"}},
	"iis": nil,
}

// Tests are the names of the enu tests, in vocabulary order
var Tests = []string{"temps", "slit", "bia", "shutters", "rexm", "iis"}

// Controller runs the enu tests
type Controller struct {
	svc   actor.Services
	delay goMockableDelay.DelayService
	log   *zap.Logger
}

// New returns a controller.  delay paces the temperature sampling.
func New(svc actor.Services, delay goMockableDelay.DelayService, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, delay: delay, log: log}
}

// Factory builds the enu controller for the actor
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	return New(svc, goMockableDelay.NewDelayService(false, 0), log), nil
}

// Start does nothing
func (c *Controller) Start(ctx context.Context) error { return nil }

// Stop does nothing
func (c *Controller) Stop() {}

func enuActor(smID string) string {
	return "enu_" + smID
}

// Run runs the test called name on spectrograph module smID
func (c *Controller) Run(cmd *actor.Command, name, smID string) error {
	if err := c.svc.RequireModel(cmd, enuActor(smID)); err != nil {
		return err
	}
	c.log.Info("starting", zap.String("test", name), zap.String("sm", smID))
	if name == "temps" {
		return c.Temps(cmd, smID)
	}
	actions, ok := devices[name]
	if !ok {
		return fmt.Errorf("no enu test named %s", name)
	}
	return c.device(cmd, smID, name, actions)
}

// Temps starts the temperature controller and samples both sensor banks
func (c *Controller) Temps(cmd *actor.Command, smID string) error {
	enu := enuActor(smID)
	cmd.Inform(fmt.Sprintf(`text="starting temps-%s test"`, smID))
	if _, err := c.svc.SafeCall(cmd, enu, "temps start", 0); err != nil {
		return err
	}
	status, err := c.svc.Key(enu, "tempsStatus")
	if err != nil {
		return err
	}
	msg, err := status.Value(1)
	if err != nil {
		return err
	}
	if msg.String() != "No error" {
		return fmt.Errorf("temps status is not OK : %s", msg.String())
	}
	cmd.Inform(`text="temps status OK, retrieving data ..."`)

	for i := 0; i < tempsSamples; i++ {
		if _, err := c.svc.SafeCall(cmd, enu, "temps status", 0); err != nil {
			return err
		}
		row := []string{}
		for _, k := range []string{"temps1", "temps2"} {
			kw, err := c.svc.Key(enu, k)
			if err != nil {
				return err
			}
			for _, v := range kw.Floats() {
				row = append(row, fmt.Sprintf("%.3f", v))
			}
		}
		cmd.Inform("temps=" + strings.Join(row, ","))
		if _, err := c.delay.DelayDuration(tempsPause); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) device(cmd *actor.Command, smID, dev string, actions []action) error {
	enu := enuActor(smID)
	cmd.Inform(fmt.Sprintf(`text="starting %s-%s test"`, dev, smID))
	if _, err := c.svc.SafeCall(cmd, enu, dev+" status", 0); err != nil {
		return err
	}
	if err := c.checkFSM(enu, dev); err != nil {
		return err
	}
	cmd.Inform(fmt.Sprintf(`text="%s is ONLINE and IDLE"`, dev))
	for _, a := range actions {
		cmd.Inform(fmt.Sprintf(`text="%s %s"`, smID, a.cmdStr))
		if _, err := c.svc.SafeCall(cmd, enu, a.cmdStr, a.timeLim); err != nil {
			return err
		}
		if err := c.checkFSM(enu, dev); err != nil {
			return err
		}
		if a.key == "" {
			continue
		}
		kw, err := c.svc.Key(enu, a.key)
		if err != nil {
			return err
		}
		got, err := kw.Value(0)
		if err != nil {
			return err
		}
		if !strings.EqualFold(got.String(), a.want) {
			return fmt.Errorf("%s is %s after %s, expected %s", a.key, got.String(), a.cmdStr, a.want)
		}
	}
	return nil
}

// checkFSM requires <dev>FSM to be ONLINE,IDLE
func (c *Controller) checkFSM(enu, dev string) error {
	kw, err := c.svc.Key(enu, dev+"FSM")
	if err != nil {
		return err
	}
	state := kw.Strings()
	if len(state) < 2 || state[0] != "ONLINE" || state[1] != "IDLE" {
		return fmt.Errorf("%s state is %s", dev, strings.Join(state, ","))
	}
	return nil
}
