// Package cooler sweeps the cryocoolers of the configured cameras
package cooler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/keys"
	"github.com/Subaru-PFS/ics-testsActor/util"
)

// Name is the controller name
const Name = "cooler"

// Controller checks the cooler of every camera listed in cooler.cams
type Controller struct {
	svc actor.Services
	log *zap.Logger
}

// New returns a cooler controller
func New(svc actor.Services, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, log: log}
}

// Factory builds the cooler controller for the actor
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	return New(svc, log), nil
}

// Start does nothing
func (c *Controller) Start(ctx context.Context) error { return nil }

// Stop does nothing
func (c *Controller) Stop() {}

// Test queries the cooler status of each camera and informs its temperatures.
// Every camera is checked; the error lists those that failed.
func (c *Controller) Test(cmd *actor.Command) error {
	cams := c.svc.Config().Cooler.Cams
	if len(cams) == 0 {
		return fmt.Errorf("no cameras configured in cooler.cams")
	}
	failed := []string{}
	for _, cam := range cams {
		if err := c.check(cmd, cam); err != nil {
			c.log.Warn("cooler check failed", zap.String("cam", cam), zap.Error(err))
			cmd.Warn(keys.Text(cam + ": " + err.Error()))
			failed = append(failed, cam)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("cooler test failed for %s", strings.Join(failed, ","))
	}
	return nil
}

func (c *Controller) check(cmd *actor.Command, cam string) error {
	xcu := "xcu_" + cam
	if err := c.svc.RequireModel(cmd, xcu); err != nil {
		return err
	}
	if _, err := c.svc.SafeCall(cmd, xcu, "cooler status", 0); err != nil {
		return err
	}
	status, err := c.svc.Key(xcu, "coolerStatus")
	if err != nil {
		return err
	}
	errorStr, err := status.Value(2)
	if err != nil {
		return err
	}
	if errorStr.String() != "OK" {
		return fmt.Errorf("cooler status is not OK : %s", errorStr.String())
	}
	temps, err := c.svc.Key(xcu, "coolerTemps")
	if err != nil {
		return err
	}
	cmd.Inform(fmt.Sprintf("%s__coolerTemps=%s", cam, util.FloatSliceToCSV(temps.Floats(), 2)))
	return nil
}
