// Package xcu tests the cryostat control of one camera through its xcu actor.
//
// Every test follows the same sequence, driven by a device table:
//
//	power the controller from its PCM port if it is off
//	wait for the controller TCP server
//	connect the controller in the xcu actor
//	run its status command and check the result
//	sample the telemetry and report statistics
//	start the periodic monitoring
//
// Steps a device does not need are skipped.
package xcu

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// Name is the controller name
const Name = "xcu"

// MonitorPeriod is the period in seconds of the monitoring started after a test
var MonitorPeriod = 15

var (
	probeNames = []string{
		"detectorBox",
		"mangin",
		"spider",
		"thermalSpreader",
		"frontRing",
		"", "", "", "", "",
		"detectorStrap1",
		"detectorStrap2"}

	coolerLabels = []string{"coolerSetpoint", "coolerReject", "coolerTip", "coolerPower"}
)

// device describes how to test one xcu subsystem
type device struct {
	// name of the test and of the command verb
	name string

	// pcmPort powers the device controller, 0 if it is always on
	pcmPort int

	// host prefix and port of the controller TCP server, "" if it has none
	host    string
	tcpPort int

	// controller is connected in the xcu actor before the status, "" if none
	controller string

	status string
	check  func(c *Controller, cam string) error

	// ks are sampled after the status; labels name their values, "" drops one
	ks     []string
	labels []string

	// monitor is the xcu controller monitored after the test, "" if none
	monitor string
}

var devices = []device{
	{
		name:    "power",
		host:    "pcm",
		tcpPort: 1000,
		status:  "pcm status",
		check:   (*Controller).checkPower},
	{
		name:   "gatevalve",
		status: "gatevalve status",
		check:  (*Controller).checkGatevalve},
	{
		name:       "turbo",
		controller: "turbo",
		status:     "turbo status",
		check:      present("turboSpeed"),
		ks:         []string{"turboSpeed"},
		labels:     []string{"turboSpeed"},
		monitor:    "turbo"},
	{
		name:       "ionpump",
		controller: "ionpump",
		status:     "ionpump status",
		check:      present("ionpump1", "ionpump2"),
		ks:         []string{"ionpump1", "ionpump2"},
		labels: []string{
			"", "ionpump1Volts", "ionpump1Current", "ionpump1Temp", "ionpump1Pressure",
			"", "ionpump2Volts", "ionpump2Current", "ionpump2Temp", "ionpump2Pressure"},
		monitor: "ionpump"},
	{
		name:       "cooler",
		pcmPort:    3,
		host:       "cooler",
		tcpPort:    10001,
		controller: "cooler",
		status:     "cooler status",
		check:      (*Controller).checkCooler,
		ks:         []string{"coolerTemps"},
		labels:     coolerLabels,
		monitor:    "cooler"},
	{
		name:    "gauge",
		host:    "pcm",
		tcpPort: 1000,
		status:  "gauge status",
		check:   present("pressure"),
		ks:      []string{"pressure"},
		labels:  []string{"gauge"},
		monitor: "gauge"},
	{
		name:       "temps",
		pcmPort:    4,
		host:       "temps",
		tcpPort:    1024,
		controller: "temps",
		status:     "temps status",
		check:      present("temps"),
		ks:         []string{"temps"},
		labels:     probeNames,
		monitor:    "temps"},
	{
		name:       "heaters",
		controller: "heaters",
		status:     "heaters status",
		check:      present("heaters"),
		ks:         []string{"heaters"},
		labels:     []string{"", "", "ccdHeaterFraction", "asicHeaterFraction"}},
}

// Tests returns the names of the xcu tests
func Tests() []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.name
	}
	return out
}

func lookupDevice(name string) (device, bool) {
	for _, d := range devices {
		if d.name == name {
			return d, true
		}
	}
	return device{}, false
}

// Controller runs the xcu tests
type Controller struct {
	svc actor.Services
	log *zap.Logger
}

// New returns a controller using svc to reach the xcu actors
func New(svc actor.Services, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, log: log}
}

// Factory builds the xcu controller for the actor
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	return New(svc, log), nil
}

// Start does nothing, the xcu tests keep no state
func (c *Controller) Start(ctx context.Context) error { return nil }

// Stop does nothing
func (c *Controller) Stop() {}

func xcuActor(cam string) string {
	return "xcu_" + cam
}

func (c *Controller) key(cam, key string) (keys.Keyword, error) {
	return c.svc.Key(xcuActor(cam), key)
}

// Run runs the test called name on camera cam
func (c *Controller) Run(cmd *actor.Command, name, cam string) error {
	d, ok := lookupDevice(name)
	if !ok {
		return fmt.Errorf("no xcu test named %s", name)
	}
	xcu := xcuActor(cam)
	log := c.log.With(zap.String("test", name), zap.String("cam", cam))
	log.Info("starting")
	cmd.Inform(fmt.Sprintf(`text="starting %s %s test"`, cam, name))
	if err := c.svc.RequireModel(cmd, xcu); err != nil {
		return err
	}

	if d.pcmPort > 0 {
		port, err := c.key(cam, fmt.Sprintf("pcmPort%d", d.pcmPort))
		if err != nil {
			return err
		}
		state, err := port.Value(1)
		if err != nil {
			return err
		}
		on, err := state.Int()
		if err != nil {
			return fmt.Errorf("pcmPort%d state: %v", d.pcmPort, err)
		}
		if on == 0 {
			cmd.Inform(fmt.Sprintf(`text="powering up %s controller"`, d.controller))
			if _, err := c.svc.SafeCall(cmd, xcu, "power on "+d.controller, 0); err != nil {
				return err
			}
		}
	}

	if d.host != "" {
		cmd.Inform(fmt.Sprintf(`text="checking %s tcp server"`, d.host))
		if err := c.svc.WaitForTCPServer(cmd.Context(), d.host+"-"+cam, d.tcpPort); err != nil {
			return err
		}
	}

	if d.controller != "" {
		cmd.Inform(fmt.Sprintf(`text="connecting %s controller"`, d.controller))
		if _, err := c.svc.SafeCall(cmd, xcu, "connect controller="+d.controller, 0); err != nil {
			return err
		}
	}

	if _, err := c.svc.SafeCall(cmd, xcu, d.status, 0); err != nil {
		return err
	}
	if d.check != nil {
		if err := d.check(c, cam); err != nil {
			return err
		}
	}

	if len(d.ks) > 0 {
		cmd.Inform(fmt.Sprintf(`text="%s status OK, retrieving data ..."`, d.name))
		labels := make([]string, len(d.labels))
		for i, l := range d.labels {
			if l != "" {
				labels[i] = cam + "__" + l
			}
		}
		f, err := c.svc.SampleData(cmd, xcu, d.status, d.ks, labels)
		if err != nil {
			return err
		}
		if err := c.svc.GenSample(cmd, f); err != nil {
			return err
		}
	}

	if d.monitor != "" {
		cmdStr := fmt.Sprintf("monitor controllers=%s period=%d", d.monitor, MonitorPeriod)
		if _, err := c.svc.SafeCall(cmd, xcu, cmdStr, 0); err != nil {
			return err
		}
	}
	log.Info("done")
	return nil
}

func present(ks ...string) func(c *Controller, cam string) error {
	return func(c *Controller, cam string) error {
		for _, k := range ks {
			if _, err := c.key(cam, k); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *Controller) checkCooler(cam string) error {
	status, err := c.key(cam, "coolerStatus")
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
	return nil
}

func (c *Controller) checkGatevalve(cam string) error {
	gv, err := c.key(cam, "gatevalve")
	if err != nil {
		return err
	}
	pos, err := gv.Value(1)
	if err != nil {
		return err
	}
	switch pos.String() {
	case "Open", "Closed":
		return nil
	default:
		return fmt.Errorf("gatevalve position is %s", pos.String())
	}
}

// checkPower requires every PCM port to be published with a valid voltage
func (c *Controller) checkPower(cam string) error {
	bad := []string{}
	for i := 1; i <= 8; i++ {
		name := fmt.Sprintf("pcmPort%d", i)
		port, err := c.key(cam, name)
		if err != nil {
			return err
		}
		volts, err := port.Value(2)
		if err != nil || volts.IsInvalid() {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%s have no valid voltage", strings.Join(bad, ","))
	}
	return nil
}
