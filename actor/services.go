package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/keys"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/services.go -package=mocks github.com/Subaru-PFS/ics-testsActor/actor Services

// Services is what test procedures need from the actor
type Services interface {
	// SafeCall runs a command on another actor and returns the canonical
	// keywords of its last reply
	SafeCall(cmd *Command, actor, cmdStr string, timeLim time.Duration) (string, error)

	// Key returns the current value of a keyword from an actor model
	Key(actor, key string) (keys.Keyword, error)

	// RequireModel makes sure the keywords of actor are being tracked
	RequireModel(cmd *Command, actor string) error

	// SampleData repeats a call and collects the values of ks into a Frame
	SampleData(cmd *Command, actor, cmdStr string, ks, labels []string) (Frame, error)

	// GenSample reports the statistics of every column of a Frame
	GenSample(cmd *Command, f Frame) error

	// WaitForTCPServer waits until host:port accepts connections
	WaitForTCPServer(ctx context.Context, host string, port int) error

	Config() config.Config
	Bcast() *Command
}

// Controller is a subsystem attached to the actor
type Controller interface {
	Start(ctx context.Context) error
	Stop()
}

// Factory builds a controller instance
type Factory func(svc Services, name string, log *zap.Logger) (Controller, error)

// Registry finds attached controllers by instance name
type Registry interface {
	Controller(name string) (Controller, error)
}

// Lookup returns the controller attached as name, which must be a T
func Lookup[T Controller](reg Registry, name string) (T, error) {
	var zero T
	ctl, err := reg.Controller(name)
	if err != nil {
		return zero, err
	}
	c, ok := ctl.(T)
	if !ok {
		return zero, fmt.Errorf("%s controller is a %T", name, ctl)
	}
	return c, nil
}

// HubLink is the commander side of the hub connection
type HubLink interface {
	Call(ctx context.Context, actor, cmdStr string, timeLim time.Duration) *hub.CmdVar
	Listen(ctx context.Context, actors ...string) error
}

// RunTest runs fn for a test called name.  On success the command is finished
// with test=<name>,OK; on failure test=<name>,FAILED is warned and the error
// returned for the dispatcher to fail the command with.
func RunTest(cmd *Command, name string, fn func() error) error {
	if err := fn(); err != nil {
		cmd.Warn(fmt.Sprintf("test=%s,FAILED", name))
		return err
	}
	cmd.Finish(fmt.Sprintf("test=%s,OK", name))
	return nil
}
