// Package actor is the core of the tests actor: it owns the controllers, runs
// commands against the registered vocabulary and gives test procedures access
// to the other actors through the hub.
package actor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RMcDOttawa/goMockableDelay"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/comm"
	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// BcastCmdr is the commander of broadcast replies
const BcastCmdr = "."

// Actor is the tests actor
type Actor struct {
	Name    string
	Version string

	// Delay paces SampleData
	Delay goMockableDelay.DelayService

	log    *zap.Logger
	loader *config.Loader
	link   HubLink
	models *hub.Models
	disp   *Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	cfgMu sync.RWMutex
	cfg   config.Config

	ctlMu       sync.Mutex
	factories   map[string]Factory
	controllers map[string]Controller
	order       []string

	sinkMu sync.Mutex
	sinks  map[int]ReplyWriter
	nextID int
	bcast  *Command

	connectOnce sync.Once
}

// New returns an actor using link to reach other actors and models to track
// their keywords.  The top level commands are registered.
func New(cfg config.Config, link HubLink, models *hub.Models, log *zap.Logger) *Actor {
	if log == nil {
		log = zap.NewNop()
	}
	if models == nil {
		models = hub.NewModels()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		Name:        cfg.Name,
		Version:     "unknown",
		Delay:       goMockableDelay.NewDelayService(false, 0),
		log:         log,
		link:        link,
		models:      models,
		disp:        NewDispatcher(log.Named("dispatch")),
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		factories:   map[string]Factory{},
		controllers: map[string]Controller{},
		sinks:       map[int]ReplyWriter{}}

	a.bcast = &Command{
		Cmdr:       BcastCmdr,
		Text:       "bcast",
		Verb:       "bcast",
		w:          ReplyWriterFunc(a.broadcast),
		log:        log,
		ctx:        ctx,
		persistent: true,
		done:       make(chan struct{})}
	if err := a.disp.Add(a.topCommands()); err != nil {
		panic(err)
	}
	return a
}

// SetLoader sets the loader used by Reload
func (a *Actor) SetLoader(l *config.Loader) {
	a.loader = l
}

// Config returns the current configuration
func (a *Actor) Config() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// SetConfig replaces the current configuration
func (a *Actor) SetConfig(c config.Config) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.cfg = c
}

// Reload reads the configuration again through the loader
func (a *Actor) Reload() (config.Config, error) {
	if a.loader == nil {
		return a.Config(), errors.New("no configuration loader")
	}
	c, err := a.loader.Load()
	if err != nil {
		return a.Config(), err
	}
	a.SetConfig(c)
	return c, nil
}

// Models returns the keyword models of the other actors
func (a *Actor) Models() *hub.Models {
	return a.models
}

// AddCommands registers the vocabulary of a subsystem
func (a *Actor) AddCommands(set CommandSet) error {
	return a.disp.Add(set)
}

// Dispatcher returns the command dispatcher
func (a *Actor) Dispatcher() *Dispatcher {
	return a.disp
}

// Execute parses text and dispatches it.  Replies go to w; a command that
// cannot be parsed is failed directly on w and nil is returned.
func (a *Actor) Execute(cmdr string, mid int, text string, w ReplyWriter) *Command {
	cmd, err := NewCommand(a.ctx, cmdr, mid, text, w, a.log)
	if err != nil {
		if werr := w.WriteReply(cmdr, mid, keys.Failed, keys.Textf("could not parse %q: %v", text, err)); werr != nil {
			a.log.Warn("could not deliver reply", zap.Error(werr))
		}
		return nil
	}
	a.disp.Dispatch(cmd)
	return cmd
}

// CallCommand runs a command line locally, its replies broadcast
func (a *Actor) CallCommand(text string) *Command {
	return a.Execute(a.Name, 0, text, ReplyWriterFunc(a.broadcast))
}

// Bcast returns the command used to broadcast unsolicited keywords
func (a *Actor) Bcast() *Command {
	return a.bcast
}

// AddSink registers a writer receiving every broadcast reply and returns a
// function that removes it
func (a *Actor) AddSink(w ReplyWriter) func() {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	a.nextID++
	id := a.nextID
	a.sinks[id] = w
	return func() {
		a.sinkMu.Lock()
		defer a.sinkMu.Unlock()
		delete(a.sinks, id)
	}
}

func (a *Actor) broadcast(cmdr string, mid int, flag keys.Flag, kws string) error {
	a.sinkMu.Lock()
	sinks := make([]ReplyWriter, 0, len(a.sinks))
	for _, s := range a.sinks {
		sinks = append(sinks, s)
	}
	a.sinkMu.Unlock()
	var errs []string
	for _, s := range sinks {
		if err := s.WriteReply(cmdr, mid, flag, kws); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// RegisterController makes a controller available to AttachController
func (a *Actor) RegisterController(name string, f Factory) {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	a.factories[name] = f
}

// AttachController builds and starts controller name under instanceName,
// replacing an instance of the same name
func (a *Actor) AttachController(name, instanceName string) error {
	if instanceName == "" {
		instanceName = name
	}
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	f, ok := a.factories[name]
	if !ok {
		return fmt.Errorf("no controller named %s", name)
	}
	if old, ok := a.controllers[instanceName]; ok {
		old.Stop()
		a.remove(instanceName)
	}
	ctl, err := f(a, instanceName, a.log.Named(instanceName))
	if err != nil {
		return err
	}
	if err := ctl.Start(a.ctx); err != nil {
		return err
	}
	a.controllers[instanceName] = ctl
	a.order = append(a.order, instanceName)
	a.log.Info("attached controller", zap.String("controller", name), zap.String("instance", instanceName))
	return nil
}

// DetachController stops and forgets a controller
func (a *Actor) DetachController(name string) error {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	ctl, ok := a.controllers[name]
	if !ok {
		return fmt.Errorf("controller %s is not connected", name)
	}
	ctl.Stop()
	a.remove(name)
	a.log.Info("detached controller", zap.String("controller", name))
	return nil
}

func (a *Actor) remove(name string) {
	delete(a.controllers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Controller returns an attached controller
func (a *Actor) Controller(name string) (Controller, error) {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	ctl, ok := a.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%s controller is not connected.", name)
	}
	return ctl, nil
}

// Controllers returns the attached controller names, in attachment order
func (a *Actor) Controllers() []string {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// ControllerKey returns the controllers=a,b,... keyword
func (a *Actor) ControllerKey() string {
	return "controllers=" + strings.Join(a.Controllers(), ",")
}

// ConnectionMade attaches the starting controllers, the first time it is called
func (a *Actor) ConnectionMade() {
	a.connectOnce.Do(func() {
		a.log.Info("attaching all controllers...")
		for _, name := range a.Config().StartingControllers {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if err := a.AttachController(name, name); err != nil {
				a.log.Error("could not attach controller", zap.String("controller", name), zap.Error(err))
			}
		}
	})
}

// Close stops every controller and waits for running commands
func (a *Actor) Close() {
	a.cancel()
	a.ctlMu.Lock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	a.ctlMu.Unlock()
	for _, n := range names {
		if err := a.DetachController(n); err != nil {
			a.log.Warn("detach on close", zap.Error(err))
		}
	}
	a.disp.Wait()
}

// SafeCall runs cmdStr on actor through the hub.  A zero timeLim uses the
// configured call timeout.  On failure the last reply is warned on cmd.
func (a *Actor) SafeCall(cmd *Command, actor, cmdStr string, timeLim time.Duration) (string, error) {
	if timeLim <= 0 {
		timeLim = a.Config().Hub.CallTimeout
	}
	if timeLim <= 0 {
		timeLim = 60 * time.Second
	}
	if a.link == nil {
		cmd.Warn(keys.Text("not connected to the hub"))
		return "", fmt.Errorf("cmd : %s %s has failed !!!", actor, cmdStr)
	}
	cv := a.link.Call(cmd.Context(), actor, cmdStr, timeLim)
	ret := keys.Canonical(cv.LastReply().Keywords, ";")
	if cv.DidFail {
		cmd.Warn(ret)
		return ret, fmt.Errorf("cmd : %s %s has failed !!!", actor, cmdStr)
	}
	return ret, nil
}

// Key returns the current value of key in the model of actor
func (a *Actor) Key(actor, key string) (keys.Keyword, error) {
	m, ok := a.models.Get(actor)
	if !ok {
		return keys.Keyword{}, fmt.Errorf("no model for actor %s", actor)
	}
	kw, ok := m.Get(key)
	if !ok {
		return keys.Keyword{}, fmt.Errorf("%s has not published %s", actor, key)
	}
	return kw, nil
}

// RequireModel starts tracking the keywords of actor if needed
func (a *Actor) RequireModel(cmd *Command, actor string) error {
	if a.models.Has(actor) {
		return nil
	}
	cmd.Inform(fmt.Sprintf("text='connecting model for actor %s'", actor))
	a.models.Add(actor)
	if a.link == nil {
		return nil
	}
	return a.link.Listen(cmd.Context(), actor)
}

// ListenModels asks the hub for the keywords of every tracked actor
func (a *Actor) ListenModels(ctx context.Context) error {
	if a.link == nil {
		return nil
	}
	return a.link.Listen(ctx, a.models.Names()...)
}

// WaitForTCPServer waits up to the configured tcpTimeout for host:port
func (a *Actor) WaitForTCPServer(ctx context.Context, host string, port int) error {
	timeout := a.Config().TCPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return comm.WaitForTCPServer(ctx, host, port, timeout)
}

// ModelSnapshot returns the keywords of an actor model as strings
func (a *Actor) ModelSnapshot(actor string) (map[string][]string, bool) {
	m, ok := a.models.Get(actor)
	if !ok {
		return nil, false
	}
	out := map[string][]string{}
	for _, kw := range m.Keywords() {
		out[kw.Name] = kw.Strings()
	}
	return out, true
}

func sortedKeys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
