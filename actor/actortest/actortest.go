// Package actortest provides an in-memory hub for testing test procedures
// without a network.
package actortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// Reply is the answer of a fake actor to one command
type Reply struct {
	// Keywords are published on the actor model before the call returns
	Keywords string

	// Fail makes the call fail
	Fail bool
}

// Hub is an in-memory actor.HubLink.  Commands are answered from the
// replies queued with On, then by Respond; unknown commands succeed with
// no keywords.
type Hub struct {
	Models  *hub.Models
	Respond func(actor, cmdStr string) Reply

	mu       sync.Mutex
	scripts  map[string][]Reply
	calls    []string
	listened []string
}

// NewHub returns a hub feeding models
func NewHub(models *hub.Models) *Hub {
	if models == nil {
		models = hub.NewModels()
	}
	return &Hub{Models: models, scripts: map[string][]Reply{}}
}

// On queues the replies of actor to cmdStr.  They are used in order; the last
// one is repeated.
func (h *Hub) On(actor, cmdStr string, replies ...Reply) *Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := actor + " " + cmdStr
	h.scripts[k] = append(h.scripts[k], replies...)
	return h
}

// Publish sets keywords on the model of actor, as a broadcast would
func (h *Hub) Publish(actor, kws string) {
	h.Models.Add(actor)
	parsed, err := keys.ParseKeywords(kws)
	if err != nil {
		panic(fmt.Sprintf("actortest: bad keywords %q: %v", kws, err))
	}
	h.Models.Dispatch(keys.Reply{Cmdr: ".", Actor: actor, Flag: keys.Inform, Keywords: parsed})
}

// Call answers a command
func (h *Hub) Call(ctx context.Context, actor, cmdStr string, timeLim time.Duration) *hub.CmdVar {
	h.mu.Lock()
	h.calls = append(h.calls, actor+" "+cmdStr)
	mid := len(h.calls)
	k := actor + " " + cmdStr
	var (
		rep    Reply
		script = h.scripts[k]
	)
	switch {
	case len(script) > 1:
		rep = script[0]
		h.scripts[k] = script[1:]
	case len(script) == 1:
		rep = script[0]
	case h.Respond != nil:
		respond := h.Respond
		h.mu.Unlock()
		rep = respond(actor, cmdStr)
		h.mu.Lock()
	}
	h.mu.Unlock()

	parsed, err := keys.ParseKeywords(rep.Keywords)
	if err != nil {
		parsed = keys.Keywords{keys.New("text", err.Error())}
		rep.Fail = true
	}
	flag := keys.Done
	if rep.Fail {
		flag = keys.Failed
	}
	r := keys.Reply{Cmdr: "tests", MID: mid, Actor: actor, Flag: flag, Keywords: parsed}
	h.Models.Dispatch(r)
	return &hub.CmdVar{Actor: actor, CmdStr: cmdStr, MID: mid, Replies: []keys.Reply{r}, DidFail: rep.Fail}
}

// Listen records the actors asked for
func (h *Hub) Listen(ctx context.Context, actors ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listened = append(h.listened, actors...)
	return nil
}

// Calls returns every "<actor> <cmdStr>" received so far
func (h *Hub) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// Listened returns the actors Listen was called with
func (h *Hub) Listened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.listened))
	copy(out, h.listened)
	return out
}

// NewCommand builds a command whose replies are recorded
func NewCommand(text string) (*actor.Command, *actor.Recorder) {
	rec := &actor.Recorder{}
	cmd, err := actor.NewCommand(context.Background(), "tester", 1, text, rec, nil)
	if err != nil {
		panic(fmt.Sprintf("actortest: bad command %q: %v", text, err))
	}
	return cmd, rec
}
