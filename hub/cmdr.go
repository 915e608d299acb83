// Package hub is the commander side of the link to the hub: it sends commands
// to other actors, collects their replies and keeps models of their keywords.
//
// Commands go out as
//
//	<mid> <actor> <command text>
//
// and every reply comes back as
//
//	<cmdr> <mid> <actor> <flag> <keywords>
//
// A reply answers a pending call when its MID, its actor and its commander
// all match; the commander is either our own name or the hub-qualified form
// of it.  Every reply, including broadcasts and replies to other commanders,
// also refreshes the model of the actor it came from.
package hub

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Subaru-PFS/ics-testsActor/comm"
	"github.com/Subaru-PFS/ics-testsActor/keys"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HubActor is the name the hub answers to
const HubActor = "hub"

// Link is a line oriented, bidirectional connection to the hub
type Link interface {
	Send([]byte) error
	Recv() ([]byte, error)
	Close() error
}

// Caller sends a command to an actor and waits for it to finish
type Caller interface {
	Call(ctx context.Context, actor, cmdStr string, timeLim time.Duration) *CmdVar
}

// CmdVar holds the replies to one command sent through the hub
type CmdVar struct {
	Actor   string
	CmdStr  string
	MID     int
	Replies []keys.Reply
	DidFail bool

	done chan struct{}
}

// LastReply returns the final reply, or a zero Reply if there were none
func (cv *CmdVar) LastReply() keys.Reply {
	if len(cv.Replies) == 0 {
		return keys.Reply{}
	}
	return cv.Replies[len(cv.Replies)-1]
}

// Cmdr is a commander connection to the hub.  It is safe for concurrent use.
type Cmdr struct {
	// Name is used as the commander of synthetic replies (timeouts, link loss)
	Name string

	link   Link
	models *Models
	log    *zap.Logger

	mu      sync.Mutex
	nextMID int
	pending map[int]*CmdVar
	closed  bool
	done    chan struct{}
}

// Dial connects to the hub at addr and starts reading replies
func Dial(name, addr string, dialTimeout time.Duration, models *Models, log *zap.Logger) (*Cmdr, error) {
	rd := comm.NewRemoteDevice(addr)
	rd.DialTimeout = dialTimeout
	if err := rd.Open(); err != nil {
		return nil, errors.Wrap(err, "hub")
	}
	return NewCmdr(name, rd, models, log), nil
}

// NewCmdr wraps an open link and starts the reply reader
func NewCmdr(name string, link Link, models *Models, log *zap.Logger) *Cmdr {
	c := &Cmdr{
		Name:    name,
		link:    link,
		models:  models,
		log:     log,
		pending: map[int]*CmdVar{},
		done:    make(chan struct{})}
	go c.readLoop()
	return c
}

// Models returns the keyword models fed by this connection
func (c *Cmdr) Models() *Models {
	return c.models
}

// Done is closed when the link to the hub is lost or closed
func (c *Cmdr) Done() <-chan struct{} {
	return c.done
}

// Call sends cmdStr to actor and blocks until a terminal reply arrives,
// timeLim elapses, ctx is cancelled or the link goes down.  A zero timeLim
// waits forever.  Transport problems are reported as a failed CmdVar, the
// same way a failing remote command is.
func (c *Cmdr) Call(ctx context.Context, actor, cmdStr string, timeLim time.Duration) *CmdVar {
	cv := &CmdVar{Actor: actor, CmdStr: cmdStr, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cv.Replies = append(cv.Replies, c.synthetic(cv, "hub link is down"))
		cv.DidFail = true
		return cv
	}
	c.nextMID++
	cv.MID = c.nextMID
	c.pending[cv.MID] = cv
	c.mu.Unlock()

	c.log.Debug("calling", zap.String("actor", actor), zap.String("cmd", cmdStr), zap.Int("mid", cv.MID))
	line := fmt.Sprintf("%d %s %s", cv.MID, actor, cmdStr)
	if err := c.link.Send([]byte(line)); err != nil {
		c.abandon(cv, fmt.Sprintf("failed to send command: %v", err))
		return cv
	}

	var timeout <-chan time.Time
	if timeLim > 0 {
		t := time.NewTimer(timeLim)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-cv.done:
	case <-timeout:
		c.abandon(cv, fmt.Sprintf("%s %s timed out after %s", actor, cmdStr, timeLim))
	case <-ctx.Done():
		c.abandon(cv, fmt.Sprintf("%s %s cancelled: %v", actor, cmdStr, ctx.Err()))
	case <-c.done:
	}
	<-cv.done
	return cv
}

// Listen asks the hub to forward the keywords of the given actors
func (c *Cmdr) Listen(ctx context.Context, actors ...string) error {
	if len(actors) == 0 {
		return nil
	}
	cmdStr := "listen addActors " + strings.Join(actors, " ")
	cv := c.Call(ctx, HubActor, cmdStr, 10*time.Second)
	if cv.DidFail {
		return fmt.Errorf("hub %s failed: %s", cmdStr, keys.Canonical(cv.LastReply().Keywords, ";"))
	}
	return nil
}

// Close shuts the link down and fails every pending call
func (c *Cmdr) Close() error {
	err := c.link.Close()
	<-c.done
	return err
}

func (c *Cmdr) synthetic(cv *CmdVar, why string) keys.Reply {
	return keys.Reply{
		Cmdr:     c.Name,
		MID:      cv.MID,
		Actor:    cv.Actor,
		Flag:     keys.Failed,
		Keywords: keys.Keywords{keys.New("text", why)}}
}

// abandon fails a pending call, unless it already finished
func (c *Cmdr) abandon(cv *CmdVar, why string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[cv.MID]; !ok {
		return
	}
	delete(c.pending, cv.MID)
	cv.Replies = append(cv.Replies, c.synthetic(cv, why))
	cv.DidFail = true
	close(cv.done)
}

func (c *Cmdr) readLoop() {
	defer close(c.done)
	for {
		line, err := c.link.Recv()
		if err != nil {
			c.shutdown(err)
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		reply, err := keys.ParseReply(string(line))
		if err != nil {
			c.log.Warn("dropping unparseable reply", zap.Error(err))
			continue
		}
		c.models.Dispatch(reply)
		if reply.MID == 0 || strings.HasPrefix(reply.Cmdr, ".") {
			continue // broadcast
		}
		if !c.ours(reply.Cmdr) {
			continue
		}
		c.mu.Lock()
		if cv, ok := c.pending[reply.MID]; ok && cv.Actor == reply.Actor {
			cv.Replies = append(cv.Replies, reply)
			if reply.Flag.Terminal() {
				cv.DidFail = reply.Flag.Failed()
				delete(c.pending, reply.MID)
				close(cv.done)
			}
		}
		c.mu.Unlock()
	}
}

// ours reports whether cmdr names this commander
func (c *Cmdr) ours(cmdr string) bool {
	return cmdr == c.Name || strings.HasSuffix(cmdr, "."+c.Name)
}

func (c *Cmdr) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if len(c.pending) > 0 {
		c.log.Warn("hub link lost with commands in flight", zap.Int("pending", len(c.pending)), zap.Error(err))
	}
	for mid, cv := range c.pending {
		cv.Replies = append(cv.Replies, c.synthetic(cv, "hub link closed: "+err.Error()))
		cv.DidFail = true
		delete(c.pending, mid)
		close(cv.done)
	}
}
