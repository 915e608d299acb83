package actor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Subaru-PFS/ics-testsActor/keys"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReplyWriter delivers the replies of a command to whoever issued it
type ReplyWriter interface {
	WriteReply(cmdr string, mid int, flag keys.Flag, kws string) error
}

// ReplyWriterFunc adapts a function to a ReplyWriter
type ReplyWriterFunc func(cmdr string, mid int, flag keys.Flag, kws string) error

// WriteReply calls f
func (f ReplyWriterFunc) WriteReply(cmdr string, mid int, flag keys.Flag, kws string) error {
	return f(cmdr, mid, flag, kws)
}

// Command is one command being executed by the actor.  The reply methods are
// safe for concurrent use; once a terminal reply (Finish or Fail) has been
// sent, further replies are dropped.
type Command struct {
	Cmdr string
	MID  int
	Text string
	Verb string

	// Args are the tokens following the verb
	Args keys.Keywords

	w   ReplyWriter
	log *zap.Logger
	ctx context.Context

	mu         sync.Mutex
	finished   bool
	persistent bool
	done       chan struct{}
}

// NewCommand parses text into a command whose replies go to w
func NewCommand(ctx context.Context, cmdr string, mid int, text string, w ReplyWriter, log *zap.Logger) (*Command, error) {
	toks, err := keys.ParseCommand(text)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", text)
	}
	if len(toks) == 0 {
		return nil, errors.New("empty command")
	}
	if len(toks[0].Values) > 0 {
		return nil, fmt.Errorf("command verb %q cannot take a value", toks[0].Name)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Command{
		Cmdr: cmdr,
		MID:  mid,
		Text: text,
		Verb: toks[0].Name,
		Args: toks[1:],
		w:    w,
		log:  log,
		ctx:  ctx,
		done: make(chan struct{})}, nil
}

// Context is cancelled when the actor shuts down
func (c *Command) Context() context.Context {
	return c.ctx
}

// Done is closed once the command has been finished or failed
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// IsAlive returns true until a terminal reply has been sent
func (c *Command) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.finished
}

// Inform sends an informational reply
func (c *Command) Inform(kws string) { c.reply(keys.Inform, kws) }

// Warn sends a warning reply
func (c *Command) Warn(kws string) { c.reply(keys.Warn, kws) }

// Debug sends a debug reply
func (c *Command) Debug(kws string) { c.reply(keys.Debug, kws) }

// Finish ends the command successfully
func (c *Command) Finish(kws string) { c.reply(keys.Done, kws) }

// Fail ends the command unsuccessfully
func (c *Command) Fail(kws string) { c.reply(keys.Failed, kws) }

func (c *Command) reply(flag keys.Flag, kws string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		c.log.Warn("dropping reply to a finished command",
			zap.String("cmd", c.Text), zap.Stringer("flag", flag), zap.String("keywords", kws))
		return
	}
	if flag.Terminal() && !c.persistent {
		c.finished = true
		defer close(c.done)
	}
	if err := c.w.WriteReply(c.Cmdr, c.MID, flag, kws); err != nil {
		c.log.Warn("could not deliver reply", zap.String("cmd", c.Text), zap.Error(err))
	}
}

// Has returns true if the argument name (a keyword or a bare word) was given
func (c *Command) Has(name string) bool {
	return c.Args.Has(name)
}

// Keyword returns the argument keyword name
func (c *Command) Keyword(name string) (keys.Keyword, bool) {
	return c.Args.Get(name)
}

// String returns the first value of argument name, or def
func (c *Command) String(name, def string) string {
	kw, ok := c.Args.Get(name)
	if !ok || len(kw.Values) == 0 {
		return def
	}
	return kw.Values[0].String()
}

// Int returns the first value of argument name as an int, or def
func (c *Command) Int(name string, def int) int {
	kw, ok := c.Args.Get(name)
	if !ok || len(kw.Values) == 0 {
		return def
	}
	i, err := kw.Values[0].Int()
	if err != nil {
		return def
	}
	return i
}

// Float returns the first value of argument name as a float64, or def
func (c *Command) Float(name string, def float64) float64 {
	kw, ok := c.Args.Get(name)
	if !ok || len(kw.Values) == 0 {
		return def
	}
	f := kw.Values[0].Float()
	if math.IsNaN(f) {
		return def
	}
	return f
}

// OneOf returns the first of choices given as a bare word
func (c *Command) OneOf(choices ...string) (string, bool) {
	for _, a := range c.Args {
		if len(a.Values) > 0 {
			continue
		}
		for _, ch := range choices {
			if a.Name == ch {
				return ch, true
			}
		}
	}
	return "", false
}

// Recorded is one reply captured by a Recorder
type Recorded struct {
	Flag     keys.Flag
	Raw      string
	Keywords keys.Keywords
}

func (r Recorded) String() string {
	return r.Flag.String() + " " + r.Raw
}

// Recorder is a ReplyWriter that keeps every reply in memory
type Recorder struct {
	mu      sync.Mutex
	replies []Recorded
}

// WriteReply records a reply
func (r *Recorder) WriteReply(cmdr string, mid int, flag keys.Flag, kws string) error {
	parsed, err := keys.ParseKeywords(kws)
	if err != nil {
		parsed = keys.Keywords{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, Recorded{Flag: flag, Raw: kws, Keywords: parsed})
	return nil
}

// Replies returns a copy of the recorded replies
func (r *Recorder) Replies() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.replies))
	copy(out, r.replies)
	return out
}

// Lines returns the recorded replies formatted as "<flag> <keywords>"
func (r *Recorder) Lines() []string {
	replies := r.Replies()
	out := make([]string, len(replies))
	for i, rep := range replies {
		out[i] = rep.String()
	}
	return out
}

// Last returns the last recorded reply
func (r *Recorder) Last() (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return Recorded{}, false
	}
	return r.replies[len(r.replies)-1], true
}
