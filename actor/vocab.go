package actor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Subaru-PFS/ics-testsActor/keys"
	"go.uber.org/zap"
)

// Type validates the values of a command argument
type Type interface {
	Check(keys.Value) error
	String() string
}

type stringType struct{}

func (stringType) Check(v keys.Value) error {
	if strings.TrimSpace(v.String()) == "" {
		return fmt.Errorf("empty string")
	}
	return nil
}

func (stringType) String() string { return "string" }

type intType struct{}

func (intType) Check(v keys.Value) error {
	if _, err := v.Int(); err != nil {
		return fmt.Errorf("%q is not an integer", v.String())
	}
	return nil
}

func (intType) String() string { return "int" }

type floatType struct{}

func (floatType) Check(v keys.Value) error {
	if _, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err != nil {
		return fmt.Errorf("%q is not a number", v.String())
	}
	return nil
}

func (floatType) String() string { return "float" }

type enumType []string

func (e enumType) Check(v keys.Value) error {
	s := v.String()
	for _, allowed := range e {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of %s", s, strings.Join(e, ","))
}

func (e enumType) String() string { return "enum(" + strings.Join(e, "|") + ")" }

var (
	// String accepts any non-empty value
	String Type = stringType{}

	// Int accepts integers, hex included
	Int Type = intType{}

	// Float accepts any number
	Float Type = floatType{}
)

// Enum accepts one of values
func Enum(values ...string) Type {
	return enumType(values)
}

// Key describes a typed command argument, key=value[,value...]
type Key struct {
	Name string
	Type Type
	Help string

	// MinValues and MaxValues bound the number of values; MaxValues < 0 is unbounded
	MinValues, MaxValues int
}

// NewKey returns a single-valued key
func NewKey(name string, t Type, help string) Key {
	return Key{Name: name, Type: t, Help: help, MinValues: 1, MaxValues: 1}
}

// Repeat returns a copy of k taking between min and max values, max < 0 for no upper bound
func (k Key) Repeat(min, max int) Key {
	k.MinValues, k.MaxValues = min, max
	return k
}

// Check validates the values of kw
func (k Key) Check(kw keys.Keyword) error {
	n := len(kw.Values)
	if n < k.MinValues || (k.MaxValues >= 0 && n > k.MaxValues) {
		return fmt.Errorf("%s takes %s values, got %d", k.Name, k.arity(), n)
	}
	for _, v := range kw.Values {
		if err := k.Type.Check(v); err != nil {
			return fmt.Errorf("%s: %v", k.Name, err)
		}
	}
	return nil
}

func (k Key) arity() string {
	switch {
	case k.MaxValues < 0:
		return fmt.Sprintf("at least %d", k.MinValues)
	case k.MinValues == k.MaxValues:
		return strconv.Itoa(k.MinValues)
	default:
		return fmt.Sprintf("%d to %d", k.MinValues, k.MaxValues)
	}
}

// KeysDictionary is the set of argument keys a command set understands
type KeysDictionary struct {
	Name string
	keys map[string]Key
}

// NewKeysDictionary returns a dictionary of ks
func NewKeysDictionary(name string, ks ...Key) *KeysDictionary {
	d := &KeysDictionary{Name: name, keys: make(map[string]Key, len(ks))}
	for _, k := range ks {
		d.keys[k.Name] = k
	}
	return d
}

// Get returns the key called name
func (d *KeysDictionary) Get(name string) (Key, bool) {
	if d == nil {
		return Key{}, false
	}
	k, ok := d.keys[name]
	return k, ok
}

// HandlerFunc executes a matched command.  A returned error fails the command.
type HandlerFunc func(cmd *Command) error

// Vocab binds a verb and an argument grammar to a handler.
//
// The grammar is a space separated list of elements, matched in any order:
//
//	<key>        required key=value argument
//	[<key>]      optional key=value argument
//	word         required bare word
//	[word]       optional bare word
//	@(a|b|c)     exactly one of the bare words
//	[@(a|b|c)]   at most one of the bare words
type Vocab struct {
	Verb     string
	Grammar  string
	Handler  HandlerFunc
	Threaded bool
}

// CommandSet is the vocabulary of one subsystem with the keys its grammars use
type CommandSet struct {
	Name  string
	Keys  *KeysDictionary
	Vocab []Vocab
}

type element struct {
	optional bool
	key      *Key
	words    []string
}

type entry struct {
	Vocab
	set      string
	elements []element
}

func compileGrammar(g string, dict *KeysDictionary) ([]element, error) {
	out := []element{}
	for _, tok := range strings.Fields(g) {
		el := element{}
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			el.optional = true
			tok = tok[1 : len(tok)-1]
		}
		switch {
		case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">"):
			name := tok[1 : len(tok)-1]
			k, ok := dict.Get(name)
			if !ok {
				return nil, fmt.Errorf("grammar %q uses unknown key %s", g, name)
			}
			el.key = &k
		case strings.HasPrefix(tok, "@(") && strings.HasSuffix(tok, ")"):
			el.words = strings.Split(tok[2:len(tok)-1], "|")
		case tok == "":
			return nil, fmt.Errorf("grammar %q has an empty element", g)
		default:
			el.words = []string{tok}
		}
		out = append(out, el)
	}
	return out, nil
}

// match returns true if args satisfy the grammar.  Every argument must be
// consumed by exactly one element.  A key argument with bad values is an error.
func match(els []element, args keys.Keywords) (bool, error) {
	used := make([]bool, len(args))
	for _, el := range els {
		found := false
		for i, a := range args {
			if used[i] {
				continue
			}
			if el.key != nil {
				if a.Name != el.key.Name || len(a.Values) == 0 {
					continue
				}
				if err := el.key.Check(a); err != nil {
					return false, err
				}
			} else if len(a.Values) > 0 || !contains(el.words, a.Name) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found && !el.optional {
			return false, nil
		}
	}
	for _, u := range used {
		if !u {
			return false, nil
		}
	}
	return true, nil
}

func contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// Dispatcher matches commands against the registered vocabulary and runs their handlers
type Dispatcher struct {
	log *zap.Logger

	mu      sync.RWMutex
	entries []entry

	wg sync.WaitGroup
}

// NewDispatcher returns an empty dispatcher
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log}
}

// Add registers a command set.  Grammars are compiled up front; a grammar
// referencing an unknown key is an error and nothing is registered.
func (d *Dispatcher) Add(set CommandSet) error {
	compiled := make([]entry, 0, len(set.Vocab))
	for _, v := range set.Vocab {
		els, err := compileGrammar(v.Grammar, set.Keys)
		if err != nil {
			return fmt.Errorf("%s: %w", set.Name, err)
		}
		compiled = append(compiled, entry{Vocab: v, set: set.Name, elements: els})
	}
	d.mu.Lock()
	d.entries = append(d.entries, compiled...)
	d.mu.Unlock()
	return nil
}

// Lookup returns the first vocabulary entry accepting cmd
func (d *Dispatcher) Lookup(cmd *Command) (Vocab, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var (
		seen     bool
		firstErr error
	)
	for _, e := range d.entries {
		if e.Verb != cmd.Verb {
			continue
		}
		seen = true
		ok, err := match(e.elements, cmd.Args)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			return e.Vocab, nil
		}
	}
	if !seen {
		return Vocab{}, fmt.Errorf("unknown command %s", cmd.Verb)
	}
	if firstErr != nil {
		return Vocab{}, firstErr
	}
	return Vocab{}, fmt.Errorf("unmatched command: %s", cmd.Text)
}

// Accepts returns true if a command line would be matched
func (d *Dispatcher) Accepts(text string) bool {
	cmd, err := NewCommand(context.TODO(), "", 0, text, nil, nil)
	if err != nil {
		return false
	}
	_, err = d.Lookup(cmd)
	return err == nil
}

// Verbs returns the sorted, unique verbs known to the dispatcher
func (d *Dispatcher) Verbs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, e := range d.entries {
		if _, ok := seen[e.Verb]; ok {
			continue
		}
		seen[e.Verb] = struct{}{}
		out = append(out, e.Verb)
	}
	sort.Strings(out)
	return out
}

// Dispatch matches cmd and runs its handler, on a new goroutine for threaded
// entries.  Commands that match nothing are failed.
func (d *Dispatcher) Dispatch(cmd *Command) {
	v, err := d.Lookup(cmd)
	if err != nil {
		cmd.Fail(keys.Text(err.Error()))
		return
	}
	if !v.Threaded {
		d.run(cmd, v.Handler)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(cmd, v.Handler)
	}()
}

// Wait blocks until every threaded handler has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(cmd *Command, h HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", zap.String("cmd", cmd.Text), zap.Any("panic", r))
			cmd.Fail(keys.Textf("%s: %v", cmd.Verb, r))
		}
	}()
	d.log.Debug("running", zap.String("cmdr", cmd.Cmdr), zap.Int("mid", cmd.MID), zap.String("cmd", cmd.Text))
	if err := h(cmd); err != nil {
		cmd.Fail(keys.Text(err.Error()))
		return
	}
	if cmd.IsAlive() {
		cmd.Finish("")
	}
}
