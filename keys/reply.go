package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Flag is the one-character reply code that precedes the keywords of a reply
type Flag byte

const (
	// Done finishes a command successfully
	Done Flag = ':'

	// Failed finishes a command unsuccessfully
	Failed Flag = 'f'

	// Fatal finishes a command and signals the actor is in trouble
	Fatal Flag = '!'

	// Inform is an informational reply
	Inform Flag = 'i'

	// Warn is a warning reply
	Warn Flag = 'w'

	// Debug is a debug-level reply
	Debug Flag = 'd'

	// Started is sent when a queued command begins execution
	Started Flag = '>'
)

// Terminal returns true if no more replies follow this one for the same command
func (f Flag) Terminal() bool {
	return f == Done || f == Failed || f == Fatal
}

// Failed returns true if the flag finishes a command unsuccessfully
func (f Flag) Failed() bool {
	return f == Failed || f == Fatal
}

// Valid returns true if f is a known flag
func (f Flag) Valid() bool {
	switch f {
	case Done, Failed, Fatal, Inform, Warn, Debug, Started:
		return true
	}
	return false
}

func (f Flag) String() string {
	return string(rune(f))
}

// Reply is one line received by a commander from the hub
type Reply struct {
	Cmdr     string
	MID      int
	Actor    string
	Flag     Flag
	Keywords Keywords
}

// ParseReply parses a hub to commander line:
//
//	<cmdr> <mid> <actor> <flag> <keywords>
func ParseReply(line string) (Reply, error) {
	var r Reply
	fields, rest := CutFields(strings.TrimRight(line, "\r\n"), 4)
	if len(fields) < 4 {
		return r, fmt.Errorf("reply %q has %d header fields, need 4", line, len(fields))
	}
	mid, err := strconv.Atoi(fields[1])
	if err != nil {
		return r, fmt.Errorf("reply %q has a bad MID: %w", line, err)
	}
	if len(fields[3]) != 1 || !Flag(fields[3][0]).Valid() {
		return r, fmt.Errorf("reply %q has unknown flag %q", line, fields[3])
	}
	kws, err := ParseKeywords(rest)
	if err != nil {
		return r, fmt.Errorf("reply %q keywords: %w", line, err)
	}
	r.Cmdr = fields[0]
	r.MID = mid
	r.Actor = fields[2]
	r.Flag = Flag(fields[3][0])
	r.Keywords = kws
	return r, nil
}

// String formats the reply the way ParseReply reads it
func (r Reply) String() string {
	return fmt.Sprintf("%s %d %s %s %s", r.Cmdr, r.MID, r.Actor, r.Flag, Canonical(r.Keywords, "; "))
}

// CutFields splits off the first n whitespace separated fields of s and returns
// them along with the remainder
func CutFields(s string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := strings.TrimLeft(s, " \t")
	for len(fields) < n && rest != "" {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:idx])
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return fields, rest
}
