// Package keys parses and formats the keyword=value lists exchanged between actors.
//
// A reply carries a ;-separated list of keywords, each a name optionally
// followed by =v1,v2,...  Values are kept as the raw tokens seen on the wire
// and converted on demand, so a value that does not parse as the requested
// type is reported as invalid rather than failing the whole reply.
package keys

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrUnterminatedQuote is generated when a quoted value is not closed
	ErrUnterminatedQuote = errors.New("unterminated quoted value")

	// ErrEmptyName is generated when a keyword has values but no name
	ErrEmptyName = errors.New("keyword with empty name")
)

// Value is a single raw keyword value, possibly quoted
type Value string

// IsInvalid returns true if the value is empty or an explicit invalid marker
func (v Value) IsInvalid() bool {
	s := strings.ToLower(strings.TrimSpace(string(v)))
	return s == "" || s == "invalid" || s == "(invalid)"
}

// Raw returns the value as it was received, quotes included
func (v Value) Raw() string {
	return string(v)
}

// String returns the value with any surrounding quotes removed and escapes resolved
func (v Value) String() string {
	return unquote(string(v))
}

// Int parses the value as an integer.  Hex values (0x...) are accepted.
func (v Value) Int() (int, error) {
	if v.IsInvalid() {
		return 0, fmt.Errorf("invalid integer value %q", string(v))
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v.String()), 0, 64)
	return int(i), err
}

// Float parses the value as a float64.  Invalid or unparseable values are NaN.
func (v Value) Float() float64 {
	if v.IsInvalid() {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Bool parses the value as a boolean, accepting 1/0, t/f, true/false in any case
func (v Value) Bool() (bool, error) {
	if v.IsInvalid() {
		return false, fmt.Errorf("invalid boolean value %q", string(v))
	}
	return strconv.ParseBool(strings.TrimSpace(v.String()))
}

// Keyword is a named list of values
type Keyword struct {
	Name   string
	Values []Value
}

// New builds a keyword from unquoted strings, quoting those that need it
func New(name string, values ...string) Keyword {
	vals := make([]Value, len(values))
	for i, s := range values {
		if needsQuote(s) {
			s = Quote(s)
		}
		vals[i] = Value(s)
	}
	return Keyword{Name: name, Values: vals}
}

// Len returns the number of values
func (k Keyword) Len() int {
	return len(k.Values)
}

// Value returns the i-th value of the keyword
func (k Keyword) Value(i int) (Value, error) {
	if i < 0 || i >= len(k.Values) {
		return "", fmt.Errorf("keyword %s has %d values, no index %d", k.Name, len(k.Values), i)
	}
	return k.Values[i], nil
}

// Strings returns every value unquoted
func (k Keyword) Strings() []string {
	out := make([]string, len(k.Values))
	for i, v := range k.Values {
		out[i] = v.String()
	}
	return out
}

// Floats returns every value as a float64, invalid values as NaN
func (k Keyword) Floats() []float64 {
	out := make([]float64, len(k.Values))
	for i, v := range k.Values {
		out[i] = v.Float()
	}
	return out
}

// String formats the keyword as name=v1,v2
func (k Keyword) String() string {
	if len(k.Values) == 0 {
		return k.Name
	}
	raw := make([]string, len(k.Values))
	for i, v := range k.Values {
		raw[i] = v.Raw()
	}
	return k.Name + "=" + strings.Join(raw, ",")
}

// Keywords is an ordered list of keywords
type Keywords []Keyword

// Get returns the last keyword with the given name
func (ks Keywords) Get(name string) (Keyword, bool) {
	for i := len(ks) - 1; i >= 0; i-- {
		if ks[i].Name == name {
			return ks[i], true
		}
	}
	return Keyword{}, false
}

// Has returns true if a keyword with the given name is present
func (ks Keywords) Has(name string) bool {
	_, ok := ks.Get(name)
	return ok
}

// Canonical formats the keywords joined by delim, e.g. k1=1,2;k2="x"
func Canonical(ks Keywords, delim string) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.String()
	}
	return strings.Join(parts, delim)
}

// ParseKeywords parses a ;-separated keyword list
func ParseKeywords(s string) (Keywords, error) {
	chunks, err := splitOutsideQuotes(s, func(r rune) bool { return r == ';' })
	if err != nil {
		return nil, err
	}
	out := Keywords{}
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		kw, err := parseToken(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, nil
}

// ParseCommand tokenises a command line into bare words and key=value keywords.
// Tokens are separated by whitespace outside of quotes.
func ParseCommand(text string) (Keywords, error) {
	tokens, err := splitOutsideQuotes(text, unicode.IsSpace)
	if err != nil {
		return nil, err
	}
	out := Keywords{}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		kw, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, nil
}

// Quote wraps s in double quotes, escaping backslashes and double quotes
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Text returns a text="..." keyword string
func Text(s string) string {
	return "text=" + Quote(s)
}

// Textf is Text with fmt.Sprintf formatting
func Textf(format string, a ...interface{}) string {
	return Text(fmt.Sprintf(format, a...))
}

func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " ,;=\"'\t")
}

// parseToken parses name or name=v1,v2
func parseToken(tok string) (Keyword, error) {
	idx := indexOutsideQuotes(tok, '=')
	if idx < 0 {
		return Keyword{Name: strings.TrimSpace(tok)}, nil
	}
	name := strings.TrimSpace(tok[:idx])
	if name == "" {
		return Keyword{}, ErrEmptyName
	}
	raw, err := splitOutsideQuotes(tok[idx+1:], func(r rune) bool { return r == ',' })
	if err != nil {
		return Keyword{}, err
	}
	vals := make([]Value, len(raw))
	for i, r := range raw {
		vals[i] = Value(strings.TrimSpace(r))
	}
	return Keyword{Name: name, Values: vals}, nil
}

func indexOutsideQuotes(s string, target rune) int {
	var quote rune
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != 0:
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == target:
			return i
		}
	}
	return -1
}

// splitOutsideQuotes splits s at every rune for which sep is true, ignoring
// separators inside single or double quotes
func splitOutsideQuotes(s string, sep func(rune) bool) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			cur.WriteRune(r)
		case r == '\\' && quote != 0:
			escaped = true
			cur.WriteRune(r)
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case sep(r):
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	out = append(out, cur.String())
	return out, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return s
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	escaped := false
	for _, r := range inner {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
