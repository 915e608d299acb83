package sps

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/Subaru-PFS/ics-testsActor/util"
)

const cardSize = 80

// Header is the primary header of a FITS file
type Header struct {
	// Names are the card names in file order, repeats and COMMENT included
	Names []string

	values map[string]interface{}
}

// Value returns the value of card name; false if the card is absent or has
// no value
func (h Header) Value(name string) (interface{}, bool) {
	v, ok := h.values[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Duplicates returns the repeated card names, COMMENT excepted
func (h Header) Duplicates() []string {
	return util.CheckDuplicate(h.Names)
}

// ReadHeader reads the primary header of the FITS file at path.  Card names
// come from a scan of the raw header, which keeps repeated cards; values come
// from fitsio unless the header has repeated cards, which fitsio refuses.
func ReadHeader(fs afero.Fs, path string) (Header, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Header{}, errors.Wrap(err, "open FITS file")
	}
	defer f.Close()

	h, err := scanHeader(f)
	if err != nil {
		return h, errors.Wrapf(err, "%s", path)
	}
	if len(h.Duplicates()) > 0 {
		return h, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return h, err
	}
	if err := h.decode(f); err != nil {
		return h, errors.Wrapf(err, "%s", path)
	}
	return h, nil
}

// decode overlays the values decoded by fitsio
func (h *Header) decode(r io.Reader) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fitsio: %v", p)
		}
	}()
	ff, err := fitsio.Open(r)
	if err != nil {
		return err
	}
	defer ff.Close()
	hdr := ff.HDU(0).Header()
	for _, k := range hdr.Keys() {
		if c := hdr.Get(k); c != nil && c.Value != nil {
			if s, ok := c.Value.(string); ok {
				h.values[k] = strings.TrimRight(s, " ")
				continue
			}
			h.values[k] = c.Value
		}
	}
	return nil
}

// scanHeader reads 80 character cards up to END
func scanHeader(r io.Reader) (Header, error) {
	h := Header{values: map[string]interface{}{}}
	buf := make([]byte, cardSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return h, errors.Wrap(err, "reading FITS header")
		}
		rec := string(buf)
		name := strings.TrimSpace(rec[:8])
		if name == "END" {
			return h, nil
		}
		if name == "" {
			continue
		}
		h.Names = append(h.Names, name)
		if rec[8:10] == "= " {
			if _, seen := h.values[name]; !seen {
				h.values[name] = parseValue(rec[10:])
			}
		}
	}
}

// parseValue parses the value field of a card, nil if it is empty
func parseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			b.WriteByte(s[i])
		}
		return strings.TrimRight(b.String(), " ")
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "":
		return nil
	case "T":
		return true
	case "F":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(strings.Replace(s, "D", "E", 1), 64); err == nil {
		return f
	}
	return s
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	return fmt.Sprint(v)
}
