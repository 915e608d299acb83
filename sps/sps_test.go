package sps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/actor/actortest"
	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/opdb"
)

const (
	night = "2024-05-01"
	fname = "PFSA01234511.fits"
)

var path = "/data/raw/" + night + "/sps/" + fname

type fakeDB struct {
	seq   opdb.Sequence
	visit int
	exp   opdb.Exposure
}

func (f fakeDB) LatestSequence(ctx context.Context) (opdb.Sequence, error) { return f.seq, nil }
func (f fakeDB) VisitOfSet(ctx context.Context, id int) (int, error)       { return f.visit, nil }
func (f fakeDB) Exposure(ctx context.Context, visit int) (opdb.Exposure, error) {
	return f.exp, nil
}

func biasDB() fakeDB {
	return fakeDB{
		seq:   opdb.Sequence{VisitSetID: 42, Type: "biases"},
		visit: 12345,
		exp:   opdb.Exposure{ExpType: "bias", Exptime: 0, SpecNum: 1, ArmNum: 1}}
}

func biasCards() []fitsio.Card {
	return []fitsio.Card{
		{Name: "DETECTOR", Value: "b1"},
		{Name: "W_VISIT", Value: 12345},
		{Name: "W_ARM", Value: 1},
		{Name: "W_SPMOD", Value: 1},
		{Name: "W_SITE", Value: "L"},
		{Name: "DATA-TYP", Value: "BIAS"},
		{Name: "EXPTIME", Value: 0.0},
		{Name: "DARKTIME", Value: 0.5},
		{Name: "DATE-OBS", Value: "2024-05-01T10:00:00.000"},
		{Name: "W_PFDSGN", Value: 7},
		{Name: "W_RVXCU", Value: "1.4.2"},
		{Name: "W_RVCCD", Value: "2.0.1"},
		{Name: "W_RVENU", Value: "1.9.0"},
	}
}

func writeFits(t *testing.T, fs afero.Fs, cards []fitsio.Card) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()
	fits, err := fitsio.Create(f)
	require.NoError(t, err)
	defer fits.Close()
	im := fitsio.NewImage(16, []int{2, 2})
	defer im.Close()
	require.NoError(t, im.Header().Append(cards...))
	require.NoError(t, im.Write([]int16{1, 2, 3, 4}))
	require.NoError(t, fits.Write(im))
}

// writeRaw writes a header made of literal cards, which may repeat
func writeRaw(t *testing.T, fs afero.Fs, cards ...string) {
	t.Helper()
	var b strings.Builder
	for _, c := range append(cards, "END") {
		b.WriteString(fmt.Sprintf("%-80s", c))
	}
	for b.Len()%2880 != 0 {
		b.WriteByte(' ')
	}
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(b.String()), 0o644))
}

func setup(t *testing.T, fs afero.Fs, db opdb.Reader) (*actor.Actor, *actortest.Hub) {
	h := actortest.NewHub(hub.NewModels())
	h.Respond = func(actorName, cmdStr string) actortest.Reply {
		if actorName == "iic" {
			h.Publish("ccd_b1", fmt.Sprintf(`filepath="/data/raw","%s","%s"`, night, fname))
		}
		return actortest.Reply{}
	}
	a := actor.New(config.Default(), h, h.Models, zaptest.NewLogger(t))
	t.Cleanup(a.Close)
	a.RegisterController(Name, func(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
		return New(svc, fs, db, log), nil
	})
	require.NoError(t, a.AddCommands(Commands(a)))
	require.NoError(t, a.AttachController(Name, ""))
	return a, h
}

func execute(t *testing.T, a *actor.Actor, text string) []string {
	t.Helper()
	rec := &actor.Recorder{}
	cmd := a.Execute("tester", 5, text, rec)
	require.NotNil(t, cmd)
	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%q did not finish", text)
	}
	return rec.Lines()
}

func TestParseValue(t *testing.T) {
	require.Equal(t, "O'Brien", parseValue(`'O''Brien  '          / observer`))
	require.Equal(t, true, parseValue("                   T"))
	require.Equal(t, 16, parseValue("                  16 / bits"))
	require.Equal(t, 1.5e3, parseValue("1.5D3"))
	require.Nil(t, parseValue("          / no value"))
}

func TestReadHeaderKeepsRepeatedCards(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRaw(t, fs,
		"SIMPLE  =                    T",
		"W_ARM   =                    1",
		"COMMENT first",
		"COMMENT second",
		"W_ARM   =                    3",
		"DETECTOR= 'b1      '")
	hdr, err := ReadHeader(fs, path)
	require.NoError(t, err)
	require.Equal(t, []string{"SIMPLE", "W_ARM", "COMMENT", "COMMENT", "W_ARM", "DETECTOR"}, hdr.Names)
	require.Equal(t, []string{"W_ARM"}, hdr.Duplicates())
	v, ok := hdr.Value("W_ARM")
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, _ = hdr.Value("DETECTOR")
	require.Equal(t, "b1", v)
}

func TestReadHeaderFromFitsio(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFits(t, fs, biasCards())
	hdr, err := ReadHeader(fs, path)
	require.NoError(t, err)
	require.Empty(t, hdr.Duplicates())
	require.Contains(t, hdr.Names, "SIMPLE")
	require.Contains(t, hdr.Names, "DATE-OBS")
	v, ok := hdr.Value("W_VISIT")
	require.True(t, ok)
	n, ok := toInt(v)
	require.True(t, ok)
	require.Equal(t, 12345, n)
	_, ok = hdr.Value("NOTTHERE")
	require.False(t, ok)
}

func TestBias(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFits(t, fs, biasCards())
	a, h := setup(t, fs, biasDB())

	lines := execute(t, a, "bias cam=b1")
	require.Equal(t, "i text='connecting model for actor ccd_b1'", lines[0])
	require.Equal(t, `i text="starting b1 bias test"`, lines[1])
	require.Contains(t, lines, "i filepath="+path)
	require.Contains(t, lines, "i SIMPLE=True")
	require.Contains(t, lines, "i W_VISIT=12345")
	require.Contains(t, lines, "i DETECTOR=b1")
	require.Equal(t, `i text="opDB book-keeping OK"`, lines[len(lines)-2])
	require.Equal(t, ": test=bias-b1,OK", lines[len(lines)-1])
	require.Equal(t, []string{`iic bias cam=b1 name="B1 functest" comments="from testsActor"`}, h.Calls())
}

func TestDark(t *testing.T) {
	fs := afero.NewMemMapFs()
	cards := biasCards()
	for i := range cards {
		switch cards[i].Name {
		case "DATA-TYP":
			cards[i].Value = "DARK"
		case "EXPTIME":
			cards[i].Value = 10.2
		}
	}
	writeFits(t, fs, cards)
	db := biasDB()
	db.seq.Type = "darks"
	db.exp.ExpType = "dark"
	db.exp.Exptime = 10.2
	a, h := setup(t, fs, db)

	lines := execute(t, a, "dark cam=b1")
	require.Equal(t, ": test=dark-b1,OK", lines[len(lines)-1])
	require.Equal(t, []string{`iic dark exptime=10.0 cam=b1 name="B1 functest" comments="from testsActor"`}, h.Calls())
}

func TestBiasMissingCards(t *testing.T) {
	fs := afero.NewMemMapFs()
	cards := []fitsio.Card{}
	for _, c := range biasCards() {
		if c.Name != "W_RVENU" && c.Name != "W_PFDSGN" {
			cards = append(cards, c)
		}
	}
	writeFits(t, fs, cards)
	a, _ := setup(t, fs, biasDB())

	lines := execute(t, a, "bias cam=b1")
	require.Contains(t, lines, "w W_PFDSGN=Undefined")
	require.Contains(t, lines, "w W_RVENU=Undefined")
	require.Equal(t, "w test=bias-b1,FAILED", lines[len(lines)-2])
	require.Equal(t, `f text="W_PFDSGN, W_RVENU are missing"`, lines[len(lines)-1])
}

func TestBiasDuplicatedCards(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRaw(t, fs,
		"SIMPLE  =                    T",
		"BITPIX  =                   16",
		"NAXIS   =                    0",
		"DETECTOR= 'b1      '",
		"W_VISIT =                12345",
		"W_ARM   =                    1",
		"W_SPMOD =                    1",
		"W_SITE  = 'L       '",
		"DATA-TYP= 'BIAS    '",
		"EXPTIME =                  0.0",
		"DARKTIME=                  0.5",
		"DATE-OBS= '2024-05-01'",
		"W_PFDSGN=                    7",
		"W_RVXCU = '1.4.2   '",
		"W_RVCCD = '2.0.1   '",
		"W_RVENU = '1.9.0   '",
		"W_ARM   =                    1")
	a, _ := setup(t, fs, biasDB())

	lines := execute(t, a, "bias cam=b1")
	require.Contains(t, lines, "i NAXIS=0")
	require.Equal(t, `f text="W_ARM duplicated"`, lines[len(lines)-1])
}

func TestBiasWrongDataType(t *testing.T) {
	fs := afero.NewMemMapFs()
	cards := biasCards()
	cards[5].Value = "DARK"
	writeFits(t, fs, cards)
	a, _ := setup(t, fs, biasDB())

	lines := execute(t, a, "bias cam=b1")
	require.Equal(t, `f text="DATA-TYP is incorrect DARK"`, lines[len(lines)-1])
}

func TestBiasOpDBMismatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(*fakeDB)
		err  string
	}{
		{"sequence", func(d *fakeDB) { d.seq.Type = "darks" }, "sequence_type:darks !=biases"},
		{"visit", func(d *fakeDB) { d.visit = 999 }, "W_VISIT :12345 does not match opDB visit :999"},
		{"exp_type", func(d *fakeDB) { d.exp.ExpType = "dark" }, "opDB exp_type:dark !=bias"},
		{"exptime", func(d *fakeDB) { d.exp.Exptime = 2 }, "opDB exptime:2 does not match exptime:0"},
		{"spmod", func(d *fakeDB) { d.exp.SpecNum = 3 }, "opDB specNum:3 !=1"},
		{"arm", func(d *fakeDB) { d.exp.ArmNum = 2 }, "opDB armNum:2 !=1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFits(t, fs, biasCards())
			db := biasDB()
			tc.edit(&db)
			a, _ := setup(t, fs, db)

			lines := execute(t, a, "bias cam=b1")
			require.Equal(t, fmt.Sprintf(`f text="%s"`, tc.err), lines[len(lines)-1])
		})
	}
}

func TestBiasWithoutOpDB(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFits(t, fs, biasCards())
	a, _ := setup(t, fs, nil)

	lines := execute(t, a, "bias cam=b1")
	require.Equal(t, `f text="opDB is not configured"`, lines[len(lines)-1])
}

func TestBiasFileNotWritten(t *testing.T) {
	a, _ := setup(t, afero.NewMemMapFs(), biasDB())
	lines := execute(t, a, "bias cam=b1")
	require.Equal(t, "w test=bias-b1,FAILED", lines[len(lines)-2])
	require.True(t, strings.HasPrefix(lines[len(lines)-1], `f text="open FITS file`))
}

func TestFileIO(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/raw", 0o755))
	a, _ := setup(t, fs, nil)
	c, err := actor.Lookup[*Controller](a, Name)
	require.NoError(t, err)
	tick := time.Unix(0, 0)
	c.now = func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}

	lines := execute(t, a, "fileIO")
	require.Len(t, lines, 3)
	require.Equal(t, `i text="starting fileIO test"`, lines[0])
	require.True(t, strings.HasPrefix(lines[1], `i fileIO="/data/raw/.fileIO-`))
	require.True(t, strings.HasSuffix(lines[1], fmt.Sprintf(`",%d,0.250,0.250`, ProbeSize)))
	require.Equal(t, ": test=fileIO,OK", lines[2])

	left, err := afero.ReadDir(fs, "/data/raw")
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestFileIOReadOnly(t *testing.T) {
	a, _ := setup(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), nil)
	lines := execute(t, a, "fileIO")
	require.True(t, strings.HasPrefix(lines[len(lines)-1], `f text="fileIO write`))
}
