// Package sps checks the spectrograph exposure chain: exposures taken
// through iic, the FITS files they produce, the opDB book-keeping and the
// data disk.
package sps

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/keys"
	"github.com/Subaru-PFS/ics-testsActor/opdb"
)

// Name is the controller name
const Name = "sps"

// FitsKeys are the cards every sps primary header must carry
var FitsKeys = []string{"SIMPLE", "BITPIX", "NAXIS", "DETECTOR", "W_VISIT", "W_ARM", "W_SPMOD", "W_SITE",
	"EXPTIME", "DARKTIME", "DATE-OBS", "W_PFDSGN", "W_RVXCU", "W_RVCCD", "W_RVENU"}

// ReadoutTime is added to the exposure time to bound the iic call
var ReadoutTime = 3 * time.Minute

// ProbeSize is the size of the fileIO probe file
var ProbeSize = 8 << 20

// ErrNoOpDB is returned by the exposure tests when no opDB is configured
var ErrNoOpDB = errors.New("opDB is not configured")

// exposure describes what a bias or dark must look like
type exposure struct {
	kind     string
	dataType string
	seqType  string
	exptime  float64

	// tolerance on the EXPTIME card
	tolerance float64
}

// Controller runs the sps tests
type Controller struct {
	svc actor.Services
	fs  afero.Fs
	db  opdb.Reader
	log *zap.Logger

	closer interface{ Close() error }
	now    func() time.Time
}

// New returns an sps controller reading files from fs and book-keeping from db.
// db may be nil, in which case bias and dark fail with ErrNoOpDB.
func New(svc actor.Services, fs afero.Fs, db opdb.Reader, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{svc: svc, fs: fs, db: db, log: log, now: time.Now}
}

// Factory builds the sps controller on the OS file system, with opDB opened
// from opdb.dsn
func Factory(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
	dsn := svc.Config().OpDB.DSN
	if dsn == "" {
		return New(svc, afero.NewOsFs(), nil, log), nil
	}
	o, err := opdb.Open(dsn)
	if err != nil {
		return nil, err
	}
	c := New(svc, afero.NewOsFs(), o, log)
	c.closer = o
	return c, nil
}

// Start does nothing
func (c *Controller) Start(ctx context.Context) error { return nil }

// Stop closes the opDB connection
func (c *Controller) Stop() {
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			c.log.Warn("closing opDB", zap.Error(err))
		}
		c.closer = nil
	}
}

// Bias takes a bias on cam and checks its file and book-keeping
func (c *Controller) Bias(cmd *actor.Command, cam string) error {
	return c.expose(cmd, cam, exposure{kind: "bias", dataType: "BIAS", seqType: "biases"})
}

// Dark takes a dark of sps.darkExptime seconds on cam and checks its file and
// book-keeping
func (c *Controller) Dark(cmd *actor.Command, cam string) error {
	return c.expose(cmd, cam, exposure{kind: "dark", dataType: "DARK", seqType: "darks",
		exptime: c.svc.Config().SPS.DarkExptime, tolerance: 0.5})
}

func (c *Controller) expose(cmd *actor.Command, cam string, e exposure) error {
	ccd := "ccd_" + cam
	if err := c.svc.RequireModel(cmd, ccd); err != nil {
		return err
	}
	cmd.Inform(keys.Textf("starting %s %s test", cam, e.kind))

	name := fmt.Sprintf(`cam=%s name="%s functest" comments="from testsActor"`, cam, strings.ToUpper(cam))
	cmdStr := "bias " + name
	if e.kind == "dark" {
		cmdStr = fmt.Sprintf("dark exptime=%.1f %s", e.exptime, name)
	}
	timeLim := time.Duration(e.exptime*float64(time.Second)) + ReadoutTime
	if _, err := c.svc.SafeCall(cmd, "iic", cmdStr, timeLim); err != nil {
		return err
	}

	path, err := c.filepath(ccd)
	if err != nil {
		return err
	}
	hdr, err := ReadHeader(c.fs, path)
	if err != nil {
		return err
	}
	cmd.Inform(keys.New("filepath", path).String())
	if err := checkHeader(cmd, hdr, e); err != nil {
		return err
	}
	if err := c.checkOpDB(cmd.Context(), hdr, e); err != nil {
		return err
	}
	cmd.Inform(keys.Text("opDB book-keeping OK"))
	return nil
}

// filepath is where the last image of ccd was written
func (c *Controller) filepath(ccd string) (string, error) {
	kw, err := c.svc.Key(ccd, "filepath")
	if err != nil {
		return "", err
	}
	parts := kw.Strings()
	if len(parts) != 3 {
		return "", fmt.Errorf("%s filepath has %d values, expected root,night,file", ccd, len(parts))
	}
	return filepath.Join(parts[0], parts[1], "sps", parts[2]), nil
}

func checkHeader(cmd *actor.Command, hdr Header, e exposure) error {
	dataType, _ := hdr.Value("DATA-TYP")
	if s, _ := dataType.(string); s != e.dataType {
		return fmt.Errorf("DATA-TYP is incorrect %v", dataType)
	}
	v, _ := hdr.Value("EXPTIME")
	exptime, ok := toFloat(v)
	if !ok || math.Abs(exptime-e.exptime) > e.tolerance {
		return fmt.Errorf("EXPTIME is incorrect %v", v)
	}

	missing := []string{}
	for _, k := range FitsKeys {
		v, ok := hdr.Value(k)
		if !ok {
			missing = append(missing, k)
			cmd.Warn(k + "=Undefined")
			continue
		}
		cmd.Inform(keys.New(k, formatValue(v)).String())
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s are missing", strings.Join(missing, ", "))
	}
	if dups := hdr.Duplicates(); len(dups) > 0 {
		return fmt.Errorf("%s duplicated", strings.Join(dups, ", "))
	}
	return nil
}

func (c *Controller) checkOpDB(ctx context.Context, hdr Header, e exposure) error {
	if c.db == nil {
		return ErrNoOpDB
	}
	seq, err := c.db.LatestSequence(ctx)
	if err != nil {
		return err
	}
	if seq.Type != e.seqType {
		return fmt.Errorf("sequence_type:%s !=%s", seq.Type, e.seqType)
	}
	visit, err := c.db.VisitOfSet(ctx, seq.VisitSetID)
	if err != nil {
		return err
	}
	wVisit, _ := hdr.Value("W_VISIT")
	if n, ok := toInt(wVisit); !ok || n != visit {
		return fmt.Errorf("W_VISIT :%v does not match opDB visit :%d", wVisit, visit)
	}
	exp, err := c.db.Exposure(ctx, visit)
	if err != nil {
		return err
	}
	if exp.ExpType != e.kind {
		return fmt.Errorf("opDB exp_type:%s !=%s", exp.ExpType, e.kind)
	}
	if math.Round(exp.Exptime) != math.Round(e.exptime) {
		return fmt.Errorf("opDB exptime:%v does not match exptime:%v", exp.Exptime, e.exptime)
	}
	spmod, _ := hdr.Value("W_SPMOD")
	if n, ok := toInt(spmod); !ok || n != exp.SpecNum {
		return fmt.Errorf("opDB specNum:%d !=%v", exp.SpecNum, spmod)
	}
	arm, _ := hdr.Value("W_ARM")
	if n, ok := toInt(arm); !ok || n != exp.ArmNum {
		return fmt.Errorf("opDB armNum:%d !=%v", exp.ArmNum, arm)
	}
	return nil
}

// FileIO writes a probe file under sps.dataRoot, reads it back and removes
// it, informing fileIO=<path>,<bytes>,<write s>,<read s>
func (c *Controller) FileIO(cmd *actor.Command) error {
	cmd.Inform(keys.Text("starting fileIO test"))
	root := c.svc.Config().SPS.DataRoot
	if root == "" {
		return fmt.Errorf("sps.dataRoot is not set")
	}
	path := filepath.Join(root, ".fileIO-"+uuid.NewString())
	data := make([]byte, ProbeSize)
	for i := range data {
		data[i] = byte(i % 251)
	}

	start := c.now()
	if err := afero.WriteFile(c.fs, path, data, 0o644); err != nil {
		c.fs.Remove(path)
		return errors.Wrap(err, "fileIO write")
	}
	written := c.now()
	defer func() {
		if err := c.fs.Remove(path); err != nil {
			c.log.Warn("removing fileIO probe", zap.String("path", path), zap.Error(err))
		}
	}()
	back, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return errors.Wrap(err, "fileIO read")
	}
	read := c.now()
	if !bytes.Equal(back, data) {
		return fmt.Errorf("fileIO read back %d bytes that differ from the %d written", len(back), len(data))
	}
	wSecs, rSecs := written.Sub(start).Seconds(), read.Sub(written).Seconds()
	c.log.Info("fileIO", zap.String("path", path), zap.Float64("write", wSecs), zap.Float64("read", rSecs))
	cmd.Inform(fmt.Sprintf("fileIO=%s,%d,%.3f,%.3f", keys.Quote(path), len(data), wSecs, rSecs))
	return nil
}
