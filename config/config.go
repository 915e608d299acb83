// Package config holds the configuration of the tests actor and loads it with koanf.
//
// Values are layered, later sources overriding earlier ones:
//  1. defaults (Default)
//  2. the YAML file, if it exists
//  3. environment variables, TESTS_<KEY> with __ as the nesting delimiter,
//     e.g. TESTS_HUB__ADDR=tron:6093
//  4. command line flags that were explicitly set
package config

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/basicflag"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"

	"github.com/Subaru-PFS/ics-testsActor/util"
)

// EnvPrefix is the prefix of environment variables read by the loader
const EnvPrefix = "TESTS_"

// Hub configures the commander link to the hub
type Hub struct {
	Addr        string        `koanf:"addr" yaml:"addr"`
	DialTimeout time.Duration `koanf:"dialTimeout" yaml:"dialTimeout"`
	CallTimeout time.Duration `koanf:"callTimeout" yaml:"callTimeout"`
}

// Sampling configures SampleData
type Sampling struct {
	Count    int           `koanf:"count" yaml:"count"`
	Interval time.Duration `koanf:"interval" yaml:"interval"`
}

// LogFile configures the rotated log file; an empty Path logs to stderr only
type LogFile struct {
	Path       string `koanf:"path" yaml:"path"`
	MaxSizeMB  int    `koanf:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `koanf:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `koanf:"maxAgeDays" yaml:"maxAgeDays"`
}

// OpDB configures the operations database
type OpDB struct {
	DSN string `koanf:"dsn" yaml:"dsn"`
}

// SPS configures the spectrograph exposure tests
type SPS struct {
	DataRoot    string  `koanf:"dataRoot" yaml:"dataRoot"`
	DarkExptime float64 `koanf:"darkExptime" yaml:"darkExptime"`
}

// Alerts configures the alerts test keyword publisher
type Alerts struct {
	Period time.Duration `koanf:"period" yaml:"period"`
}

// Cooler configures the cooler sweep
type Cooler struct {
	Cams []string `koanf:"cams" yaml:"cams"`
}

// Config is the complete actor configuration
type Config struct {
	Name                string                  `koanf:"name" yaml:"name"`
	Site                string                  `koanf:"site" yaml:"site"`
	LogLevel            string                  `koanf:"logLevel" yaml:"logLevel"`
	LogFile             LogFile                 `koanf:"logFile" yaml:"logFile"`
	ListenAddr          string                  `koanf:"listenAddr" yaml:"listenAddr"`
	HTTPAddr            string                  `koanf:"httpAddr" yaml:"httpAddr"`
	Hub                 Hub                     `koanf:"hub" yaml:"hub"`
	StartingControllers []string                `koanf:"startingControllers" yaml:"startingControllers"`
	ExtraModels         []string                `koanf:"extraModels" yaml:"extraModels"`
	Sampling            Sampling                `koanf:"sampling" yaml:"sampling"`
	TCPTimeout          time.Duration           `koanf:"tcpTimeout" yaml:"tcpTimeout"`
	Limits              map[string]util.Limiter `koanf:"limits" yaml:"limits"`
	OpDB                OpDB                    `koanf:"opdb" yaml:"opdb"`
	SPS                 SPS                     `koanf:"sps" yaml:"sps"`
	Alerts              Alerts                  `koanf:"alerts" yaml:"alerts"`
	Cooler              Cooler                  `koanf:"cooler" yaml:"cooler"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Name:     "tests",
		Site:     "L",
		LogLevel: "info",
		LogFile: LogFile{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30},
		ListenAddr: ":9094",
		HTTPAddr:   ":8094",
		Hub: Hub{
			Addr:        "tron:6093",
			DialTimeout: 3 * time.Second,
			CallTimeout: 60 * time.Second},
		StartingControllers: []string{"alerts", "cooler", "enu", "fpa", "sps", "xcu"},
		ExtraModels:         []string{},
		Sampling: Sampling{
			Count:    5,
			Interval: time.Second},
		TCPTimeout: 60 * time.Second,
		Limits:     map[string]util.Limiter{},
		OpDB:       OpDB{DSN: "postgres://pfs@db-ics:5432/opdb?sslmode=disable"},
		SPS: SPS{
			DataRoot:    "/data/raw",
			DarkExptime: 10},
		Alerts: Alerts{Period: 15 * time.Second},
		Cooler: Cooler{Cams: []string{"b1", "r1"}}}
}

// SpecIDs returns the spectrograph modules in use at the site
func (c Config) SpecIDs() []int {
	ids := []int{1, 2, 3, 4}
	if strings.EqualFold(c.Site, "J") {
		// JHU test cryostats
		ids = append(ids, 8, 9)
	}
	return ids
}

// Models returns the actors whose keywords are tracked from startup
func (c Config) Models() []string {
	ids := c.SpecIDs()
	var enus, vis, nir, ccds, hxs []string
	for _, id := range ids {
		enus = append(enus, fmt.Sprintf("enu_sm%d", id))
	}
	for _, arm := range []string{"b", "r"} {
		for _, id := range ids {
			vis = append(vis, fmt.Sprintf("%s%d", arm, id))
		}
	}
	for _, id := range ids {
		nir = append(nir, fmt.Sprintf("n%d", id))
	}
	xcus := make([]string, 0, len(vis)+len(nir))
	for _, cam := range append(append([]string{}, vis...), nir...) {
		xcus = append(xcus, "xcu_"+cam)
	}
	for _, cam := range vis {
		ccds = append(ccds, "ccd_"+cam)
	}
	for _, cam := range nir {
		hxs = append(hxs, "hx_"+cam)
	}
	out := append(enus, xcus...)
	out = append(out, ccds...)
	out = append(out, hxs...)
	return util.UniqueString(append(out, c.ExtraModels...))
}

// Limit returns the limiter configured for a sample label
func (c Config) Limit(label string) (util.Limiter, bool) {
	l, ok := c.Limits[label]
	return l, ok
}

// Loader loads the configuration from its layered sources
type Loader struct {
	// Path is the YAML file; a missing file is not an error
	Path string

	// Flags, when not nil, overrides with the flags that were set on the command line
	Flags *flag.FlagSet

	mu sync.RWMutex
	k  *koanf.Koanf
}

// NewLoader returns a loader reading path and flags
func NewLoader(path string, flags *flag.FlagSet) *Loader {
	return &Loader{Path: path, Flags: flags, k: koanf.New(".")}
}

// Load builds a fresh configuration from every source
func (l *Loader) Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "loading defaults")
	}
	if l.Path != "" {
		if err := k.Load(file.Provider(l.Path), yaml.Parser()); err != nil {
			if !os.IsNotExist(errors.Cause(err)) && !strings.Contains(err.Error(), "no such") { // file missing, who cares
				return Config{}, errors.Wrapf(err, "loading %s", l.Path)
			}
		}
	}
	// env keys are case-folded; map them back onto the known keys
	known := map[string]string{}
	for _, key := range k.Keys() {
		known[strings.ToLower(key)] = key
	}
	cb := func(s string) string {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
		if canon, ok := known[key]; ok {
			return canon
		}
		return key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", cb), nil); err != nil {
		return Config{}, errors.Wrap(err, "loading environment")
	}
	if l.Flags != nil {
		set := flag.NewFlagSet(l.Flags.Name(), flag.ContinueOnError)
		l.Flags.Visit(func(f *flag.Flag) {
			if f.Name == "config" {
				return
			}
			set.Var(f.Value, f.Name, f.Usage)
		})
		if err := k.Load(basicflag.Provider(set, "."), nil); err != nil {
			return Config{}, errors.Wrap(err, "loading flags")
		}
	}

	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, errors.Wrap(err, "decoding configuration")
	}
	openBounds(k, c.Limits)
	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return c, nil
}

// openBounds sets the bounds a limit does not configure to NaN
func openBounds(k *koanf.Koanf, limits map[string]util.Limiter) {
	for label, lim := range limits {
		if !k.Exists("limits." + label + ".min") {
			lim.Min = math.NaN()
		}
		if !k.Exists("limits." + label + ".max") {
			lim.Max = math.NaN()
		}
		limits[label] = lim
	}
}

// Raw returns the flattened key/value view of the last loaded configuration
func (l *Loader) Raw() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.All()
}

// Watch reloads the configuration every time the YAML file changes and hands
// the result to cb
func (l *Loader) Watch(cb func(Config, error)) error {
	if l.Path == "" {
		return errors.New("no configuration file to watch")
	}
	return file.Provider(l.Path).Watch(func(event interface{}, err error) {
		if err != nil {
			cb(Config{}, err)
			return
		}
		cb(l.Load())
	})
}
