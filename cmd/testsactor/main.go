package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	yml "gopkg.in/yaml.v2"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/alerts"
	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/cooler"
	"github.com/Subaru-PFS/ics-testsActor/enu"
	"github.com/Subaru-PFS/ics-testsActor/fpa"
	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/server/middleware/locker"
	"github.com/Subaru-PFS/ics-testsActor/sps"
	"github.com/Subaru-PFS/ics-testsActor/xcu"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1.0.0"

	// ConfigFileName is what it sounds like
	ConfigFileName = "testsactor.yml"
)

// subsystem is a controller and its vocabulary
type subsystem struct {
	name     string
	factory  actor.Factory
	commands func(actor.Registry) actor.CommandSet
}

var subsystems = []subsystem{
	{alerts.Name, alerts.Factory, alerts.Commands},
	{cooler.Name, cooler.Factory, cooler.Commands},
	{enu.Name, enu.Factory, enu.Commands},
	{fpa.Name, fpa.Factory, fpa.Commands},
	{sps.Name, sps.Factory, sps.Commands},
	{xcu.Name, xcu.Factory, xcu.Commands},
}

func root() {
	str := `testsactor runs diagnostic tests on the PFS spectrograph subsystems.
It connects to the hub as a commander, drives the hardware actors and reports
test=<name>,OK or test=<name>,FAILED for every test.

Usage:
	testsactor <command> [flags]

Commands:
	run
	call <actor> <command>
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `testsactor is configured through its .yaml file, environment variables and flags.
Sources are layered in that order, later ones winning:

- built-in defaults (see "testsactor conf")
- testsactor.yml, or the file given with -config
- TESTS_<KEY> variables, __ separating nested keys, e.g. TESTS_HUB__ADDR=tron:6093
- flags that were explicitly set

The file is watched while running; edits are applied without a restart.

Flags:
	-config     configuration file
	-name       actor name
	-logLevel   debug, info, warn or error
	-listenAddr address of the hub-facing command port
	-httpAddr   address of the diagnostic HTTP interface
	-hub.addr   host:port of the hub

Subsystems, each attachable with "connect controller=<name>":
	alerts  periodic and on-demand test keywords for the alerts actor
	cooler  cryocooler sweep of the cameras in cooler.cams
	enu     temps, slit, bia, shutters, rexm and iis of each module
	fpa     focal plane motor range and repeatability
	sps     bias, dark and fileIO
	xcu     power, gatevalve, turbo, ionpump, cooler, gauge, temps, heaters`
	fmt.Println(str)
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", ConfigFileName, "configuration file")
	fs.String("name", "", "actor name")
	fs.String("logLevel", "", "log level")
	fs.String("listenAddr", "", "address of the command port")
	fs.String("httpAddr", "", "address of the HTTP interface")
	fs.String("hub.addr", "", "host:port of the hub")
	return fs
}

func loadConfig(name string, args []string) (*config.Loader, config.Config, []string, error) {
	fs := newFlags(name)
	if err := fs.Parse(args); err != nil {
		return nil, config.Config{}, nil, err
	}
	loader := config.NewLoader(fs.Lookup("config").Value.String(), fs)
	c, err := loader.Load()
	return loader, c, fs.Args(), err
}

func mkconf(args []string) error {
	_, c, _, err := loadConfig("mkconf", args)
	if err != nil {
		return err
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(c)
}

func printconf(args []string) error {
	_, c, _, err := loadConfig("conf", args)
	if err != nil {
		return err
	}
	return yml.NewEncoder(os.Stdout).Encode(c)
}

func pversion() {
	fmt.Printf("testsactor version %v\n", Version)
}

func run(args []string) error {
	loader, c, _, err := loadConfig("run", args)
	if err != nil {
		return err
	}
	logger, err := newLogger(c.LogLevel, c.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models := hub.NewModels(c.Models()...)
	cmdr, err := hub.Dial(c.Name, c.Hub.Addr, c.Hub.DialTimeout, models, logger.Named("hub"))
	if err != nil {
		return err
	}
	defer cmdr.Close()

	a := actor.New(c, cmdr, models, logger)
	a.Version = Version
	a.SetLoader(loader)
	for _, s := range subsystems {
		a.RegisterController(s.name, s.factory)
		if err := a.AddCommands(s.commands(a)); err != nil {
			return errors.Wrapf(err, "%s vocabulary", s.name)
		}
	}
	defer a.Close()

	icc, err := a.ListenICC(c.ListenAddr)
	if err != nil {
		return err
	}
	defer icc.Close()
	go func() {
		if err := icc.Serve(ctx); err != nil {
			logger.Error("command port", zap.Error(err))
			stop()
		}
	}()

	srv := &http.Server{Addr: c.HTTPAddr, Handler: a.Router(locker.New())}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http", zap.Error(err))
		}
	}()
	defer srv.Shutdown(context.Background())

	err = loader.Watch(func(c config.Config, err error) {
		if err != nil {
			logger.Error("reloading configuration", zap.Error(err))
			return
		}
		a.SetConfig(c)
		logger.Info("configuration reloaded", zap.String("file", loader.Path))
	})
	if err != nil {
		logger.Warn("configuration is not watched", zap.Error(err))
	}

	if err := a.ListenModels(ctx); err != nil {
		return err
	}
	a.ConnectionMade()
	logger.Info("now listening for commands",
		zap.String("actor", c.Name),
		zap.Stringer("icc", icc.Addr()),
		zap.String("http", c.HTTPAddr))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case <-cmdr.Done():
		return errors.New("lost the connection to the hub")
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	var err error
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		err = mkconf(args[2:])
	case "conf":
		err = printconf(args[2:])
	case "run":
		err = run(args[2:])
	case "call":
		err = call(args[2:])
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
	if err != nil {
		log.Fatal(err)
	}
}
