package actor

import (
	"fmt"
	"strings"

	"github.com/Subaru-PFS/ics-testsActor/keys"
)

func (a *Actor) topCommands() CommandSet {
	return CommandSet{
		Name: "top",
		Keys: NewKeysDictionary("tests_top",
			NewKey("name", String, "an optional name to assign to a controller instance"),
			NewKey("controllers", String, "the names of 1 or more controllers to load").Repeat(1, -1),
			NewKey("controller", String, "the names a controller.")),
		Vocab: []Vocab{
			{Verb: "ping", Handler: a.ping},
			{Verb: "status", Grammar: "[all]", Handler: a.status},
			{Verb: "connect", Grammar: "<controller> [<name>]", Handler: a.connect},
			{Verb: "disconnect", Grammar: "<controller>", Handler: a.disconnect},
			{Verb: "reloadConfiguration", Handler: a.reloadConfiguration},
		}}
}

func (a *Actor) ping(cmd *Command) error {
	cmd.Warn("text='I am an empty and fake actor'")
	cmd.Finish("text='Present and (probably) well'")
	return nil
}

func (a *Actor) status(cmd *Command) error {
	cfg := a.Config()
	cmd.Inform("version=" + keys.Quote(a.Version))
	cmd.Inform("text=Present!")
	cmd.Inform(keys.Textf("config name=%s site=%s hub=%s", cfg.Name, cfg.Site, cfg.Hub.Addr))
	if cmd.Has("all") {
		for _, c := range a.Controllers() {
			text := c + " status"
			if a.disp.Accepts(text) {
				a.CallCommand(text)
			}
		}
	}
	cmd.Finish(a.ControllerKey())
	return nil
}

func (a *Actor) connect(cmd *Command) error {
	controller := cmd.String("controller", "")
	instanceName := cmd.String("name", controller)
	if err := a.AttachController(controller, instanceName); err != nil {
		cmd.Fail(keys.Textf("failed to connect controller %s: %v", instanceName, err))
		return nil
	}
	cmd.Finish(a.ControllerKey())
	return nil
}

func (a *Actor) disconnect(cmd *Command) error {
	controller := cmd.String("controller", "")
	if err := a.DetachController(controller); err != nil {
		cmd.Fail(keys.Textf("failed to disconnect controller %s: %v", controller, err))
		return nil
	}
	cmd.Finish(a.ControllerKey())
	return nil
}

func (a *Actor) reloadConfiguration(cmd *Command) error {
	if _, err := a.Reload(); err != nil {
		return err
	}
	sections := map[string]interface{}{}
	if a.loader != nil {
		for k := range a.loader.Raw() {
			sections[strings.SplitN(k, ".", 2)[0]] = nil
		}
	}
	cmd.Inform(fmt.Sprintf("sections=%s", strings.Join(sortedKeys(sections), ",")))
	return nil
}
