package alerts

import (
	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Commands returns the alerts vocabulary
func Commands(reg actor.Registry) actor.CommandSet {
	test := func(name string, fn func(*Controller, *actor.Command) error) actor.Vocab {
		return actor.Vocab{Verb: "alerts", Grammar: name, Threaded: true, Handler: func(cmd *actor.Command) error {
			c, err := actor.Lookup[*Controller](reg, Name)
			if err != nil {
				return err
			}
			return actor.RunTest(cmd, "alerts-"+name, func() error { return fn(c, cmd) })
		}}
	}
	return actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__alerts"),
		Vocab: []actor.Vocab{
			test("trigger", (*Controller).Trigger),
			test("invalid", (*Controller).Invalid),
			test("timeout", (*Controller).Timeout),
			{Verb: "alerts", Grammar: "resume", Handler: func(cmd *actor.Command) error {
				c, err := actor.Lookup[*Controller](reg, Name)
				if err != nil {
					return err
				}
				c.Resume()
				cmd.Finish(`text="alerts publication resumed"`)
				return nil
			}},
		}}
}
