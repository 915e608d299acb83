package sps

import (
	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Commands returns the sps vocabulary
func Commands(reg actor.Registry) actor.CommandSet {
	exposure := func(kind string, run func(c *Controller, cmd *actor.Command, cam string) error) actor.Vocab {
		return actor.Vocab{Verb: kind, Grammar: "<cam>", Threaded: true, Handler: func(cmd *actor.Command) error {
			c, err := actor.Lookup[*Controller](reg, Name)
			if err != nil {
				return err
			}
			cam := cmd.String("cam", "")
			return actor.RunTest(cmd, kind+"-"+cam, func() error { return run(c, cmd, cam) })
		}}
	}
	return actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__sps",
			actor.NewKey("cam", actor.String, "camera name, e.g. b2")),
		Vocab: []actor.Vocab{
			{Verb: "fileIO", Grammar: "", Threaded: true, Handler: func(cmd *actor.Command) error {
				c, err := actor.Lookup[*Controller](reg, Name)
				if err != nil {
					return err
				}
				return actor.RunTest(cmd, "fileIO", func() error { return c.FileIO(cmd) })
			}},
			exposure("bias", (*Controller).Bias),
			exposure("dark", (*Controller).Dark),
		}}
}
