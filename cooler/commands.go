package cooler

import (
	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Commands returns the cooler vocabulary
func Commands(reg actor.Registry) actor.CommandSet {
	return actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__cooler"),
		Vocab: []actor.Vocab{
			{Verb: "cooler", Grammar: "test", Threaded: true, Handler: func(cmd *actor.Command) error {
				c, err := actor.Lookup[*Controller](reg, Name)
				if err != nil {
					return err
				}
				return actor.RunTest(cmd, "cooler", func() error { return c.Test(cmd) })
			}},
		}}
}
