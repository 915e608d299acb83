package fpa

import (
	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/util"
)

// Defaults of checkRepeats
const (
	DefaultReps     = 1
	DefaultDelay    = 60.0
	DefaultDistance = 3000
)

// Commands returns the fpaMotors vocabulary
func Commands(reg actor.Registry) actor.CommandSet {
	return actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__fpa",
			actor.NewKey("cam", actor.String, "camera name, e.g. b2"),
			actor.NewKey("axis", actor.Enum(Axes...), "axis name"),
			actor.NewKey("reps", actor.Int, "number of repetitions"),
			actor.NewKey("delay", actor.Float, "delay between repetitions, in seconds"),
			actor.NewKey("distance", actor.Int, "how far to move, in steps"),
			actor.NewKey("current", actor.Int, "motor current override, in percent")),
		Vocab: []actor.Vocab{
			{Verb: "fpaMotors", Grammar: "findRange <cam> [<current>] [<axis>]", Threaded: true,
				Handler: func(cmd *actor.Command) error {
					c, err := actor.Lookup[*Controller](reg, Name)
					if err != nil {
						return err
					}
					opts := RangeOptions{Cam: cmd.String("cam", "")}
					if cmd.Has("current") {
						current := cmd.Int("current", 0)
						opts.Current = &current
					}
					if ax := cmd.String("axis", ""); ax != "" {
						opts.Axes = []string{ax}
					}
					return c.FindRange(cmd, opts)
				}},
			{Verb: "fpaMotors", Grammar: "checkRepeats <cam> [<reps>] [<axis>] [<distance>] [<delay>]", Threaded: true,
				Handler: func(cmd *actor.Command) error {
					c, err := actor.Lookup[*Controller](reg, Name)
					if err != nil {
						return err
					}
					return c.CheckRepeats(cmd, RepeatOptions{
						Cam:      cmd.String("cam", ""),
						Axis:     cmd.String("axis", ""),
						Reps:     cmd.Int("reps", DefaultReps),
						Delay:    util.SecsToDuration(cmd.Float("delay", DefaultDelay)),
						Distance: cmd.Int("distance", DefaultDistance)})
				}},
		}}
}
