package xcu

import (
	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Commands returns the xcu test vocabulary, <test> <cam> for every test
func Commands(reg actor.Registry) actor.CommandSet {
	set := actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__xcu",
			actor.NewKey("cam", actor.String, "camera to test")),
	}
	for _, name := range Tests() {
		name := name
		set.Vocab = append(set.Vocab, actor.Vocab{
			Verb:     name,
			Grammar:  "<cam>",
			Threaded: true,
			Handler: func(cmd *actor.Command) error {
				c, err := actor.Lookup[*Controller](reg, Name)
				if err != nil {
					return err
				}
				cam := cmd.String("cam", "")
				return actor.RunTest(cmd, name+"-"+cam, func() error {
					return c.Run(cmd, name, cam)
				})
			}})
	}
	return set
}
