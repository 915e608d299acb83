package enu

import (
	"fmt"
	"strings"

	"github.com/Subaru-PFS/ics-testsActor/actor"
)

// Commands returns the enu test vocabulary, <test> @(sm1|sm2|sm3|sm4)
func Commands(reg actor.Registry) actor.CommandSet {
	set := actor.CommandSet{
		Name: Name,
		Keys: actor.NewKeysDictionary("tests__enu"),
	}
	grammar := fmt.Sprintf("@(%s)", strings.Join(SpecModules, "|"))
	for _, name := range Tests {
		name := name
		set.Vocab = append(set.Vocab, actor.Vocab{
			Verb:     name,
			Grammar:  grammar,
			Threaded: true,
			Handler: func(cmd *actor.Command) error {
				smID, _ := cmd.OneOf(SpecModules...)
				c, err := actor.Lookup[*Controller](reg, Name)
				if err != nil {
					return err
				}
				return actor.RunTest(cmd, name+"-"+smID, func() error {
					return c.Run(cmd, name, smID)
				})
			}})
	}
	return set
}
