package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/yacspin"
	"go.uber.org/zap"

	"github.com/Subaru-PFS/ics-testsActor/hub"
	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// call sends one command through the hub and prints every reply, with a
// spinner while waiting
func call(args []string) error {
	_, c, rest, err := loadConfig("call", args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return errors.New("usage: testsactor call [flags] <actor> <command>")
	}
	actorName, cmdStr := rest[0], strings.Join(rest[1:], " ")

	cmdr, err := hub.Dial(c.Name+".call", c.Hub.Addr, c.Hub.DialTimeout, hub.NewModels(), zap.NewNop())
	if err != nil {
		return err
	}
	defer cmdr.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           actorName + " " + cmdStr,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}
	start := time.Now()
	cv := cmdr.Call(context.Background(), actorName, cmdStr, c.Hub.CallTimeout)
	elapsed := time.Since(start).Round(time.Millisecond)
	if cv.DidFail {
		spinner.StopFailMessage(fmt.Sprintf("%s failed after %s", actorName, elapsed))
		spinner.StopFail()
	} else {
		spinner.StopMessage(fmt.Sprintf("%s done in %s", actorName, elapsed))
		spinner.Stop()
	}
	for _, r := range cv.Replies {
		fmt.Printf("%s %s\n", r.Flag, keys.Canonical(r.Keywords, "; "))
	}
	if cv.DidFail {
		return fmt.Errorf("%s %s has failed", actorName, cmdStr)
	}
	return nil
}
