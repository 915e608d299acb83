package actor_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/actor/actortest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fpaLikeSet(hit *string) actor.CommandSet {
	record := func(name string) actor.HandlerFunc {
		return func(cmd *actor.Command) error {
			*hit = name
			return nil
		}
	}
	return actor.CommandSet{
		Name: "fpa",
		Keys: actor.NewKeysDictionary("tests__fpa",
			actor.NewKey("cam", actor.String, "camera"),
			actor.NewKey("axis", actor.Enum("a", "b", "c"), "axis"),
			actor.NewKey("reps", actor.Int, "repeats"),
			actor.NewKey("delay", actor.Float, "seconds")),
		Vocab: []actor.Vocab{
			{Verb: "fpaMotors", Grammar: "findRange <cam> [<axis>]", Handler: record("findRange")},
			{Verb: "fpaMotors", Grammar: "checkRepeats <cam> [<reps>] [<axis>] [<delay>]", Handler: record("checkRepeats")},
			{Verb: "temps", Grammar: "@(sm1|sm2|sm3|sm4)", Handler: record("enu")},
			{Verb: "temps", Grammar: "<cam>", Handler: record("xcu")},
		}}
}

func dispatch(t *testing.T, d *actor.Dispatcher, text string) *actortest.Reply {
	t.Helper()
	cmd, rec := actortest.NewCommand(text)
	d.Dispatch(cmd)
	select {
	case <-cmd.Done():
	case <-time.After(time.Second):
		t.Fatalf("%q did not finish", text)
	}
	last, _ := rec.Last()
	return &actortest.Reply{Keywords: last.Raw, Fail: last.Flag.Failed()}
}

func TestGrammarMatching(t *testing.T) {
	var hit string
	d := actor.NewDispatcher(zaptest.NewLogger(t))
	require.NoError(t, d.Add(fpaLikeSet(&hit)))

	cases := []struct {
		text string
		want string
	}{
		{"fpaMotors findRange cam=b1", "findRange"},
		{"fpaMotors cam=b1 findRange axis=b", "findRange"},
		{"fpaMotors checkRepeats cam=r2 reps=3 delay=0.5", "checkRepeats"},
		{"temps sm3", "enu"},
		{"temps cam=b4", "xcu"},
	}
	for _, c := range cases {
		hit = ""
		rep := dispatch(t, d, c.text)
		require.False(t, rep.Fail, c.text)
		require.Equal(t, c.want, hit, c.text)
	}
}

func TestGrammarRejections(t *testing.T) {
	var hit string
	d := actor.NewDispatcher(zaptest.NewLogger(t))
	require.NoError(t, d.Add(fpaLikeSet(&hit)))

	for _, text := range []string{
		"fpaMotors findRange",               // missing cam
		"fpaMotors findRange cam=b1 axis=d", // bad enum
		"fpaMotors checkRepeats cam=b1 reps=many",
		"fpaMotors findRange cam=b1 extra",
		"temps sm1 sm2",
		"nope",
	} {
		hit = ""
		rep := dispatch(t, d, text)
		require.True(t, rep.Fail, text)
		require.Empty(t, hit, text)
		require.Contains(t, rep.Keywords, "text=", text)
	}
}

func TestUnknownKeyInGrammar(t *testing.T) {
	d := actor.NewDispatcher(nil)
	err := d.Add(actor.CommandSet{
		Name:  "bad",
		Keys:  actor.NewKeysDictionary("bad"),
		Vocab: []actor.Vocab{{Verb: "x", Grammar: "<missing>"}}})
	require.Error(t, err)
	require.False(t, d.Accepts("x missing=1"))
}

func TestHandlerOutcomes(t *testing.T) {
	d := actor.NewDispatcher(zaptest.NewLogger(t))
	require.NoError(t, d.Add(actor.CommandSet{
		Name: "outcomes",
		Vocab: []actor.Vocab{
			{Verb: "silent", Handler: func(*actor.Command) error { return nil }},
			{Verb: "broken", Threaded: true, Handler: func(*actor.Command) error { return errors.New("rexm is stuck") }},
			{Verb: "panics", Threaded: true, Handler: func(*actor.Command) error { panic("boom") }},
		}}))

	rep := dispatch(t, d, "silent")
	require.False(t, rep.Fail)
	require.Equal(t, "", rep.Keywords)

	rep = dispatch(t, d, "broken")
	require.True(t, rep.Fail)
	require.Equal(t, `text="rexm is stuck"`, rep.Keywords)

	rep = dispatch(t, d, "panics")
	require.True(t, rep.Fail)
	require.Contains(t, rep.Keywords, "boom")
	d.Wait()
}

func TestRepliesAfterFinishAreDropped(t *testing.T) {
	cmd, rec := actortest.NewCommand("ping")
	cmd.Inform("a=1")
	cmd.Finish("")
	cmd.Warn("b=2")
	cmd.Fail("text=late")
	require.False(t, cmd.IsAlive())
	require.Equal(t, []string{"i a=1", ": "}, rec.Lines())
}

func TestRunTest(t *testing.T) {
	cmd, rec := actortest.NewCommand("cooler test")
	require.NoError(t, actor.RunTest(cmd, "cooler", func() error { return nil }))
	require.Equal(t, []string{": test=cooler,OK"}, rec.Lines())

	cmd, rec = actortest.NewCommand("cooler test")
	err := actor.RunTest(cmd, "cooler", func() error { return errors.New("b1 failed") })
	require.EqualError(t, err, "b1 failed")
	require.Equal(t, []string{"w test=cooler,FAILED"}, rec.Lines())
	require.True(t, cmd.IsAlive())
}

func TestCommandArguments(t *testing.T) {
	cmd, _ := actortest.NewCommand(`fpaMotors checkRepeats cam=b1 reps=3 delay=0.5 name="B1 functest"`)
	require.Equal(t, "fpaMotors", cmd.Verb)
	require.True(t, cmd.Has("checkRepeats"))
	require.Equal(t, "b1", cmd.String("cam", ""))
	require.Equal(t, 3, cmd.Int("reps", 1))
	require.Equal(t, 0.5, cmd.Float("delay", 60))
	require.Equal(t, 3000, cmd.Int("distance", 3000))
	require.Equal(t, "B1 functest", cmd.String("name", ""))
	_, ok := cmd.OneOf("findRange")
	require.False(t, ok)
	w, ok := cmd.OneOf("findRange", "checkRepeats")
	require.True(t, ok)
	require.Equal(t, "checkRepeats", w)
}
