package enu

import (
	"testing"
	"time"

	"github.com/RMcDOttawa/goMockableDelay"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/actor/actortest"
	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/hub"
)

func setup(t *testing.T) (*actor.Actor, *actortest.Hub, *goMockableDelay.MockDelayService) {
	ctrl := gomock.NewController(t)
	delay := goMockableDelay.NewMockDelayService(ctrl)
	h := actortest.NewHub(hub.NewModels())
	a := actor.New(config.Default(), h, h.Models, zaptest.NewLogger(t))
	t.Cleanup(a.Close)
	a.RegisterController(Name, func(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
		return New(svc, delay, log), nil
	})
	require.NoError(t, a.AddCommands(Commands(a)))
	require.NoError(t, a.AttachController(Name, ""))
	return a, h, delay
}

func execute(t *testing.T, a *actor.Actor, text string) []string {
	t.Helper()
	rec := &actor.Recorder{}
	cmd := a.Execute("tester", 3, text, rec)
	require.NotNil(t, cmd)
	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%q did not finish", text)
	}
	return rec.Lines()
}

func TestTemps(t *testing.T) {
	a, h, delay := setup(t)
	delay.EXPECT().DelayDuration(tempsPause).Return(tempsPause, nil).Times(tempsSamples)
	h.On("enu_sm1", "temps start", actortest.Reply{Keywords: `tempsStatus=0,"No error"`})
	h.On("enu_sm1", "temps status", actortest.Reply{Keywords: "temps1=1.0,2.25;temps2=-3.5"})

	lines := execute(t, a, "temps sm1")
	require.Equal(t, []string{
		"i text='connecting model for actor enu_sm1'",
		`i text="starting temps-sm1 test"`,
		`i text="temps status OK, retrieving data ..."`,
		"i temps=1.000,2.250,-3.500",
		"i temps=1.000,2.250,-3.500",
		"i temps=1.000,2.250,-3.500",
		": test=temps-sm1,OK",
	}, lines)
	require.Equal(t, []string{"enu_sm1"}, h.Listened())
}

func TestTempsBadStatus(t *testing.T) {
	a, h, _ := setup(t)
	h.On("enu_sm3", "temps start", actortest.Reply{Keywords: `tempsStatus=4,"Sensor fault"`})

	lines := execute(t, a, "temps sm3")
	require.Equal(t, "w test=temps-sm3,FAILED", lines[len(lines)-2])
	require.Equal(t, `f text="temps status is not OK : Sensor fault"`, lines[len(lines)-1])
}

func TestRexm(t *testing.T) {
	a, h, _ := setup(t)
	h.On("enu_sm2", "rexm status", actortest.Reply{Keywords: "rexmFSM=ONLINE,IDLE;rexm=mid"})
	h.On("enu_sm2", "rexm moveTo low", actortest.Reply{Keywords: "rexmFSM=ONLINE,IDLE;rexm=low"})
	h.On("enu_sm2", "rexm moveTo mid", actortest.Reply{Keywords: "rexm=mid;rexmFSM=ONLINE,IDLE"})

	lines := execute(t, a, "rexm sm2")
	require.Equal(t, ": test=rexm-sm2,OK", lines[len(lines)-1])
	require.Equal(t, []string{"enu_sm2 rexm status", "enu_sm2 rexm moveTo low", "enu_sm2 rexm moveTo mid"}, h.Calls())
}

func TestShuttersWrongState(t *testing.T) {
	a, h, _ := setup(t)
	h.On("enu_sm4", "shutters status", actortest.Reply{Keywords: "shuttersFSM=ONLINE,IDLE;shutters=close"})
	h.On("enu_sm4", "shutters open", actortest.Reply{Keywords: "shuttersFSM=ONLINE,IDLE;shutters=close"})

	lines := execute(t, a, "shutters sm4")
	require.Equal(t, `f text="shutters is close after shutters open, expected open"`, lines[len(lines)-1])
}

func TestDeviceNotIdle(t *testing.T) {
	a, h, _ := setup(t)
	h.On("enu_sm1", "iis status", actortest.Reply{Keywords: "iisFSM=LOADED,FAILED"})

	lines := execute(t, a, "iis sm1")
	require.Equal(t, "w test=iis-sm1,FAILED", lines[len(lines)-2])
	require.Equal(t, `f text="iis state is LOADED,FAILED"`, lines[len(lines)-1])
}

func TestDeviceCallFails(t *testing.T) {
	a, h, _ := setup(t)
	h.On("enu_sm1", "bia status", actortest.Reply{Keywords: `text="bia controller not connected"`, Fail: true})

	lines := execute(t, a, "bia sm1")
	require.Contains(t, lines, `w text="bia controller not connected"`)
	require.Equal(t, `f text="cmd : enu_sm1 bia status has failed !!!"`, lines[len(lines)-1])
}

func TestRejectsUnknownModule(t *testing.T) {
	a, _, _ := setup(t)
	lines := execute(t, a, "slit sm7")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "f text=")
}

func TestVocabularyTakesBareModule(t *testing.T) {
	set := Commands(nil)
	_, ok := set.Keys.Get("smId")
	require.False(t, ok)
	for _, v := range set.Vocab {
		require.Equal(t, "@(sm1|sm2|sm3|sm4)", v.Grammar, v.Verb)
	}

	a, _, _ := setup(t)
	lines := execute(t, a, "slit smId=1")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "f text=")
}
