package cooler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Subaru-PFS/ics-testsActor/actor"
	"github.com/Subaru-PFS/ics-testsActor/actor/actortest"
	"github.com/Subaru-PFS/ics-testsActor/config"
	"github.com/Subaru-PFS/ics-testsActor/hub"
)

func setup(t *testing.T, cams ...string) (*actor.Actor, *actortest.Hub) {
	cfg := config.Default()
	cfg.Cooler.Cams = cams
	h := actortest.NewHub(hub.NewModels("xcu_b1", "xcu_r1"))
	a := actor.New(cfg, h, h.Models, zaptest.NewLogger(t))
	t.Cleanup(a.Close)
	a.RegisterController(Name, Factory)
	require.NoError(t, a.AddCommands(Commands(a)))
	require.NoError(t, a.AttachController(Name, ""))
	return a, h
}

func coolerTest(t *testing.T, a *actor.Actor) []string {
	t.Helper()
	rec := &actor.Recorder{}
	cmd := a.Execute("tester", 9, "cooler test", rec)
	require.NotNil(t, cmd)
	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cooler test did not finish")
	}
	return rec.Lines()
}

func TestAllCoolersOK(t *testing.T) {
	a, h := setup(t, "b1")
	h.On("xcu_b1", "cooler status", actortest.Reply{
		Keywords: `coolerStatus=1,0,"OK",70,250,120;coolerTemps=-150.2,30.1,163.34,120`})

	require.Equal(t, []string{
		"i b1__coolerTemps=-150.20,30.10,163.34,120.00",
		": test=cooler,OK",
	}, coolerTest(t, a))
}

func TestOneCoolerFails(t *testing.T) {
	a, h := setup(t, "b1", "r1")
	h.On("xcu_b1", "cooler status", actortest.Reply{
		Keywords: `coolerStatus=1,0,"OK",70,250,120;coolerTemps=-150.2,30.1,163.34,120`})
	h.On("xcu_r1", "cooler status", actortest.Reply{
		Keywords: `coolerStatus=0,4,"STALLED",70,250,0;coolerTemps=-150.2,30.1,290,0`})

	lines := coolerTest(t, a)
	require.Equal(t, []string{
		"i b1__coolerTemps=-150.20,30.10,163.34,120.00",
		`w text="r1: cooler status is not OK : STALLED"`,
		"w test=cooler,FAILED",
		`f text="cooler test failed for r1"`,
	}, lines)
	require.Equal(t, []string{"xcu_b1 cooler status", "xcu_r1 cooler status"}, h.Calls())
}

func TestNoCams(t *testing.T) {
	a, _ := setup(t)
	lines := coolerTest(t, a)
	require.Equal(t, `f text="no cameras configured in cooler.cams"`, lines[len(lines)-1])
}
