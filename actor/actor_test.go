package actor_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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
	"github.com/Subaru-PFS/ics-testsActor/server/middleware/locker"
	"github.com/Subaru-PFS/ics-testsActor/util"
)

func newActor(t *testing.T, cfg config.Config) (*actor.Actor, *actortest.Hub) {
	h := actortest.NewHub(hub.NewModels("xcu_b1"))
	a := actor.New(cfg, h, h.Models, zaptest.NewLogger(t))
	t.Cleanup(a.Close)
	return a, h
}

func run(t *testing.T, a *actor.Actor, text string) *actor.Recorder {
	t.Helper()
	rec := &actor.Recorder{}
	cmd := a.Execute("tester", 1, text, rec)
	require.NotNil(t, cmd, text)
	select {
	case <-cmd.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%q did not finish", text)
	}
	return rec
}

type stubController struct {
	started, stopped int
}

func (s *stubController) Start(context.Context) error { s.started++; return nil }
func (s *stubController) Stop()                       { s.stopped++ }

func TestSafeCall(t *testing.T) {
	a, h := newActor(t, config.Default())
	h.On("xcu_b1", "cooler status", actortest.Reply{Keywords: `coolerStatus=1,0,"OK",70,250,120.5`})
	h.On("xcu_b1", "gatevalve open", actortest.Reply{Keywords: `text="interlock refused"`, Fail: true})

	cmd, rec := actortest.NewCommand("cooler test")
	ret, err := a.SafeCall(cmd, "xcu_b1", "cooler status", 0)
	require.NoError(t, err)
	require.Equal(t, `coolerStatus=1,0,"OK",70,250,120.5`, ret)
	require.Empty(t, rec.Lines())

	kw, err := a.Key("xcu_b1", "coolerStatus")
	require.NoError(t, err)
	require.Equal(t, "OK", kw.Values[2].String())

	_, err = a.SafeCall(cmd, "xcu_b1", "gatevalve open", 0)
	require.EqualError(t, err, "cmd : xcu_b1 gatevalve open has failed !!!")
	require.Equal(t, []string{`w text="interlock refused"`}, rec.Lines())
}

func TestKeyErrors(t *testing.T) {
	a, _ := newActor(t, config.Default())
	_, err := a.Key("enu_sm9", "rexm")
	require.Error(t, err)
	_, err = a.Key("xcu_b1", "pressure")
	require.Error(t, err)
}

func TestRequireModel(t *testing.T) {
	a, h := newActor(t, config.Default())
	cmd, rec := actortest.NewCommand("rexm sm1")

	require.NoError(t, a.RequireModel(cmd, "xcu_b1"))
	require.Empty(t, rec.Lines())

	require.NoError(t, a.RequireModel(cmd, "enu_sm1"))
	require.Equal(t, []string{"i text='connecting model for actor enu_sm1'"}, rec.Lines())
	require.Equal(t, []string{"enu_sm1"}, h.Listened())
	require.True(t, a.Models().Has("enu_sm1"))
}

func TestSampleDataAndGenSample(t *testing.T) {
	ctrl := gomock.NewController(t)
	delay := goMockableDelay.NewMockDelayService(ctrl)
	delay.EXPECT().DelayDuration(2).Return(2, nil).Times(2)

	cfg := config.Default()
	cfg.Sampling.Count = 3
	cfg.Sampling.Interval = 2 * time.Second
	cfg.Limits = map[string]util.Limiter{"b1__coolerTip": {Min: 150, Max: 170}}
	a, h := newActor(t, cfg)
	a.Delay = delay
	h.On("xcu_b1", "cooler status",
		actortest.Reply{Keywords: "coolerTemps=1,2,160,99"},
		actortest.Reply{Keywords: "coolerTemps=1,invalid,162,99"},
		actortest.Reply{Keywords: "coolerTemps=1,4,164,99"})

	cmd, rec := actortest.NewCommand("cooler cam=b1")
	labels := []string{"b1__coolerSetpoint", "b1__coolerReject", "b1__coolerTip", ""}
	f, err := a.SampleData(cmd, "xcu_b1", "cooler status", []string{"coolerTemps"}, labels)
	require.NoError(t, err)
	require.Equal(t, []string{"b1__coolerSetpoint", "b1__coolerReject", "b1__coolerTip"}, f.Labels)
	require.Len(t, f.Rows, 3)
	require.True(t, math.IsNaN(f.Rows[1][1]))

	s := f.ColumnStats(1)
	require.Equal(t, 2, s.N)
	require.InDelta(t, 3, s.Mean, 1e-9)

	require.NoError(t, a.GenSample(cmd, f))
	lines := rec.Lines()
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[2], "i b1__coolerTip=162,2,160,164,3"), lines[2])
}

func TestGenSampleFlagsBadColumns(t *testing.T) {
	cfg := config.Default()
	cfg.Limits = map[string]util.Limiter{"b1__gauge": {Min: 0, Max: 1e-5}}
	a, _ := newActor(t, cfg)
	cmd, rec := actortest.NewCommand("gauge cam=b1")
	f := actor.Frame{
		Labels: []string{"b1__gauge", "b1__detectorBox"},
		Rows:   [][]float64{{1e-3, math.NaN()}, {1e-3, math.NaN()}}}
	err := a.GenSample(cmd, f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "b1__gauge,b1__detectorBox")
	for _, l := range rec.Lines() {
		require.True(t, strings.HasPrefix(l, "w "), l)
	}
}

func TestSampleDataLabelMismatch(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.Count = 1
	a, h := newActor(t, cfg)
	h.On("xcu_b1", "gauge status", actortest.Reply{Keywords: "pressure=1e-7"})
	cmd, _ := actortest.NewCommand("gauge cam=b1")
	_, err := a.SampleData(cmd, "xcu_b1", "gauge status", []string{"pressure"}, []string{"a", "b"})
	require.Error(t, err)
}

func TestControllers(t *testing.T) {
	cfg := config.Default()
	cfg.StartingControllers = []string{"stub", "missing"}
	a, _ := newActor(t, cfg)
	stub := &stubController{}
	a.RegisterController("stub", func(svc actor.Services, name string, log *zap.Logger) (actor.Controller, error) {
		return stub, nil
	})

	a.ConnectionMade()
	a.ConnectionMade()
	require.Equal(t, []string{"stub"}, a.Controllers())
	require.Equal(t, 1, stub.started)

	_, err := a.Controller("enu")
	require.EqualError(t, err, "enu controller is not connected.")

	rec := run(t, a, "connect controller=stub name=stub2")
	require.Equal(t, []string{": controllers=stub,stub2"}, rec.Lines())

	rec = run(t, a, "disconnect controller=stub")
	require.Equal(t, []string{": controllers=stub2"}, rec.Lines())
	require.Equal(t, 1, stub.stopped)

	rec = run(t, a, "connect controller=nope")
	last, _ := rec.Last()
	require.True(t, last.Flag.Failed())
	require.Contains(t, last.Raw, "failed to connect controller nope")

	rec = run(t, a, "disconnect controller=nope")
	last, _ = rec.Last()
	require.True(t, last.Flag.Failed())
}

func TestFactoryError(t *testing.T) {
	a, _ := newActor(t, config.Default())
	a.RegisterController("bad", func(actor.Services, string, *zap.Logger) (actor.Controller, error) {
		return nil, errors.New("no hardware")
	})
	require.EqualError(t, a.AttachController("bad", ""), "no hardware")
	require.Empty(t, a.Controllers())
}

func TestPingAndStatus(t *testing.T) {
	a, _ := newActor(t, config.Default())
	a.Version = "1.2.3"
	rec := run(t, a, "ping")
	require.Equal(t, []string{
		"w text='I am an empty and fake actor'",
		": text='Present and (probably) well'"}, rec.Lines())

	rec = run(t, a, "status")
	lines := rec.Lines()
	require.Equal(t, `i version="1.2.3"`, lines[0])
	require.Equal(t, ": controllers=", lines[len(lines)-1])
}

func TestReloadConfiguration(t *testing.T) {
	a, _ := newActor(t, config.Default())
	lines := run(t, a, "reloadConfiguration").Lines()
	require.Equal(t, []string{`f text="no configuration loader"`}, lines)

	path := filepath.Join(t.TempDir(), "testsactor.yml")
	require.NoError(t, os.WriteFile(path, []byte("site: J\nsps:\n  darkExptime: 30\n"), 0o644))
	a.SetLoader(config.NewLoader(path, nil))

	lines = run(t, a, "reloadConfiguration").Lines()
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "i sections="), lines[0])
	sections := strings.Split(strings.TrimPrefix(lines[0], "i sections="), ",")
	require.Contains(t, sections, "site")
	require.Contains(t, sections, "sps")
	require.Equal(t, ":", strings.TrimSpace(lines[1]))
	require.Equal(t, "J", a.Config().Site)
	require.Equal(t, 30.0, a.Config().SPS.DarkExptime)

	require.NoError(t, os.WriteFile(path, []byte("site: [unterminated"), 0o644))
	lines = run(t, a, "reloadConfiguration").Lines()
	require.True(t, strings.HasPrefix(lines[len(lines)-1], "f "), lines)
	require.Equal(t, "J", a.Config().Site)
}

func TestStatusAllRunsControllerStatus(t *testing.T) {
	a, _ := newActor(t, config.Default())
	a.RegisterController("stub", func(actor.Services, string, *zap.Logger) (actor.Controller, error) {
		return &stubController{}, nil
	})
	require.NoError(t, a.AttachController("stub", ""))
	got := make(chan struct{}, 1)
	require.NoError(t, a.AddCommands(actor.CommandSet{
		Name: "stub",
		Vocab: []actor.Vocab{{Verb: "stub", Grammar: "status", Handler: func(cmd *actor.Command) error {
			got <- struct{}{}
			cmd.Finish("stubState=OK")
			return nil
		}}}}))

	bcast := &actor.Recorder{}
	defer a.AddSink(bcast)()
	run(t, a, "status all")
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("stub status was not called")
	}
	require.Contains(t, bcast.Lines(), ": stubState=OK")
}

func TestBcastReachesSinks(t *testing.T) {
	a, _ := newActor(t, config.Default())
	r1, r2 := &actor.Recorder{}, &actor.Recorder{}
	a.AddSink(r1)
	remove := a.AddSink(r2)
	a.Bcast().Inform("keytest1=-99,10,23")
	remove()
	a.Bcast().Finish("keytest3=3.193e-05")
	a.Bcast().Inform("keytest2=23.3,nan")
	require.Equal(t, []string{"i keytest1=-99,10,23", ": keytest3=3.193e-05", "i keytest2=23.3,nan"}, r1.Lines())
	require.Equal(t, []string{"i keytest1=-99,10,23"}, r2.Lines())
}

func TestICC(t *testing.T) {
	a, _ := newActor(t, config.Default())
	icc, err := a.ListenICC("127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go icc.Serve(ctx)
	defer icc.Close()

	conn, err := net.Dial("tcp", icc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	rd := bufio.NewReader(conn)

	_, err = conn.Write([]byte("tron.me 7 ping\n"))
	require.NoError(t, err)
	l1, err := rd.ReadString('\n')
	require.NoError(t, err)
	l2, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "tron.me 7 w text='I am an empty and fake actor'\n", l1)
	require.Equal(t, "tron.me 7 : text='Present and (probably) well'\n", l2)

	_, err = conn.Write([]byte("tron.me 8 frobnicate\n"))
	require.NoError(t, err)
	l3, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(l3, "tron.me 8 f text="), l3)

	_, err = conn.Write([]byte("garbage\n"))
	require.NoError(t, err)
	l4, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(l4, ". 0 f text="), l4)
}

func TestHTTPCommandAndLock(t *testing.T) {
	a, h := newActor(t, config.Default())
	h.Publish("xcu_b1", "pressure=1.5e-7")
	lock := locker.New()
	srv := httptest.NewServer(a.Router(lock))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(`{"cmd": "ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := actor.CommandResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Finished)
	require.Len(t, out.Replies, 2)
	require.Equal(t, ":", out.Replies[1].Flag)

	resp2, err := http.Get(srv.URL + "/models/xcu_b1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	snap := map[string][]string{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snap))
	require.Equal(t, []string{"1.5e-7"}, snap["pressure"])

	lock.Lock()
	resp3, err := http.Post(srv.URL+"/command", "application/json", strings.NewReader(`{"cmd": "ping"}`))
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusLocked, resp3.StatusCode)

	resp4, err := http.Get(srv.URL + "/models/enu_sm7")
	require.NoError(t, err)
	resp4.Body.Close()
	require.Equal(t, http.StatusNotFound, resp4.StatusCode)
}
