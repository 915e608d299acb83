package actor

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/Subaru-PFS/ics-testsActor/server"
	"github.com/Subaru-PFS/ics-testsActor/server/middleware/locker"
)

// CommandRequest is the body of POST /command
type CommandRequest struct {
	Cmd string `json:"cmd"`
}

// HTTPReply is one reply in a CommandResponse
type HTTPReply struct {
	Flag     string `json:"flag"`
	Keywords string `json:"keywords"`
}

// CommandResponse is the answer to POST /command
type CommandResponse struct {
	Finished bool        `json:"finished"`
	Replies  []HTTPReply `json:"replies"`
}

var httpMID int64

// RouteTable returns the diagnostic HTTP routes of the actor
func (a *Actor) RouteTable() server.RouteTable {
	return server.RouteTable{
		{Method: http.MethodGet, Path: "/controllers"}:    a.httpControllers,
		{Method: http.MethodGet, Path: "/models"}:         a.httpModels,
		{Method: http.MethodGet, Path: "/models/{actor}"}: a.httpModel,
		{Method: http.MethodPost, Path: "/command"}:       a.httpCommand,
	}
}

// Router builds the diagnostic HTTP surface; POST /command is refused with
// 423 while lock is locked
func (a *Actor) Router(lock *locker.Locker) chi.Router {
	rt := a.RouteTable()
	locker.Inject(rt, lock)
	endpoints := append(rt.Endpoints(), "GET /endpoints")

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(lock.Check)
	rt.Bind(root)
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		server.ReplyJSON(w, endpoints)
	})
	return root
}

func (a *Actor) httpControllers(w http.ResponseWriter, r *http.Request) {
	server.ReplyJSON(w, a.Controllers())
}

func (a *Actor) httpModels(w http.ResponseWriter, r *http.Request) {
	server.ReplyJSON(w, a.models.Names())
}

func (a *Actor) httpModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "actor")
	snap, ok := a.ModelSnapshot(name)
	if !ok {
		http.Error(w, "no model for actor "+name, http.StatusNotFound)
		return
	}
	server.ReplyJSON(w, snap)
}

// httpCommand runs a command and answers with its replies once it is
// finished, or with what was received so far if the client goes away
func (a *Actor) httpCommand(w http.ResponseWriter, r *http.Request) {
	req := CommandRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := &Recorder{}
	mid := int(atomic.AddInt64(&httpMID, 1))
	cmd := a.Execute("http", mid, req.Cmd, rec)
	finished := true
	if cmd != nil {
		select {
		case <-cmd.Done():
		case <-r.Context().Done():
			finished = false
		}
	}
	resp := CommandResponse{Finished: finished, Replies: []HTTPReply{}}
	for _, rep := range rec.Replies() {
		resp.Replies = append(resp.Replies, HTTPReply{Flag: rep.Flag.String(), Keywords: rep.Raw})
	}
	server.ReplyJSON(w, resp)
}
