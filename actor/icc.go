package actor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/Subaru-PFS/ics-testsActor/keys"
	"go.uber.org/zap"
)

// ICC accepts command connections from the hub.  Each line received is
//
//	<cmdr> <mid> <command text>
//
// and each reply is written back as
//
//	<cmdr> <mid> <flag> <keywords>
//
// Every connection also receives the broadcast replies of the actor.
type ICC struct {
	a   *Actor
	ln  net.Listener
	log *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// ListenICC opens the command port
func (a *Actor) ListenICC(addr string) (*ICC, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ICC{a: a, ln: ln, log: a.log.Named("icc"), conns: map[net.Conn]struct{}{}}, nil
}

// Addr is the address the command port is bound to
func (i *ICC) Addr() net.Addr {
	return i.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called
func (i *ICC) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		i.ln.Close()
	}()
	for {
		conn, err := i.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		i.mu.Lock()
		i.conns[conn] = struct{}{}
		i.mu.Unlock()
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.handle(conn)
		}()
	}
}

// Close stops accepting and drops every connection
func (i *ICC) Close() error {
	err := i.ln.Close()
	i.mu.Lock()
	for c := range i.conns {
		c.Close()
	}
	i.mu.Unlock()
	i.wg.Wait()
	return err
}

type iccWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *iccWriter) WriteReply(cmdr string, mid int, flag keys.Flag, kws string) error {
	line := fmt.Sprintf("%s %d %s %s", cmdr, mid, flag, kws)
	line = strings.TrimRight(line, " ") + "\n"
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.Write([]byte(line))
	return err
}

func (i *ICC) handle(conn net.Conn) {
	defer func() {
		i.mu.Lock()
		delete(i.conns, conn)
		i.mu.Unlock()
		conn.Close()
	}()
	i.log.Info("new connection", zap.String("remote", conn.RemoteAddr().String()))
	i.a.ConnectionMade()

	w := &iccWriter{conn: conn}
	remove := i.a.AddSink(w)
	defer remove()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields, text := keys.CutFields(line, 2)
		if len(fields) < 2 {
			w.WriteReply(BcastCmdr, 0, keys.Failed, keys.Textf("could not parse command line %q", line))
			continue
		}
		mid, err := strconv.Atoi(fields[1])
		if err != nil {
			w.WriteReply(fields[0], 0, keys.Failed, keys.Textf("bad MID in command line %q", line))
			continue
		}
		i.a.Execute(fields[0], mid, text, w)
	}
	if err := sc.Err(); err != nil {
		i.log.Info("connection closed", zap.Error(err))
	}
}
