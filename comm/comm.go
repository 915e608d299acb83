/*Package comm provides the line-oriented TCP transport used to talk to the hub,
and helpers to check that device TCP servers are reachable.

Most usages of this package will boil down to:
	1.  create a RemoteDevice with NewRemoteDevice
	2.  Open it; dialing is retried with an exponential backoff while the
		remote refuses connections
	3.  Send lines and Recv lines; the terminator is handled for you

A minimal example:

	rd := comm.NewRemoteDevice("tron:6093")
	if err := rd.Open(); err != nil {
		return err
	}
	defer rd.Close()
	err := rd.Send([]byte("1 hub version"))
	if err != nil {
		return err
	}
	line, err := rd.Recv()
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

var (
	terminator = byte('\n')

	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// Sender has a Send method that passes along a byte slice as well as a
// TxTerminator returning the transmission termination byte
type Sender interface {
	Send([]byte) error
	TxTerminator() byte
}

// Recver has a Recv method that gets a byte slice as well as an
// RxTerminator returning the receipt termination byte
type Recver interface {
	Recv() ([]byte, error)
	RxTerminator() byte
}

// Opener can open ("establish a connection" but in io language)
type Opener interface {
	Open() error
}

// A Communicator can Open, Send, Recv and Close
type Communicator interface {
	io.Closer
	Opener
	Sender
	Recver
}

/*RemoteDevice has an address and implements Communicator

Send and Close are safe for concurrent use; Recv is meant to be called from
a single reader goroutine, which keeps one buffered reader for the life of
the connection so that no bytes are lost between lines.
*/
type RemoteDevice struct {
	Addr string
	Conn io.ReadWriteCloser

	// DialTimeout bounds each connection attempt
	DialTimeout time.Duration

	// MaxElapsed bounds the total time Open keeps retrying
	MaxElapsed time.Duration

	rd *bufio.Reader
	mu sync.Mutex
}

// NewRemoteDevice creates a new RemoteDevice instance
func NewRemoteDevice(addr string) *RemoteDevice {
	return &RemoteDevice{
		Addr:        addr,
		DialTimeout: 3 * time.Second,
		MaxElapsed:  30 * time.Second}
}

// Open the connection, setting the Conn variable
func (rd *RemoteDevice) Open() error {
	// the hub may be restarting; back off while the connection is refused,
	// but do not sit on unrelated errors (bad address, no route)
	var lastErr error
	op := func() error {
		err := rd.open()
		if err == nil {
			return nil
		}
		lastErr = err
		if strings.Contains(strings.ToLower(err.Error()), "refused") {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      rd.MaxElapsed,
		Clock:               backoff.SystemClock})
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("unable to connect to %s: %w", rd.Addr, lastErr)
	}
	return err
}

func (rd *RemoteDevice) open() error {
	conn, err := net.DialTimeout("tcp", rd.Addr, rd.DialTimeout)
	if err != nil {
		return err
	}
	rd.Attach(conn)
	return nil
}

// Attach uses an already established connection, e.g. one accepted by a listener
func (rd *RemoteDevice) Attach(conn io.ReadWriteCloser) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.Conn = conn
	rd.rd = bufio.NewReader(conn)
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.Conn == nil {
		return ErrNotConnected
	}
	err := rd.Conn.Close()
	if err == nil {
		rd.Conn = nil
	}
	return err
}

// TxTerminator returns the transmission termination byte
func (rd *RemoteDevice) TxTerminator() byte {
	return terminator
}

// Send writes data to the remote, appending the Tx terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.Conn == nil {
		return ErrNotConnected
	}
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, rd.TxTerminator())
	_, err := rd.Conn.Write(buf)
	return err
}

// RxTerminator returns the receipt termination byte
func (rd *RemoteDevice) RxTerminator() byte {
	return terminator
}

// Recv recieves one line from the remote and strips the Rx terminator
// and any trailing carriage return
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.mu.Lock()
	r := rd.rd
	if rd.Conn == nil {
		r = nil
	}
	rd.mu.Unlock()
	if r == nil {
		return nil, ErrNotConnected
	}
	term := rd.RxTerminator()
	buf, err := r.ReadBytes(term)
	if err != nil {
		if len(buf) > 0 && err == io.EOF {
			return buf, ErrTerminatorNotFound
		}
		return nil, err
	}
	buf = bytes.TrimSuffix(buf, []byte{term})
	return bytes.TrimSuffix(buf, []byte{'\r'}), nil
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
