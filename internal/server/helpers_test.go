package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const readTimeout = 2 * time.Second

// fakeTransport is an in-memory Transport. Lines pushed with feed are
// returned by ReadLine; frames written by the outbound actor arrive on frames.
type fakeTransport struct {
	addr       string
	lines      chan string
	frames     chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	failWrites atomic.Bool
}

func newFakeTransport(addr string, frameBuffer int) *fakeTransport {
	return &fakeTransport{
		addr:   addr,
		lines:  make(chan string, 16),
		frames: make(chan []byte, frameBuffer),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) feed(line string) { f.lines <- line }
func (f *fakeTransport) hangUp() { close(f.lines) }

func (f *fakeTransport) ReadLine() (string, error) {
	select {
	case line, ok := <-f.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-f.closed:
		return "", net.ErrClosed
	}
}

func (f *fakeTransport) WriteFrame(frame []byte) error {
	if f.failWrites.Load() {
		return errors.New("connection reset by peer")
	}
	data := append([]byte(nil), frame...)
	select {
	case f.frames <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeTransport) SetReadDeadline(time.Time) error { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) RemoteAddr() string { return f.addr }
func (f *fakeTransport) Kind() string { return "fake" }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// decodedFrame mirrors the JSON rendering of a Message.
type decodedFrame struct {
	Text   string    `json:"text"`
	Sender string    `json:"sender"`
	Scope  string    `json:"scope"`
	Except *[]string `json:"except"`
	Only   *[]string `json:"only"`
}

func decodeFrame(t *testing.T, data []byte) decodedFrame {
	t.Helper()
	var f decodedFrame
	require.NoError(t, json.Unmarshal(data, &f), "frame %q", data)
	return f
}

func (f *fakeTransport) nextFrame(t *testing.T) decodedFrame {
	t.Helper()
	select {
	case data := <-f.frames:
		return decodeFrame(t, data)
	case <-time.After(readTimeout):
		t.Fatalf("no frame written to %s", f.addr)
		return decodedFrame{}
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.WriteTimeout = time.Second
	return cfg
}

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	hub := NewHub(cfg, clockwork.NewRealClock())
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(5 * time.Second) })
	return hub
}

// attachFake registers a client backed by a fakeTransport and consumes its
// welcome frame.
func attachFake(t *testing.T, hub *Hub, cfg Config, addr string) (*Client, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport(addr, 64)
	client, err := Attach(hub, transport, cfg)
	require.NoError(t, err)
	welcome := transport.nextFrame(t)
	require.Equal(t, welcomeText, welcome.Text)
	return client, transport
}

// startTCP serves the line protocol on a loopback port.
func startTCP(t *testing.T, hub *Hub, cfg Config) string {
	t.Helper()
	listener, err := net.Listen("tcp", cfg.TCPAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewServer(cfg, hub).Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener.Addr().String()
}

// lineClient is a TCP peer speaking the line protocol.
type lineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	id     string
}

// dialLine connects to addr and waits for the welcome frame, which also
// guarantees the hub has registered the connection.
func dialLine(t *testing.T, addr string) *lineClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &lineClient{conn: conn, reader: bufio.NewReader(conn)}
	welcome := c.read(t)
	require.Equal(t, welcomeText, welcome.Text)
	require.Equal(t, string(ServerID), welcome.Sender)
	require.Equal(t, "ONLY", welcome.Scope)
	require.NotNil(t, welcome.Only)
	require.Len(t, *welcome.Only, 1)
	c.id = (*welcome.Only)[0]
	return c
}

func (c *lineClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *lineClient) read(t *testing.T) decodedFrame {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(t, err)
	return decodeFrame(t, line)
}

// readUntilEOF drains frames until the server closes the connection.
func (c *lineClient) readUntilEOF(t *testing.T) []decodedFrame {
	t.Helper()
	var frames []decodedFrame
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return frames
		}
		frames = append(frames, decodeFrame(t, line))
	}
}

func waitForClientCount(t *testing.T, hub *Hub, expected int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == expected
	}, readTimeout, 5*time.Millisecond, "expected %d clients", expected)
}
