package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one accepted client stream. ReadLine and WriteFrame may be
// called concurrently, each from a single goroutine.
type Transport interface {
	// ReadLine blocks until a full line is available and returns it without
	// the terminator. It returns io.EOF once the peer has closed the stream.
	ReadLine() (string, error)

	// WriteFrame writes one outbound frame followed by a line terminator.
	WriteFrame(frame []byte) error

	// SetReadDeadline bounds the next ReadLine. A zero value clears it.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds the next WriteFrame. A zero value clears it.
	SetWriteDeadline(t time.Time) error

	Close() error

	// RemoteAddr returns the peer endpoint as host:port.
	RemoteAddr() string

	// Kind names the transport for logs and metrics.
	Kind() string
}

type tcpTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxLine int
}

// NewTCPTransport wraps an accepted stream connection. TCP connections get
// Nagle's algorithm disabled. maxLine of zero means lines are unbounded.
func NewTCPTransport(conn net.Conn, maxLine int) (Transport, error) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			return nil, fmt.Errorf("set nodelay: %w", err)
		}
	}
	return &tcpTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxLine: maxLine,
	}, nil
}

func (t *tcpTransport) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if t.maxLine > 0 && len(trimLineEnding(string(line))) > t.maxLine {
			return "", ErrLineTooLong
		}
		switch {
		case err == nil:
			return trimLineEnding(string(line)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			// Unterminated final line; the next call reports EOF.
			return trimLineEnding(string(line)), nil
		default:
			return "", err
		}
	}
}

func (t *tcpTransport) WriteFrame(frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *tcpTransport) SetReadDeadline(d time.Time) error { return t.conn.SetReadDeadline(d) }
func (t *tcpTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *tcpTransport) Close() error { return t.conn.Close() }
func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *tcpTransport) Kind() string { return "tcp" }

// wsTransport carries one line per WebSocket text message.
type wsTransport struct {
	conn *websocket.Conn
	addr string
}

// NewWebSocketTransport wraps an upgraded WebSocket connection. addr is the
// peer endpoint reported by the HTTP request.
func NewWebSocketTransport(conn *websocket.Conn, addr string, maxLine int) Transport {
	if maxLine > 0 {
		conn.SetReadLimit(int64(maxLine))
	}
	return &wsTransport{conn: conn, addr: addr}
}

func (t *wsTransport) ReadLine() (string, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return trimLineEnding(string(data)), nil
	}
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) SetReadDeadline(d time.Time) error { return t.conn.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *wsTransport) Close() error { return t.conn.Close() }
func (t *wsTransport) RemoteAddr() string { return t.addr }
func (t *wsTransport) Kind() string { return "websocket" }
