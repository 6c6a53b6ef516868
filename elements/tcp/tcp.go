// Package tcp provides elements bridging payload bytes over a TCP
// connection: tcp-src listens and emits what a client sends, tcp-sink
// connects and writes what it receives.
package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// SrcName registers the listening source element.
	SrcName = "tcp-src"
	// SinkName registers the connecting sink element.
	SinkName = "tcp-sink"
)

const defaultBufSize = 4096

func init() {
	elements.Register(plugflow.Spec{
		Name:      SrcName,
		SendPorts: 1,
		EmitTypes: [][]plugflow.MsgType{{plugflow.MsgTypeBinary()}},
		New:       newSrc,
	})
	elements.Register(plugflow.Spec{
		Name:      SinkName,
		RecvPorts: 1,
		New:       newSink,
	})
}

type srcConf struct {
	// Addr to listen on, host:port.
	Addr string `json:"addr"`
	// BufSize is the read chunk size. Zero means 4096.
	BufSize int `json:"buf_size"`
	// Retry accepts a new connection after a read error instead of failing
	// the pipeline.
	Retry bool `json:"retry"`
	// RetryIntervalMs is the pause before re-accepting, in milliseconds.
	RetryIntervalMs float64 `json:"retry_interval_ms"`
}

type src struct {
	conf     srcConf
	listener net.Listener
	stream   net.Conn
	buf      []byte
}

func newSrc(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[srcConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Addr == "" {
		return nil, errors.New("tcp-src: addr is required")
	}
	if c.BufSize <= 0 {
		c.BufSize = defaultBufSize
	}

	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp-src: listening on %s: %w", c.Addr, err)
	}
	return &src{conf: c, listener: l, buf: make([]byte, c.BufSize)}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	for {
		if ctx.Closing() {
			return plugflow.ResultClose, nil
		}

		if s.stream == nil {
			conn, err := s.listener.Accept()
			if err != nil {
				return 0, fmt.Errorf("tcp-src: %w", err)
			}
			s.stream = conn
		}

		n, err := s.stream.Read(s.buf)
		if n > 0 {
			buf, berr := ctx.MsgBuf(0)
			if berr != nil {
				return 0, berr
			}
			buf.Write(s.buf[:n])
			return plugflow.ResultMsgBuf, nil
		}

		// Connection drained or broken: wait for the next client.
		s.stream.Close()
		s.stream = nil
		if err != nil && !errors.Is(err, io.EOF) {
			if !s.conf.Retry {
				return 0, fmt.Errorf("tcp-src: %w", err)
			}
			if s.conf.RetryIntervalMs > 0 {
				time.Sleep(time.Duration(s.conf.RetryIntervalMs * float64(time.Millisecond)))
			}
		}
	}
}

func (s *src) Close() error {
	var errs []error
	if s.stream != nil {
		errs = append(errs, s.stream.Close())
	}
	errs = append(errs, s.listener.Close())
	return errors.Join(errs...)
}

type sinkConf struct {
	// Addr to connect to, host:port.
	Addr string `json:"addr"`
	// FlushSize delays flushing until this many bytes are buffered. Zero
	// flushes after every message.
	FlushSize int `json:"flush_size"`
}

type sink struct {
	conf   sinkConf
	stream net.Conn
	out    *bufio.Writer
}

func newSink(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[sinkConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Addr == "" {
		return nil, errors.New("tcp-sink: addr is required")
	}
	return &sink{conf: c}, nil
}

func (s *sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	if s.stream == nil {
		// Connected on first use so the remote end may come up after the
		// pipeline starts.
		conn, err := net.Dial("tcp", s.conf.Addr)
		if err != nil {
			return 0, fmt.Errorf("tcp-sink: connecting to %s: %w", s.conf.Addr, err)
		}
		s.stream = conn
		s.out = bufio.NewWriter(conn)
	}

	msg, ok := recv.Recv(0)
	if !ok {
		if err := s.out.Flush(); err != nil {
			return 0, err
		}
		return plugflow.ResultClose, nil
	}

	_, err := s.out.Write(msg.Bytes())
	msg.Free()
	if err != nil {
		return 0, err
	}
	if s.conf.FlushSize == 0 || s.out.Buffered() > s.conf.FlushSize {
		if err := s.out.Flush(); err != nil {
			return 0, err
		}
	}
	return plugflow.ResultMsg, nil
}

func (s *sink) Close() error {
	if s.stream == nil {
		return nil
	}
	return errors.Join(s.out.Flush(), s.stream.Close())
}
