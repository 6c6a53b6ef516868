// Package udp provides elements bridging payload bytes over UDP datagrams:
// udp-src binds a socket and emits one message per received datagram,
// udp-sink sends each received message as one datagram to a remote address.
package udp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// SrcName registers the receiving source element.
	SrcName = "udp-src"
	// SinkName registers the sending sink element.
	SinkName = "udp-sink"
)

// Large enough for any single datagram.
const defaultBufSize = 0xFFFF

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
	// BindAddr to receive on, host:port.
	BindAddr string `json:"bind_addr"`
	// BufSize caps the datagram size. Zero means 65535.
	BufSize int `json:"buf_size"`
	// Retry rebinds the socket after a read error instead of failing the
	// pipeline.
	Retry bool `json:"retry"`
	// RetryIntervalMs is the pause before rebinding, in milliseconds.
	RetryIntervalMs float64 `json:"retry_interval_ms"`
}

type src struct {
	conf srcConf
	sock net.PacketConn
	buf  []byte
}

func newSrc(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[srcConf](conf)
	if err != nil {
		return nil, err
	}
	if c.BindAddr == "" {
		return nil, errors.New("udp-src: bind_addr is required")
	}
	if c.BufSize <= 0 {
		c.BufSize = defaultBufSize
	}

	sock, err := net.ListenPacket("udp", c.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("udp-src: binding %s: %w", c.BindAddr, err)
	}
	return &src{conf: c, sock: sock, buf: make([]byte, c.BufSize)}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	for {
		if ctx.Closing() {
			return plugflow.ResultClose, nil
		}

		n, _, err := s.sock.ReadFrom(s.buf)
		if err != nil {
			if !s.conf.Retry {
				return 0, fmt.Errorf("udp-src: %w", err)
			}
			if s.conf.RetryIntervalMs > 0 {
				time.Sleep(time.Duration(s.conf.RetryIntervalMs * float64(time.Millisecond)))
			}
			s.sock.Close()
			sock, berr := net.ListenPacket("udp", s.conf.BindAddr)
			if berr != nil {
				continue
			}
			s.sock = sock
			continue
		}
		if n == 0 {
			// Zero-length datagrams carry nothing downstream.
			continue
		}

		buf, err := ctx.MsgBuf(0)
		if err != nil {
			return 0, err
		}
		buf.Write(s.buf[:n])
		return plugflow.ResultMsgBuf, nil
	}
}

func (s *src) Close() error {
	return s.sock.Close()
}

type sinkConf struct {
	// BindAddr is the local address to send from. Empty picks any port.
	BindAddr string `json:"bind_addr"`
	// RemoteAddr to send datagrams to, host:port.
	RemoteAddr string `json:"remote_addr"`
	// WriteTimeoutMs bounds each send, in milliseconds. Zero means no limit.
	WriteTimeoutMs float64 `json:"write_timeout_ms"`
}

type sink struct {
	conf sinkConf
	sock *net.UDPConn
}

func newSink(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[sinkConf](conf)
	if err != nil {
		return nil, err
	}
	if c.RemoteAddr == "" {
		return nil, errors.New("udp-sink: remote_addr is required")
	}

	var laddr *net.UDPAddr
	if c.BindAddr != "" {
		laddr, err = net.ResolveUDPAddr("udp", c.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("udp-sink: resolving %s: %w", c.BindAddr, err)
		}
	}
	raddr, err := net.ResolveUDPAddr("udp", c.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("udp-sink: resolving %s: %w", c.RemoteAddr, err)
	}

	sock, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("udp-sink: connecting to %s: %w", c.RemoteAddr, err)
	}
	return &sink{conf: c, sock: sock}, nil
}

func (s *sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}

	if s.conf.WriteTimeoutMs > 0 {
		deadline := time.Now().Add(time.Duration(s.conf.WriteTimeoutMs * float64(time.Millisecond)))
		if err := s.sock.SetWriteDeadline(deadline); err != nil {
			msg.Free()
			return 0, err
		}
	}
	_, err := s.sock.Write(msg.Bytes())
	msg.Free()
	if err != nil {
		return 0, fmt.Errorf("udp-sink: %w", err)
	}
	return plugflow.ResultMsg, nil
}

func (s *sink) Close() error {
	return s.sock.Close()
}
