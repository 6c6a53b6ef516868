// Package file provides file reading and writing elements.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// SrcName registers the file reading element.
	SrcName = "file-src"
	// SinkName registers the file writing element.
	SinkName = "file-sink"
)

const readChunkSize = 4096

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
	// Path of the file to read.
	Path string `json:"path"`
	// WriteFlag opens the file read-write, for device files that demand it.
	WriteFlag bool `json:"write_flag"`
}

type src struct {
	file *os.File
	buf  []byte
}

func newSrc(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[srcConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, errors.New("file-src: path is required")
	}

	flag := os.O_RDONLY
	if c.WriteFlag {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(c.Path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("file-src: opening %s: %w", c.Path, err)
	}
	return &src{file: f, buf: make([]byte, readChunkSize)}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	if ctx.Closing() {
		return plugflow.ResultClose, nil
	}

	n, err := s.file.Read(s.buf)
	if n > 0 {
		buf, berr := ctx.MsgBuf(0)
		if berr != nil {
			return 0, berr
		}
		buf.Write(s.buf[:n])
		return plugflow.ResultMsgBuf, nil
	}
	if errors.Is(err, io.EOF) {
		return plugflow.ResultClose, nil
	}
	if err != nil {
		return 0, fmt.Errorf("file-src: %w", err)
	}
	return plugflow.ResultMsg, nil
}

func (s *src) Close() error {
	return s.file.Close()
}

type sinkConf struct {
	// Path of the file to write.
	Path string `json:"path"`
	// Create the file when it does not exist.
	Create bool `json:"create"`
	// FlushSize delays flushing until this many bytes are buffered. Zero
	// flushes after every message.
	FlushSize int `json:"flush_size"`
	// Separator is written after every message.
	Separator string `json:"separator"`
}

type sink struct {
	conf sinkConf
	file *os.File
	out  *bufio.Writer
}

func newSink(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[sinkConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, errors.New("file-sink: path is required")
	}

	flag := os.O_WRONLY
	if c.Create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(c.Path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file-sink: opening %s: %w", c.Path, err)
	}
	return &sink{conf: c, file: f, out: bufio.NewWriter(f)}, nil
}

func (s *sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
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
	if s.conf.Separator != "" {
		if _, err := s.out.WriteString(s.conf.Separator); err != nil {
			return 0, err
		}
	}

	if s.conf.FlushSize == 0 || s.out.Buffered() > s.conf.FlushSize {
		if err := s.out.Flush(); err != nil {
			return 0, err
		}
	}
	return plugflow.ResultMsg, nil
}

func (s *sink) Close() error {
	return errors.Join(s.out.Flush(), s.file.Close())
}
