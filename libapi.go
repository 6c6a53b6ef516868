package plugflow

import (
	enginepkg "github.com/plugflow/plugflow/internal/engine"
	configpkg "github.com/plugflow/plugflow/internal/engine/config"
	errspkg "github.com/plugflow/plugflow/internal/engine/errors"
	loggingpkg "github.com/plugflow/plugflow/internal/engine/logging"
	messagepkg "github.com/plugflow/plugflow/internal/engine/message"
	msgtypepkg "github.com/plugflow/plugflow/internal/engine/msgtype"
)

type (
	// Pipeline building blocks.
	Element     = enginepkg.Element
	Finalizable = enginepkg.Finalizable
	Spec        = enginepkg.Spec
	Context     = enginepkg.Context
	Receiver    = enginepkg.Receiver
	Result      = enginepkg.Result
	Port        = enginepkg.Port
	TaskID      = enginepkg.TaskID
	Bank        = enginepkg.Bank
	Plugin      = enginepkg.Plugin
	PluginEntry = enginepkg.PluginEntry
	Runner      = enginepkg.Runner
	Options     = enginepkg.Options

	// Pipeline configuration.
	Config   = configpkg.Config
	TaskConf = configpkg.TaskConf
	TaskPort = configpkg.TaskPort

	// Messages and metadata.
	Message       = messagepkg.Message
	MsgBuf        = messagepkg.Buffer
	Metadata      = messagepkg.Metadata
	MetadataID    = messagepkg.MetadataID
	MetadataValue = messagepkg.MetadataValue
	MsgType       = msgtypepkg.MsgType

	// Logging.
	LogFields = loggingpkg.LogFields
	Logger    = loggingpkg.Logger
	LogLevel  = loggingpkg.Level
)

const (
	ResultClose  = enginepkg.ResultClose
	ResultMsg    = enginepkg.ResultMsg
	ResultMsgBuf = enginepkg.ResultMsgBuf
)

var (
	NewRunner = enginepkg.NewRunner
	NewBank   = enginepkg.NewBank

	LoadConfig  = configpkg.Load
	ParseConfig = configpkg.Parse

	NewMessage = messagepkg.New
	NewMsgBuf  = messagepkg.NewBuffer

	Int64Value    = messagepkg.Int64Value
	Float64Value  = messagepkg.Float64Value
	DurationValue = messagepkg.DurationValue

	MsgTypeAny    = msgtypepkg.Any
	MsgTypeText   = msgtypepkg.Text
	MsgTypeBinary = msgtypepkg.Binary
	MsgTypeCustom = msgtypepkg.Custom
	MsgTypeMime   = msgtypepkg.Mime
	ParseMsgType  = msgtypepkg.Parse

	NewLogger           = loggingpkg.New
	NopLogger           = loggingpkg.Nop
	SetLogLevel         = loggingpkg.SetLevel
	ParseLogLevel       = loggingpkg.ParseLevel
	NewWatermillAdapter = loggingpkg.NewWatermillAdapter
	LoggerForModule     = loggingpkg.ForModule

	ErrPortOutOfRange    = errspkg.ErrPortOutOfRange
	ErrBufferOutstanding = errspkg.ErrBufferOutstanding
	ErrRunnerClosed      = errspkg.ErrRunnerClosed
)

// DecodeConf unmarshals an element's JSON configuration block into T.
func DecodeConf[T any](conf []byte) (T, error) {
	return enginepkg.DecodeConf[T](conf)
}
