package errors

import sterrors "errors"

var (
	ErrConfigRequired     = sterrors.New("plugflow: pipeline configuration is required")
	ErrLoggerRequired     = sterrors.New("plugflow: logger is required")
	ErrElementNameEmpty   = sterrors.New("plugflow: element name is required")
	ErrElementNewRequired = sterrors.New("plugflow: element constructor is required")
	ErrBufferOutstanding  = sterrors.New("plugflow: message buffer already outstanding for port")
	ErrPortOutOfRange     = sterrors.New("plugflow: port out of range")
	ErrResultOutstanding  = sterrors.New("plugflow: result message already set for port")
	ErrRunnerClosed       = sterrors.New("plugflow: runner already closed")
	ErrPluginNameEmpty    = sterrors.New("plugflow: plugin name is required")
)
