// Package jsoncodec is the engine's single JSON boundary. Element conf
// blocks arrive as YAML maps and reach typed element configs through it, and
// the CLI element listing is rendered with it. Everything goes through sonic
// in strict stdlib-compatible mode.
package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// MarshalConf encodes an element conf block. An absent or empty block
// encodes to nil so elements can tell "no conf" from "{}".
func MarshalConf(conf map[string]any) ([]byte, error) {
	if len(conf) == 0 {
		return nil, nil
	}
	return defaultConfig.Marshal(conf)
}
