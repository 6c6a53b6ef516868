// Package plugflow is a plugin-based dataflow pipeline engine. Elements
// exchange reference-counted binary messages over bounded, numbered port
// channels; a Runner wires elements together from a YAML pipeline
// configuration and drives each element instance on its own goroutine.
//
// Element implementations live in the elements subpackages and register
// themselves into elements.DefaultBank on import:
//
//	import (
//		_ "github.com/plugflow/plugflow/elements/stdio"
//		_ "github.com/plugflow/plugflow/elements/text"
//	)
//
//	conf, err := plugflow.LoadConfig("pipeline.yaml")
//	...
//	runner, err := plugflow.NewRunner(conf, logger, plugflow.Options{Bank: elements.DefaultBank})
//	...
//	err = runner.Run(ctx)
//
// Custom elements implement the Element interface and are registered with a
// Spec describing their ports, message types, and constructor.
package plugflow
