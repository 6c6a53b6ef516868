// Package elements maintains the process-wide bank of built-in pipeline
// elements. Each element package registers itself on import:
//
//	import _ "github.com/plugflow/plugflow/elements/stdio"
//
// so a binary only carries the elements it imports.
package elements

import (
	"fmt"

	"github.com/plugflow/plugflow"
)

// DefaultBank is the global element bank used by the plugflow CLI and by
// applications that import the element packages for their side effects.
var DefaultBank = plugflow.NewBank()

// Register adds a spec to the default bank. Element packages call it from
// init, so registration failures are programming errors and panic.
func Register(spec plugflow.Spec) {
	if err := DefaultBank.Register(spec); err != nil {
		panic(fmt.Sprintf("elements: %v", err))
	}
}
