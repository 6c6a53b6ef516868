package engine

import (
	"fmt"
	"sync"

	"github.com/plugflow/plugflow/internal/engine/config"
	"github.com/plugflow/plugflow/internal/engine/msgtype"
)

type taskPort struct {
	id   TaskID
	port Port
}

func (p taskPort) String() string {
	return fmt.Sprintf("%d:%d", p.id, p.port)
}

// typeChecker validates message-type compatibility across the element graph:
// statically against declared emit types while the graph is built, and again
// at runtime when an element announces its emitted type on first send.
type typeChecker struct {
	// dest maps one send port to every receive port it feeds.
	dest map[taskPort][]taskPort
	// accept holds the declared accepted types per task, per receive port.
	accept map[TaskID][]acceptedTypes

	mu      sync.Mutex
	checked map[taskPort]msgtype.MsgType
}

type acceptedTypes []msgtype.MsgType

// acceptable treats an empty declaration as accept-anything; only declared
// lists constrain the sender.
func (a acceptedTypes) acceptable(t msgtype.MsgType) bool {
	if len(a) == 0 {
		return true
	}
	for _, accept := range a {
		if accept.Acceptable(t) {
			return true
		}
	}
	return false
}

func newTypeChecker(bank *Bank, tasks []config.TaskConf) (*typeChecker, error) {
	tc := &typeChecker{
		dest:    make(map[taskPort][]taskPort),
		accept:  make(map[TaskID][]acceptedTypes),
		checked: make(map[taskPort]msgtype.MsgType),
	}

	for _, task := range tasks {
		spec, ok := bank.Lookup(task.Element)
		if !ok {
			return nil, fmt.Errorf("plugflow: unknown element %q (task %d)", task.Element, task.ID)
		}

		accepted := make([]acceptedTypes, int(spec.RecvPorts))
		for port := range accepted {
			accepted[port] = acceptedTypes(spec.acceptTypesFor(Port(port)))
		}
		tc.accept[TaskID(task.ID)] = accepted

		for port, origins := range task.From {
			for _, origin := range origins {
				from := taskPort{id: TaskID(origin.ID), port: origin.Port}
				tc.dest[from] = append(tc.dest[from], taskPort{id: TaskID(task.ID), port: Port(port)})
			}
		}
	}

	return tc, nil
}

// validateWiring rejects, before any task starts, every edge whose declared
// emit types are all unacceptable to the receiving port. Send ports with no
// declared emit types are only checked at runtime, on first send.
func (tc *typeChecker) validateWiring(bank *Bank, tasks []config.TaskConf) error {
	specs := make(map[TaskID]Spec, len(tasks))
	for _, task := range tasks {
		spec, ok := bank.Lookup(task.Element)
		if !ok {
			return fmt.Errorf("plugflow: unknown element %q (task %d)", task.Element, task.ID)
		}
		specs[TaskID(task.ID)] = spec
	}

	for _, task := range tasks {
		spec := specs[TaskID(task.ID)]
		if len(task.From) > int(spec.RecvPorts) {
			return fmt.Errorf("plugflow: task %d wires %d receive ports but element %q has %d",
				task.ID, len(task.From), task.Element, spec.RecvPorts)
		}

		for port, origins := range task.From {
			accepted := tc.accept[TaskID(task.ID)][port]
			for _, origin := range origins {
				sender, ok := specs[TaskID(origin.ID)]
				if !ok {
					return fmt.Errorf("plugflow: task %d not found that is referenced by task %d", origin.ID, task.ID)
				}
				if origin.Port >= sender.SendPorts {
					return fmt.Errorf("plugflow: task %d references send port %d but element %q has %d",
						task.ID, origin.Port, sender.Name, sender.SendPorts)
				}

				emits := sender.emitTypesFor(origin.Port)
				if len(emits) == 0 {
					continue
				}
				compatible := false
				for _, emit := range emits {
					if accepted.acceptable(emit) {
						compatible = true
						break
					}
				}
				if !compatible {
					return fmt.Errorf(
						"plugflow: element %q send port %d emits %v, not accepted by task %d receive port %d",
						sender.Name, origin.Port, emits, task.ID, port)
				}
			}
		}
	}
	return nil
}

// check validates the type an element emits on one send port against every
// connected downstream receive port. Called through the pipeline context on
// first send.
func (tc *typeChecker) check(from TaskID, port Port, t msgtype.MsgType) error {
	source := taskPort{id: from, port: port}

	for _, dest := range tc.dest[source] {
		accepted := tc.accept[dest.id]
		if int(dest.port) >= len(accepted) {
			return fmt.Errorf("plugflow: task %d has no receive port %d", dest.id, dest.port)
		}
		if !accepted[dest.port].acceptable(t) {
			return fmt.Errorf("plugflow: message type %s from %s is not acceptable at %s", t, source, dest)
		}
	}

	tc.mu.Lock()
	tc.checked[source] = t
	tc.mu.Unlock()
	return nil
}
