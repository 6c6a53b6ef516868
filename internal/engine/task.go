package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/plugflow/plugflow/internal/engine/logging"
	"github.com/plugflow/plugflow/internal/engine/metrics"
)

const tracerName = "plugflow"

// task drives one element instance: it repeatedly invokes Step, routes the
// step's outputs onto the bound channels, and closes its outputs when the
// element terminates.
type task struct {
	id      TaskID
	element string

	elem     Element
	sender   *Sender
	receiver *Receiver
	pctx     *Context

	log     logging.Logger
	metrics *metrics.Engine
}

// run executes the element until it closes, errs, or observes the
// cooperative closing flag. The sender is always closed on exit so
// downstream tasks drain and terminate.
func (t *task) run(ctx context.Context, requestClose func()) (err error) {
	tracer := otel.Tracer(tracerName)
	_, span := tracer.Start(ctx, "RunElement")
	span.SetAttributes(
		attribute.String("element.name", t.element),
		attribute.Int64("task.id", int64(t.id)),
	)
	defer span.End()

	t.metrics.TaskStarted()
	defer t.metrics.TaskStopped()
	// Drain runs after the sender has released its destinations, so a
	// terminated element never leaves an upstream sender blocked on a full
	// channel, and every buffered message is released.
	defer t.drainInputs()
	defer t.sender.Close()
	defer t.destroy()

	for {
		start := time.Now()
		res, stepErr := t.elem.Step(t.pctx, t.receiver)
		t.metrics.ObserveStep(t.element, time.Since(start).Seconds())

		if stepErr != nil {
			t.pctx.discardOutgoing()
			t.metrics.RecordError(t.element)
			err = fmt.Errorf("plugflow: element %q (task %d): %w", t.element, t.id, stepErr)
			span.RecordError(err)
			t.log.Error("task closed with error", err, logging.LogFields{"task_id": t.id})
			requestClose()
			return err
		}

		switch res {
		case ResultClose:
			t.pctx.discardOutgoing()
			t.log.Info("task closed normally", logging.LogFields{"task_id": t.id})
			requestClose()
			return nil
		case ResultMsg, ResultMsgBuf:
			for _, out := range t.pctx.takeOutgoing(res) {
				t.sender.Send(out.port, out.msg)
				t.metrics.RecordEmitted(t.element, strconv.Itoa(int(out.port)))
			}
		default:
			t.pctx.discardOutgoing()
			err = fmt.Errorf("plugflow: element %q (task %d) returned invalid result %d", t.element, t.id, res)
			span.RecordError(err)
			requestClose()
			return err
		}
	}
}

// drainInputs consumes and frees everything still buffered on the task's
// receive ports. It returns once every input channel has closed, which the
// closing flag guarantees for acyclic graphs of cooperating elements.
func (t *task) drainInputs() {
	for {
		_, msg, ok := t.receiver.RecvAny()
		if !ok {
			return
		}
		msg.Free()
	}
}

// destroy releases the element instance if it owns external resources.
func (t *task) destroy() {
	closer, ok := t.elem.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		t.log.Error("destroying element", err, logging.LogFields{"task_id": t.id})
	}
}
