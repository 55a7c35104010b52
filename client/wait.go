package client

import (
	"errors"

	"github.com/opd-ai/polysig-go/bridge"
	"github.com/opd-ai/polysig-go/wire"
)

// ErrEventStreamClosed is returned when the event channel closes before a
// driver produced its final output.
var ErrEventStreamClosed = errors.New("client: event stream closed before driver finished")

var _ bridge.Sender = (*Transport)(nil)

// WaitForDriver executes b's initial round and pumps JSON events from the
// channel until the bridge finalizes an output.
func WaitForDriver[M any, O any](events <-chan Event, b *bridge.Bridge[M, O]) (O, error) {
	var zero O
	if err := b.Execute(); err != nil {
		return zero, err
	}
	for ev := range events {
		if ev.Kind != EventJSONMessage {
			continue
		}
		sessionID := ev.SessionID
		output, err := b.HandleEvent(&sessionID, ev.JSON)
		if err != nil {
			return zero, err
		}
		if output != nil {
			return *output, nil
		}
	}
	return zero, ErrEventStreamClosed
}

// WaitForClose drains events until EventClose, discarding everything else.
func WaitForClose(events <-chan Event) {
	for ev := range events {
		if ev.Kind == EventClose {
			return
		}
	}
}

// WaitForSessionFinish drains events until EventSessionFinished for
// sessionID.
func WaitForSessionFinish(events <-chan Event, sessionID wire.SessionID) {
	for ev := range events {
		if ev.Kind == EventSessionFinished && ev.SessionID == sessionID {
			return
		}
	}
}
