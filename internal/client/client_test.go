package client

import (
	"testing"
	"time"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

func TestDispatchDuplicateAckDoesNotBlock(t *testing.T) {
	c := &Client{
		pending: make(map[string]chan protocol.AckMsg),
		done:    make(chan struct{}),
	}
	ch := make(chan protocol.AckMsg, 1)
	c.pending["r1"] = ch

	frame := []byte(`{"type":"ack","req_id":"r1","op":"send","ok":true}`)

	finished := make(chan struct{})
	go func() {
		c.dispatch(frame)
		c.dispatch(frame) // duplicate for the same req_id
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a duplicate ack")
	}

	ack := <-ch
	if !ack.OK || ack.ReqID != "r1" {
		t.Fatalf("waiter must receive the first ack, got %+v", ack)
	}
}

func TestDispatchAckWithoutWaiterIgnored(t *testing.T) {
	c := &Client{
		pending: make(map[string]chan protocol.AckMsg),
		done:    make(chan struct{}),
	}

	// An ack for an unknown (already abandoned) req_id must be a no-op.
	c.dispatch([]byte(`{"type":"ack","req_id":"gone","op":"join","ok":false}`))
}
