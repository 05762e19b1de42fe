package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/require"

	"recalc/address"
)

func TestPublisherDeliversEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := NewPublisher(ctx, "tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	require.NoError(t, sub.SetOption(zmq4.OptionSubscribe, Topic))
	require.NoError(t, sub.Dial(fmt.Sprintf("tcp://%s", pub.sock.Addr())))

	// PUB drops messages published before the subscription settles, so
	// keep publishing until one arrives
	handler := pub.HandlerFactory()()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			handler.BeginCellInterpret(address.New(0, 1, 2))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	msg, err := sub.Recv()
	cancel()
	<-done
	require.NoError(t, err)
	require.Len(t, msg.Frames, 2)
	require.Equal(t, Topic, string(msg.Frames[0]))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Frames[1], &ev))
	require.Equal(t, "begin_cell_interpret", ev.Type)
	require.Equal(t, int32(1), ev.Row)
	require.Equal(t, int32(2), ev.Column)
}

func TestEventShapes(t *testing.T) {
	ev := Event{Type: "push_value", Value: 1.5}
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"push_value","value":1.5}`, string(body))
}
