package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/epokhe/segidx/overseer"
)

type fakeCluster struct {
	leader string
	err    error
}

func (f fakeCluster) ShardLeader(shard string) (string, error) { return f.leader, f.err }

type fakeRPC struct {
	payload map[string]string
	err     error
}

func (f fakeRPC) SyncShard(ctx context.Context, leader, shard string) (map[string]string, error) {
	return f.payload, f.err
}

func TestHandleCreateRoundTripsThroughTheQueue(t *testing.T) {
	q := overseer.NewQueue(1)
	d := NewDispatcher(Config{ZKTimeout: time.Second}, q, nil, nil)

	go func() {
		_, respond, err := q.Next(context.Background())
		if err != nil {
			return
		}
		respond(overseer.Response{Payload: map[string]string{"created": "true"}})
	}()

	resp, err := d.Handle(context.Background(), Request{Action: ActionCreate})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp["created"] != "true" {
		t.Fatalf("resp = %v, want created=true", resp)
	}
}

func TestHandleTimesOutWithoutACoordinator(t *testing.T) {
	q := overseer.NewQueue(1)
	d := NewDispatcher(Config{ZKTimeout: 20 * time.Millisecond}, q, nil, nil)

	_, err := d.Handle(context.Background(), Request{Action: ActionDelete})
	if !errors.Is(err, ErrServerTimeout) {
		t.Fatalf("err = %v, want %v", err, ErrServerTimeout)
	}
}

func TestHandleSyncShardBypassesTheQueue(t *testing.T) {
	d := NewDispatcher(Config{}, overseer.NewQueue(1),
		fakeCluster{leader: "node-2"},
		fakeRPC{payload: map[string]string{"synced": "true"}})

	resp, err := d.Handle(context.Background(), Request{Action: ActionSyncShard, Shard: "shard-0"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp["synced"] != "true" {
		t.Fatalf("resp = %v, want synced=true", resp)
	}
}

func TestHandleRejectsUnknownAction(t *testing.T) {
	d := NewDispatcher(Config{}, overseer.NewQueue(1), nil, nil)
	if _, err := d.Handle(context.Background(), Request{Action: "BOGUS"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want %v", err, ErrBadRequest)
	}
}

func TestSupportedActionsListsHandleMethod(t *testing.T) {
	d := NewDispatcher(Config{}, overseer.NewQueue(1), nil, nil)
	names := SupportedActions(d)

	found := false
	for _, n := range names {
		if n == "Handle" {
			found = true
		}
	}
	if !found {
		t.Fatalf("SupportedActions() = %v, want it to include Handle", names)
	}
}
