// Package admin implements the AdminDispatcher collaborator: a
// request/response front-end over the overseer queue for the
// CREATE/DELETE/RELOAD/SYNCSHARD actions spec.md documents as part of
// the broader repository, not the commit-manager's hard core.
package admin

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/epokhe/segidx/overseer"
)

// Action names the four operations AdminDispatcher accepts.
type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionDelete    Action = "DELETE"
	ActionReload    Action = "RELOAD"
	ActionSyncShard Action = "SYNCSHARD"
)

var (
	ErrBadRequest    = errors.New("admin: bad request")
	ErrServerTimeout = errors.New("admin: timed out waiting for a response")
	ErrServerWatch   = errors.New("admin: coordinator watch fired without a response")
)

// Config is explicit, passed-in configuration for a Dispatcher — no
// package-level singleton, per spec.md §9.
type Config struct {
	// ZKTimeout bounds how long an enqueued CREATE/DELETE/RELOAD waits
	// for a response. Zero means the 60s default.
	ZKTimeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.ZKTimeout > 0 {
		return c.ZKTimeout
	}
	return 60 * time.Second
}

// ClusterState resolves the current leader for a shard, consulted only
// by the SYNCSHARD action.
type ClusterState interface {
	ShardLeader(shard string) (string, error)
}

// ShardRPC issues the direct synchronous call SYNCSHARD needs, bypassing
// the overseer queue entirely.
type ShardRPC interface {
	SyncShard(ctx context.Context, leader, shard string) (map[string]string, error)
}

// Request is one admin action to dispatch.
type Request struct {
	Action Action
	Shard  string
	Args   map[string]string
}

// Dispatcher routes admin Requests either onto the overseer queue
// (CREATE/DELETE/RELOAD) or directly to a shard leader (SYNCSHARD).
type Dispatcher struct {
	cfg     Config
	queue   *overseer.Queue
	cluster ClusterState
	rpc     ShardRPC
}

// NewDispatcher returns a Dispatcher. cluster and rpc may be nil if the
// caller never issues SYNCSHARD requests.
func NewDispatcher(cfg Config, queue *overseer.Queue, cluster ClusterState, rpc ShardRPC) *Dispatcher {
	return &Dispatcher{cfg: cfg, queue: queue, cluster: cluster, rpc: rpc}
}

// Handle dispatches req to the queue or to the shard RPC path, per
// spec.md §4.7.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (map[string]string, error) {
	switch req.Action {
	case ActionCreate, ActionDelete, ActionReload:
		return d.enqueue(ctx, req)
	case ActionSyncShard:
		return d.syncShard(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unrecognized action %q", ErrBadRequest, req.Action)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, req Request) (map[string]string, error) {
	ctx, cancel := ensureTimeout(ctx, d.cfg.timeout())
	defer cancel()

	op := overseer.Op{Operation: string(req.Action), Args: req.Args}
	resp, err := d.queue.Enqueue(ctx, op)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: action %s", ErrServerTimeout, req.Action)
		}
		return nil, fmt.Errorf("%w: %v", ErrServerWatch, err)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Payload, nil
}

func (d *Dispatcher) syncShard(ctx context.Context, req Request) (map[string]string, error) {
	if d.cluster == nil || d.rpc == nil {
		return nil, fmt.Errorf("%w: SYNCSHARD requires a cluster state and an rpc client", ErrBadRequest)
	}
	leader, err := d.cluster.ShardLeader(req.Shard)
	if err != nil {
		return nil, fmt.Errorf("resolve shard leader for %q: %w", req.Shard, err)
	}
	return d.rpc.SyncShard(ctx, leader, req.Shard)
}

// ensureTimeout wraps ctx with a deadline of d if it doesn't already
// carry one, exactly mirroring metadata.go's ensureTimeout from the
// liftbridge reference.
func ensureTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// SupportedActions reflects over Dispatcher's own exported method set
// to list its handler names. This is the admin package's home for the
// reflection-based enumeration texture cmd/server/rpc_utils.go performs
// over net/rpc's service map — re-scoped to this package's own surface
// rather than reaching into another package's unexported internals.
func SupportedActions(d *Dispatcher) []string {
	t := reflect.TypeOf(d)
	names := make([]string, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, t.Method(i).Name)
	}
	return names
}
