// Package cluster is the optional per-log distributed lock, for running
// more than one ingestion process against the same offset store and
// sink. A single process needs no coordination; this is wired in only
// when CLUSTER_CONSUL_ADDR is set (§6).
package cluster

import (
	"context"
	"fmt"
	"log"

	consul "github.com/hashicorp/consul/api"
)

// Coordinator hands out one lock per log name so at most one process in
// the cluster runs that log's Worker at a time.
type Coordinator struct {
	client *consul.Client
	prefix string
}

// New returns a Coordinator talking to the Consul agent at addr, storing
// lock keys under prefix (e.g. "ctingest/locks").
func New(addr, prefix string) (*Coordinator, error) {
	cfg := consul.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Coordinator{client: client, prefix: prefix}, nil
}

// Lease is a held lock for one log. Release gives it up; LostCh fires if
// the session is lost out from under the caller (network partition,
// Consul restart) so the owner can stop the Worker rather than keep
// writing while another process believes it also owns the log.
type Lease struct {
	lock   *consul.Lock
	LostCh <-chan struct{}
}

// Release unlocks the underlying Consul lock.
func (l *Lease) Release() {
	if err := l.lock.Unlock(); err != nil {
		log.Printf("[cluster] error releasing lock: %v", err)
	}
}

// Acquire blocks until the lock for name is held or ctx is cancelled.
// Loss of the lock while held is reported asynchronously via the
// returned Lease's LostCh, mirroring the teacher's whole-process
// eStop-channel pattern but scoped to a single log rather than the
// entire program.
func (c *Coordinator) Acquire(ctx context.Context, name string) (*Lease, error) {
	lock, err := c.client.LockKey(c.prefix + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("create lock for %s: %w", name, err)
	}

	stopCh := ctx.Done()
	lostCh, err := lock.Lock(stopCh)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", name, err)
	}
	if lostCh == nil {
		return nil, ctx.Err()
	}

	return &Lease{lock: lock, LostCh: lostCh}, nil
}
