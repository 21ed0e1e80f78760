// Package supervisor is the Supervisor (C8): given the discovered active
// logs, it spawns one Worker per log and relaunches a Worker that exits with an
// error after a fixed backoff. Frozen logs that finish cleanly are never
// relaunched.
package supervisor

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"itko.dev/internal/cluster"
	"itko.dev/internal/ctclient"
	"itko.dev/internal/model"
	"itko.dev/internal/offsetstore"
	"itko.dev/internal/sink"
	"itko.dev/internal/worker"
)

// restartDelay is the fixed relaunch backoff for a Worker that exits
// with an error; §4.8 specifies no cap on the number of attempts.
const restartDelay = 30 * time.Second

// Classifier supplies base-domain classification to every Worker.
type Classifier interface {
	BaseOf(name string) string
}

// Supervisor owns the shared, long-lived dependencies every Worker is
// constructed from: the offset store, the sink, the PSL classifier, and
// per-worker tuning.
type Supervisor struct {
	Cursor     *offsetstore.Store
	Sink       *sink.Sink
	Archiver   worker.Archiver      // optional; nil disables archival
	Cluster    *cluster.Coordinator // optional; nil runs every log unconditionally
	Classifier Classifier
	WorkerCfg  worker.Config
}

// Run spawns one Worker per descriptor and blocks until every one has
// returned. A single log's relaunch loop never propagates an error that
// would cancel its siblings — errgroup.Group is used here purely as a
// fan-out/fan-in primitive (the same role it plays for parallel uploads
// in the teacher's bucket writer), not for shared-context cancellation.
// Callers cancel ctx themselves to stop all workers (§4.8's termination
// rule: the cursor reflects the last successfully inserted batch, never
// a half-written one, guaranteed by the worker's own
// fetch→parse→insert→commit ordering).
func (s *Supervisor) Run(ctx context.Context, logs []model.LogDescriptor) error {
	var g errgroup.Group
	for _, desc := range logs {
		desc := desc
		g.Go(func() error {
			s.superviseOne(ctx, desc)
			return nil
		})
	}
	return g.Wait()
}

// superviseOne runs one log's Worker, relaunching it after restartDelay
// whenever Run returns an error, until ctx is cancelled or the log is
// frozen and finishes cleanly. When a Cluster coordinator is configured,
// it gates every (re)launch: the Worker only runs while this process
// holds the per-log Consul lease, so N replicas can shard the same log
// list without two Workers ever writing the same log's cursor at once.
func (s *Supervisor) superviseOne(ctx context.Context, desc model.LogDescriptor) {
	client := ctclient.New(desc.URL)

	for {
		if ctx.Err() != nil {
			return
		}

		runCtx := ctx
		var release func()
		if s.Cluster != nil {
			lease, err := s.Cluster.Acquire(ctx, desc.Name)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[supervisor] worker %s failed to acquire cluster lease, retrying in %s: %v", desc.Name, restartDelay, err)
				if !waitOrDone(ctx, restartDelay) {
					return
				}
				continue
			}
			var cancel context.CancelFunc
			runCtx, cancel = context.WithCancel(ctx)
			go func() {
				select {
				case <-lease.LostCh:
					log.Printf("[supervisor] worker %s lost its cluster lease, stopping", desc.Name)
					cancel()
				case <-runCtx.Done():
				}
			}()
			release = func() { lease.Release(); cancel() }
		}

		var opts []worker.Option
		if s.Archiver != nil {
			opts = append(opts, worker.WithArchiver(s.Archiver))
		}
		w := worker.New(desc, client, s.Cursor, s.Classifier, s.Sink, s.WorkerCfg, opts...)
		err := w.Run(runCtx)
		if release != nil {
			release()
		}
		if err == nil {
			// Either the log is frozen and done, or the lease was lost and
			// runCtx was cancelled out from under a usable log's Worker;
			// the latter should relaunch once the lease is available again.
			if ctx.Err() != nil || desc.State == model.StateFrozen {
				return
			}
			log.Printf("[supervisor] worker %s stopped (lease lost or idle), relaunching in %s", desc.Name, restartDelay)
		} else {
			log.Printf("[supervisor] worker %s exited with error, relaunching in %s: %v", desc.Name, restartDelay, err)
		}

		if !waitOrDone(ctx, restartDelay) {
			return
		}
	}
}

// waitOrDone waits for d or ctx cancellation, reporting false if ctx won.
func waitOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
