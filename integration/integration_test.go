package integration

import (
	"context"
	"testing"
	"time"

	"itko.dev/internal/archive"
	"itko.dev/internal/cluster"
	"itko.dev/internal/model"
)

// TestClusterLockMutualExclusion spins up a real Consul container and
// verifies that a second Coordinator cannot acquire the lease for a log
// name already held by a first one, and can once the first releases it.
func TestClusterLockMutualExclusion(t *testing.T) {
	if testing.Short() {
		t.Skip("requires Docker")
	}

	ctx := context.Background()
	consulEndpoint, cleanup := consulSetup(ctx)
	defer cleanup()

	a, err := cluster.New(consulEndpoint, "ctingest/locks")
	if err != nil {
		t.Fatalf("cluster.New (a): %v", err)
	}
	b, err := cluster.New(consulEndpoint, "ctingest/locks")
	if err != nil {
		t.Fatalf("cluster.New (b): %v", err)
	}

	leaseA, err := a.Acquire(ctx, "argon2024")
	if err != nil {
		t.Fatalf("Acquire (a): %v", err)
	}

	bCtx, bCancel := context.WithTimeout(ctx, 2*time.Second)
	defer bCancel()
	if _, err := b.Acquire(bCtx, "argon2024"); err == nil {
		t.Fatal("expected second Acquire to block until timeout while lease a is held")
	}

	leaseA.Release()

	freshCtx, freshCancel := context.WithTimeout(ctx, 5*time.Second)
	defer freshCancel()
	leaseB, err := b.Acquire(freshCtx, "argon2024")
	if err != nil {
		t.Fatalf("Acquire (b) after release: %v", err)
	}
	leaseB.Release()
}

// TestArchiveWriterPutsObject verifies that the MinIO bucket accepts a
// batch written through archive.Writer; the object is not read back.
func TestArchiveWriterPutsObject(t *testing.T) {
	if testing.Short() {
		t.Skip("requires Docker")
	}

	ctx := context.Background()
	endpoint, username, password, bucket, region, cleanup := minioSetup(ctx)
	defer cleanup()

	w := archive.New(region, bucket, endpoint, username, password)

	rows := []model.DomainRow{
		{Domain: "a.example.com", BaseDomain: "example.com", LogName: "argon2024"},
	}
	if err := w.Write(ctx, "argon2024", 0, 0, rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
