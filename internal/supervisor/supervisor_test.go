package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itko.dev/internal/model"
	"itko.dev/internal/offsetstore"
	"itko.dev/internal/worker"
)

type stubClassifier struct{}

func (stubClassifier) BaseOf(name string) string { return name }

// TestRun_FrozenLogsExitWithoutRestart exercises the happy path: a
// frozen log whose tree_size matches its already-committed cursor
// exits immediately and Run returns once all such logs finish, without
// ever invoking the sink.
func TestRun_FrozenLogsExitWithoutRestart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tree_size": 0}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := offsetstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	s := &Supervisor{
		Cursor:     store,
		Sink:       nil,
		Classifier: stubClassifier{},
		WorkerCfg:  worker.Config{PollInterval: time.Millisecond},
	}

	logs := []model.LogDescriptor{
		{Name: "frozen-a", URL: srv.URL, State: model.StateFrozen},
		{Name: "frozen-b", URL: srv.URL, State: model.StateFrozen},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, logs) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for frozen, already-caught-up logs")
	}
}
