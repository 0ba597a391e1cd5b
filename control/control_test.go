package control_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/momentics/hioload-httpd/control"
)

func TestConfigStore_SetConfigNotifiesWithSnapshot(t *testing.T) {
	cs := control.NewConfigStore()
	cs.Publish(map[string]any{"workers": 4})

	var got map[string]any
	cs.OnReload(func(snap map[string]any) { got = snap })
	if err := cs.SetConfig(map[string]any{"max_conns": 10}); err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("Expected synchronous reload notification")
	}
	if got["workers"] != 4 || got["max_conns"] != 10 {
		t.Errorf("Expected merged snapshot, got %v", got)
	}

	got["workers"] = 99
	if cs.GetSnapshot()["workers"] != 4 {
		t.Error("Snapshot must be a copy")
	}
}

func TestConfigStore_ValidatorRejects(t *testing.T) {
	cs := control.NewConfigStore()
	errBad := errors.New("bad")
	cs.SetValidator(func(update map[string]any) error {
		if _, ok := update["forbidden"]; ok {
			return errBad
		}
		return nil
	})
	called := false
	cs.OnReload(func(map[string]any) { called = true })

	if err := cs.SetConfig(map[string]any{"forbidden": true}); !errors.Is(err, errBad) {
		t.Fatalf("Expected validator error, got %v", err)
	}
	if called || len(cs.GetSnapshot()) != 0 {
		t.Error("Rejected update must not be applied or announced")
	}
}

func TestMetricsRegistry_ConcurrentAdd(t *testing.T) {
	mr := control.NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mr.Add("hits", 1)
			}
		}()
	}
	wg.Wait()
	if v, ok := mr.Get("hits"); !ok || v != 8000 {
		t.Errorf("Expected 8000, got %d (ok=%v)", v, ok)
	}
	mr.Set("gauge", 5)
	snap := mr.GetSnapshot()
	if snap["hits"] != int64(8000) || snap["gauge"] != int64(5) {
		t.Errorf("Unexpected snapshot %v", snap)
	}
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	control.RegisterPlatformProbes(dp)
	state := dp.DumpState()
	if state["answer"] != 42 {
		t.Errorf("Expected probe value 42, got %v", state["answer"])
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("Expected platform probe")
	}
	dp.UnregisterProbe("answer")
	if _, ok := dp.DumpState()["answer"]; ok {
		t.Error("Expected probe removed")
	}
}
