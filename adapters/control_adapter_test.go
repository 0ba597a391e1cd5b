package adapters_test

import (
	"testing"

	"github.com/momentics/hioload-httpd/adapters"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	cfg := ctrl.GetConfig()
	if len(cfg) != 0 {
		t.Error("Expected empty config on init")
	}
	var seen map[string]any
	ctrl.OnReload(func(snap map[string]any) { seen = snap })
	if err := ctrl.SetConfig(map[string]any{"k": 1}); err != nil {
		t.Fatal(err)
	}
	if seen["k"] != 1 {
		t.Error("Reload hook not called with new value")
	}
	if ctrl.GetConfig()["k"] != 1 {
		t.Error("SetConfig did not apply")
	}
}

func TestControlAdapterStats(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	ctrl.IncCounter("connections.accepted", 2)
	ctrl.IncCounter("connections.accepted", 3)
	ctrl.RegisterDebugProbe("connections.active", func() any { return 7 })

	stats := ctrl.Stats()
	if stats["connections.accepted"] != int64(5) {
		t.Errorf("Expected counter 5, got %v", stats["connections.accepted"])
	}
	if stats["debug.connections.active"] != 7 {
		t.Errorf("Expected probe under debug prefix, got %v", stats["debug.connections.active"])
	}
	if _, ok := stats["debug.platform.cpus"]; !ok {
		t.Error("Expected platform probe")
	}
}
