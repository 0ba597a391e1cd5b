package pool_test

import (
	"testing"

	"github.com/momentics/hioload-httpd/pool"
)

func TestBytePoolChunkSize(t *testing.T) {
	bp := pool.NewBytePool(128)
	b := bp.Get()
	if len(*b) != 128 {
		t.Fatalf("Expected chunk length 128, got %d", len(*b))
	}
	*b = (*b)[:10]
	bp.Put(b)
	b2 := bp.Get()
	if len(*b2) != 128 {
		t.Errorf("Expected reused chunk restored to 128, got %d", len(*b2))
	}
}

func TestBytePoolDefaultSize(t *testing.T) {
	if got := pool.NewBytePool(0).Size(); got != pool.DefaultChunkSize {
		t.Errorf("Expected default size %d, got %d", pool.DefaultChunkSize, got)
	}
}

func TestBytePoolDropsForeignChunks(t *testing.T) {
	bp := pool.NewBytePool(64)
	small := make([]byte, 8)
	bp.Put(&small)
	bp.Put(nil)
	if b := bp.Get(); cap(*b) < 64 {
		t.Errorf("Expected chunk capacity >= 64, got %d", cap(*b))
	}
}
