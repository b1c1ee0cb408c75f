package pools

import "testing"

func TestBytePoolSizeClasses(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{16, 64})

	buf := bp.Get(10)
	if len(buf) != 10 || cap(buf) != 16 {
		t.Errorf("Expected len 10 cap 16, got len %d cap %d", len(buf), cap(buf))
	}
	bp.Put(buf)

	buf = bp.Get(64)
	if cap(buf) != 64 {
		t.Errorf("Expected cap 64, got %d", cap(buf))
	}
	bp.Put(buf)

	big := bp.Get(100)
	if len(big) != 100 {
		t.Errorf("Expected direct allocation of 100, got %d", len(big))
	}
	bp.Put(big) // dropped

	stats := bp.Stats()
	if stats.Gets != 3 {
		t.Errorf("Expected 3 gets, got %d", stats.Gets)
	}
	if stats.Puts != 2 {
		t.Errorf("Expected 2 puts, got %d", stats.Puts)
	}
}

func BenchmarkBytePool(b *testing.B) {
	bp := NewBytePool()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bp.Put(bp.Get(8192))
	}
}
