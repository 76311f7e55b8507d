package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"zero", 0, 5},
		{"negative", -1, 5},
		{"custom", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "uploading") {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	var emitted []float64
	for _, pct := range []float64{0, 10, 24, 25, 26, 49, 50, 99, 100, 100} {
		if s.ShouldLog(pct, "uploading") {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{0, 25, 50, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
}

func TestProgressSamplerPhaseChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(40, "stitching") {
		t.Fatal("first phase should log")
	}
	if s.ShouldLog(41, "stitching") {
		t.Fatal("same bucket should not log")
	}
	if !s.ShouldLog(0, "uploading") {
		t.Fatal("phase change should log")
	}
	if s.ShouldLog(-1, "uploading") {
		t.Fatal("unknown percent in same phase should not log")
	}
	s.Reset()
	if !s.ShouldLog(0, "uploading") {
		t.Fatal("reset sampler should log again")
	}
}
