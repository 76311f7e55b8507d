package upload

import "testing"

func TestParseRange(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"bytes=0-1048575", 1048576, false},
		{"bytes=0-0", 1, false},
		{"  bytes=0-99 ", 100, false},
		{"bytes=10-99", 0, true},
		{"0-99", 0, true},
		{"bytes=0-", 0, true},
		{"bytes=0-abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.header)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRange(%q) expected error", tt.header)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseRange(%q) = %d, %v; want %d", tt.header, got, err, tt.want)
		}
	}
}

func TestContentRangeAndPercent(t *testing.T) {
	if got := ContentRange(0, 5242880, 12000000); got != "bytes 0-5242879/12000000" {
		t.Fatalf("ContentRange = %q", got)
	}
	if got := Percent(1048576, 4194304); got != 25 {
		t.Fatalf("Percent = %d", got)
	}
	if got := Percent(5, 12); got != 42 {
		t.Fatalf("Percent = %d", got)
	}
	if got := Percent(0, 0); got != 0 {
		t.Fatalf("Percent of empty = %d", got)
	}
}

func TestBackoffDoubles(t *testing.T) {
	e := New()
	for retry, want := range map[int]string{1: "1s", 2: "2s", 3: "4s", 4: "8s"} {
		if got := e.Backoff(retry).String(); got != want {
			t.Errorf("Backoff(%d) = %s, want %s", retry, got, want)
		}
	}
}
