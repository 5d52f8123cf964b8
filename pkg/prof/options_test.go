package prof

import "testing"

func TestOptions_Snapshots(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		want  []Profile
		empty bool
	}{
		{"none", Options{}, nil, true},
		{"cpu only", Options{CPU: "cpu.prof"}, nil, false},
		{"heap and mutex", Options{Heap: "h", Mutex: "m"}, []Profile{ProfileHeap, ProfileMutex}, false},
		{"all", Options{Heap: "h", Allocs: "a", Goroutine: "g", Block: "b", Mutex: "m"},
			[]Profile{ProfileHeap, ProfileAllocs, ProfileGoroutine, ProfileBlock, ProfileMutex}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.snapshots()
			if len(got) != len(tt.want) {
				t.Fatalf("snapshots() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].profile != tt.want[i] {
					t.Errorf("snapshots()[%d] = %v, want %v", i, got[i].profile, tt.want[i])
				}
			}
			if tt.opts.Empty() != tt.empty {
				t.Errorf("Empty() = %v, want %v", tt.opts.Empty(), tt.empty)
			}
		})
	}
}

func TestProfile_String(t *testing.T) {
	if got := ProfileGoroutine.String(); got != "goroutine" {
		t.Errorf("Profile.String() = %q, want %q", got, "goroutine")
	}
}
