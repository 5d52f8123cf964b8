package prof

// Profile names a runtime/pprof profile.
type Profile string

// Snapshot profile names.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// String returns the profile name.
func (p Profile) String() string {
	return string(p)
}

// Options names the output file of each profile. Empty paths are skipped.
type Options struct {
	CPU       string `yaml:"cpu"`
	Heap      string `yaml:"heap"`
	Allocs    string `yaml:"allocs"`
	Goroutine string `yaml:"goroutine"`
	Block     string `yaml:"block"`
	Mutex     string `yaml:"mutex"`
}

// Empty reports whether no profile is requested.
func (o Options) Empty() bool {
	return o.CPU == "" && len(o.snapshots()) == 0
}

type snapshot struct {
	profile Profile
	path    string
}

// snapshots lists the requested snapshot profiles in write order.
func (o Options) snapshots() []snapshot {
	var out []snapshot
	for _, s := range []snapshot{
		{ProfileHeap, o.Heap},
		{ProfileAllocs, o.Allocs},
		{ProfileGoroutine, o.Goroutine},
		{ProfileBlock, o.Block},
		{ProfileMutex, o.Mutex},
	} {
		if s.path != "" {
			out = append(out, s)
		}
	}
	return out
}
