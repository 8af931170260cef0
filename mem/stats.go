package mem

import (
	"fmt"
	"io"

	cairncore "github.com/cairnscript/cairn-core"
)

// DumpPools writes a plain-text table of pool counters, one line per
// size class.
func DumpPools(w io.Writer, name string, stats []cairncore.PoolStats) {
	var total, used int
	for _, s := range stats {
		inUse := s.Has - s.Free
		pct := 0
		if s.Has != 0 {
			pct = inUse * 100 / s.Has
		}
		fmt.Fprintf(w, "%s[%4dB] %5d/%-5d:%-4d (%3d%%) %d segs\n",
			name, s.Wide, inUse, s.Has, s.Units, pct, s.Segments)
		total += s.Has * s.Wide
		used += inUse * s.Wide
	}
	if total != 0 {
		fmt.Fprintf(w, "%s used %d of %d (%d%%)\n", name, used, total, used*100/total)
	}
}
