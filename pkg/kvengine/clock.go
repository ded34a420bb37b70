package kvengine

import "time"

// timeNowUnixMilli is a package-level seam so tests can substitute a
// deterministic clock without threading a Clock interface through every
// constructor; production code always uses time.Now().
var timeNowUnixMilli = func() int64 {
	return time.Now().UnixMilli()
}
