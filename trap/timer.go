package trap

import (
	"time"

	"efskernel/config"
)

var bootTime = time.Now()

// GetTimeMs returns milliseconds since boot, standing in for reading the
// mtime CSR and converting by config.ClockFreq, matching
// timer::get_time_ms. There is no real hart clock to read here, so wall
// time since process start is the closest analogue.
func GetTimeMs() int64 {
	return time.Since(bootTime).Milliseconds()
}

// TicksPerSec is how many SupervisorTimer preemptions a second of wall
// time corresponds to, matching config::TICKS_PER_SEC.
const TicksPerSec = config.TimerTicksSec
