package walstore

import "time"

// Stats are lifetime counters of one [Store]. Timestamps are zero until the
// corresponding event happened.
type Stats struct {
	InitCount       int
	LastInit        time.Time
	ReadCount       int
	LastRead        time.Time
	WriteCount      int
	WriteFailures   int
	LastWrite       time.Time
	LastWriteTook   time.Duration
	WALFrames       int
	ReplayedRecords int
}
