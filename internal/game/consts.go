package game

const (
	DefaultTickHz       = 10   // trigger evaluation rate
	DefaultBacklogS     = 30.0 // seconds of flushed updates kept for resume
	DefaultWorkers      = 4
	DefaultClientBuffer = 64
	DefaultInboxSize    = 1024
	DefaultPatrolSpeed  = 3.0  // map units/s
	DefaultPatrolRadius = 60.0 // patrol loop radius around the spawn point
	DefaultHoldRadius   = 5.0
	WorldW              = 10000.0
	WorldH              = 10000.0
)
