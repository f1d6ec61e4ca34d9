package parameter

// Navigation - Graph layout
const (
	// NavChunkWidth is the default chunk width in nodes
	NavChunkWidth = 16

	// NavChunkHeight is the default chunk height in nodes
	NavChunkHeight = 16

	// NavNodeSize is the default node edge length in world units
	NavNodeSize = 1.0

	// NavMaxSlope is the default maximum walkable slope in degrees
	NavMaxSlope = 45.0
)

// Navigation - Flow Field
const (
	// NavBiasWeight scales the squared chunk-normalised distance added per relaxation step
	// Tie-breaker only; must stay well below a single node step cost
	NavBiasWeight = 0.01

	// NavSlopeObstacleScale is the tiny obstacle edge (fraction of node size) stamped on steep pairs
	NavSlopeObstacleScale = 0.25
)

// Navigation - Update pipeline
const (
	// NavMaxUpdatePasses caps the obstacle update drain; exceeding it is a hard failure
	NavMaxUpdatePasses = 100

	// NavDefaultWorkers is used when no worker count is configured (0 = GOMAXPROCS)
	NavDefaultWorkers = 0
)

// Navigation - Tooling
const (
	// NavWatchDebounceMs drops repeated file events for the same path within the window
	NavWatchDebounceMs = 100

	// NavSimTicks is the default simulation length for navsim run
	NavSimTicks = 500

	// NavSimSpeed is the default agent speed in world units per tick
	NavSimSpeed = 0.25
)
