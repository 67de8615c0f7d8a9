package state

// TrainingStatus is the derived phase of the remote fine-tuning pipeline.
type TrainingStatus string

const (
	StatusCollecting TrainingStatus = "collecting"
	StatusReady      TrainingStatus = "ready-to-train"
	StatusQueued     TrainingStatus = "queued"
	StatusTraining   TrainingStatus = "training-in-progress"
)

// StatsSnapshot is the last known aggregate view of the chat service.
// Fields arrive independently from the health poll, the stats poll and
// inline chat responses; any subset may be stale relative to the others.
type StatsSnapshot struct {
	ServerStatus    string
	ModelLoaded     string
	DocumentCount   int
	TotalQueries    int
	AvgResponseTime string
}

// MLOpsSnapshot is the last known view of the training pipeline.
type MLOpsSnapshot struct {
	TotalCollected  int
	NewDataCount    int
	PendingCount    int
	BatchSize       int
	ProgressPercent float64
	TrainingStatus  TrainingStatus
	ModelVersion    string
}

// StatsUpdate is a partial stats payload. Nil fields are absent and must
// not disturb the previously known value.
type StatsUpdate struct {
	ServerStatus    *string
	ModelLoaded     *string
	DocumentCount   *int
	TotalQueries    *int
	AvgResponseTime *string
}

// MLOpsUpdate is a partial training-pipeline payload.
type MLOpsUpdate struct {
	TotalCollected  *int
	NewDataCount    *int
	PendingCount    *int
	BatchSize       *int
	ProgressPercent *float64
	TrainingStatus  *TrainingStatus
	ModelVersion    *string
}

// DeriveTrainingStatus collapses the pipeline's boolean flags into a single
// status. The priority is fixed: an in-progress run beats a queued request,
// which beats readiness, which beats plain collection. Arrival order of the
// flags never matters.
func DeriveTrainingStatus(triggered, inProgress, queued, shouldTrain bool) TrainingStatus {
	switch {
	case triggered || inProgress:
		return StatusTraining
	case queued:
		return StatusQueued
	case shouldTrain:
		return StatusReady
	default:
		return StatusCollecting
	}
}

// Ptr returns a pointer to v. Convenience for building partial updates.
func Ptr[T any](v T) *T {
	return &v
}
