package state

import "sync"

// Reconciler merges partial updates from independent sources (chat responses,
// the status poll, admin refreshes) into shared snapshots. The merge rule is
// field-level last-write-wins: present fields overwrite, absent fields keep
// their prior value. No timestamps are compared; whichever merge runs last
// wins per field.
//
// Callers must not assume cross-field atomicity between separate merge calls,
// but a single update is applied as one synchronous merge under the lock.
type Reconciler struct {
	mu    sync.Mutex
	stats StatsSnapshot
	mlops MLOpsSnapshot

	// OnStats and OnMLOps, when set, are invoked after each merge with a
	// copy of the updated snapshot. They run outside the lock.
	OnStats func(StatsSnapshot)
	OnMLOps func(MLOpsSnapshot)
}

// NewReconciler returns a Reconciler with zero-valued snapshots.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// MergeStats applies the present fields of u to the stats snapshot.
func (r *Reconciler) MergeStats(u StatsUpdate) {
	r.mu.Lock()
	if u.ServerStatus != nil {
		r.stats.ServerStatus = *u.ServerStatus
	}
	if u.ModelLoaded != nil {
		r.stats.ModelLoaded = *u.ModelLoaded
	}
	if u.DocumentCount != nil {
		r.stats.DocumentCount = *u.DocumentCount
	}
	if u.TotalQueries != nil {
		r.stats.TotalQueries = *u.TotalQueries
	}
	if u.AvgResponseTime != nil {
		r.stats.AvgResponseTime = *u.AvgResponseTime
	}
	snap := r.stats
	notify := r.OnStats
	r.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

// MergeMLOps applies the present fields of u to the training snapshot.
func (r *Reconciler) MergeMLOps(u MLOpsUpdate) {
	r.mu.Lock()
	if u.TotalCollected != nil {
		r.mlops.TotalCollected = *u.TotalCollected
	}
	if u.NewDataCount != nil {
		r.mlops.NewDataCount = *u.NewDataCount
	}
	if u.PendingCount != nil {
		r.mlops.PendingCount = *u.PendingCount
	}
	if u.BatchSize != nil {
		r.mlops.BatchSize = *u.BatchSize
	}
	if u.ProgressPercent != nil {
		r.mlops.ProgressPercent = *u.ProgressPercent
	}
	if u.TrainingStatus != nil {
		r.mlops.TrainingStatus = *u.TrainingStatus
	}
	if u.ModelVersion != nil {
		r.mlops.ModelVersion = *u.ModelVersion
	}
	snap := r.mlops
	notify := r.OnMLOps
	r.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

// Stats returns a copy of the current stats snapshot.
func (r *Reconciler) Stats() StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// MLOps returns a copy of the current training snapshot.
func (r *Reconciler) MLOps() MLOpsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mlops
}
