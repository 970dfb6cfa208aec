package domain

import "time"

// Task is an administrator-created activity that rewards points once per
// claimant. The claim set only grows; a reward credit commits atomically with
// its claim row.
type Task struct {
	ID        int64
	Title     string
	Points    int64
	Active    bool
	CreatedBy int64
	CreatedAt time.Time
}

// TaskClaim marks that a user has claimed a task's reward.
type TaskClaim struct {
	TaskID    int64
	UserID    int64
	CreatedAt time.Time
}
