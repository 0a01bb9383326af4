package domain

import "context"

// LeaderElection is bound to one instance id; only the leader runs the
// lifecycle scheduler.
type LeaderElection interface {
	BecomeLeader(ctx context.Context) (bool, error)
	IsLeader(ctx context.Context) (bool, error)
	ReleaseLeadership(ctx context.Context) error
}
