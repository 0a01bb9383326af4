package memory

import "context"

// SingleNodeLeader always holds leadership; memory mode runs one process.
type SingleNodeLeader struct{}

func (SingleNodeLeader) BecomeLeader(ctx context.Context) (bool, error) { return true, nil }

func (SingleNodeLeader) IsLeader(ctx context.Context) (bool, error) { return true, nil }

func (SingleNodeLeader) ReleaseLeadership(ctx context.Context) error { return nil }
