package orchestrator

import "context"

// Distributor uploads a published snapshot to an external archive (e.g.
// the S3-backed implementation in the domain stack). Its failure does not
// roll back the filesystem or kernel publish that preceded it.
type Distributor interface {
	Distribute(ctx context.Context, name, kind string, canonical []byte) error
}

// GitPublisher commits and optionally pushes the base directory's .git
// working tree after a run that changed at least one snapshot. It is an
// external collaborator (§1 non-goal: acting as a VCS); this repo ships
// only NullGitPublisher.
type GitPublisher interface {
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// DashboardRenderer regenerates the analytics dashboard consumed outside
// this engine. An external collaborator (§1 non-goal: building the
// dashboard); this repo ships only NullDashboardRenderer.
type DashboardRenderer interface {
	Render(ctx context.Context, report *RunReport) error
}

// NullDistributor is the default when no Distributor is configured.
type NullDistributor struct{}

func (NullDistributor) Distribute(ctx context.Context, name, kind string, canonical []byte) error {
	return nil
}

// NullGitPublisher is the default when no .git directory is present.
type NullGitPublisher struct{}

func (NullGitPublisher) Commit(ctx context.Context, message string) error { return nil }
func (NullGitPublisher) Push(ctx context.Context) error                   { return nil }

// NullDashboardRenderer is the default when no dashboard is configured.
type NullDashboardRenderer struct{}

func (NullDashboardRenderer) Render(ctx context.Context, report *RunReport) error { return nil }
