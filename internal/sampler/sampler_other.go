//go:build !windows

package sampler

import "context"

// noopLister satisfies lister on non-Windows targets: the snapshot is
// always empty, matching the effector's no-op behavior there.
type noopLister struct{}

func newPlatformLister() lister { return &noopLister{} }

func (l *noopLister) SystemMask() uint64 { return 0 }

func (l *noopLister) ListCheap(ctx context.Context) ([]rawProcess, error) {
	return nil, nil
}

func (l *noopLister) Details(ctx context.Context, pid uint32) (processDetails, error) {
	return processDetails{}, nil
}

func (l *noopLister) Username(ctx context.Context, sid string) string {
	return ""
}
