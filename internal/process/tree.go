package process

import (
	"context"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// treeTimeout bounds the process table walk done before a kill.
const treeTimeout = 2 * time.Second

// killDescendants kills every descendant of pid, deepest first. It is best
// effort: processes that already exited are ignored.
func killDescendants(pid int) {
	ctx, cancel := context.WithTimeout(context.Background(), treeTimeout)
	defer cancel()

	root, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return
	}
	killChildren(ctx, root)
}

func killChildren(ctx context.Context, p *gopsprocess.Process) {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return
	}
	for _, child := range children {
		killChildren(ctx, child)
		_ = child.KillWithContext(ctx)
	}
}
