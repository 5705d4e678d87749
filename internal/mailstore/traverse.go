package mailstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wesm/mailquery/internal/governor"
)

// DefaultMaxFolderDepth bounds folder tree walks.
const DefaultMaxFolderDepth = 10

// FolderLister lists the direct children of a folder. An empty parent
// lists the top-level folders.
type FolderLister interface {
	ListChildFolders(ctx context.Context, parent string) ([]Folder, error)
}

// TraversalFailure records a folder whose children could not be listed.
type TraversalFailure struct {
	Path  string
	Depth int
	Err   error
}

func (f TraversalFailure) Error() string {
	return fmt.Sprintf("list children of %s: %v", f.Path, f.Err)
}

// Traversal is the outcome of walking a folder tree.
type Traversal struct {
	// Folders in breadth-first order, with Depth and Parent filled in.
	Folders []Folder
	// Failures holds folders whose children could not be listed.
	Failures []TraversalFailure
	// Truncated lists folders at the depth ceiling that were not expanded.
	Truncated []string
}

type traversalItem struct {
	folder Folder
	depth  int
	parent string
}

// Traverse walks the folder tree breadth first using an explicit queue.
// Folders deeper than maxDepth are not expanded, and a folder whose children
// fail to list is recorded in Failures while the walk continues. Only a
// failure to list the top level, or cancellation, aborts the walk.
func Traverse(ctx context.Context, lister FolderLister, maxDepth int, logger *slog.Logger) (*Traversal, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxFolderDepth
	}
	if logger == nil {
		logger = slog.Default()
	}

	roots, err := lister.ListChildFolders(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list top-level folders: %w", err)
	}

	queue := make([]traversalItem, 0, len(roots))
	for _, f := range roots {
		queue = append(queue, traversalItem{folder: f, depth: 0})
	}

	result := &Traversal{}
	seen := make(map[string]bool)
	for len(queue) > 0 {
		if err := governor.CheckCancelled(ctx); err != nil {
			return result, err
		}
		item := queue[0]
		queue = queue[1:]

		// Servers occasionally report a folder under two parents.
		if seen[item.folder.Path] {
			continue
		}
		seen[item.folder.Path] = true

		f := item.folder
		f.Depth = item.depth
		f.Parent = item.parent
		if f.Name == "" {
			f.Name = BaseName(f.Path)
		}
		result.Folders = append(result.Folders, f)

		if item.depth >= maxDepth {
			result.Truncated = append(result.Truncated, f.Path)
			continue
		}

		children, err := lister.ListChildFolders(ctx, f.Path)
		if err != nil {
			logger.Warn("folder traversal failure", "folder", f.Path, "depth", item.depth, "error", err)
			result.Failures = append(result.Failures, TraversalFailure{Path: f.Path, Depth: item.depth, Err: err})
			continue
		}
		for _, c := range children {
			queue = append(queue, traversalItem{folder: c, depth: item.depth + 1, parent: f.Path})
		}
	}
	return result, nil
}
