package library

import (
	"context"
	"fmt"

	"github.com/zotsweep/zotsweep/internal/pathutil"
)

// IndexOptions configures path resolution for the index.
type IndexOptions struct {
	// Root is the attachment root directory linked-file paths resolve
	// against (the "attachments:" base directory).
	Root string
	// StorageDir is the managed storage directory for stored attachments.
	// Empty means stored files carry no expected on-disk location.
	StorageDir string
}

// Index is the immutable snapshot of every attachment the library knows.
type Index struct {
	Records []Attachment
}

// BuildIndex drains the full attachment listing and resolves each record
// to its expected absolute path. Pagination is drained completely before
// the index is returned; a partial index is never exposed, because a
// false "unlinked" classification risks deleting still-linked data.
func BuildIndex(ctx context.Context, lister Lister, opts IndexOptions) (*Index, error) {
	root := pathutil.Normalize(opts.Root)

	var records []Attachment
	start := 0
	for {
		page, err := lister.ListAttachments(ctx, start)
		if err != nil {
			return nil, fmt.Errorf("list attachments at offset %d: %w", start, err)
		}
		for _, a := range page.Items {
			a.ResolvedPath = resolvePath(a, root, opts.StorageDir)
			records = append(records, a)
		}
		if page.Next < 0 {
			break
		}
		if page.Next <= start {
			return nil, fmt.Errorf("list attachments: cursor did not advance past %d", start)
		}
		start = page.Next
	}

	return &Index{Records: records}, nil
}

// Located returns the records that resolve to an on-disk location.
func (ix *Index) Located() []Attachment {
	out := make([]Attachment, 0, len(ix.Records))
	for _, a := range ix.Records {
		if a.ResolvedPath != "" {
			out = append(out, a)
		}
	}
	return out
}
