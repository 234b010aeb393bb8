package library

import (
	"path/filepath"
	"strings"
	"time"
)

// LinkMode distinguishes how the library tracks an attachment's content.
type LinkMode uint8

const (
	// LinkModeStored means the file lives inside the library's managed
	// storage tree (imported_file / imported_url in the API).
	LinkModeStored LinkMode = iota
	// LinkModeLinked means the file lives outside managed storage and the
	// library only holds a path to it (linked_file).
	LinkModeLinked
	// LinkModeOther covers link modes with no on-disk content (linked_url).
	LinkModeOther
)

func (m LinkMode) String() string {
	switch m {
	case LinkModeStored:
		return "stored"
	case LinkModeLinked:
		return "linked"
	default:
		return "other"
	}
}

// linkModeFromAPI maps the API's linkMode strings.
func linkModeFromAPI(s string) LinkMode {
	switch s {
	case "linked_file":
		return LinkModeLinked
	case "imported_file", "imported_url":
		return LinkModeStored
	default:
		return LinkModeOther
	}
}

// Attachment is one attachment record from the library, normalized at the
// API boundary. It is an immutable snapshot for a single run; nothing in
// this struct is persisted.
type Attachment struct {
	Key         string
	ParentKey   string
	Mode        LinkMode
	Title       string
	ContentType string
	ModTime     time.Time

	// RawPath is the path string exactly as the service reported it.
	// Linked files commonly carry an "attachments:" base-directory prefix.
	RawPath string

	// Filename is the stored-file name for imported attachments.
	Filename string

	// ResolvedPath is the absolute on-disk location implied by the record,
	// filled in by BuildIndex. Empty when the record has no expected
	// location (linked_url, or stored files with no storage dir configured).
	ResolvedPath string
}

// attachmentsPrefix marks library-relative linked-file paths.
const attachmentsPrefix = "attachments:"

// resolvePath computes the absolute path an attachment record points at.
// Linked files resolve against the attachment root; stored files against
// the managed storage directory ("storage/<KEY>/<filename>").
func resolvePath(a Attachment, root, storageDir string) string {
	switch a.Mode {
	case LinkModeLinked:
		p := a.RawPath
		if p == "" {
			return ""
		}
		if rel, ok := strings.CutPrefix(p, attachmentsPrefix); ok {
			return filepath.Join(root, filepath.FromSlash(rel))
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, filepath.FromSlash(p))
	case LinkModeStored:
		if storageDir == "" || a.Filename == "" {
			return ""
		}
		return filepath.Join(storageDir, a.Key, a.Filename)
	default:
		return ""
	}
}
