package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// Locator resolves an opaque file id to a readable path. The pipeline
// never touches the filesystem directly for lookup, so callers can
// plug in whatever naming scheme their intake uses.
type Locator interface {
	Locate(ctx context.Context, fileID string) (string, error)
}

// DirLocator resolves file ids against a base directory. An id that is
// already a path to an existing file is accepted as-is; otherwise the
// id is joined with Root, trying the bare name and then name + ".pdf".
type DirLocator struct {
	Root string
}

var _ Locator = (*DirLocator)(nil)

// Locate resolves fileID to an existing regular file.
func (l *DirLocator) Locate(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", dircerrors.FromContext(err)
	}
	if fileID == "" {
		return "", dircerrors.Input("file id is empty", nil)
	}

	candidates := []string{fileID}
	if l.Root != "" {
		candidates = append(candidates,
			filepath.Join(l.Root, fileID),
			filepath.Join(l.Root, fileID+".pdf"),
		)
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", dircerrors.New(dircerrors.ErrCodeUnknownFileID,
		fmt.Sprintf("no file found for id %q", fileID), nil).
		WithDetail("root", l.Root)
}

// StaticLocator serves a fixed id→path map. Test collaborator.
type StaticLocator struct {
	Paths map[string]string
}

var _ Locator = (*StaticLocator)(nil)

// Locate returns the mapped path for fileID.
func (l *StaticLocator) Locate(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", dircerrors.FromContext(err)
	}
	path, ok := l.Paths[fileID]
	if !ok {
		return "", dircerrors.New(dircerrors.ErrCodeUnknownFileID,
			fmt.Sprintf("no file found for id %q", fileID), nil)
	}
	return path, nil
}
