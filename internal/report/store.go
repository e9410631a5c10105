package report

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/obs"
)

// WriteDir writes every artifact into dir, creating it if needed, and
// returns the written paths.
func WriteDir(dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Internal, fmt.Sprintf("create report dir %s: %v", dir, err), err)
	}
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		p := filepath.Join(dir, a.Name)
		if err := os.WriteFile(p, a.Body, 0o644); err != nil {
			return paths, errs.Wrap(errs.Internal, fmt.Sprintf("write %s: %v", p, err), err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ObjectStore stores report artifacts. *s3client.Client implements it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
}

// Keys returns the object key of each artifact for runID.
func Keys(runID string, artifacts []Artifact) []string {
	keys := make([]string, len(artifacts))
	for i, a := range artifacts {
		keys[i] = path.Join("runs", strings.Trim(runID, "/"), a.Name)
	}
	return keys
}

// Upload stores every artifact under runs/<runID>/ and returns the keys.
func Upload(ctx context.Context, store ObjectStore, runID string, artifacts []Artifact) ([]string, error) {
	if runID == "" {
		return nil, errs.New(errs.InvalidArgument, "run id is required to upload a report")
	}
	keys := Keys(runID, artifacts)
	for i, a := range artifacts {
		if err := store.PutObject(ctx, keys[i], a.Body, a.ContentType); err != nil {
			return keys[:i], errs.Wrap(errs.Internal, fmt.Sprintf("upload %s: %v", keys[i], err), err)
		}
		obs.From(ctx).Debug("report uploaded", "key", keys[i], "bytes", len(a.Body))
	}
	return keys, nil
}
