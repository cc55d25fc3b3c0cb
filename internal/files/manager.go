// Package files keeps stored blobs consistent with the image references held
// by durable records. Writes happen before the record points at them and
// deletes happen after the record stops pointing at them.
package files

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/logging"
)

const (
	deleteParallelism    = 8
	defaultCleanupBudget = 30 * time.Second
)

// Upload is a file about to be written. Filename is the client's name; only
// its extension is kept.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// CommitFunc persists refs on the durable record.
type CommitFunc func(ctx context.Context, refs []string) error

type Manager struct {
	storage Storage
	baseURL string
	cleanup time.Duration
}

func NewManager(storage Storage, baseURL string) *Manager {
	return &Manager{
		storage: storage,
		baseURL: strings.TrimRight(baseURL, "/"),
		cleanup: defaultCleanupBudget,
	}
}

func (m *Manager) Ref(name string) string {
	return m.baseURL + "/files/" + name
}

// FilenameFromRef recovers the stored name from a public reference.
func FilenameFromRef(ref string) string {
	ref = strings.TrimRight(ref, "/")
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return ""
	}
	return path.Base(ref)
}

// Write stores every upload under a fresh name and returns their references.
// When one write fails the files already written by this call are removed.
func (m *Manager) Write(ctx context.Context, uploads []Upload) ([]string, error) {
	refs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		name := uuid.NewString() + strings.ToLower(path.Ext(u.Filename))
		if err := m.storage.Put(ctx, name, u.Body, u.ContentType); err != nil {
			if cerr := m.DeleteFiles(ctx, refs); cerr != nil {
				logging.FromContext(ctx).Error("file_cleanup_failed",
					"component", "files", "refs", refs, "error", cerr)
			}
			return nil, apperr.Wrap(apperr.Internal, "cannot store file", err)
		}
		refs = append(refs, m.Ref(name))
	}
	return refs, nil
}

// Create writes the uploads and only then lets commit record them.
func (m *Manager) Create(ctx context.Context, uploads []Upload, commit CommitFunc) ([]string, error) {
	refs, err := m.Write(ctx, uploads)
	if err != nil {
		return nil, err
	}
	if err := commit(ctx, refs); err != nil {
		m.logOrphans(ctx, "create_commit_failed", refs, err)
		return nil, err
	}
	return refs, nil
}

// Replace runs write-new, commit-new, delete-old. A failed write leaves the
// old files and the record untouched. A failed commit leaves the new files
// orphaned; they are not removed because the commit outcome may be unknown.
// The old files are removed even if ctx is cancelled after the commit.
func (m *Manager) Replace(ctx context.Context, old []string, uploads []Upload, commit CommitFunc) ([]string, error) {
	refs, err := m.Write(ctx, uploads)
	if err != nil {
		return nil, err
	}
	if err := commit(ctx, refs); err != nil {
		m.logOrphans(ctx, "replace_commit_failed", refs, err)
		return nil, err
	}

	dctx, cancel := m.detached(ctx)
	defer cancel()
	if err := m.DeleteFiles(dctx, old); err != nil {
		return refs, err
	}
	return refs, nil
}

// Delete runs remove first and deletes refs only once it has succeeded.
func (m *Manager) Delete(ctx context.Context, refs []string, remove func(ctx context.Context) error) error {
	if err := remove(ctx); err != nil {
		return err
	}
	dctx, cancel := m.detached(ctx)
	defer cancel()
	return m.DeleteFiles(dctx, refs)
}

// DeleteFiles removes refs in parallel. Already absent files count as deleted.
// Every deletion is attempted; the failures are joined into one Internal error.
func (m *Manager) DeleteFiles(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	l := logging.FromContext(ctx).With("component", "files")

	errs := make([]error, len(refs))
	var g errgroup.Group
	g.SetLimit(deleteParallelism)
	for i, ref := range refs {
		g.Go(func() error {
			name := FilenameFromRef(ref)
			err := m.storage.Delete(ctx, name)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				l.Error("file_delete_failed", "ref", ref, "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return apperr.Wrap(apperr.Internal, "cannot delete files", err)
	}
	return nil
}

func (m *Manager) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cleanup)
}

func (m *Manager) logOrphans(ctx context.Context, event string, refs []string, err error) {
	logging.FromContext(ctx).Error(event, "component", "files", "orphaned", refs, "error", err)
}
