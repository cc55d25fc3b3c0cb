package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/logging"
)

type memStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	failPut   map[string]bool // by extension
	failDel   map[string]bool // by name
	events    []string
	delCtxErr []error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}, failPut: map[string]bool{}, failDel: map[string]bool{}}
}

func (s *memStorage) Put(_ context.Context, name string, r io.Reader, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut[filepath.Ext(name)] {
		return errors.New("disk full")
	}
	b, _ := io.ReadAll(r)
	s.files[name] = b
	s.events = append(s.events, "put:"+name)
	return nil
}

func (s *memStorage) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delCtxErr = append(s.delCtxErr, ctx.Err())
	if s.failDel[name] {
		return errors.New("permission denied")
	}
	if _, ok := s.files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(s.files, name)
	s.events = append(s.events, "delete:"+name)
	return nil
}

func (s *memStorage) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

func (s *memStorage) record(ev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func upload(name string) Upload {
	return Upload{Filename: name, Body: strings.NewReader("data-" + name)}
}

func TestFilenameFromRef(t *testing.T) {
	t.Parallel()
	tests := []struct{ ref, want string }{
		{"http://localhost:8080/files/a.jpg", "a.jpg"},
		{"/uploads/products/a.jpg", "a.jpg"},
		{"a.jpg", "a.jpg"},
		{"http://cdn/files/b.png?v=2", "b.png"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromRef(tt.ref), tt.ref)
	}
}

func TestCreate_WritesBeforeCommit(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	m := NewManager(st, "http://api.test/")

	var committed []string
	refs, err := m.Create(context.Background(), []Upload{upload("A.JPG"), upload("b.png")}, func(_ context.Context, refs []string) error {
		for _, r := range refs {
			require.True(t, st.has(FilenameFromRef(r)), "file must exist before commit")
		}
		committed = refs
		return nil
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, committed, refs)
	assert.True(t, strings.HasPrefix(refs[0], "http://api.test/files/"))
	assert.True(t, strings.HasSuffix(refs[0], ".jpg"))
}

func TestCreate_WriteFailureNeverCommits(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.failPut[".png"] = true
	m := NewManager(st, "http://api.test")

	_, err := m.Create(context.Background(), []Upload{upload("a.jpg"), upload("b.png")}, func(context.Context, []string) error {
		t.Fatal("commit must not run")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Empty(t, st.files, "partially written files are cleaned up")
}

func TestReplace_WriteFailureKeepsOldFilesAndRecord(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.files["a.jpg"] = []byte("old")
	st.failPut[".jpg"] = true
	m := NewManager(st, "http://api.test")

	record := []string{m.Ref("a.jpg")}
	_, err := m.Replace(context.Background(), record, []Upload{upload("b.jpg")}, func(_ context.Context, refs []string) error {
		record = refs
		return nil
	})
	require.Error(t, err)
	assert.True(t, st.has("a.jpg"))
	assert.Equal(t, []string{m.Ref("a.jpg")}, record)
}

func TestReplace_CommitFailureOrphansNewKeepsOld(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.files["a.jpg"] = []byte("old")
	m := NewManager(st, "http://api.test")

	var buf bytes.Buffer
	ctx := logging.IntoContext(context.Background(), logging.NewWithWriter(&buf, "info"))

	commitErr := apperr.New(apperr.Internal, "db down")
	_, err := m.Replace(ctx, []string{m.Ref("a.jpg")}, []Upload{upload("b.jpg")}, func(context.Context, []string) error {
		return commitErr
	})
	require.ErrorIs(t, err, commitErr)
	assert.True(t, st.has("a.jpg"))
	assert.Len(t, st.files, 2, "new file stays as an orphan")
	assert.Contains(t, buf.String(), "replace_commit_failed")
}

func TestReplace_OrderIsWriteCommitDelete(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.files["a.jpg"] = []byte("old")
	m := NewManager(st, "http://api.test")

	ctx, cancel := context.WithCancel(context.Background())
	refs, err := m.Replace(ctx, []string{m.Ref("a.jpg")}, []Upload{upload("b.jpg")}, func(context.Context, []string) error {
		st.record("commit")
		cancel()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	require.Len(t, st.events, 3)
	assert.True(t, strings.HasPrefix(st.events[0], "put:"))
	assert.Equal(t, "commit", st.events[1])
	assert.Equal(t, "delete:a.jpg", st.events[2])
	assert.NoError(t, st.delCtxErr[0], "cleanup must not inherit request cancellation")
}

func TestDelete_RecordFirstThenFilesAndErrorsSurface(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.files["a.jpg"] = []byte("a")
	st.files["b.jpg"] = []byte("b")
	st.failDel["a.jpg"] = true
	m := NewManager(st, "http://api.test")

	recordGone := false
	err := m.Delete(context.Background(), []string{"/uploads/products/a.jpg", "/uploads/products/b.jpg"}, func(context.Context) error {
		assert.True(t, st.has("a.jpg"), "files untouched before the record is removed")
		recordGone = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.True(t, recordGone)
	assert.False(t, st.has("b.jpg"), "other deletions still run")
}

func TestDelete_RemoveFailureKeepsFiles(t *testing.T) {
	t.Parallel()
	st := newMemStorage()
	st.files["a.jpg"] = []byte("a")
	m := NewManager(st, "http://api.test")

	removeErr := errors.New("db down")
	err := m.Delete(context.Background(), []string{"x/a.jpg"}, func(context.Context) error { return removeErr })
	require.ErrorIs(t, err, removeErr)
	assert.True(t, st.has("a.jpg"))
}

func TestDeleteFiles_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	m := NewManager(newMemStorage(), "http://api.test")
	require.NoError(t, m.DeleteFiles(context.Background(), []string{"http://api.test/files/ghost.jpg"}))
	require.NoError(t, m.DeleteFiles(context.Background(), nil))
}

func TestLocalStorage_PutDelete(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "a.jpg", strings.NewReader("img"), "image/jpeg"))
	b, err := os.ReadFile(filepath.Join(root, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "img", string(b))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Delete(context.Background(), "a.jpg"))
	assert.ErrorIs(t, s.Delete(context.Background(), "a.jpg"), fs.ErrNotExist)

	assert.Error(t, s.Put(context.Background(), "../escape.jpg", strings.NewReader("x"), ""))
}

func TestManagerWithLocalStorage_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	m := NewManager(s, "http://api.test")

	refs, err := m.Write(context.Background(), []Upload{upload("a.jpg")})
	require.NoError(t, err)

	require.NoError(t, m.DeleteFiles(context.Background(), refs))
	require.NoError(t, m.DeleteFiles(context.Background(), refs))
}
