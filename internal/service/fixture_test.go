package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/cache"
	"github.com/Skotchmaster/online_catalog/internal/events"
	"github.com/Skotchmaster/online_catalog/internal/files"
	"github.com/Skotchmaster/online_catalog/internal/models"
	"github.com/Skotchmaster/online_catalog/internal/repo"
	"github.com/Skotchmaster/online_catalog/internal/revocation"
	"github.com/Skotchmaster/online_catalog/internal/testutil"
	"github.com/Skotchmaster/online_catalog/internal/tokens"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// flakyStorage wraps local storage and fails on demand.
type flakyStorage struct {
	*files.LocalStorage
	mu         sync.Mutex
	failPut    bool
	failDelete bool
}

func (s *flakyStorage) Put(ctx context.Context, name string, r io.Reader, ct string) error {
	s.mu.Lock()
	fail := s.failPut
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.LocalStorage.Put(ctx, name, r, ct)
}

func (s *flakyStorage) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	fail := s.failDelete
	s.mu.Unlock()
	if fail {
		return errors.New("permission denied")
	}
	return s.LocalStorage.Delete(ctx, name)
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[uuid.UUID]models.Product
	removed []uuid.UUID
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: map[uuid.UUID]models.Product{}}
}

func (f *fakeIndexer) Index(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[p.ID] = *p
	return nil
}

func (f *fakeIndexer) Remove(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIndexer) Search(_ context.Context, _ string, from, size int) (int64, []models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Product, 0)
	for _, p := range f.indexed {
		out = append(out, p)
	}
	return int64(len(out)), out, nil
}

type testEnv struct {
	repo    *repo.GormRepo
	mr      *miniredis.Miniredis
	storage *flakyStorage
	root    string
	pub     *recordingPublisher
	index   *fakeIndexer
	auth    *auth.Authenticator
	codec   *tokens.Codec
	catalog *CatalogService
	users   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rdb, mr := testutil.InitTestRedis(t)
	r := &repo.GormRepo{DB: testutil.InitTestDB(t)}

	root := t.TempDir()
	local, err := files.NewLocalStorage(root)
	require.NoError(t, err)
	st := &flakyStorage{LocalStorage: local}

	store := cache.NewRedisStore(rdb, time.Second)
	inv := cache.NewInvalidator(store, time.Second)
	pub := &recordingPublisher{}
	idx := newFakeIndexer()
	codec := tokens.NewCodec([]byte("test-secret"))
	authn := auth.NewAuthenticator(codec, revocation.NewStore(rdb, time.Second), r)

	return &testEnv{
		repo:    r,
		mr:      mr,
		storage: st,
		root:    root,
		pub:     pub,
		index:   idx,
		auth:    authn,
		codec:   codec,
		catalog: NewCatalogService(CatalogDeps{
			Store:       r,
			Cache:       store,
			Invalidator: inv,
			Files:       files.NewManager(st, "http://api.test"),
			Events:      pub,
			Search:      idx,
			CacheTTL:    time.Hour,
		}),
		users: NewUserService(UserDeps{
			Store:       r,
			Cache:       store,
			Invalidator: inv,
			Tokens:      codec,
			Revoker:     authn,
			Events:      pub,
			CacheTTL:    time.Hour,
		}),
	}
}
