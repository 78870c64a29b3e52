package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsers is an in-memory implementation of storage.UserStorage
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*models.User)}
}

func (f *fakeUsers) GetUser(ctx context.Context, publicKey string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[publicKey]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetPartner(ctx context.Context, pairID, selfKey string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.PairID == pairID && user.PublicKey != selfKey {
			return user, nil
		}
	}
	return nil, storage.ErrPartnerNotFound
}

func (f *fakeUsers) UpdatePushSubscription(ctx context.Context, publicKey, endpoint, p256dh, auth string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[publicKey]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.PushEndpoint = &endpoint
	user.PushP256dh = &p256dh
	user.PushAuth = &auth
	return nil
}

func (f *fakeUsers) ClearPushSubscription(ctx context.Context, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[publicKey]; ok {
		user.PushEndpoint = nil
		user.PushP256dh = nil
		user.PushAuth = nil
	}
	return nil
}

func (f *fakeUsers) DeleteUserCascade(ctx context.Context, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[publicKey]; !ok {
		return storage.ErrUserNotFound
	}
	delete(f.users, publicKey)
	return nil
}

func (f *fakeUsers) put(user *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.PublicKey] = user
}

// fakePairs is an in-memory implementation of storage.PairStorage
// Разделяет карту пользователей с fakeUsers, чтобы upsert был виден обоим
type fakePairs struct {
	users  *fakeUsers
	tokens map[string]*models.RelayToken
	mu     sync.Mutex
}

func newFakePairs(users *fakeUsers) *fakePairs {
	return &fakePairs{
		users:  users,
		tokens: make(map[string]*models.RelayToken),
	}
}

func (f *fakePairs) CreatePairWithInitiator(ctx context.Context, pair *models.Pair, publicKey string, token *models.RelayToken) error {
	f.mu.Lock()
	f.tokens[token.Token] = token
	f.mu.Unlock()

	f.users.put(&models.User{
		PublicKey: publicKey,
		PairID:    pair.ID,
		CreatedAt: pair.CreatedAt,
	})
	return nil
}

func (f *fakePairs) GetToken(ctx context.Context, token string) (*models.RelayToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	copied := *rt
	return &copied, nil
}

func (f *fakePairs) ConsumeTokenAndJoin(ctx context.Context, token, followerKey string) error {
	f.mu.Lock()
	rt, ok := f.tokens[token]
	if !ok {
		f.mu.Unlock()
		return storage.ErrTokenNotFound
	}
	if rt.Consumed {
		f.mu.Unlock()
		return storage.ErrTokenConsumed
	}
	rt.Consumed = true
	f.mu.Unlock()

	f.users.put(&models.User{
		PublicKey: followerKey,
		PairID:    rt.PairID,
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakePairs) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeEntries is an in-memory implementation of storage.EntryStorage
type fakeEntries struct {
	mu      sync.Mutex
	entries []*models.Entry
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{}
}

func (f *fakeEntries) CreateEntry(ctx context.Context, entry *models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeEntries) CountEntriesForDay(ctx context.Context, authorKey, dayID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, e := range f.entries {
		if e.AuthorKey == authorKey && e.DayID == dayID {
			count++
		}
	}
	return count, nil
}

func (f *fakeEntries) ListUndelivered(ctx context.Context, pairID, authorKey, since string, now time.Time) ([]*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Entry
	for _, e := range f.entries {
		if e.PairID == pairID && e.AuthorKey == authorKey && e.DayID >= since && e.AckedAt == nil {
			if e.FetchedAt == nil {
				stamped := now
				e.FetchedAt = &stamped
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntries) DeleteAcked(ctx context.Context, ids []string, pairID, authorKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var kept []*models.Entry
	var deleted int64
	for _, e := range f.entries {
		if wanted[e.ID] && e.PairID == pairID && e.AuthorKey == authorKey {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeEntries) DeleteStaleEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeNotifier records notify calls and signals on a channel
type fakeNotifier struct {
	calls chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan string, 8)}
}

func (f *fakeNotifier) Notify(ctx context.Context, recipientKey, pairID string) {
	f.calls <- recipientKey
}

// fakeWatcher records paired events
type fakeWatcher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeWatcher) NotifyPaired(pairID, partnerPublicKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pairID+":"+partnerPublicKey)
}

func (f *fakeWatcher) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}
