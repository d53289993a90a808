package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/queue"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/testutil"
	"github.com/iliyamo/school-management/internal/token"
	"github.com/iliyamo/school-management/internal/utils"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	db      *sql.DB
	clock   *testClock
	events  *recorder
	codec   *token.Codec
	session *SessionManager
	onboard *Onboarding
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	clk := &testClock{t: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	codec := token.NewCodec("unit-test-secret", repository.NewRevocationRepo(db), token.WithClock(clk.now))
	hasher, err := utils.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	sm := NewSessionManager(db, codec, hasher, rec, logging.Discard(), SessionConfig{
		SelfRegisterRoles: []string{"TEACHER", "STUDENT", "PARENT"},
		PhoneRegion:       "IN",
	})
	sm.now = clk.now
	ob := NewOnboarding(db, rec, logging.Discard())
	ob.now = clk.now

	return &fixture{db: db, clock: clk, events: rec, codec: codec, session: sm, onboard: ob}
}

func (f *fixture) register(t *testing.T, email, userType string) AuthResult {
	t.Helper()
	res, err := f.session.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: "correct-horse",
		FullName: "Test Person",
		UserType: userType,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) login(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := f.session.Login(context.Background(), LoginInput{Email: email, Password: "correct-horse"})
	require.NoError(t, err)
	return res
}

func (f *fixture) unrevokedRows(t *testing.T, accountID uint64) int {
	t.Helper()
	return testutil.Count(t, f.db, "SELECT COUNT(*) FROM refresh_tokens WHERE account_id = ? AND revoked = 0", accountID)
}
