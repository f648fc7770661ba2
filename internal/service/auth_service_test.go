package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
	"github.com/microauthx/microauthx/internal/repository"
)

// --- Mock repository ---

type mockUserRepo struct {
	byID       map[string]*models.User
	byEmail    map[string]*models.User
	byUsername map[string]*models.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byID:       make(map[string]*models.User),
		byEmail:    make(map[string]*models.User),
		byUsername: make(map[string]*models.User),
	}
}

func (m *mockUserRepo) Insert(ctx context.Context, user *models.User) error {
	// The unique index is the authoritative conflict arbiter.
	if m.byEmail[user.Email] != nil || m.byUsername[user.Username] != nil {
		return repository.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user
	m.byUsername[user.Username] = user
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.byEmail[email], nil
}

func (m *mockUserRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	if u := m.byEmail[email]; u != nil {
		return u, nil
	}
	return m.byUsername[username], nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.byID)), nil
}

func (m *mockUserRepo) CountCreatedSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	for _, u := range m.byID {
		if !u.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func newTestService(repo repository.UserRepository) AuthService {
	return NewAuthService(repo, Config{BcryptCost: bcrypt.MinCost, MinPasswordLength: 6})
}

// --- Signup ---

func TestSignupSucceedsOnceThenConflicts(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	req := SignupRequest{Username: "alice", Email: "Alice@Example.com", Password: "secret1"}

	identity, err := svc.Signup(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "alice@example.com", identity.Email, "email is normalized to lowercase")
	assert.False(t, identity.CreatedAt.IsZero())
	assert.Nil(t, identity.LastLogin)

	// Identical second attempt conflicts.
	_, err = svc.Signup(ctx, req)
	require.Error(t, err)
	apiErr := apierrors.AsAPIError(err)
	assert.Equal(t, "conflict", apiErr.Code)
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestSignupConflictIsCaseInsensitiveOnEmail(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, SignupRequest{Username: "someone", Email: "ALICE@EXAMPLE.COM", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.AsAPIError(err).Code)
}

func TestSignupConflictSurfacedByInsertRace(t *testing.T) {
	// Simulate a concurrent insert landing between the existence check and
	// ours: the store-level duplicate signal must become a conflict.
	svc := newTestService(&racingRepo{mockUserRepo: newMockUserRepo()})

	_, err := svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "bob@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.AsAPIError(err).Code)
}

type racingRepo struct {
	*mockUserRepo
}

func (r *racingRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	return nil, nil // the pre-check sees nothing
}

func (r *racingRepo) Insert(ctx context.Context, user *models.User) error {
	return repository.ErrDuplicate // but the unique index says otherwise
}

func TestSignupValidation(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SignupRequest
	}{
		{"missing username", SignupRequest{Email: "a@example.com", Password: "secret1"}},
		{"missing email", SignupRequest{Username: "alice", Password: "secret1"}},
		{"missing password", SignupRequest{Username: "alice", Email: "a@example.com"}},
		{"short password", SignupRequest{Username: "alice", Email: "a@example.com", Password: "abc"}},
		{"malformed email", SignupRequest{Username: "alice", Email: "not-an-email", Password: "secret1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)

			// No record may be created on a validation failure.
			n, _ := repo.Count(ctx)
			assert.Zero(t, n)
		})
	}
}

// --- Login ---

func TestLoginSuccessUpdatesLastLogin(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	first, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, first.LastLogin)
	assert.Equal(t, "alice", first.Username)

	second, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, second.LastLogin)
	assert.False(t, second.LastLogin.Before(*first.LastLogin))
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Email: "Alice@Example.com", Password: "secret1"})
	require.NoError(t, err)

	identity, err := svc.Login(ctx, LoginRequest{Email: "ALICE@example.COM", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "alice@example.com", identity.Email)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, unknownErr := svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	require.Error(t, unknownErr)

	_, wrongErr := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"})
	require.Error(t, wrongErr)

	// Same generic message and status for both failure modes.
	unknownAPI := apierrors.AsAPIError(unknownErr)
	wrongAPI := apierrors.AsAPIError(wrongErr)
	assert.Equal(t, unknownAPI.Message, wrongAPI.Message)
	assert.Equal(t, 401, unknownAPI.StatusCode)
	assert.Equal(t, 401, wrongAPI.StatusCode)
}

func TestLoginValidation(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com"})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)

	_, err = svc.Login(ctx, LoginRequest{Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierrors.AsAPIError(err).Code)
}

// --- Stats ---

func TestStatsCountsRecentUsers(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	old := &models.User{
		Username:     "old",
		Email:        "old@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC().AddDate(0, 0, -30),
	}
	require.NoError(t, repo.Insert(ctx, old))

	_, err := svc.Signup(ctx, SignupRequest{Username: "new", Email: "new@example.com", Password: "secret1"})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.NewUsersLast7Day)
}
