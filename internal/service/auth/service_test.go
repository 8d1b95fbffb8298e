package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mohitnawani/taskdeck/internal/config"
	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/pkg/crypto"
	jwtpkg "github.com/mohitnawani/taskdeck/pkg/jwt"
)

type stubUserRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (r *stubUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	if _, ok := r.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = &stored
	return nil
}

func (r *stubUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) UpdateUserProfile(_ context.Context, id string, name, bio *string) (*domain.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if name != nil {
		user.Name = *name
	}
	if bio != nil {
		user.Bio = *bio
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) UpdateUserPassword(_ context.Context, id string, hash []byte) error {
	user, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func testConfig() config.Config {
	return config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterIssuesTokenForNewAccount(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	user, token, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada Lovelace",
		Email:    "  Ada@Example.COM ",
		Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email not normalized, got %q", user.Email)
	}
	if user.Role != domain.RoleUser {
		t.Errorf("expected default role %q, got %q", domain.RoleUser, user.Role)
	}
	if _, ok := repo.byEmail["ada@example.com"]; !ok {
		t.Error("account not persisted under normalized email")
	}

	claims, err := jwtpkg.Parse(token, "test-secret")
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("token user id %q, want %q", claims.UserID, user.ID)
	}
}

func TestRegisterCollectsAllFieldErrors(t *testing.T) {
	svc := New(newStubUserRepo(), testLogger(), testConfig())

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Name:     "  ",
		Email:    "not-an-address",
		Password: "ab",
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(verr.Fields), verr.Fields)
	}
	seen := map[string]bool{}
	for _, f := range verr.Fields {
		seen[f.Field] = true
	}
	for _, field := range []string{"name", "email", "password"} {
		if !seen[field] {
			t.Errorf("missing field error for %q", field)
		}
	}
}

func TestRegisterNameLengthCountsCharactersNotBytes(t *testing.T) {
	svc := New(newStubUserRepo(), testLogger(), testConfig())

	// 100 two-byte runes stay inside the character limit.
	in := RegisterInput{
		Name:     strings.Repeat("é", maxNameLength),
		Email:    "ada@example.com",
		Password: "s3cret!",
	}
	if _, _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("multibyte name at the limit rejected: %v", err)
	}

	in.Name = strings.Repeat("é", maxNameLength+1)
	in.Email = "grace@example.com"
	_, _, err := svc.Register(context.Background(), in)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for over-long name, got %v", err)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	in := RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "s3cret!"}
	if _, _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	// Same address with different casing collides with the stored account.
	in.Email = "ADA@example.com"
	_, _, err := svc.Register(context.Background(), in)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginVerifiesCredentials(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	registered, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "ada@example.com", Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, token, err := svc.Login(context.Background(), LoginInput{Email: "ADA@example.com ", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("login resolved user %q, want %q", user.ID, registered.ID)
	}
	if token == "" {
		t.Error("login issued empty token")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	if _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "ada@example.com", Password: "s3cret!",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, _, wrongPassword := svc.Login(context.Background(), LoginInput{Email: "ada@example.com", Password: "wrong"})
	_, _, unknownAccount := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "s3cret!"})

	if !errors.Is(wrongPassword, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownAccount, domain.ErrInvalidCredentials) {
		t.Errorf("unknown account: expected ErrInvalidCredentials, got %v", unknownAccount)
	}
}

func TestAuthorizeResolvesLiveAccount(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	registered, token, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "ada@example.com", Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("authorize resolved user %q, want %q", user.ID, registered.ID)
	}
}

func TestAuthorizeRejectsExpiredToken(t *testing.T) {
	svc := New(newStubUserRepo(), testLogger(), testConfig())

	token, err := jwtpkg.Generate("some-user", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate expired token: %v", err)
	}
	_, err = svc.Authorize(context.Background(), token)
	if !errors.Is(err, jwtpkg.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestAuthorizeRejectsVanishedAccount(t *testing.T) {
	svc := New(newStubUserRepo(), testLogger(), testConfig())

	// Valid token for an account the store has never seen.
	token, err := jwtpkg.Generate("ghost-user", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := svc.Authorize(context.Background(), token); err == nil {
		t.Fatal("expected error for token of nonexistent account")
	}
}

func TestAuthorizeRejectsTamperedToken(t *testing.T) {
	svc := New(newStubUserRepo(), testLogger(), testConfig())

	token, err := jwtpkg.Generate("some-user", "another-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	_, err = svc.Authorize(context.Background(), token)
	if !errors.Is(err, jwtpkg.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for wrong signature, got %v", err)
	}
}

func TestPasswordHashNeverStoredInClear(t *testing.T) {
	repo := newStubUserRepo()
	svc := New(repo, testLogger(), testConfig())

	user, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "ada@example.com", Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	stored := repo.byID[user.ID]
	if string(stored.PasswordHash) == "s3cret!" {
		t.Fatal("password stored in clear text")
	}
	if err := crypto.ComparePassword(stored.PasswordHash, "s3cret!"); err != nil {
		t.Fatalf("stored hash does not verify original password: %v", err)
	}
}
