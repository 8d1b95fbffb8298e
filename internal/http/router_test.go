package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohitnawani/taskdeck/internal/config"
	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/internal/service/auth"
	"github.com/mohitnawani/taskdeck/internal/service/task"
	"github.com/mohitnawani/taskdeck/internal/service/user"
)

// memUserRepo is an in-memory UserRepository with the store's semantics.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) CreateUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	stored := *u
	r.users[u.ID] = &stored
	return nil
}

func (r *memUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) UpdateUserProfile(_ context.Context, id string, name, bio *string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if bio != nil {
		u.Bio = *bio
	}
	u.UpdatedAt = time.Now().UTC()
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) UpdateUserPassword(_ context.Context, id string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// memTaskRepo is an in-memory TaskRepository mirroring the store's filter,
// sort and pagination semantics.
type memTaskRepo struct {
	mu    sync.Mutex
	seq   int64
	items map[string]*memTask
}

type memTask struct {
	seq  int64
	task domain.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{items: make(map[string]*memTask)}
}

func (r *memTaskRepo) CreateTask(_ context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.items[t.ID] = &memTask{seq: r.seq, task: *t}
	return nil
}

func (r *memTaskRepo) GetTask(_ context.Context, ownerID, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.task.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	copied := item.task
	return &copied, nil
}

func matchesSearch(t domain.Task, needle string) bool {
	needle = strings.ToLower(needle)
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Description), needle) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func priorityRank(p domain.TaskPriority) int {
	switch p {
	case domain.TaskPriorityLow:
		return 1
	case domain.TaskPriorityMedium:
		return 2
	case domain.TaskPriorityHigh:
		return 3
	}
	return 0
}

func compareTasks(a, b domain.Task, field domain.SortField) int {
	switch field {
	case domain.SortByTitle:
		return strings.Compare(a.Title, b.Title)
	case domain.SortByPriority:
		return priorityRank(a.Priority) - priorityRank(b.Priority)
	case domain.SortByDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (r *memTaskRepo) ListTasks(_ context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*memTask
	for _, item := range r.items {
		t := item.task
		if t.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.Search != "" && !matchesSearch(t, filter.Search) {
			continue
		}
		matched = append(matched, item)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareTasks(matched[i].task, matched[j].task, filter.SortBy)
		if c == 0 {
			// Insertion order breaks ties regardless of direction.
			return matched[i].seq < matched[j].seq
		}
		if filter.Order == domain.SortDesc {
			return c > 0
		}
		return c < 0
	})
	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	out := make([]domain.Task, 0, end-start)
	for _, item := range matched[start:end] {
		out = append(out, item.task)
	}
	return out, total, nil
}

func (r *memTaskRepo) UpdateTask(_ context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.task.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	t := &item.task
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.Tags != nil {
		t.Tags = *patch.Tags
	}
	t.UpdatedAt = time.Now().UTC()
	copied := *t
	return &copied, nil
}

func (r *memTaskRepo) DeleteTask(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.task.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memTaskRepo) TaskStats(_ context.Context, ownerID string) (*domain.TaskStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats domain.TaskStats
	for _, item := range r.items {
		t := item.task
		if t.OwnerID != ownerID {
			continue
		}
		stats.Status.Total++
		switch t.Status {
		case domain.TaskStatusTodo:
			stats.Status.Todo++
		case domain.TaskStatusInProgress:
			stats.Status.InProgress++
		case domain.TaskStatusDone:
			stats.Status.Done++
		}
		switch t.Priority {
		case domain.TaskPriorityLow:
			stats.Priority.Low++
		case domain.TaskPriorityMedium:
			stats.Priority.Medium++
		case domain.TaskPriorityHigh:
			stats.Priority.High++
		}
	}
	return &stats, nil
}

type responseEnvelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors"`
}

func newTestRouter(t *testing.T, cfg config.Config) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := newMemUserRepo()
	tasks := newMemTaskRepo()
	r := NewRouter(
		logger,
		auth.New(users, logger, cfg),
		user.New(users, logger),
		task.New(tasks, nil, logger),
		NewMemoryRateLimiter(),
		cfg,
		nil,
	)
	t.Cleanup(r.Close)
	return r
}

func defaultTestConfig() config.Config {
	return config.Config{
		JWTSecret:       "test-secret",
		TokenTTL:        time.Hour,
		RateLimitMax:    1000,
		RateLimitWindow: time.Minute,
	}
}

func doRequest(t *testing.T, r *Router, method, path, token string, body any) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env responseEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response envelope: %v (body %q)", err, rec.Body.String())
		}
	}
	return rec, env
}

func registerUser(t *testing.T, r *Router, name, email string) string {
	t.Helper()
	rec, env := doRequest(t, r, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "s3cret!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	if data.Token == "" {
		t.Fatal("register returned empty token")
	}
	return data.Token
}

func createTask(t *testing.T, r *Router, token string, body map[string]any) domain.Task {
	t.Helper()
	rec, env := doRequest(t, r, http.MethodPost, "/tasks", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status %d body %s", rec.Code, rec.Body.String())
	}
	var created domain.Task
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	return created
}

func TestRegisterAndLogin(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	registerUser(t, r, "Ada", "ada@example.com")

	rec, env := doRequest(t, r, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "s3cret!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	if !env.Success {
		t.Error("login envelope not marked successful")
	}

	rec, _ = doRequest(t, r, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d, want 401", rec.Code)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	registerUser(t, r, "Ada", "ada@example.com")
	rec, env := doRequest(t, r, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Imposter", "email": "ada@example.com", "password": "s3cret!",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", rec.Code)
	}
	if env.Success {
		t.Error("conflict envelope marked successful")
	}
}

func TestRegisterValidationErrorsListed(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	rec, env := doRequest(t, r, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "", "email": "nope", "password": "ab",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if len(env.Errors) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(env.Errors), env.Errors)
	}
}

func TestTaskLifecycle(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	created := createTask(t, r, token, map[string]any{"title": "Buy milk"})
	if created.Status != domain.TaskStatusTodo {
		t.Errorf("default status %q, want todo", created.Status)
	}
	if created.Priority != domain.TaskPriorityMedium {
		t.Errorf("default priority %q, want medium", created.Priority)
	}

	rec, env := doRequest(t, r, http.MethodGet, "/tasks?status=todo", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var page domain.TaskPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || len(page.Tasks) != 1 || page.Tasks[0].Title != "Buy milk" {
		t.Fatalf("unexpected listing: %+v", page)
	}

	rec, env = doRequest(t, r, http.MethodPut, "/tasks/"+created.ID, token, map[string]any{"status": "done"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	var updated domain.Task
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode updated task: %v", err)
	}
	if updated.Status != domain.TaskStatusDone {
		t.Errorf("status %q, want done", updated.Status)
	}

	rec, env = doRequest(t, r, http.MethodGet, "/tasks/stats/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var stats domain.TaskStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Status.Done != 1 || stats.Status.Todo != 0 || stats.Status.Total != 1 {
		t.Errorf("stats %+v, want done=1 todo=0 total=1", stats.Status)
	}

	rec, _ = doRequest(t, r, http.MethodDelete, "/tasks/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec, _ = doRequest(t, r, http.MethodGet, "/tasks/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", rec.Code)
	}
	// Deleting again reports not found rather than succeeding twice.
	rec, _ = doRequest(t, r, http.MethodDelete, "/tasks/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: status %d, want 404", rec.Code)
	}
}

func TestTasksAreInvisibleAcrossOwners(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	tokenA := registerUser(t, r, "Ada", "ada@example.com")
	tokenB := registerUser(t, r, "Bob", "bob@example.com")

	created := createTask(t, r, tokenA, map[string]any{"title": "Ada's secret"})

	rec, _ := doRequest(t, r, http.MethodGet, "/tasks/"+created.ID, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign get: status %d, want 404", rec.Code)
	}
	rec, _ = doRequest(t, r, http.MethodPut, "/tasks/"+created.ID, tokenB, map[string]any{"status": "done"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign update: status %d, want 404", rec.Code)
	}
	rec, _ = doRequest(t, r, http.MethodDelete, "/tasks/"+created.ID, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete: status %d, want 404", rec.Code)
	}

	rec, env := doRequest(t, r, http.MethodGet, "/tasks", tokenB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var page domain.TaskPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("foreign task leaked into listing: %+v", page)
	}

	// The owner still sees the task untouched.
	rec, _ = doRequest(t, r, http.MethodGet, "/tasks/"+created.ID, tokenA, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("owner get after foreign attempts: status %d", rec.Code)
	}
}

func TestListPaginationAndSorting(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	for i := 1; i <= 12; i++ {
		createTask(t, r, token, map[string]any{"title": fmt.Sprintf("task-%02d", i)})
	}

	rec, env := doRequest(t, r, http.MethodGet, "/tasks?page=2&limit=5&sortBy=title&order=asc", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var page domain.TaskPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 12 || page.Pages != 3 || page.Page != 2 || page.PageSize != 5 {
		t.Fatalf("pagination metadata %+v, want total=12 pages=3 page=2 size=5", page)
	}
	if len(page.Tasks) != 5 {
		t.Fatalf("page holds %d tasks, want 5", len(page.Tasks))
	}
	if page.Tasks[0].Title != "task-06" || page.Tasks[4].Title != "task-10" {
		t.Errorf("title ascending page 2 spans %q..%q, want task-06..task-10",
			page.Tasks[0].Title, page.Tasks[4].Title)
	}

	// Last page carries the remainder.
	rec, env = doRequest(t, r, http.MethodGet, "/tasks?page=3&limit=5&sortBy=title&order=asc", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Tasks) != 2 {
		t.Errorf("last page holds %d tasks, want 2", len(page.Tasks))
	}
}

func TestListPrioritySortUsesRankOrder(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	createTask(t, r, token, map[string]any{"title": "m", "priority": "medium"})
	createTask(t, r, token, map[string]any{"title": "h", "priority": "high"})
	createTask(t, r, token, map[string]any{"title": "l", "priority": "low"})

	rec, env := doRequest(t, r, http.MethodGet, "/tasks?sortBy=priority&order=asc", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var page domain.TaskPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Tasks) != 3 {
		t.Fatalf("listing holds %d tasks, want 3", len(page.Tasks))
	}
	got := make([]string, 0, len(page.Tasks))
	for _, item := range page.Tasks {
		got = append(got, string(item.Priority))
	}
	want := []string{"low", "medium", "high"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priority ascending order %v, want %v", got, want)
		}
	}
}

func TestListSearchMatchesTitleDescriptionAndTags(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	createTask(t, r, token, map[string]any{"title": "Buy milk"})
	createTask(t, r, token, map[string]any{"title": "Call plumber", "description": "kitchen sink leaks milk-white water"})
	createTask(t, r, token, map[string]any{"title": "Errands", "tags": []string{"milk-run"}})
	createTask(t, r, token, map[string]any{"title": "Unrelated"})

	rec, env := doRequest(t, r, http.MethodGet, "/tasks?search=MILK", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var page domain.TaskPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("search matched %d tasks, want 3 (title, description, tag)", page.Total)
	}
}

func TestListRejectsInvalidQueryParameters(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	rec, env := doRequest(t, r, http.MethodGet, "/tasks?status=doing&limit=500&sortBy=updatedAt", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if len(env.Errors) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(env.Errors), env.Errors)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/users/profile"},
		{http.MethodGet, "/tasks"},
		{http.MethodGet, "/tasks/some-id"},
		{http.MethodGet, "/tasks/stats/summary"},
	}
	for _, p := range paths {
		rec, env := doRequest(t, r, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status %d, want 401", p.method, p.path, rec.Code)
		}
		if env.Message != "authentication required" {
			t.Errorf("%s %s: message %q", p.method, p.path, env.Message)
		}
	}

	rec, _ := doRequest(t, r, http.MethodGet, "/tasks", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", rec.Code)
	}
}

func TestProfileAndPasswordEndpoints(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	rec, env := doRequest(t, r, http.MethodPut, "/users/profile", token, map[string]any{"bio": "mathematician"})
	if rec.Code != http.StatusOK {
		t.Fatalf("profile update: status %d body %s", rec.Code, rec.Body.String())
	}
	var account domain.User
	if err := json.Unmarshal(env.Data, &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.Bio != "mathematician" || account.Name != "Ada" {
		t.Errorf("partial update result %+v", account)
	}

	rec, _ = doRequest(t, r, http.MethodPut, "/users/password", token, map[string]string{
		"currentPassword": "wrong", "newPassword": "brand-new",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: status %d, want 401", rec.Code)
	}

	rec, _ = doRequest(t, r, http.MethodPut, "/users/password", token, map[string]string{
		"currentPassword": "s3cret!", "newPassword": "brand-new",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("password change: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, r, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "brand-new",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password: status %d", rec.Code)
	}
}

func TestRateLimitEnforcedPerIP(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimitMax = 3
	cfg.RateLimitWindow = time.Hour
	r := newTestRouter(t, cfg)

	body := map[string]string{"email": "ada@example.com", "password": "wrong"}
	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		lastRec, _ = doRequest(t, r, http.MethodPost, "/auth/login", "", body)
		if lastRec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rejected before limit reached", i+1)
		}
	}

	rec, env := doRequest(t, r, http.MethodPost, "/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit request: status %d, want 429", rec.Code)
	}
	if env.Message != "too many requests, please try again later" {
		t.Errorf("limit message %q", env.Message)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("X-RateLimit-Limit %q, want 3", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining %q, want 0", got)
	}

	// A different source address has its own quota.
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:5000"
	other := httptest.NewRecorder()
	r.ServeHTTP(other, req)
	if other.Code == http.StatusTooManyRequests {
		t.Error("fresh address shares the exhausted quota")
	}
}

func TestHealthzReflectsDatabaseState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := defaultTestConfig()
	users := newMemUserRepo()
	tasks := newMemTaskRepo()

	build := func(dbHealth func(context.Context) error) *Router {
		r := NewRouter(logger, auth.New(users, logger, cfg), user.New(users, logger),
			task.New(tasks, nil, logger), NewMemoryRateLimiter(), cfg, dbHealth)
		t.Cleanup(r.Close)
		return r
	}

	healthy := build(func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy: status %d, want 200", rec.Code)
	}

	degraded := build(func(context.Context) error { return fmt.Errorf("connection refused") })
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: status %d, want 503", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())
	token := registerUser(t, r, "Ada", "ada@example.com")

	rec, _ := doRequest(t, r, http.MethodPatch, "/tasks", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH /tasks: status %d, want 405", rec.Code)
	}
	rec, _ = doRequest(t, r, http.MethodDelete, "/auth/register", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /auth/register: status %d, want 405", rec.Code)
	}
}
