package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

type fakePortfolioRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]PortfolioRecord
}

func newFakePortfolioRepo() *fakePortfolioRepo {
	return &fakePortfolioRepo{nextID: 1, byID: map[int64]PortfolioRecord{}}
}

func (f *fakePortfolioRepo) Create(_ context.Context, userID int64) (*PortfolioRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := PortfolioRecord{ID: f.nextID, UserID: userID}
	f.byID[p.ID] = p
	f.nextID++
	return &p, nil
}

func (f *fakePortfolioRepo) Get(_ context.Context, id int64) (*PortfolioRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *fakePortfolioRepo) ListByUser(_ context.Context, userID int64) ([]PortfolioRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []PortfolioRecord
	for id := int64(1); id < f.nextID; id++ {
		if p, ok := f.byID[id]; ok && p.UserID == userID {
			items = append(items, p)
		}
	}
	return items, nil
}

func (f *fakePortfolioRepo) List(_ context.Context, page, perPage int) ([]PortfolioRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []PortfolioRecord
	for id := int64(1); id < f.nextID; id++ {
		if p, ok := f.byID[id]; ok {
			items = append(items, p)
		}
	}
	return items, len(items), nil
}

func (f *fakePortfolioRepo) UpdateOwner(_ context.Context, id, userID int64) (*PortfolioRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	p.UserID = userID
	f.byID[id] = p
	return &p, nil
}

func (f *fakePortfolioRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

type fakeExperienceRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]Experience
}

func newFakeExperienceRepo() *fakeExperienceRepo {
	return &fakeExperienceRepo{nextID: 1, byID: map[int64]Experience{}}
}

func applyExperienceInput(e *Experience, in ExperienceInput) {
	if in.Position != nil {
		e.Position = *in.Position
	}
	if in.Employer != nil {
		e.Employer = *in.Employer
	}
	if in.City != nil {
		e.City = *in.City
	}
	if in.Country != nil {
		e.Country = *in.Country
	}
	if in.StartDate != nil {
		e.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		e.EndDate = in.EndDate
	}
	if in.Responsibilities != nil {
		e.Responsibilities = *in.Responsibilities
	}
	if in.Ongoing != nil {
		e.Ongoing = *in.Ongoing
	}
	if e.Ongoing {
		e.EndDate = nil
	}
}

func (f *fakeExperienceRepo) Create(_ context.Context, portfolioID int64, in ExperienceInput) (*Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := Experience{ID: f.nextID, PortfolioID: portfolioID}
	applyExperienceInput(&e, in)
	f.byID[e.ID] = e
	f.nextID++
	return &e, nil
}

func (f *fakeExperienceRepo) Get(_ context.Context, id int64) (*Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeExperienceRepo) ListByPortfolio(_ context.Context, portfolioID int64) ([]Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Experience
	for id := int64(1); id < f.nextID; id++ {
		if e, ok := f.byID[id]; ok && e.PortfolioID == portfolioID {
			items = append(items, e)
		}
	}
	return items, nil
}

func (f *fakeExperienceRepo) ListAll(_ context.Context) ([]Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Experience
	for id := int64(1); id < f.nextID; id++ {
		if e, ok := f.byID[id]; ok {
			items = append(items, e)
		}
	}
	return items, nil
}

func (f *fakeExperienceRepo) Update(_ context.Context, id int64, in ExperienceInput) (*Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	applyExperienceInput(&e, in)
	f.byID[id] = e
	return &e, nil
}

func (f *fakeExperienceRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

type fakeEducationRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]Education
}

func newFakeEducationRepo() *fakeEducationRepo {
	return &fakeEducationRepo{nextID: 1, byID: map[int64]Education{}}
}

func applyEducationInput(e *Education, in EducationInput) {
	if in.TitleOfQualification != nil {
		e.TitleOfQualification = *in.TitleOfQualification
	}
	if in.Training != nil {
		e.Training = *in.Training
	}
	if in.City != nil {
		e.City = *in.City
	}
	if in.Country != nil {
		e.Country = *in.Country
	}
	if in.StartDate != nil {
		e.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		e.EndDate = in.EndDate
	}
	if in.Ongoing != nil {
		e.Ongoing = *in.Ongoing
	}
	if e.Ongoing {
		e.EndDate = nil
	}
}

func (f *fakeEducationRepo) Create(_ context.Context, portfolioID int64, in EducationInput) (*Education, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := Education{ID: f.nextID, PortfolioID: portfolioID}
	applyEducationInput(&e, in)
	f.byID[e.ID] = e
	f.nextID++
	return &e, nil
}

func (f *fakeEducationRepo) Get(_ context.Context, id int64) (*Education, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeEducationRepo) ListByPortfolio(_ context.Context, portfolioID int64) ([]Education, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Education
	for id := int64(1); id < f.nextID; id++ {
		if e, ok := f.byID[id]; ok && e.PortfolioID == portfolioID {
			items = append(items, e)
		}
	}
	return items, nil
}

func (f *fakeEducationRepo) ListAll(_ context.Context) ([]Education, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Education
	for id := int64(1); id < f.nextID; id++ {
		if e, ok := f.byID[id]; ok {
			items = append(items, e)
		}
	}
	return items, nil
}

func (f *fakeEducationRepo) Update(_ context.Context, id int64, in EducationInput) (*Education, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	applyEducationInput(&e, in)
	f.byID[id] = e
	return &e, nil
}

func (f *fakeEducationRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func newTestRouter(t *testing.T, limiter *LoginLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := Config{AllowedOrigins: []string{"http://localhost:3000"}}
	codec := NewTokenCodec("test-secret", time.Hour)
	users := newFakeUserRepo()
	auth := NewAuthenticator(users, codec)
	return NewRouter(cfg, auth, codec,
		users, newFakePortfolioRepo(), newFakeExperienceRepo(), newFakeEducationRepo(), limiter)
}

func doRequest(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func loginFor(t *testing.T, r *gin.Engine, email, password string) LoginResult {
	t.Helper()
	w := doRequest(r, "POST", "/api/auth/login", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d body %s", w.Code, w.Body.String())
	}
	var result LoginResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return result
}

func TestEndToEndAuthFlow(t *testing.T) {
	r := newTestRouter(t, nil)

	// Register.
	w := doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register status %d body %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "pw1secret") || strings.Contains(w.Body.String(), "password") {
		t.Fatalf("register response leaks password material: %s", w.Body.String())
	}

	// Login.
	result := loginFor(t, r, "a@x.com", "pw1secret")
	if result.TokenType != "Bearer" || result.AccessToken == "" || result.Email != "a@x.com" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	// Authenticated read.
	w = doRequest(r, "GET", "/api/users", "", "Bearer "+result.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated GET /api/users status %d body %s", w.Code, w.Body.String())
	}

	// No header: rejected before any handler, empty body.
	w = doRequest(r, "GET", "/api/users", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("401 body should be empty, got %q", w.Body.String())
	}

	// Garbage token: same outcome.
	w = doRequest(r, "GET", "/api/users", "", "Bearer garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("401 body should be empty, got %q", w.Body.String())
	}

	// Wrong scheme counts as missing.
	w = doRequest(r, "GET", "/api/users", "", "Basic abc")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: expected 401, got %d", w.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")
	result := loginFor(t, r, "a@x.com", "pw1secret")

	w := doRequest(r, "POST", "/api/auth/validate", "", "Bearer "+result.AccessToken)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "true" {
		t.Fatalf("valid token: expected 200 true, got %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, "POST", "/api/auth/validate", "", "Bearer garbage")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "false" {
		t.Fatalf("garbage token: expected 200 false, got %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, "POST", "/api/auth/validate", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing header: expected 400, got %d", w.Code)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doRequest(r, "POST", "/api/auth/register", `{"email":"not-an-email","password":"pw1secret"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad email: expected 400, got %d", w.Code)
	}

	w = doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", w.Code)
	}

	w = doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}
	w = doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r := newTestRouter(t, nil)

	doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")

	w := doRequest(r, "POST", "/api/auth/login", `{"email":"a@x.com","password":"wrong"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}
	wrongPw := w.Body.String()

	w = doRequest(r, "POST", "/api/auth/login", `{"email":"nobody@x.com","password":"pw1secret"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: expected 401, got %d", w.Code)
	}
	// Same body for both failures: the response reveals nothing about which
	// field was wrong.
	if w.Body.String() != wrongPw {
		t.Fatalf("login failure bodies differ: %q vs %q", wrongPw, w.Body.String())
	}
}

func TestPortfolioAndExperienceFlow(t *testing.T) {
	r := newTestRouter(t, nil)

	doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")
	token := "Bearer " + loginFor(t, r, "a@x.com", "pw1secret").AccessToken

	// Unknown owner.
	w := doRequest(r, "POST", "/api/portfolios/999", "", token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("portfolio for unknown user: expected 404, got %d", w.Code)
	}

	// Create portfolio for registered user (id 1).
	w = doRequest(r, "POST", "/api/portfolios/1", "", token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create portfolio: expected 201, got %d body %s", w.Code, w.Body.String())
	}

	// Ongoing experience: a supplied endDate must be discarded.
	w = doRequest(r, "POST", "/api/experiences/1",
		`{"position":"Engineer","employer":"ACME","startDate":"2023-01-15","endDate":"2024-01-15","ongoing":true}`, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create experience: expected 201, got %d body %s", w.Code, w.Body.String())
	}
	var exp Experience
	if err := json.Unmarshal(w.Body.Bytes(), &exp); err != nil {
		t.Fatalf("decode experience: %v", err)
	}
	if !exp.Ongoing || exp.EndDate != nil {
		t.Fatalf("ongoing experience must have no end date: %+v", exp)
	}
	if exp.StartDate == nil || exp.StartDate.Format("2006-01-02") != "2023-01-15" {
		t.Fatalf("unexpected start date: %+v", exp.StartDate)
	}

	// Missing required field.
	w = doRequest(r, "POST", "/api/experiences/1", `{"employer":"ACME"}`, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("experience without position: expected 400, got %d", w.Code)
	}

	// Education under the same portfolio.
	w = doRequest(r, "POST", "/api/educations/1", `{"titleOfQualification":"BSc","training":"CS"}`, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create education: expected 201, got %d body %s", w.Code, w.Body.String())
	}

	// Nested portfolio response carries both collections.
	w = doRequest(r, "GET", "/api/portfolios/1", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("get portfolio: expected 200, got %d", w.Code)
	}
	var dto struct {
		ID          int64       `json:"id"`
		UserID      int64       `json:"userId"`
		Experiences []Experience `json:"experiences"`
		Educations  []Education  `json:"educations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	if len(dto.Experiences) != 1 || len(dto.Educations) != 1 {
		t.Fatalf("expected 1 experience and 1 education, got %d/%d", len(dto.Experiences), len(dto.Educations))
	}

	// Update experience to finished state.
	w = doRequest(r, "PUT", "/api/experiences/1", `{"ongoing":false,"endDate":"2024-06-30"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update experience: expected 200, got %d body %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &exp); err != nil {
		t.Fatalf("decode experience: %v", err)
	}
	if exp.Ongoing || exp.EndDate == nil || exp.EndDate.Format("2006-01-02") != "2024-06-30" {
		t.Fatalf("unexpected experience after update: %+v", exp)
	}

	// Delete.
	w = doRequest(r, "DELETE", "/api/experiences/1", "", token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete experience: expected 204, got %d", w.Code)
	}
	w = doRequest(r, "GET", "/api/experiences/1", "", token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted experience: expected 404, got %d", w.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	r := newTestRouter(t, nil)
	w := doRequest(r, "GET", "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
}

func TestLoginThrottled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter := NewLoginLimiter(client, 2, time.Minute)
	r := newTestRouter(t, limiter)

	doRequest(r, "POST", "/api/auth/register", `{"email":"a@x.com","password":"pw1secret"}`, "")

	// Registration consumed one attempt for this email; one login fits,
	// the next is throttled.
	body := `{"email":"a@x.com","password":"wrong"}`
	w := doRequest(r, "POST", "/api/auth/login", body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("attempt within budget: expected 401, got %d", w.Code)
	}
	w = doRequest(r, "POST", "/api/auth/login", body, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("attempt over budget: expected 429, got %d", w.Code)
	}
}
