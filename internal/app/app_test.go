package app

import (
	"bytes"
	"context"
	"encoding/json"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/irt"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/database"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

const testSecret = "app-test-secret-0123456789abcdefghij"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Mode: "test"},
		JWT:    config.JWTConfig{Secret: testSecret},
		Scoring: config.ScoringConfig{
			MaxIterations:  irt.DefaultMaxIterations,
			Tolerance:      irt.DefaultTolerance,
			LearningRate:   irt.DefaultLearningRate,
			SmoothingAlpha: irt.DefaultSmoothingAlpha,
			AbilityMin:     irt.MinAbility,
			AbilityMax:     irt.MaxAbility,
			LockTTL:        5 * time.Second,
			CacheTTL:       time.Minute,
			MaxSaveRetries: 3,
		},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
	}
}

func newTestApp(t *testing.T, withRedis bool) *App {
	t.Helper()
	db, err := database.OpenSQLite("file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	var rdb *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	a := Build(testConfig(), db, rdb)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, a *App, method, path string, userID uint, role string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
}

type createdTest struct {
	ID        string `json:"id"`
	Questions []struct {
		ID     string `json:"id"`
		Answer string `json:"answer"`
	} `json:"questions"`
}

func seedViaAPI(t *testing.T, a *App) createdTest {
	t.Helper()
	code, env := do(t, a, http.MethodPost, "/api/teacher/tests", 100, util.RoleTeacher, map[string]interface{}{
		"title":       "Chapter 3 review",
		"isPublished": true,
		"questions": []map[string]interface{}{
			{"questionType": "single_choice", "content": "Q1", "answer": "A", "topic": "algebra"},
			{"questionType": "single_choice", "content": "Q2", "answer": "B", "topic": "algebra"},
			{"questionType": "true_false", "content": "Q3", "answer": "true", "topic": "logic"},
			{"questionType": "single_choice", "content": "Q4", "answer": "C", "topic": "fractions"},
			{"questionType": "essay", "content": "Explain"},
		},
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create test status = %d (%s)", code, env.Message)
	}
	var ct createdTest
	decode(t, env.Data, &ct)
	for _, q := range ct.Questions {
		if q.Answer != "" {
			t.Fatal("answer key leaked in response")
		}
	}
	return ct
}

func TestAPI_SubmitFlow(t *testing.T) {
	for _, withRedis := range []bool{false, true} {
		name := "local-lock"
		if withRedis {
			name = "redis"
		}
		t.Run(name, func(t *testing.T) {
			a := newTestApp(t, withRedis)
			ct := seedViaAPI(t, a)
			const student = 5

			if code, _ := do(t, a, http.MethodPost, "/api/students/me/profile", student, util.RoleStudent, nil, nil); code != http.StatusCreated {
				t.Fatalf("onboard status = %d", code)
			}
			if code, _ := do(t, a, http.MethodPost, "/api/students/me/profile", student, util.RoleStudent, nil, nil); code != http.StatusOK {
				t.Fatalf("second onboard status = %d", code)
			}

			answers := map[string]string{
				ct.Questions[0].ID: "A",
				ct.Questions[1].ID: "B",
				ct.Questions[2].ID: "true",
				ct.Questions[3].ID: "D",
				ct.Questions[4].ID: "long text",
			}
			submit := func() (int, envelope) {
				return do(t, a, http.MethodPost, "/api/tests/"+ct.ID+"/submit", student, util.RoleStudent,
					map[string]interface{}{"answers": answers},
					map[string]string{util.HeaderIdempotencyKey: "attempt-abc"})
			}

			code, env := submit()
			if code != http.StatusOK {
				t.Fatalf("submit status = %d (%s)", code, env.Message)
			}
			var res struct {
				AttemptID  string  `json:"attemptId"`
				Score      float64 `json:"score"`
				NewAbility float64 `json:"newAbility"`
				Grade      string  `json:"grade"`
				Replayed   bool    `json:"replayed"`
				Items      []struct {
					Gradable bool `json:"gradable"`
					Correct  bool `json:"correct"`
				} `json:"items"`
			}
			decode(t, env.Data, &res)
			if res.AttemptID != "attempt-abc" || res.Score != 0.75 || res.Grade != "C" || res.Replayed || len(res.Items) != 5 {
				t.Fatalf("result = %+v", res)
			}
			if !(res.NewAbility > 0 && res.NewAbility < irt.MaxAbility) {
				t.Errorf("ability = %v", res.NewAbility)
			}

			code, env = submit()
			if code != http.StatusOK {
				t.Fatalf("resubmit status = %d", code)
			}
			var replay struct {
				Replayed   bool    `json:"replayed"`
				NewAbility float64 `json:"newAbility"`
			}
			decode(t, env.Data, &replay)
			if !replay.Replayed || replay.NewAbility != res.NewAbility {
				t.Errorf("replay = %+v", replay)
			}

			code, env = do(t, a, http.MethodGet, "/api/students/me/weak-topics", student, util.RoleStudent, nil, nil)
			var weak []struct {
				Topic        string `json:"topic"`
				MistakeCount int    `json:"mistakeCount"`
			}
			decode(t, env.Data, &weak)
			if code != http.StatusOK || len(weak) != 1 || weak[0].Topic != "fractions" || weak[0].MistakeCount != 1 {
				t.Errorf("weak topics = %+v", weak)
			}

			code, env = do(t, a, http.MethodGet, "/api/students/me/attempts?limit=5", student, util.RoleStudent, nil, nil)
			var page util.PageResponse
			decode(t, env.Data, &page)
			if code != http.StatusOK || page.Total != 1 || page.Limit != 5 {
				t.Errorf("attempts page = %+v", page)
			}

			code, env = do(t, a, http.MethodGet, "/api/students/me/profile", student, util.RoleStudent, nil, nil)
			var profile struct {
				Ability         float64 `json:"ability"`
				TotalTestsTaken int     `json:"totalTestsTaken"`
				Band            string  `json:"band"`
			}
			decode(t, env.Data, &profile)
			if code != http.StatusOK || profile.TotalTestsTaken != 1 || profile.Ability != res.NewAbility || profile.Band == "" {
				t.Errorf("profile = %+v", profile)
			}

			code, env = do(t, a, http.MethodGet, "/api/students/me/recommendation?limit=2", student, util.RoleStudent, nil, nil)
			var rec struct {
				Questions []json.RawMessage `json:"questions"`
			}
			decode(t, env.Data, &rec)
			if code != http.StatusOK || len(rec.Questions) != 2 {
				t.Errorf("recommendation status %d, %d questions", code, len(rec.Questions))
			}
		})
	}
}

func TestAPI_Errors(t *testing.T) {
	a := newTestApp(t, false)
	ct := seedViaAPI(t, a)
	do(t, a, http.MethodPost, "/api/students/me/profile", 6, util.RoleStudent, nil, nil)

	cases := []struct {
		name    string
		method  string
		path    string
		userID  uint
		role    string
		body    interface{}
		headers map[string]string
		want    int
	}{
		{"no token", http.MethodGet, "/api/students/me/profile", 0, "", nil, nil, http.StatusUnauthorized},
		{"no profile", http.MethodGet, "/api/students/me/profile", 77, util.RoleStudent, nil, nil, http.StatusNotFound},
		{"unknown test", http.MethodPost, "/api/tests/missing/submit", 6, util.RoleStudent, map[string]interface{}{"answers": map[string]string{}}, nil, http.StatusNotFound},
		{"foreign question", http.MethodPost, "/api/tests/" + ct.ID + "/submit", 6, util.RoleStudent, map[string]interface{}{"answers": map[string]string{"nope": "A"}}, nil, http.StatusBadRequest},
		{"key mismatch", http.MethodPost, "/api/tests/" + ct.ID + "/submit", 6, util.RoleStudent, map[string]interface{}{"attemptId": "a"}, map[string]string{util.HeaderIdempotencyKey: "b"}, http.StatusBadRequest},
		{"student creates test", http.MethodPost, "/api/teacher/tests", 6, util.RoleStudent, map[string]interface{}{"title": "x"}, nil, http.StatusForbidden},
		{"invalid test body", http.MethodPost, "/api/teacher/tests", 100, util.RoleTeacher, map[string]interface{}{"title": "x"}, nil, http.StatusBadRequest},
		{"diagnostic without question", http.MethodPost, "/api/tests/" + ct.ID + "/diagnostic", 6, util.RoleStudent, map[string]interface{}{"answer": "A"}, nil, http.StatusBadRequest},
		{"teacher deletes profile", http.MethodDelete, "/api/admin/students/6/profile", 100, util.RoleTeacher, nil, nil, http.StatusForbidden},
		{"admin deletes missing profile", http.MethodDelete, "/api/admin/students/404/profile", 1, util.RoleAdmin, nil, nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := do(t, a, tc.method, tc.path, tc.userID, tc.role, tc.body, tc.headers)
			if code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", code, tc.want, env.Message)
			}
		})
	}

	// 同一个幂等键被其他学生使用
	do(t, a, http.MethodPost, "/api/students/me/profile", 8, util.RoleStudent, nil, nil)
	body := map[string]interface{}{"answers": map[string]string{ct.Questions[0].ID: "A"}, "attemptId": "shared-key"}
	if code, _ := do(t, a, http.MethodPost, "/api/tests/"+ct.ID+"/submit", 6, util.RoleStudent, body, nil); code != http.StatusOK {
		t.Fatalf("first submit status = %d", code)
	}
	if code, _ := do(t, a, http.MethodPost, "/api/tests/"+ct.ID+"/submit", 8, util.RoleStudent, body, nil); code != http.StatusConflict {
		t.Fatalf("reused key status = %d, want 409", code)
	}

	if code, _ := do(t, a, http.MethodDelete, "/api/admin/students/6/profile", 1, util.RoleAdmin, nil, nil); code != http.StatusNoContent {
		t.Fatalf("admin delete status = %d", code)
	}
}

func TestAPI_Diagnostic(t *testing.T) {
	a := newTestApp(t, false)
	ct := seedViaAPI(t, a)
	do(t, a, http.MethodPost, "/api/students/me/profile", 3, util.RoleStudent, nil, nil)

	code, env := do(t, a, http.MethodPost, "/api/tests/"+ct.ID+"/diagnostic", 3, util.RoleStudent,
		map[string]interface{}{"questionId": ct.Questions[0].ID, "answer": "A"}, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Message)
	}
	var res struct {
		SessionID   string  `json:"sessionId"`
		GradedCount int     `json:"gradedCount"`
		NewAbility  float64 `json:"newAbility"`
	}
	decode(t, env.Data, &res)
	if res.GradedCount != 1 || res.NewAbility <= 0 || res.SessionID == "" {
		t.Fatalf("result = %+v", res)
	}

	// 同一会话继续作答，Idempotency-Key 头只作本题的幂等键
	headers := map[string]string{util.HeaderIdempotencyKey: "diag-answer-2"}
	code, env = do(t, a, http.MethodPost, "/api/tests/"+ct.ID+"/diagnostic", 3, util.RoleStudent,
		map[string]interface{}{"sessionId": res.SessionID, "questionId": ct.Questions[1].ID, "answer": "zzz"}, headers)
	if code != http.StatusOK {
		t.Fatalf("second answer status = %d (%s)", code, env.Message)
	}
	decode(t, env.Data, &res)
	if res.GradedCount != 2 {
		t.Errorf("session graded = %d, want 2", res.GradedCount)
	}

	code, env = do(t, a, http.MethodGet, "/api/students/me/profile", 3, util.RoleStudent, nil, nil)
	var profile struct {
		TotalTestsTaken     int     `json:"totalTestsTaken"`
		AverageScorePercent float64 `json:"averageScorePercent"`
	}
	decode(t, env.Data, &profile)
	if code != http.StatusOK || profile.TotalTestsTaken != 1 || profile.AverageScorePercent != 50 {
		t.Errorf("profile = %+v, want one diagnostic test at 50%%", profile)
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	for _, withRedis := range []bool{false, true} {
		a := newTestApp(t, withRedis)
		code, env := do(t, a, http.MethodGet, "/api/health", 0, "", nil, nil)
		if code != http.StatusOK {
			t.Fatalf("health status = %d", code)
		}
		var health struct {
			Components map[string]string `json:"components"`
		}
		decode(t, env.Data, &health)
		wantRedis := "disabled"
		if withRedis {
			wantRedis = "up"
		}
		if health.Components["database"] != "up" || health.Components["redis"] != wantRedis {
			t.Errorf("components = %v", health.Components)
		}
	}

	a := newTestApp(t, false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestReloadConfigUpdatesScoringSettings(t *testing.T) {
	a := newTestApp(t, false)
	cfg := testConfig()
	cfg.Scoring.MaxIterations = 7
	cfg.Scoring.SmoothingAlpha = 0.3
	a.reloadConfig(cfg)

	got := a.services.scoring.Settings()
	if got.MaxIterations != 7 || got.SmoothingAlpha != 0.3 {
		t.Fatalf("settings = %+v", got)
	}
}
