package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wagercourt/internal/escrow"
	memoryrepository "wagercourt/internal/repository/memory"
	"wagercourt/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memoryrepository.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memoryrepository.New()
	ledger := escrow.NewMemory()
	logger := zap.NewNop()
	locks := service.NewKeyedMutex()

	disputes := service.NewDisputeService(repo, ledger, nil, nil, logger, locks, 1, time.Millisecond)
	investigations := service.NewInvestigationService(repo, disputes, nil, nil, logger, 3, time.Hour, 10, 2)
	evidence := service.NewEvidenceService(repo, disputes, investigations, logger)
	leaderboard := service.NewLeaderboardService(repo, logger, "correct", 20)
	users := service.NewUserService(repo, logger)

	h := &Handler{
		Disputes:       disputes,
		Evidence:       evidence,
		Investigations: investigations,
		Leaderboard:    leaderboard,
		Users:          users,
		Logger:         logger,
	}
	r := gin.New()
	h.Register(r, PassthroughVerifier{}, false)
	return r, repo
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return envelope.Data
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/users/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestDisputeFlowOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	// Bob opts in before alice can open a dispute against him.
	w := doJSON(t, r, http.MethodPut, "/api/v1/users/me", "bob", gin.H{
		"dispute_readiness": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("settings update: status = %d body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes", "alice", gin.H{
		"opponent": "bob",
		"title":    "chess match",
		"stake":    "10",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create: status = %d body = %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatalf("create response has no id: %v", data)
	}

	// A stranger cannot respond.
	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/respond", "mallory", gin.H{
		"decision": "accept",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger respond: status = %d, want 403", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/respond", "bob", gin.H{
		"decision": "accept",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status = %d body = %s", w.Code, w.Body.String())
	}
	if status := decodeData(t, w)["status"]; status != "awaiting_evidence" {
		t.Fatalf("status = %v, want awaiting_evidence", status)
	}

	// Responding twice is a state conflict.
	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/respond", "bob", gin.H{
		"decision": "reject",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("double respond: status = %d, want 409", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/evidence", "alice", gin.H{
		"description": "scoresheet attached",
		"self_vote":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("evidence: status = %d body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/vote", "bob", gin.H{
		"self_vote": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("vote: status = %d body = %s", w.Code, w.Body.String())
	}
	data = decodeData(t, w)
	if data["status"] != "resolved" || data["outcome"] != "creator" {
		t.Fatalf("final dispute = %v, want resolved/creator", data)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/disputes/"+id+"/claim", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: status = %d body = %s", w.Code, w.Body.String())
	}
	if status := decodeData(t, w)["status"]; status != "claimed" {
		t.Fatalf("status after claim = %v, want claimed", status)
	}
}

func TestNotFoundMapping(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet,
		fmt.Sprintf("/api/v1/disputes/%s", "0a68d8d5-46a1-4bb9-9d9f-17b84d1d5a51"), "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestValidationMapping(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/disputes", "alice", gin.H{
		"opponent": "bob",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/disputes/not-a-uuid", "alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}
}
