package queue

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/internal/telemetry"
	"github.com/ovhfleet/acquire/pkg/account"
)

func newTestHandler(t *testing.T) (*Handler, *Store, *Engine) {
	t.Helper()
	store := newTestStore(t)
	acct := account.Account{ID: uuid.New()}
	accounts := newFakeAccounts(acct)
	engine := NewEngine(store, accounts, &fakeProber{}, &fakeDriver{}, &fakeSender{}, telemetry.NewLogger(true), 0, 0)
	return NewHandler(store, engine), store, engine
}

func newTestRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func createBody(accountID uuid.UUID) []byte {
	body, _ := json.Marshal(CreateRequest{
		PlanCode:      "24sk202",
		Datacenters:   []string{"gra"},
		Quantity:      1,
		RetryInterval: 30,
		AccountID:     accountID.String(),
	})
	return body
}

func TestHandler_Create(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(createBody(uuid.New())))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var got QueueTask
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Status != StatusRunning || got.RetryIntervalSeconds != 30 {
		t.Errorf("got = %+v, want status=running retryInterval=30", got)
	}
}

func TestHandler_Create_RejectsEmptyDatacenters(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	body, _ := json.Marshal(CreateRequest{PlanCode: "24sk202", Quantity: 1, RetryInterval: 30, AccountID: uuid.New().String()})
	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandler_Create_RejectsBelowMinRetryInterval(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	body, _ := json.Marshal(CreateRequest{
		PlanCode: "24sk202", Datacenters: []string{"gra"}, Quantity: 1,
		RetryInterval: 14, AccountID: uuid.New().String(),
	})
	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandler_Create_MissingAccountIDReturns400(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	body, _ := json.Marshal(CreateRequest{PlanCode: "24sk202", Datacenters: []string{"gra"}, Quantity: 1, RetryInterval: 30})
	req := httptest.NewRequest(http.MethodPost, "/queue", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandler_ListScopeAll(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	if _, err := store.Insert(testTask(uuid.New())); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/queue?scope=all", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got []QueueTask
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d tasks, want 1", len(got))
	}
}

func TestHandler_ListPaged(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	for i := 0; i < 3; i++ {
		if _, err := store.Insert(testTask(uuid.New())); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/queue/paged?status=running&page=1&pageSize=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var page struct {
		Items      []QueueTask `json:"items"`
		TotalItems int         `json:"totalItems"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(page.Items) != 2 || page.TotalItems != 3 {
		t.Errorf("page = %+v, want 2 items of 3 total", page)
	}
}

func TestHandler_Update(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	body, _ := json.Marshal(CreateRequest{
		PlanCode: "24sk202", Datacenters: []string{"rbx"}, Quantity: 2, RetryInterval: 60,
	})
	req := httptest.NewRequest(http.MethodPut, "/queue/"+task.ID.String(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Quantity != 2 || got.RetryIntervalSeconds != 60 || got.Datacenters[0] != "rbx" {
		t.Errorf("persisted task = %+v, want updated fields", got)
	}
}

func TestHandler_Update_RejectedWhileAttemptInFlight(t *testing.T) {
	h, store, engine := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	lock := engine.lockFor(task.ID)
	lock.Lock()
	defer lock.Unlock()

	body, _ := json.Marshal(CreateRequest{PlanCode: "24sk202", Datacenters: []string{"gra"}, Quantity: 1, RetryInterval: 30})
	req := httptest.NewRequest(http.MethodPut, "/queue/"+task.ID.String(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestHandler_UpdateStatus_PauseAndResume(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	body, _ := json.Marshal(StatusUpdateRequest{Status: StatusPaused})
	req := httptest.NewRequest(http.MethodPut, "/queue/"+task.ID.String()+"/status", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}
}

func TestHandler_UpdateStatus_RejectsTerminalTransition(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Update(task.ID, func(cur QueueTask) (QueueTask, error) {
		cur.Status = StatusCompleted
		return cur, nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	body, _ := json.Marshal(StatusUpdateRequest{Status: StatusRunning})
	req := httptest.NewRequest(http.MethodPut, "/queue/"+task.ID.String()+"/status", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestHandler_Restart_ResetsCounters(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Update(task.ID, func(cur QueueTask) (QueueTask, error) {
		cur.Status = StatusFailed
		cur.Purchased = 1
		cur.FailureCount = 3
		cur.RetryCount = 5
		return cur, nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/queue/"+task.ID.String()+"/restart", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusRunning || got.Purchased != 0 || got.FailureCount != 0 || got.RetryCount != 0 {
		t.Errorf("after restart = %+v, want running with counters reset", got)
	}
}

func TestHandler_Delete(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	task, err := store.Insert(testTask(uuid.New()))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/queue/"+task.ID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if _, err := store.Get(task.ID); err == nil {
		t.Error("task should no longer exist after delete")
	}
}

func TestHandler_Delete_UnknownReturns404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodDelete, "/queue/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandler_ClearScopeAll(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	for i := 0; i < 2; i++ {
		if _, err := store.Insert(testTask(uuid.New())); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodDelete, "/queue/clear?scope=all", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	tasks, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("List() after clear = %+v, want empty", tasks)
	}
}

func TestHandler_PurchaseHistory_ListAndClear(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newTestRouter(h)

	if err := store.AppendHistory(PurchaseHistoryEntry{ID: uuid.New(), Status: HistorySuccess}); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/purchase-history?scope=all", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var entries []PurchaseHistoryEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	req = httptest.NewRequest(http.MethodDelete, "/purchase-history", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want %d", w.Code, http.StatusNoContent)
	}

	remaining, err := store.ListHistory()
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("ListHistory() after clear = %+v, want empty", remaining)
	}
}
