package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/punchamoorthee/callbackops/internal/callback"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/models"
	"github.com/punchamoorthee/callbackops/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubProcessor struct {
	result *service.Result
	err    error
	seen   []*domain.CallbackEvent
}

func (p *stubProcessor) Process(_ context.Context, ev *domain.CallbackEvent) (*service.Result, error) {
	p.seen = append(p.seen, ev)
	if p.err != nil {
		return nil, p.err
	}
	res := *p.result
	res.ExternalID = ev.ExternalID
	return &res, nil
}

type stubSubscriptions struct {
	sub         *domain.Subscription
	err         error
	activated   []service.ActivationInput
	deactivated []domain.SubscriptionStatus
}

func (s *stubSubscriptions) Activate(_ context.Context, in service.ActivationInput) (*domain.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.activated = append(s.activated, in)
	return &domain.Subscription{
		OwnerID:          in.OwnerID,
		Status:           domain.SubActive,
		PaymentReference: in.PaymentReference,
		StartDate:        fixedNow,
		EndDate:          fixedNow.AddDate(1, 0, 0),
	}, nil
}

func (s *stubSubscriptions) Deactivate(_ context.Context, _ string, status domain.SubscriptionStatus, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.deactivated = append(s.deactivated, status)
	return nil
}

func (s *stubSubscriptions) Lookup(_ context.Context, _ string) (*domain.Subscription, bool, error) {
	if s.sub == nil {
		return nil, false, domain.ErrSubscriptionNotFound
	}
	return s.sub, s.sub.Entitled(fixedNow), nil
}

type stubReader struct{}

func (stubReader) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	if id != "dep-1" {
		return nil, domain.ErrTransactionNotFound
	}
	return &domain.Transaction{ID: id, Status: domain.TxCompleted, Amount: decimal.NewFromInt(50000)}, nil
}

func (stubReader) GetWallet(_ context.Context, id string) (*domain.Wallet, error) {
	if id != "w1" {
		return nil, domain.ErrWalletNotFound
	}
	return &domain.Wallet{ID: id, Balance: decimal.NewFromInt(10)}, nil
}

type testServer struct {
	proc *stubProcessor
	subs *stubSubscriptions
	auth *Authenticator
	srv  http.Handler
}

func newTestServer(result *service.Result) *testServer {
	ts := &testServer{
		proc: &stubProcessor{result: result},
		subs: &stubSubscriptions{},
		auth: NewAuthenticator(testSecret),
	}
	v := callback.NewValidator(0, callback.WithClock(func() time.Time { return fixedNow }))
	h := NewHandler(v, ts.proc, ts.subs, stubReader{}, zap.NewNop(), "2.0.0")
	h.now = func() time.Time { return fixedNow }
	ts.srv = NewRouter(h, ts.auth)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func signedCallback(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/pawapay/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(callback.HeaderDigest, callback.Digest([]byte(body)))
	req.Header.Set(callback.HeaderSignatureTimestamp, strconv.FormatInt(fixedNow.Unix(), 10))
	return req
}

func decodeWebhook(t *testing.T, rec *httptest.ResponseRecorder) models.WebhookResponse {
	t.Helper()
	var resp models.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const completedBody = `{"depositId":"dep-1","status":"COMPLETED","amount":"50000","currency":"UGX","correspondent":"MTN_MOMO_UGA"}`

func TestWebhook_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		outcome     service.Outcome
		wantCode    int
		wantSuccess bool
	}{
		{"processed", service.OutcomeProcessed, http.StatusOK, true},
		{"replayed", service.OutcomeReplayed, http.StatusOK, true},
		{"intermediate", service.OutcomeIntermediate, http.StatusOK, true},
		{"not found", service.OutcomeNotFound, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&service.Result{Outcome: tt.outcome})

			rec := ts.do(signedCallback(t, completedBody))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

			resp := decodeWebhook(t, rec)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, "dep-1", resp.DepositID)
			assert.Equal(t, "COMPLETED", resp.Status)
			assert.Equal(t, fixedNow.Format(time.RFC3339), resp.Timestamp)

			require.Len(t, ts.proc.seen, 1)
			assert.Equal(t, "UGX", ts.proc.seen[0].Currency)
		})
	}
}

func TestWebhook_AlternatePath(t *testing.T) {
	ts := newTestServer(&service.Result{Outcome: service.OutcomeProcessed})
	req := signedCallback(t, completedBody)
	req.URL.Path = "/api/v1/callbacks"

	rec := ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
	}{
		{
			name: "missing digest",
			req: func(t *testing.T) *http.Request {
				req := signedCallback(t, completedBody)
				req.Header.Del(callback.HeaderDigest)
				return req
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			req: func(t *testing.T) *http.Request {
				req := signedCallback(t, completedBody)
				req.Header.Set(callback.HeaderDigest, callback.Digest([]byte(`{"depositId":"dep-2"}`)))
				return req
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "stale timestamp",
			req: func(t *testing.T) *http.Request {
				req := signedCallback(t, completedBody)
				req.Header.Set(callback.HeaderSignatureTimestamp, strconv.FormatInt(fixedNow.Add(-10*time.Minute).Unix(), 10))
				return req
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "malformed json",
			req:      func(t *testing.T) *http.Request { return signedCallback(t, `{"depositId":`) },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing id",
			req:      func(t *testing.T) *http.Request { return signedCallback(t, `{"status":"COMPLETED"}`) },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown status",
			req:      func(t *testing.T) *http.Request { return signedCallback(t, `{"depositId":"dep-1","status":"SETTLED"}`) },
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&service.Result{Outcome: service.OutcomeProcessed})

			rec := ts.do(tt.req(t))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, decodeWebhook(t, rec).Success)
			assert.Empty(t, ts.proc.seen, "rejected callbacks must not reach the engine")
		})
	}
}

func TestWebhook_ProcessingErrorIs500(t *testing.T) {
	ts := newTestServer(nil)
	ts.proc.err = errors.New("db down")

	rec := ts.do(signedCallback(t, completedBody))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "dep-1", decodeWebhook(t, rec).DepositID)
}

func TestWebhook_PreflightAndMethods(t *testing.T) {
	ts := newTestServer(&service.Result{Outcome: service.OutcomeProcessed})

	rec := ts.do(httptest.NewRequest(http.MethodOptions, "/api/pawapay/webhook", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/pawapay/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "2.0.0", resp.Version)
	assert.Equal(t, serviceName, resp.Service)
}

func (ts *testServer) adminRequest(t *testing.T, method, path, body, role string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if role != "" {
		token, err := ts.auth.NewToken("admin-1", role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestActivateSubscription(t *testing.T) {
	const path = "/api/v1/admin/subscriptions/activate"
	const body = `{"userId":"u1","depositId":"dep-1","paymentMethod":"MTN Mobile Money"}`

	t.Run("no token", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(ts.adminRequest(t, http.MethodPost, path, body, ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		ts := newTestServer(nil)
		req := ts.adminRequest(t, http.MethodPost, path, body, "")
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		ts := newTestServer(nil)
		token, err := NewAuthenticator("other").NewToken("admin-1", RoleAdmin, time.Hour)
		require.NoError(t, err)
		req := ts.adminRequest(t, http.MethodPost, path, body, "")
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
	})

	t.Run("not admin", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(ts.adminRequest(t, http.MethodPost, path, body, "user"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, ts.subs.activated)
	})

	t.Run("missing fields", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(ts.adminRequest(t, http.MethodPost, path, `{"userId":"u1"}`, RoleAdmin))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.subs.err = errors.New("db down")
		rec := ts.do(ts.adminRequest(t, http.MethodPost, path, body, RoleAdmin))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("activated", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(ts.adminRequest(t, http.MethodPost, path, body, RoleAdmin))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.ActivationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "u1", resp.UserID)
		assert.Equal(t, "dep-1", resp.DepositID)
		require.Len(t, ts.subs.activated, 1)
		assert.Equal(t, "MTN Mobile Money", ts.subs.activated[0].PaymentMethod)
	})
}

func TestDeactivateSubscription(t *testing.T) {
	const path = "/api/v1/admin/subscriptions/deactivate"

	ts := newTestServer(nil)
	ts.subs.sub = &domain.Subscription{OwnerID: "u1", Status: domain.SubCancelled, EndDate: fixedNow.AddDate(1, 0, 0)}

	rec := ts.do(ts.adminRequest(t, http.MethodPost, path, `{"userId":"u1","status":"active"}`, RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(ts.adminRequest(t, http.MethodPost, path, `{"userId":"u1","status":"cancelled","reason":"chargeback"}`, RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.SubscriptionStatus{domain.SubCancelled}, ts.subs.deactivated)

	var view models.SubscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Entitled)
}

func TestInspectionEndpoints(t *testing.T) {
	ts := newTestServer(nil)
	ts.subs.sub = &domain.Subscription{OwnerID: "u1", Status: domain.SubActive, EndDate: fixedNow.AddDate(0, 6, 0)}

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/v1/subscriptions/u1", http.StatusOK},
		{"/api/v1/transactions/dep-1", http.StatusOK},
		{"/api/v1/transactions/missing", http.StatusNotFound},
		{"/api/v1/wallets/w1", http.StatusOK},
		{"/api/v1/wallets/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(ts.adminRequest(t, http.MethodGet, tt.path, "", RoleAdmin))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	rec := ts.do(ts.adminRequest(t, http.MethodGet, "/api/v1/subscriptions/u1", "", RoleAdmin))
	var view models.SubscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Entitled)

	rec = ts.do(ts.adminRequest(t, http.MethodGet, "/api/v1/wallets/w1", "", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectedAdminRequestsUseRouteLabels(t *testing.T) {
	ts := newTestServer(nil)
	get := func(path string) *httptest.ResponseRecorder {
		return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
	}

	// first rejection per route creates its series
	for _, path := range []string{"/api/v1/subscriptions/u0", "/api/v1/transactions/t0", "/api/v1/wallets/w0"} {
		require.Equal(t, http.StatusUnauthorized, get(path).Code)
	}
	before := testutil.CollectAndCount(httpReqTotal)
	subs401 := httpReqTotal.WithLabelValues(http.MethodGet, "/api/v1/subscriptions/{userId}", "401")
	rejected := testutil.ToFloat64(subs401)

	for i := 1; i <= 50; i++ {
		id := strconv.Itoa(i)
		assert.Equal(t, http.StatusUnauthorized, get("/api/v1/subscriptions/u"+id).Code)
		assert.Equal(t, http.StatusUnauthorized, get("/api/v1/transactions/t"+id).Code)
		assert.Equal(t, http.StatusUnauthorized, get("/api/v1/wallets/w"+id).Code)
	}
	assert.Equal(t, before, testutil.CollectAndCount(httpReqTotal))
	assert.Equal(t, rejected+50, testutil.ToFloat64(subs401))
}
