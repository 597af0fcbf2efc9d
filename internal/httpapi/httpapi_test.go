package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/model"
)

type fakeService struct {
	resp      model.ContextResponse
	err       error
	healthy   bool
	sources   []string
	addedName string
	removed   string
}

func (f *fakeService) GetContext(ctx context.Context, req model.ContextRequest) (model.ContextResponse, error) {
	return f.resp, f.err
}

func (f *fakeService) AddSource(src datasource.Source) { f.addedName = src.Name() }
func (f *fakeService) RemoveSource(name string)         { f.removed = name }
func (f *fakeService) ListSources() []string            { return f.sources }
func (f *fakeService) IsHealthy(ctx context.Context) bool { return f.healthy }

func doRequest(e http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_Healthy(t *testing.T) {
	svc := &fakeService{healthy: true}
	s := NewServer(svc, nil)

	rec := doRequest(s.Echo(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_Unhealthy(t *testing.T) {
	svc := &fakeService{healthy: false}
	s := NewServer(svc, nil)

	rec := doRequest(s.Echo(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetContext_Success(t *testing.T) {
	svc := &fakeService{resp: model.ContextResponse{ID: "resp-1", Query: "hello"}}
	s := NewServer(svc, nil)

	body, err := json.Marshal(ContextRequestBody{Query: "hello", MaxChunks: 5, MaxTokens: 100})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/context", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "resp-1", got.ID)
}

func TestGetContext_RejectsEmptyQuery(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	body, err := json.Marshal(ContextRequestBody{Query: ""})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/context", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContext_MapsPrivacyViolationToForbidden(t *testing.T) {
	svc := &fakeService{err: apierrors.NewPrivacyViolation("get_context", model.PrivacyEnterprise, model.PrivacyPublic)}
	s := NewServer(svc, nil)

	body, err := json.Marshal(ContextRequestBody{Query: "q"})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/context", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetContext_MapsContextNotFoundTo404(t *testing.T) {
	svc := &fakeService{err: apierrors.ErrContextNotFound}
	s := NewServer(svc, nil)

	body, err := json.Marshal(ContextRequestBody{Query: "q"})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/context", body)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetContext_MapsUnknownErrorTo500(t *testing.T) {
	svc := &fakeService{err: errors.New("boom")}
	s := NewServer(svc, nil)

	body, err := json.Marshal(ContextRequestBody{Query: "q"})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/context", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAddSource_RegistersNamedSource(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	body, err := json.Marshal(AddSourceRequest{Name: "docs", PrivacyLevel: "public"})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/sources", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "docs", svc.addedName)
}

func TestAddSource_RejectsMissingName(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	body, err := json.Marshal(AddSourceRequest{})
	require.NoError(t, err)

	rec := doRequest(s.Echo(), http.MethodPost, "/v1/sources", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveSource_DeletesByName(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	rec := doRequest(s.Echo(), http.MethodDelete, "/v1/sources/docs", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "docs", svc.removed)
}

func TestListSources_ReturnsRegisteredNames(t *testing.T) {
	svc := &fakeService{sources: []string{"a", "b"}}
	s := NewServer(svc, nil)

	rec := doRequest(s.Echo(), http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []string{"a", "b"}, got["sources"])
}

func TestMetrics_ExposesPrometheusFormat(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	rec := doRequest(s.Echo(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
