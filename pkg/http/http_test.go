package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPostJSON(t *testing.T) {
	var gotUA, gotType, gotToken string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("ignitex-test"))
	var resp struct {
		OK bool `json:"ok"`
	}
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"id": "s1"}, &resp, map[string]string{"X-Token": "t"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "ignitex-test", gotUA)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "t", gotToken)
	assert.Equal(t, "s1", gotBody["id"])
}

func TestClientStatusErrors(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, " bad payload \n")
	}))
	defer srv.Close()
	c := NewClient()

	err := c.PostJSON(context.Background(), srv.URL, []byte(`{}`), nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad payload", se.Body)
	assert.False(t, Retryable(err))

	status = http.StatusServiceUnavailable
	err = c.PostJSON(context.Background(), srv.URL, nil, nil, nil)
	assert.True(t, Retryable(err))

	status = http.StatusTooManyRequests
	err = c.PostJSON(context.Background(), srv.URL, nil, nil, nil)
	assert.True(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(fmt.Errorf("call: %w", context.Canceled)))
	assert.True(t, Retryable(errors.New("connection refused")))
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	cause := errors.New("no rows")
	appErr := NotFoundErrorf("signal %s not found", "s1").WithError(cause)
	assert.Equal(t, "signal s1 not found: no rows", appErr.Error())
	assert.True(t, errors.Is(appErr, cause))

	require.NoError(t, AppErrorResponse(c, fmt.Errorf("lookup: %w", appErr)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", body.Data[0].Code)
	assert.NotContains(t, rec.Body.String(), "no rows")

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, errors.New("db down")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type feedQuery struct {
	Tier  string `query:"tier" validate:"required,oneof=FREE PRO MAX"`
	Limit int    `query:"limit" default:"20" validate:"min=1,max=100"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()
	ctxFor := func(target string) echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	}

	var ok feedQuery
	assert.Nil(t, ReadAndValidateRequest(ctxFor("/feed?tier=PRO"), &ok))
	assert.Equal(t, 20, ok.Limit)

	var bad feedQuery
	res := ReadAndValidateRequest(ctxFor("/feed?tier=GOLD&limit=500"), &bad)
	errs, isList := res.([]ValidationError)
	require.True(t, isList)
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "tier", errs[0].Field)
	assert.Equal(t, "tier must be one of: FREE, PRO, MAX", errs[0].Message)
	assert.Equal(t, "ERR_MAX", errs[1].Code)
	assert.Equal(t, "limit must be at most 100", errs[1].Message)
	assert.Equal(t, map[string]interface{}{"max": "100"}, errs[1].Params)

	var junk feedQuery
	res = ReadAndValidateRequest(ctxFor("/feed?tier=PRO&limit=abc"), &junk)
	errs, isList = res.([]ValidationError)
	require.True(t, isList)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
