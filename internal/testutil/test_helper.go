// Package testutil provides testing utilities and helpers.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// DefaultHost is the Host of requests sent with a path-only target.
const DefaultHost = "example.com"

// NewTestRouter creates a new Gin router for testing.
func NewTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// HTTPTestHelper provides utilities for HTTP testing.
type HTTPTestHelper struct {
	handler http.Handler
	t       *testing.T
}

// NewHTTPTestHelper creates a new HTTP test helper.
func NewHTTPTestHelper(t *testing.T, handler http.Handler) *HTTPTestHelper {
	return &HTTPTestHelper{
		handler: handler,
		t:       t,
	}
}

// Request performs an HTTP request and returns the response. A non-nil body
// is sent as JSON.
func (h *HTTPTestHelper) Request(
	method,
	target string,
	body interface{},
	headers map[string]string,
	cookies ...*http.Cookie,
) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, target, bodyReader)
	if err != nil {
		h.t.Fatalf("Failed to create request: %v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.do(req, headers, cookies)
}

func (h *HTTPTestHelper) do(req *http.Request, headers map[string]string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	if req.Host == "" {
		req.Host = DefaultHost
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, req)
	return recorder
}

// GET performs a GET request.
func (h *HTTPTestHelper) GET(target string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return h.Request(http.MethodGet, target, nil, headers, cookies...)
}

// PostForm performs a form-encoded POST request.
func (h *HTTPTestHelper) PostForm(target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		h.t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, nil, cookies)
}

// AssertJSON asserts that the response body matches the expected JSON.
func (h *HTTPTestHelper) AssertJSON(recorder *httptest.ResponseRecorder, expected interface{}) {
	h.t.Helper()

	var actual interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &actual); err != nil {
		h.t.Fatalf("Failed to unmarshal actual response: %v", err)
	}

	expectedBytes, err := json.Marshal(expected)
	if err != nil {
		h.t.Fatalf("Failed to marshal expected response: %v", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(expectedBytes, &normalized); err != nil {
		h.t.Fatalf("Failed to unmarshal expected response: %v", err)
	}

	if !jsonEqual(actual, normalized) {
		h.t.Errorf("Response body mismatch.\nExpected: %s\nActual: %s",
			string(expectedBytes), recorder.Body.String())
	}
}

// AssertStatus asserts that the response has the expected status code.
func (h *HTTPTestHelper) AssertStatus(recorder *httptest.ResponseRecorder, expectedStatus int) {
	h.t.Helper()
	if recorder.Code != expectedStatus {
		h.t.Errorf("Status code mismatch. Expected: %d, Actual: %d, Body: %s", expectedStatus, recorder.Code, recorder.Body.String())
	}
}

// AssertHeader asserts that the response has the expected header value.
func (h *HTTPTestHelper) AssertHeader(recorder *httptest.ResponseRecorder, header, expectedValue string) {
	h.t.Helper()
	actualValue := recorder.Header().Get(header)
	if actualValue != expectedValue {
		h.t.Errorf("Header %s mismatch. Expected: %s, Actual: %s", header, expectedValue, actualValue)
	}
}

// AssertRedirect asserts a 302 to location.
func (h *HTTPTestHelper) AssertRedirect(recorder *httptest.ResponseRecorder, location string) {
	h.t.Helper()
	h.AssertStatus(recorder, http.StatusFound)
	h.AssertHeader(recorder, "Location", location)
}

// Cookie returns the cookie named name set by the response, or nil.
func Cookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// jsonEqual compares two decoded JSON values for equality.
func jsonEqual(a, b interface{}) bool {
	aBytes, _ := json.Marshal(a)
	bBytes, _ := json.Marshal(b)
	return bytes.Equal(aBytes, bBytes)
}
