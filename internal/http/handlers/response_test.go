package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFail_EnvelopeAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Writer.Header().Set("X-Request-ID", "req-123")

	fail(c, http.StatusNotFound, ErrCodeNotFound, "keyword not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "req-123" || resp.Code != ErrCodeNotFound || resp.Message != "keyword not found" {
		t.Fatalf("resp = %+v", resp)
	}
	if !c.IsAborted() {
		t.Fatal("fail must abort the chain")
	}
}

func TestFail_ServerErrorLogsWithoutPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(c, http.StatusInternalServerError, ErrCodeInternal, "boom")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestOkAndNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	ok(c, http.StatusOK, gin.H{"k": "v"})
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("ok: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	noContent(c)
	// A bare test context buffers the status until a write happens.
	c.Writer.WriteHeaderNow()
	if w.Code != http.StatusNoContent {
		t.Fatalf("noContent: code=%d", w.Code)
	}
}
