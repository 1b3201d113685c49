package mux

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("encodes value with status code", func(t *testing.T) {
		resp := JSON(http.StatusCreated, payload{Name: "test"})

		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"name":"test"}`, string(resp.Body))
	})

	t.Run("returns 500 on encode error", func(t *testing.T) {
		resp := JSON(http.StatusOK, make(chan int))

		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})
}

func TestResponseXML(t *testing.T) {
	type payload struct {
		Name string `xml:"name"`
	}

	t.Run("encodes value with status code", func(t *testing.T) {
		resp := XML(http.StatusOK, payload{Name: "test"})

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
		assert.Contains(t, string(resp.Body), "<name>test</name>")
	})

	t.Run("returns 500 on encode error", func(t *testing.T) {
		resp := XML(http.StatusOK, make(chan int))

		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})
}

func TestResponseWrite(t *testing.T) {
	t.Run("writes status, headers and body", func(t *testing.T) {
		resp := Text(http.StatusAccepted, "queued")
		resp.Header.Set("X-Custom", "1")

		w := httptest.NewRecorder()
		resp.Write(w, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "queued", w.Body.String())
		assert.Equal(t, "1", w.Header().Get("X-Custom"))
		assert.Equal(t, "6", w.Header().Get("Content-Length"))
	})

	t.Run("zero status defaults to 200", func(t *testing.T) {
		w := httptest.NewRecorder()
		(&Response{Body: []byte("ok")}).Write(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("omits body for HEAD", func(t *testing.T) {
		w := httptest.NewRecorder()
		Text(http.StatusOK, "hello").Write(w, httptest.NewRequest(http.MethodHead, "/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Equal(t, "5", w.Header().Get("Content-Length"))
	})

	t.Run("omits body for 204", func(t *testing.T) {
		w := httptest.NewRecorder()
		Text(http.StatusNoContent, "ignored").Write(w, httptest.NewRequest(http.MethodDelete, "/", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Empty(t, w.Header().Get("Content-Length"))
	})
}
