package mux

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strconv"
)

// Response is the value produced by handlers and middleware. It is written
// to the client by the router once dispatch and finalization are done, so
// finalizers can still change status, headers and body.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse returns a response with the given status and no body.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// Text returns a text/plain response.
func Text(status int, body string) *Response {
	r := NewResponse(status)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = []byte(body)
	return r
}

// StatusResponse returns a text/plain response whose body is the status text.
func StatusResponse(status int) *Response {
	return Text(status, http.StatusText(status))
}

// JSON encodes v as JSON into a response with the given status code. The
// Content-Type header is set to "application/json". If encoding fails, an
// HTTP 500 Internal Server Error response is returned instead.
func JSON(status int, v any) *Response {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return StatusResponse(http.StatusInternalServerError)
	}

	r := NewResponse(status)
	r.Header.Set("Content-Type", "application/json")
	r.Body = buf.Bytes()
	return r
}

// XML encodes v as XML into a response with the given status code. The
// Content-Type header is set to "application/xml". If encoding fails, an
// HTTP 500 Internal Server Error response is returned instead.
func XML(status int, v any) *Response {
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return StatusResponse(http.StatusInternalServerError)
	}

	r := NewResponse(status)
	r.Header.Set("Content-Type", "application/xml")
	r.Body = buf.Bytes()
	return r
}

// Write sends the response. Bodies are omitted for HEAD requests and for
// statuses that forbid them (RFC 9110 Section 6.4.1).
func (r *Response) Write(w http.ResponseWriter, req *http.Request) {
	h := w.Header()
	for k, v := range r.Header {
		h[k] = v
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	bodyAllowed := status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
	if bodyAllowed && len(r.Body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	w.WriteHeader(status)

	if bodyAllowed && req.Method != http.MethodHead {
		w.Write(r.Body)
	}
}
