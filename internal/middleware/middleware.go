// Package middleware provides the HTTP middleware chain of the items service.
package middleware

import (
	"bufio"
	"net"
	"net/http"

	"github.com/gorilla/mux"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// unmatchedRoute labels requests that no route matched.
const unmatchedRoute = "unmatched"

// statusRecorder captures what the wrapped handler sent to the client.
// It is shared by every middleware of one request.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int
	hijacked bool
}

// record returns w as a statusRecorder, wrapping it at most once.
func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status != 0 {
		return
	}
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Hijack lets /ws/items upgrade through the chain.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	conn, rw, err := hijacker.Hijack()
	if err == nil {
		rec.hijacked = true
	}
	return conn, rw, err
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Status reports the response code. An upgraded event stream counts as 101
// and a handler that wrote nothing as 200.
func (rec *statusRecorder) Status() int {
	switch {
	case rec.hijacked:
		return http.StatusSwitchingProtocols
	case rec.status == 0:
		return http.StatusOK
	default:
		return rec.status
	}
}

// routeTemplate names the matched mux route, so /items/7 and /items/8 share
// the label /items/{id}.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	if tmpl, err := route.GetPathTemplate(); err == nil {
		return tmpl
	}
	return unmatchedRoute
}
