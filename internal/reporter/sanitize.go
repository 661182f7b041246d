package reporter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"coach-qa/internal/executor"
	"coach-qa/internal/httpclient"
)

// Excerpt bounds.
const (
	MaxRequestExcerpt  = 4 << 10
	MaxResponseExcerpt = 2 << 10
)

const redacted = "[REDACTED]"

// Credentials never leave the process. The tenant header is kept.
var sensitive = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

type RequestExcerpt struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
}

type ResponseExcerpt struct {
	Status    int               `json:"status"`
	ElapsedMs int64             `json:"elapsed_ms"`
	Attempts  int               `json:"attempts"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
}

func requestExcerpt(ex *httpclient.Exchange) *RequestExcerpt {
	if ex == nil {
		return nil
	}
	body, cut := excerpt(ex.Body, MaxRequestExcerpt)
	return &RequestExcerpt{Method: ex.Method, URL: ex.URL, Headers: Sanitize(ex.Header), Body: body, Truncated: cut}
}

func responseExcerpt(s *executor.Snapshot) *ResponseExcerpt {
	if s == nil {
		return nil
	}
	body, cut := excerpt(s.Body, MaxResponseExcerpt)
	return &ResponseExcerpt{
		Status:    s.Status,
		ElapsedMs: s.Elapsed.Milliseconds(),
		Attempts:  s.Attempts,
		Headers:   Sanitize(s.Header),
		Body:      body,
		Truncated: cut,
	}
}

// Sanitize flattens h and redacts credential headers.
func Sanitize(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		ck := http.CanonicalHeaderKey(k)
		if sensitive[ck] {
			out[ck] = redacted
			continue
		}
		vals := append([]string(nil), vs...)
		sort.Strings(vals)
		out[ck] = strings.Join(vals, ", ")
	}
	return out
}

// excerpt compacts JSON bodies and cuts the result to at most limit bytes on
// a rune boundary.
func excerpt(body []byte, limit int) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var buf bytes.Buffer
	if json.Valid(body) && json.Compact(&buf, body) == nil {
		body = buf.Bytes()
	}
	if len(body) <= limit {
		return string(body), false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]), true
}
