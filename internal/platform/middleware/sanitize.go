package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinref/clinref/internal/platform/apperr"
)

// maxHeaderValueSize is the maximum allowed size for any single header value.
const maxHeaderValueSize = 8192

var (
	// SQL injection patterns are logged, not blocked; queries are
	// parameterized.
	sqlPatterns = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying script markup, path traversal, null
// bytes or header injection in the path, headers, query string or body.
// Bodies are scanned whatever their declared content type, since the bulk
// decoders accept any payload. Rejections answer 400 with the standard
// error body.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			rawPath := req.URL.RawPath
			if rawPath == "" {
				rawPath = path
			}

			if containsPathTraversal(path) || containsPathTraversal(rawPath) {
				return reject(c, "path traversal detected")
			}
			if containsNullByte(path) || containsNullByte(rawPath) {
				return reject(c, "null byte detected in path")
			}
			if scriptPatterns.MatchString(path) {
				return reject(c, "script content detected in path")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return reject(c, "header value exceeds maximum size: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return reject(c, "header injection detected: "+name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				for _, v := range values {
					if containsNullByte(v) || containsNullByte(key) {
						return reject(c, "null byte detected in query parameter")
					}
					if sqlPatterns.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", path).
							Str("remote_ip", c.RealIP()).
							Msg("potential SQL injection pattern in query parameter")
					}
					if scriptPatterns.MatchString(v) || scriptPatterns.MatchString(key) {
						return reject(c, "script content detected in query parameter "+key)
					}
				}
			}

			if hasBody(req) {
				body, err := io.ReadAll(req.Body)
				if err != nil {
					return err
				}
				req.Body = io.NopCloser(bytes.NewReader(body))
				if field, ok := scriptInBody(body); ok {
					return reject(c, "script content detected in "+field)
				}
			}

			return next(c)
		}
	}
}

func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}

// scriptInBody walks every string key and value of a JSON document and
// returns the path of the first one that looks like script markup. A body
// that is not JSON is matched as raw text; if it is clean the handler
// still gets to reject the malformed payload.
func scriptInBody(body []byte) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		if scriptPatterns.Match(body) {
			return "body", true
		}
		return "", false
	}
	if path, ok := walkJSON(doc, "$"); ok {
		return "field " + path, true
	}
	return "", false
}

func walkJSON(v interface{}, path string) (string, bool) {
	switch t := v.(type) {
	case string:
		if scriptPatterns.MatchString(t) {
			return path, true
		}
	case map[string]interface{}:
		for k, child := range t {
			p := path + "." + k
			if scriptPatterns.MatchString(k) {
				return p, true
			}
			if found, ok := walkJSON(child, p); ok {
				return found, true
			}
		}
	case []interface{}:
		for i, child := range t {
			if found, ok := walkJSON(child, path+"["+strconv.Itoa(i)+"]"); ok {
				return found, true
			}
		}
	}
	return "", false
}

func containsPathTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func reject(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, apperr.Body{Error: msg})
}
