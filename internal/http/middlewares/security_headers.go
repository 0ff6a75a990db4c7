package middlewares

import "github.com/gin-gonic/gin"

// The API serves JSON only, so nothing is allowed to load or frame it.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders stamps hardening headers on every response. Patient data
// must never sit in shared caches. strictTransport adds HSTS and should only
// be set when the service is reached over TLS.
func SecurityHeaders(strictTransport bool) gin.HandlerFunc {
	headers := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Pragma":                  "no-cache",
		"Content-Security-Policy": apiCSP,
	}
	if strictTransport {
		headers["Strict-Transport-Security"] = "max-age=63072000; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range headers {
			h.Set(k, v)
		}
		c.Next()
	}
}
