package offline

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Gateway forwards requests to origin through transport and copies the response
// back. Pass an Agent to serve through the offline cache, or a plain transport to
// proxy straight to the origin.
func Gateway(transport http.RoundTripper, origin *url.URL, logger logrus.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "gateway")

	return func(c *gin.Context) {
		in := c.Request
		out := in.Clone(in.Context())
		out.RequestURI = ""
		out.Host = origin.Host
		out.URL = origin.ResolveReference(&url.URL{Path: in.URL.Path, RawQuery: in.URL.RawQuery})
		removeHopHeaders(out.Header)
		if clientIP := c.ClientIP(); clientIP != "" {
			out.Header.Set("X-Forwarded-For", clientIP)
		}

		resp, err := transport.RoundTrip(out)
		if err != nil {
			log.WithError(err).WithField("path", in.URL.Path).Warn("Upstream request failed")
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "bad_gateway",
				"message": "Application origin is unreachable",
			})
			return
		}
		defer resp.Body.Close()

		removeHopHeaders(resp.Header)
		for k, values := range resp.Header {
			for _, v := range values {
				c.Writer.Header().Add(k, v)
			}
		}
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			log.WithError(err).WithField("path", in.URL.Path).Debug("Client went away while copying response")
		}
	}
}

func removeHopHeaders(h http.Header) {
	for _, name := range strings.Split(h.Get("Connection"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			h.Del(name)
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
