package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/rate"
)

// RateLimit throttles by client address. It guards the credential routes,
// where unbounded retries are an attack surface rather than load.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !lim.Allow(host) {
				err := errors.New("rate limit exceeded")
				return weberr.NewError(err, "too many requests, retry later", http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
