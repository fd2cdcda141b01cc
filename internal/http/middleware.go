package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Clark-Hu/tour-booking/internal/logger"
	"github.com/Clark-Hu/tour-booking/internal/ratings"
)

const userHeader = "X-User-Id"

type ctxKey int

const (
	actorKey ctxKey = iota
	tourScopeKey
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log := logger.FromContext(r.Context(), s.logger)
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// ipRateLimiter keeps one token bucket per client address.
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	rate      rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perHour float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters:  make(map[string]*clientLimiter),
		rate:      rate.Limit(perHour / time.Hour.Seconds()),
		burst:     burst,
		idleAfter: time.Hour,
		lastSweep: time.Now(),
	}
}

func (l *ipRateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleAfter {
		for k, c := range l.limiters {
			if now.Sub(c.lastSeen) > l.idleAfter {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.limiters[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !s.limiter.allow(key, time.Now()) {
			s.metrics.RateLimited()
			log := logger.FromContext(r.Context(), s.logger)
			log.Warn().Str("client", key).Str("path", r.URL.Path).Msg("rate limit exceeded")
			s.respondError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests from this IP, please try again in an hour")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// actorFromRequest reads the review author header and the admin bearer token.
func (s *Server) actorFromRequest(r *http.Request) ratings.Actor {
	return ratings.Actor{
		UserID: strings.TrimSpace(r.Header.Get(userHeader)),
		Admin:  s.verifyBearer(r.Header.Get("Authorization")),
	}
}

func actorFromContext(ctx context.Context) ratings.Actor {
	actor, _ := ctx.Value(actorKey).(ratings.Actor)
	return actor
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.verifyBearer(r.Header.Get("Authorization")) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser demands an author id. The admin flag is not honoured here.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := s.actorFromRequest(r)
		if actor.UserID == "" {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		actor.Admin = false
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// requireActor accepts either an author id or the admin token.
func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := s.actorFromRequest(r)
		if actor.UserID == "" && !actor.Admin {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// tourScope validates the parent tour id of a nested review route.
func (s *Server) tourScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tourID, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tourScopeKey, tourID)))
	})
}

func tourScopeFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tourScopeKey).(string)
	return id
}

var topCheapQuery = url.Values{
	"limit":  {"5"},
	"sort":   {"-ratingsAverage,price"},
	"fields": {"name,price,ratingsAverage,summary,difficulty"},
}

// aliasQuery overrides the given query parameters before the handler runs.
func aliasQuery(preset url.Values) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			for key, values := range preset {
				query[key] = append([]string(nil), values...)
			}
			r2 := r.Clone(r.Context())
			r2.URL.RawQuery = query.Encode()
			next.ServeHTTP(w, r2)
		})
	}
}
