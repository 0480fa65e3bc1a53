package gateway

import (
	"net"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// checkReferer guards the locally bound gateway against browser-origin
// attacks: when CORS is disabled and a Referer header is present, its
// hostname must be localhost.
func checkReferer(r *http.Request) (string, bool) {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return "", true
	}
	u, err := url.Parse(ref)
	if err != nil || u.Hostname() != "localhost" {
		return "expected request from localhost", false
	}
	return "", true
}

// checkHost guards against DNS rebinding: the Host header's host component
// (ignoring the port) must be localhost.
func checkHost(r *http.Request) (string, bool) {
	host := r.Host
	if host == "" {
		return "", true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host != "localhost" {
		return "unexpected host header", false
	}
	return "", true
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Api-Key,X-Amz-Security-Token")
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// limiterPool keys token-bucket limiters by client ip.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(p.rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
