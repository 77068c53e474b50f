package tpool

import (
	"sync"
	"time"
)

const (
	StatusOK                  = "HTTP/1.1 200 OK"
	StatusNotFound            = "HTTP/1.1 404 NOT FOUND"
	StatusInternalServerError = "HTTP/1.1 500 INTERNAL SERVER ERROR"
)

// Route is the canned answer for one request line.
type Route struct {
	Status string
	File   string        // body file, relative to the server root
	Delay  time.Duration // simulated latency before the body is read
}

// Router maps exact request lines to routes.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Route
	notFound Route
}

func NewRouter() *Router {
	return &Router{
		routes:   make(map[string]Route),
		notFound: Route{Status: StatusNotFound, File: "404.html"},
	}
}

// DefaultRouter serves hello.html for "/" and "/sleep" (the latter after
// sleep) and 404.html for anything else.
func DefaultRouter(sleep time.Duration) *Router {
	r := NewRouter()
	r.Register("GET / HTTP/1.1", Route{Status: StatusOK, File: "hello.html"})
	r.Register("GET /sleep HTTP/1.1", Route{Status: StatusOK, File: "hello.html", Delay: sleep})
	return r
}

func (r *Router) Register(requestLine string, route Route) {
	r.mu.Lock()
	r.routes[requestLine] = route
	r.mu.Unlock()
}

func (r *Router) SetNotFound(route Route) {
	r.mu.Lock()
	r.notFound = route
	r.mu.Unlock()
}

// Match returns the route registered for requestLine, or the not-found route.
func (r *Router) Match(requestLine string) Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if route, ok := r.routes[requestLine]; ok {
		return route
	}
	return r.notFound
}
