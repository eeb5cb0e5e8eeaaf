// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package relay serves a small web page that drives the Keplr extension in the
// user's browser on behalf of a Go process. The page connects back over a
// websocket, and the Server satisfies keplr.Host by forwarding each call to
// the page and awaiting the response.
//
// Only one page is driven at a time. A newly connected page replaces the
// previous one, and any calls in flight on the old page fail.
package relay

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kent-3/keplr/dex"
	"github.com/kent-3/keplr/dex/ws"
)

const (
	// DefaultAddr is the default listen address. Keplr only injects into
	// pages with an http(s) origin, so the page must be served, and it is
	// served only on loopback.
	DefaultAddr = "127.0.0.1:9871"

	// httpTimeout bounds reads and writes of the page assets. Websocket
	// connections are hijacked and not subject to it.
	httpTimeout = 10 * time.Second
)

// ErrNoPage is returned by calls made while no relay page is connected.
const ErrNoPage = dex.ErrorKind("no relay page connected")

//go:embed site
var siteFS embed.FS

// Config is the configuration for a relay Server.
type Config struct {
	// Addr is the listen address. Zero value is DefaultAddr.
	Addr string
	// PingPeriod is how often the page is pinged. Zero means
	// ws.DefaultPingPeriod.
	PingPeriod time.Duration
	Logger     dex.Logger
}

// Server is the relay web server and keplr.Host.
type Server struct {
	addr       string
	pingPeriod time.Duration
	log        dex.Logger
	mux        *chi.Mux
	srv        *http.Server

	mtx  sync.RWMutex
	page *pageLink
	// pageUp is closed and replaced when a page says hello.
	pageUp chan struct{}
	// listenAddr is set by Connect.
	listenAddr string
}

// New is the constructor for a *Server.
func New(cfg *Config) (*Server, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid relay address %q: %w", addr, err)
	}
	log := cfg.Logger
	if log == nil {
		log = dex.Disabled
	}
	pingPeriod := cfg.PingPeriod
	if pingPeriod == 0 {
		pingPeriod = ws.DefaultPingPeriod
	}

	site, err := fs.Sub(siteFS, "site")
	if err != nil {
		return nil, err
	}

	mux := chi.NewRouter()
	s := &Server{
		addr:       addr,
		pingPeriod: pingPeriod,
		log:        log,
		mux:        mux,
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  httpTimeout,
			WriteTimeout: httpTimeout,
		},
		pageUp: make(chan struct{}),
	}

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.NoCache)
	mux.Get("/ws", s.handleWS)
	mux.Handle("/*", http.FileServer(http.FS(site)))

	return s, nil
}

// ServeHTTP serves the relay page and websocket endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Connect starts listening and serving. The address is bound before Connect
// returns, so URL is valid afterwards. The returned WaitGroup is Done after
// the context is canceled and the server and page link have shut down.
func (s *Server) Connect(ctx context.Context) (*sync.WaitGroup, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("can't listen on %s: %w", s.addr, err)
	}
	s.mtx.Lock()
	s.listenAddr = listener.Addr().String()
	s.mtx.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Errorf("Problem shutting down relay server: %v", err)
		}
		// Shutdown does not deal with hijacked websocket connections.
		s.mtx.Lock()
		page := s.page
		s.page = nil
		s.mtx.Unlock()
		if page != nil {
			page.Disconnect()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.log.Infof("Relay page at %s", s.URL())
		if err := s.srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.log.Warnf("unexpected (http.Server).Serve error: %v", err)
		}
		s.log.Infof("Relay server off")
	}()

	return &wg, nil
}

// URL is the address of the relay page. Before Connect, it uses the
// configured address.
func (s *Server) URL() string {
	s.mtx.RLock()
	addr := s.listenAddr
	s.mtx.RUnlock()
	if addr == "" {
		addr = s.addr
	}
	return "http://" + addr + "/"
}

// WaitForPage blocks until a relay page has connected and said hello.
func (s *Server) WaitForPage(ctx context.Context) error {
	for {
		s.mtx.RLock()
		page, up := s.page, s.pageUp
		s.mtx.RUnlock()
		if page != nil && page.greeted() {
			return nil
		}
		select {
		case <-up:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleWS upgrades the page's connection and makes it the current page.
// Only loopback peers are accepted, and a browser's connection must come from
// the relay page itself, not from some other site the browser has open. A
// site with a name that resolves to loopback is not the relay page either, so
// the Host header must name the relay too.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !dex.IsLoopback(r.RemoteAddr) {
		s.log.Warnf("Rejected relay connection from non-loopback address %s", r.RemoteAddr)
		http.Error(w, "403 Forbidden.", http.StatusForbidden)
		return
	}
	if !s.trustedRequest(r) {
		s.log.Warnf("Rejected relay connection for host %q from origin %q", r.Host, r.Header.Get("Origin"))
		http.Error(w, "403 Forbidden.", http.StatusForbidden)
		return
	}
	conn, err := ws.NewConnection(w, r, s.pingPeriod*2)
	if err != nil {
		s.log.Errorf("websocket connection error from %s: %v", r.RemoteAddr, err)
		return
	}
	page := newPageLink(s, r.RemoteAddr, conn)
	// Register the page before its link starts, so its hello finds it.
	s.mtx.Lock()
	old := s.page
	s.page = page
	s.mtx.Unlock()
	if old != nil {
		s.log.Infof("Relay page %s replaced by %s", old.Addr(), page.Addr())
		old.Disconnect()
	}

	// The server's context is not available here. The link is stopped by
	// Connect's shutdown goroutine or by a replacing page.
	wg, err := page.Connect(context.Background())
	if err != nil {
		s.log.Errorf("websocket link error for %s: %v", r.RemoteAddr, err)
		s.dropPage(page)
		conn.Close()
		return
	}
	s.log.Debugf("Relay page connected from %s", page.Addr())

	go func() {
		wg.Wait()
		s.dropPage(page)
		page.failPending()
		s.log.Infof("Relay page %s disconnected", page.Addr())
	}()
}

// trustedRequest is true if the Host header names the relay, and the Origin
// header, if any, is the relay page's.
func (s *Server) trustedRequest(r *http.Request) bool {
	if !s.relayHost(r.Host) {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	return s.relayHost(u.Host)
}

// relayHost is true for host:port where port is the relay's and host is the
// relay's listen host or a loopback name.
func (s *Server) relayHost(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return false
	}
	s.mtx.RLock()
	addr := s.listenAddr
	s.mtx.RUnlock()
	if addr == "" {
		addr = s.addr
	}
	relayHost, relayPort, err := net.SplitHostPort(addr)
	if err != nil || port != relayPort {
		return false
	}
	switch strings.ToLower(host) {
	case strings.ToLower(relayHost), "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// dropPage forgets the page if it is still the current one.
func (s *Server) dropPage(page *pageLink) {
	s.mtx.Lock()
	if s.page == page {
		s.page = nil
	}
	s.mtx.Unlock()
}

// pageGreeted wakes WaitForPage callers when a page's hello arrives.
func (s *Server) pageGreeted() {
	s.mtx.Lock()
	close(s.pageUp)
	s.pageUp = make(chan struct{})
	s.mtx.Unlock()
}

func (s *Server) currentPage() *pageLink {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.page
}
