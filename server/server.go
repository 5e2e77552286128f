// Package server implements the acceptor and verb-dispatch handler
// pipeline described in spec §4.H and §4.I.
//
// Grounded on the teacher's listener.go (Accept loop, TCP_NODELAY/
// keep-alive setup) and air.go's Serve/ServeHTTP (building the two
// listeners, wiring TLS, installing signal handlers), reworked from
// http.Handler dispatch into the fixed verb-switch pipeline spec §4.I
// specifies, and from net/http's own request parsing into
// envelope.Parse.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/kallhaugen/rosettad/authz"
	"github.com/kallhaugen/rosettad/config"
	"github.com/kallhaugen/rosettad/conn"
	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/logging"
	"github.com/kallhaugen/rosettad/netio"
	"github.com/kallhaugen/rosettad/resp"
	"github.com/kallhaugen/rosettad/userstore"
)

// Server holds every shared, read-only-after-startup dependency the
// dispatch pipeline needs, plus the one mutable shared structure (the
// user store) and the per-IP registry.
type Server struct {
	cfg     *config.Store
	users   *userstore.Store
	authz   *authz.Tree
	log     *logging.Logger
	cache   *resp.FileCache
	minify  *resp.Minifier
	reg     *registry
	bufPool *conn.Pool

	wwwRoot         string
	defaultDocument string
	errorPagesDir   string
	productName     string
	std             resp.StandardHeaders

	address string
	port    int
	sslPort int
	certFile string
	keyFile  string

	acmeEnabled bool
	acmeCacheDir string
	acmeHosts    []string
}

// New builds a Server from cfg and its already-loaded dependents.
func New(cfg *config.Store, users *userstore.Store, tree *authz.Tree, log *logging.Logger) (*Server, error) {
	wwwRoot, err := filepath.Abs(cfg.String("www-root", "www-root"))
	if err != nil {
		return nil, err
	}

	minifyEnabled := cfg.Bool("response-minify-enabled", false)
	var minifier *resp.Minifier
	if minifyEnabled {
		minifier = resp.NewMinifier()
	}

	s := &Server{
		cfg:    cfg,
		users:  users,
		authz:  tree,
		log:    log,
		cache:  resp.NewFileCache(cfg.Int("file-cache-max-memory-bytes", 32<<20), cfg.StringList("file-cache-exts")),
		minify: minifier,
		reg:    newRegistry(cfg.Int("max-connections-per-client", 8)),
		bufPool: conn.NewPool(8192),

		wwwRoot:         wwwRoot,
		defaultDocument: cfg.String("default-document", "index.html"),
		errorPagesDir:   "error-pages",
		productName:     "rosettad",
		std: resp.StandardHeaders{
			ProvideServerInfo:   cfg.Bool("provide-server-info", false),
			ProductName:         "rosettad",
			StaticResponseLines: resp.ParseStaticResponseHeaders(cfg.String("static-response-headers", "")),
		},

		address:  cfg.String("address", "localhost"),
		port:     cfg.Int("port", 8080),
		sslPort:  cfg.Int("ssl-port", 8081),
		certFile: cfg.String("ssl-certificate", "server.crt"),
		keyFile:  cfg.String("ssl-private-key", "server.key"),

		acmeEnabled:  cfg.Bool("acme-enabled", false),
		acmeCacheDir: cfg.String("acme-cache-dir", "acme-cache"),
		acmeHosts:    cfg.StringList("acme-hosts"),
	}
	return s, nil
}

// Run starts both acceptors (as configured) and blocks until ctx is
// canceled or SIGINT/SIGTERM/SIGQUIT is received, per spec §4.H.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sig:
			s.log.Info("server: shutdown signal received")
			s.reg.CloseAll()
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if s.port != -1 {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.address, strconv.Itoa(s.port)))
		if err != nil {
			s.log.Error("server: plain listen failed: %s", err)
			return err
		}
		g.Go(func() error { return s.acceptPlain(gctx, ln) })
	}

	if s.sslPort != -1 {
		tlsConfig, err := s.tlsConfig()
		if err != nil {
			s.log.Error("server: tls config failed: %s", err)
			return err
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(s.address, strconv.Itoa(s.sslPort)))
		if err != nil {
			s.log.Error("server: tls listen failed: %s", err)
			return err
		}
		g.Go(func() error { return s.acceptTLS(gctx, ln, tlsConfig) })
	}

	return g.Wait()
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.acmeEnabled {
		mgr := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(s.acmeCacheDir),
			HostPolicy: autocert.HostWhitelist(s.acmeHosts...),
		}
		return mgr.TLSConfig(), nil
	}
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func (s *Server) acceptPlain(ctx context.Context, ln net.Listener) error {
	go func() { <-ctx.Done(); ln.Close() }()

	keepAlivePeriod := s.cfg.Seconds("connection-keep-alive-timeout", 20*time.Second)
	for {
		rawConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WarnF(map[string]interface{}{"error": err.Error()}, "server: plain accept failed")
			continue
		}
		netio.ApplyKeepAlive(rawConn, keepAlivePeriod)
		s.handleAccepted(ctx, netio.NewPlain(rawConn))
	}
}

func (s *Server) acceptTLS(ctx context.Context, ln net.Listener, tlsConfig *tls.Config) error {
	go func() { <-ctx.Done(); ln.Close() }()

	handshakeTimeout := s.cfg.Seconds("connection-ssl-handshake-timeout", 20*time.Second)
	for {
		rawConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WarnF(map[string]interface{}{"error": err.Error()}, "server: tls accept failed")
			continue
		}
		if tc, ok := rawConn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}

		tlsConn := tls.Server(rawConn, tlsConfig)
		go func() {
			if err := netio.Handshake(ctx, tlsConn, handshakeTimeout); err != nil {
				s.log.DebugF(map[string]interface{}{"remote": rawConn.RemoteAddr().String(), "error": err.Error()}, "server: tls handshake failed")
				return
			}
			s.handleAccepted(ctx, netio.NewTLS(tlsConn))
		}()
	}
}

// handleAccepted implements the per-IP quota check and connection
// startup common to both acceptors (spec §4.H).
func (s *Server) handleAccepted(ctx context.Context, sock netio.Socket) {
	ip := sock.RemoteIP()

	keepAliveTimeout := s.cfg.Seconds("connection-keep-alive-timeout", 20*time.Second)
	c := conn.New(sock, s.reg, keepAliveTimeout)

	if !s.reg.TryAdd(ip, c) {
		s.log.Debug("server: connection quota exceeded for %s", ip)
		sock.Close()
		return
	}

	envOpts := envelope.Options{
		Limits: envelope.Limits{
			MaxURILength:    s.cfg.Int("max-uri-length", 4096),
			MaxHeaderLength: s.cfg.Int("max-header-length", 8192),
			MaxHeaderCount:  s.cfg.Int("max-header-count", 25),
		},
		WWWRoot:         s.wwwRoot,
		DefaultDocument: s.defaultDocument,
		Authenticator:   s.users,
	}

	go c.Serve(ctx, envOpts, func(ctx context.Context, env *envelope.Envelope, sock netio.Socket) bool {
		return s.dispatch(ctx, env, sock)
	}, func(err error, sock netio.Socket) {
		s.writeParseError(err, sock)
	})
}

