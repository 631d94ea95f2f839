package core

// service.go owns the table handles served over HTTP.
//
// Every session wraps one *Table and is keyed by a random UUID. A session
// survives a failed open so the client can retry with another path on the
// same id. Sessions live in a TTL cache: every lookup refreshes the idle
// TTL, and sessions that expire have their table closed.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrSessionNotFound = errors.New("table session not found")
	ErrTooManySessions = errors.New("too many open tables")
	ErrPathOutsideRoot = errors.New("path outside table root")
)

// ServiceConfig holds the settings the Service needs.
// Zero values fall back to the defaults noted on each field.
type ServiceConfig struct {
	Root               string        // Paths are confined here when set
	RowIndex           bool          // Open handles WithRowIndex
	MaxSessions        int           // default: 64
	IdleTTL            time.Duration // default: 30m
	MaxConcurrentOpens int           // default: DefaultMaxConcurrentOpens
	OpenWaitTime       time.Duration // default: DefaultOpenWaitTime
}

type sessionItem = ttlcache.Item[string, *Session]

// Session is one client's table handle.
type Session struct {
	ID      string
	Table   *Table
	Created time.Time

	item atomic.Pointer[sessionItem]
}

// LastUsed returns when the session was last accessed.
func (s *Session) LastUsed() time.Time {
	item := s.item.Load()
	if item == nil {
		return s.Created
	}
	return item.ExpiresAt().Add(-item.TTL())
}

// SessionInfo describes a session for listings.
type SessionInfo struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"lastUsed"`
	Table    Info      `json:"table"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:       s.ID,
		Created:  s.Created,
		LastUsed: s.LastUsed(),
		Table:    s.Table.Info(),
	}
}

// Service manages table sessions.
type Service struct {
	cfg     ServiceConfig
	root    string
	limiter *OpenLimiter
	logger  *slog.Logger
	now     func() time.Time

	createMu sync.Mutex // serializes the session cap check with the insert
	sessions *ttlcache.Cache[string, *Session]
}

// NewService creates a Service. Returns an error if cfg.Root cannot be resolved.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}

	var root string
	if cfg.Root != "" {
		abs, err := filepath.Abs(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve table root: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		root = abs
	}

	s := &Service{
		cfg:     cfg,
		root:    root,
		limiter: NewOpenLimiter(cfg.MaxConcurrentOpens, cfg.OpenWaitTime),
		logger:  slog.Default(),
		now:     time.Now,
		sessions: ttlcache.New[string, *Session](
			ttlcache.WithTTL[string, *Session](cfg.IdleTTL),
		),
	}
	s.sessions.OnEviction(s.onEviction)
	return s, nil
}

// onEviction closes the table of a session that went idle. Deletions close
// their table themselves so the file is released before they return.
func (s *Service) onEviction(_ context.Context, reason ttlcache.EvictionReason, item *sessionItem) {
	if reason != ttlcache.EvictionReasonExpired {
		return
	}
	sess := item.Value()
	if err := sess.Table.Close(); err != nil {
		s.logger.Warn("close idle session", "session_id", sess.ID, "error", err)
		return
	}
	s.logger.Info("idle table session closed", "session_id", sess.ID)
}

// ResolvePath cleans path and, when a root is configured, resolves relative
// paths against it and rejects anything that ends up outside it.
func (s *Service) ResolvePath(path string) (string, error) {
	if s.root == "" {
		return filepath.Clean(path), nil
	}

	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}

	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	return p, nil
}

// CreateSession registers a new session and opens path in it.
//
// The session is returned even when the open fails, in which case the error
// is an *OpenError and the session holds an empty handle. Any other error
// means no session was created.
func (s *Service) CreateSession(ctx context.Context, path string) (*Session, error) {
	resolved, err := s.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := s.acquireOpen(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	var opts []Option
	if s.cfg.RowIndex {
		opts = append(opts, WithRowIndex())
	}
	opts = append(opts, WithLogger(s.logger))

	sess := &Session{
		ID:      uuid.New().String(),
		Table:   NewTable(opts...),
		Created: s.now(),
	}

	s.createMu.Lock()
	s.sessions.DeleteExpired()
	if s.sessions.Len() >= s.cfg.MaxSessions {
		s.createMu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, s.cfg.MaxSessions)
	}
	sess.item.Store(s.sessions.Set(sess.ID, sess, ttlcache.DefaultTTL))
	s.createMu.Unlock()

	s.logger.Info("table session created", "session_id", sess.ID)

	return sess, sess.Table.Open(resolved)
}

// OpenSession opens path in an existing session, replacing whatever it held.
func (s *Service) OpenSession(ctx context.Context, id, path string) (*Session, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	resolved, err := s.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := s.acquireOpen(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	return sess, sess.Table.Open(resolved)
}

// Session returns the session with the given id and refreshes its idle TTL.
func (s *Service) Session(id string) (*Session, error) {
	item := s.sessions.Get(id)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return item.Value(), nil
}

// CloseSession closes the session's file but keeps the session.
func (s *Service) CloseSession(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	return sess.Table.Close()
}

// DeleteSession closes the session's file and forgets the session.
func (s *Service) DeleteSession(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	s.sessions.Delete(id)

	s.logger.Info("table session deleted", "session_id", id)
	return sess.Table.Close()
}

// ListSessions returns all sessions, oldest first.
func (s *Service) ListSessions() []SessionInfo {
	items := s.sessions.Items()
	out := make([]SessionInfo, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value().Info())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}

// StartSessionSweeper runs the cache's expiry loop, closing sessions idle
// for longer than IdleTTL, until ctx is cancelled.
func (s *Service) StartSessionSweeper(ctx context.Context) {
	s.logger.Info("session sweeper started", "idle_ttl", s.cfg.IdleTTL.String())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.sessions.Start()
	}()

	<-ctx.Done()
	s.sessions.Stop()
	<-stopped
	s.logger.Info("session sweeper stopped")
}

// CloseAll closes and forgets every session. Used on shutdown.
func (s *Service) CloseAll() {
	for _, item := range s.sessions.Items() {
		sess := item.Value()
		if err := sess.Table.Close(); err != nil {
			s.logger.Warn("close session", "session_id", sess.ID, "error", err)
		}
	}
	s.sessions.DeleteAll()
}

// acquireOpen takes an open slot, waiting for one only when all are busy.
func (s *Service) acquireOpen(ctx context.Context) error {
	if s.limiter.TryAcquire() {
		return nil
	}
	s.logger.Debug("waiting for an open slot", "active", s.limiter.ActiveCount())
	return s.limiter.Acquire(ctx)
}

// OpenLimiterStatus returns the current open limiter state for monitoring.
func (s *Service) OpenLimiterStatus() OpenLimiterStatus {
	return s.limiter.Status()
}

// WaitForOpens blocks until no open is in progress or ctx is done.
func (s *Service) WaitForOpens(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
