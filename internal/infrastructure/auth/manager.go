package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

const (
	DefaultTTL            = 45 * time.Minute
	defaultCommandTimeout = 30 * time.Second
)

// CommandRunner executes the credential-issuing command and returns its stdout.
type CommandRunner func(ctx context.Context, command string) (string, error)

// Session is an authenticated handle bound to exactly one token. A new Session
// (and client) is built on every rotation.
type Session struct {
	Token      string
	IssuedAt   time.Time
	Client     *http.Client
	Generation uint64
}

type Options struct {
	Command        string
	TTL            time.Duration
	CommandTimeout time.Duration

	Runner    CommandRunner
	Now       func() time.Time
	NewClient func(token string) *http.Client
	// OnRefresh is called with "ok" or "error" after every refresh attempt.
	OnRefresh func(status string)
}

// Manager owns the process-wide credential. At most one refresh runs at a time;
// concurrent callers share its result.
type Manager struct {
	command        string
	ttl            time.Duration
	commandTimeout time.Duration
	run            CommandRunner
	now            func() time.Time
	newClient      func(token string) *http.Client
	onRefresh      func(status string)

	mu         sync.RWMutex
	cred       domain.Credential
	session    *Session
	generation uint64

	group singleflight.Group
}

func NewManager(opts Options) (*Manager, error) {
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "credential manager", errors.New("token command is not set"))
	}
	m := &Manager{
		command:        command,
		ttl:            opts.TTL,
		commandTimeout: opts.CommandTimeout,
		run:            opts.Runner,
		now:            opts.Now,
		newClient:      opts.NewClient,
		onRefresh:      opts.OnRefresh,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.commandTimeout <= 0 {
		m.commandTimeout = defaultCommandTimeout
	}
	if m.run == nil {
		m.run = runShell
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newClient == nil {
		m.newClient = NewBearerClient
	}
	return m, nil
}

// AcquireSession returns the current session, refreshing the credential first
// when it is missing, expired or invalidated.
func (m *Manager) AcquireSession(ctx context.Context) (*Session, error) {
	if session := m.validSession(); session != nil {
		return session, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// Another flight may have finished between the check above and here.
		if session := m.validSession(); session != nil {
			return session, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// InvalidateGeneration drops the current credential if it is still the given
// generation (0 matches any); the next AcquireSession refreshes.
func (m *Manager) InvalidateGeneration(generation uint64) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	current := m.session.Generation
	if generation != 0 && generation != current {
		m.mu.Unlock()
		slog.Debug("credential_invalidation_stale", "rejected_generation", generation, "current_generation", current)
		return
	}
	m.cred = domain.Credential{}
	m.session = nil
	m.mu.Unlock()

	slog.Warn("credential_invalidated", "generation", current)
}

func (m *Manager) State() domain.CredentialState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred.ValidAt(m.now()) {
		return domain.CredentialValid
	}
	return domain.CredentialExpired
}

func (m *Manager) validSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || !m.cred.ValidAt(m.now()) {
		return nil
	}
	return m.session
}

func (m *Manager) refresh(ctx context.Context) (*Session, error) {
	// Shared by every waiter: detach from the initiating request's cancellation.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.commandTimeout)
	defer cancel()

	out, err := m.run(runCtx, m.command)
	if err != nil {
		m.report("error")
		return nil, domain.WrapError(domain.ErrConfiguration, "credential refresh", err)
	}
	token := strings.TrimSpace(out)
	if token == "" {
		m.report("error")
		return nil, domain.WrapError(domain.ErrConfiguration, "credential refresh", errors.New("token command returned empty output"))
	}

	issuedAt := m.now()
	session := &Session{
		Token:    token,
		IssuedAt: issuedAt,
		Client:   m.newClient(token),
	}

	m.mu.Lock()
	m.generation++
	session.Generation = m.generation
	m.cred = domain.Credential{Token: token, IssuedAt: issuedAt, TTL: m.ttl}
	m.session = session
	m.mu.Unlock()

	m.report("ok")
	slog.Info("credential_refreshed", "expires_at", issuedAt.Add(m.ttl).UTC().Format(time.RFC3339))
	return session, nil
}

func (m *Manager) report(status string) {
	if m.onRefresh != nil {
		m.onRefresh(status)
	}
}

func runShell(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("run token command: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("run token command: %w", err)
	}
	return string(out), nil
}
