// Package session manages the hive home: named session directories, the
// active-session pointer and user configuration. Each session directory is a
// self-contained coordination root for one manager and its workers.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

// ErrExists is returned by Create when the session directory already exists.
var ErrExists = errors.New("session already exists")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Session describes one coordination session.
type Session struct {
	Name      string    `yaml:"name"`
	Workspace string    `yaml:"workspace,omitempty"`
	Workers   int       `yaml:"workers"`
	CreatedAt time.Time `yaml:"created_at"`

	// TmuxSession and TmuxWindow locate the worker panes for notifications.
	// Empty values fall back to the hive config.
	TmuxSession string `yaml:"tmux_session,omitempty"`
	TmuxWindow  string `yaml:"tmux_window,omitempty"`

	// Dir is the session directory; it is derived, not stored.
	Dir string `yaml:"-"`
}

// Root returns the storage root for the session directory.
func (s *Session) Root() *fsroot.Root {
	return fsroot.New(s.Dir)
}

// JournalPath returns the path of the session's event journal.
func (s *Session) JournalPath() string {
	return filepath.Join(s.Dir, protocol.JournalFile)
}

// PaneTarget returns the tmux target of worker id's pane, "session:window.id".
func (s *Session) PaneTarget(id int, cfg Config) string {
	sess, win := s.TmuxSession, s.TmuxWindow
	if sess == "" {
		sess = cfg.TmuxSession
	}
	if win == "" {
		win = cfg.TmuxWindow
	}
	return fmt.Sprintf("%s:%s.%d", sess, win, id)
}

// CreateOption customizes a new session.
type CreateOption func(*Session)

// WithTmux records where the session's worker panes live.
func WithTmux(session, window string) CreateOption {
	return func(s *Session) {
		s.TmuxSession = session
		s.TmuxWindow = window
	}
}

// Registry manages the sessions under one hive home.
type Registry struct {
	home string
	root *fsroot.Root
	now  func() time.Time
}

// NewRegistry returns a Registry for home. Nothing is created until a
// session is.
func NewRegistry(home string) *Registry {
	return &Registry{home: home, root: fsroot.New(home), now: time.Now}
}

// Home returns the hive home directory.
func (r *Registry) Home() string {
	return r.home
}

// ValidateName checks a session name: letters, digits, '.', '_' and '-',
// without a leading dot.
func ValidateName(name string) error {
	if err := protocol.ValidateName("session", name); err != nil {
		return err
	}
	if !namePattern.MatchString(name) {
		return &protocol.InvalidNameError{Kind: "session", Name: name, Reason: "only letters, digits, '.', '_' and '-' are allowed"}
	}
	return nil
}

func sessionDir(name string) string {
	return protocol.SessionsDir + "/" + name
}

// Create makes a new session directory with its state, trigger, lock and
// result subdirectories and writes its metadata.
func (r *Registry) Create(name, workspace string, workers int, opts ...CreateOption) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, fmt.Errorf("create session %s: workers must be at least 1, got %d", name, workers)
	}

	created, err := r.root.MakeDir(sessionDir(name))
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("create session %s: %w", name, ErrExists)
	}

	dir, err := r.root.Path(sessionDir(name))
	if err != nil {
		return nil, err
	}
	s := &Session{
		Name:      name,
		Workspace: workspace,
		Workers:   workers,
		CreatedAt: r.now().UTC().Truncate(time.Second),
		Dir:       dir,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := writeSession(s); err != nil {
		// Leave no half-built directory that would block a retry.
		_ = r.root.RemoveAll(sessionDir(name))
		return nil, err
	}
	return s, nil
}

// writeSession creates the session's subdirectories and its metadata file.
func writeSession(s *Session) error {
	sr := s.Root()
	for _, sub := range []string{protocol.WorkerStateDir, protocol.TriggersDir, protocol.LocksDir, protocol.ResultsDir} {
		if err := sr.EnsureDir(sub); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.Name, err)
	}
	return sr.AtomicReplace(protocol.SessionFile, data)
}

// Open loads an existing session.
func (r *Registry) Open(name string) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	rel := sessionDir(name) + "/" + protocol.SessionFile
	data, err := r.root.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &protocol.NotFoundError{Kind: "session", Name: name}
		}
		return nil, err
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &protocol.CorruptStateError{Key: rel, Err: err}
	}
	if s.Workers < 1 {
		return nil, &protocol.CorruptStateError{Key: rel, Err: fmt.Errorf("workers must be at least 1, got %d", s.Workers)}
	}
	s.Name = name
	if s.Dir, err = r.root.Path(sessionDir(name)); err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the names of all sessions, sorted.
func (r *Registry) List() ([]string, error) {
	return r.root.ListDirs(protocol.SessionsDir)
}

// Remove deletes a session directory. If it was the active session the
// pointer is cleared too.
func (r *Registry) Remove(name string) error {
	if _, err := r.Open(name); err != nil {
		var nf *protocol.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		// A corrupt session can still be removed.
		var cs *protocol.CorruptStateError
		if !errors.As(err, &cs) {
			return err
		}
	}
	if err := r.root.RemoveAll(sessionDir(name)); err != nil {
		return err
	}
	active, ok, err := r.Active()
	if err != nil {
		return err
	}
	if ok && active == name {
		if _, err := r.root.Remove(protocol.ActivePointer); err != nil {
			return err
		}
	}
	return nil
}

// SetActive points the hive home at an existing session.
func (r *Registry) SetActive(name string) error {
	if _, err := r.Open(name); err != nil {
		return err
	}
	return r.root.AtomicReplace(protocol.ActivePointer, []byte(name+"\n"))
}

// Active returns the active session name, if one is set.
func (r *Registry) Active() (string, bool, error) {
	data, err := r.root.ReadFile(protocol.ActivePointer)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

// Resolve picks the session to operate on: the explicit name if given, then
// HIVE_SESSION, then the active pointer.
func (r *Registry) Resolve(explicit string) (*Session, error) {
	name := explicit
	if name == "" {
		name = os.Getenv(protocol.EnvSession)
	}
	if name == "" {
		active, ok, err := r.Active()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &protocol.NotFoundError{Kind: "session", Name: "(none selected; use --session, " + protocol.EnvSession + " or `hive session use`)"}
		}
		name = active
	}
	return r.Open(name)
}
