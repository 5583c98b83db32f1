// Package host is the registration table a scripting host consults to build
// bridge objects. Nothing is registered implicitly: the host calls Register
// once while it initializes.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/loop"
	"github.com/thesyncim/rtcbridge/pkg/pc"
)

// PeerConnectionName is the constructor name Register installs.
const PeerConnectionName = "RTCPeerConnection"

// Errors
var (
	ErrAlreadyRegistered = errors.New("constructor already registered")
	ErrNotRegistered     = errors.New("constructor not registered")
	ErrEmptyName         = errors.New("empty constructor name")
	ErrNilFactory        = errors.New("nil factory")
)

// Factory builds a peer connection from host-supplied settings.
type Factory func(config pc.Configuration, constraints *engine.Constraints) (*pc.PeerConnection, error)

// Registry maps constructor names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *logrus.Entry
}

// NewRegistry creates an empty registry. A nil logger falls back to the
// logrus standard logger.
func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.WithField("component", "host"),
	}
}

// Add installs f under name. Each name can be installed once.
func (r *Registry) Add(name string, f Factory) error {
	if name == "" {
		return ErrEmptyName
	}
	if f == nil {
		return ErrNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.factories[name] = f
	r.logger.WithField("name", name).Info("constructor registered")
	return nil
}

// Lookup returns the factory installed under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the installed names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds an object with the factory installed under name.
func (r *Registry) New(name string, config pc.Configuration, constraints *engine.Constraints) (*pc.PeerConnection, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return f(config, constraints)
}

// Register installs the RTCPeerConnection constructor. Every connection it
// builds uses eng and delivers callbacks on l.
func Register(r *Registry, eng engine.Engine, l *loop.Loop, opts ...pc.Option) error {
	if eng == nil {
		return pc.ErrNoEngine
	}
	if l == nil {
		return pc.ErrNoLoop
	}
	return r.Add(PeerConnectionName, func(config pc.Configuration, constraints *engine.Constraints) (*pc.PeerConnection, error) {
		return pc.NewPeerConnection(eng, l, config, constraints, opts...)
	})
}
