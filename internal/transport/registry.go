package transport

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
)

// Registry resolves destination ids to their configuration and a transport
// implementation selected once by destination type. Destination definitions
// are owned by the platform and read from a YAML file.
type Registry struct {
	path   string
	acl    engine.AccessControl
	logger *logging.Logger

	mu         sync.Mutex
	transports map[string]Transport
}

// NewRegistry creates a destination registry reading from the given file.
// acl may be nil, in which case no identity filtering is applied.
func NewRegistry(path string, acl engine.AccessControl, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Registry{
		path:       path,
		acl:        acl,
		logger:     logger,
		transports: make(map[string]Transport),
	}
}

// List returns all configured destinations.
func (r *Registry) List() ([]*Destination, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewConfigurationError("failed to read destinations file", err)
	}

	var dests []*Destination
	if err := yaml.Unmarshal(data, &dests); err != nil {
		return nil, engine.NewConfigurationError("failed to parse destinations file", err)
	}
	return dests, nil
}

// ListForUser returns destinations the given identity may use, applying the
// platform's access-control rule.
func (r *Registry) ListForUser(user string) ([]*Destination, error) {
	dests, err := r.List()
	if err != nil {
		return nil, err
	}
	if r.acl == nil {
		return dests, nil
	}

	allowed := dests[:0]
	for _, d := range dests {
		if r.acl.CanUseDestination(user, d.ID) {
			allowed = append(allowed, d)
		}
	}
	return allowed, nil
}

// Get returns the configuration of one destination.
func (r *Registry) Get(id string) (*Destination, error) {
	dests, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, d := range dests {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, engine.NewNotFoundError(fmt.Sprintf("destination %s not found", id), nil)
}

// IsEnabled reports whether a destination exists and is enabled. Lookup
// failures count as disabled so the evaluator skips rather than errors.
func (r *Registry) IsEnabled(id string) bool {
	d, err := r.Get(id)
	if err != nil {
		r.logger.WithField("destination", id).Debugf("Destination lookup failed: %v", err)
		return false
	}
	return d.Enabled
}

// Resolve returns the destination and a transport for it. Transports are
// constructed once per destination id and cached for the process lifetime.
func (r *Registry) Resolve(ctx context.Context, id string) (*Destination, Transport, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.transports[id]; ok {
		return d, t, nil
	}

	t, err := r.build(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	r.transports[id] = t
	return d, t, nil
}

// Test runs the transport's connection check for one destination.
func (r *Registry) Test(ctx context.Context, id string) error {
	_, t, err := r.Resolve(ctx, id)
	if err != nil {
		return err
	}
	return t.TestConnection(ctx)
}

func (r *Registry) build(ctx context.Context, d *Destination) (Transport, error) {
	switch d.Type {
	case TypeLocal:
		return NewLocalTransport(d.Local)
	case TypeS3:
		return NewS3Transport(d.S3)
	case TypeGCS:
		return NewGCSTransport(ctx, d.GCS)
	case TypeAzure:
		return NewAzureTransport(d.Azure)
	default:
		return nil, engine.NewValidationError(fmt.Sprintf("unsupported destination type: %s", d.Type), nil)
	}
}
