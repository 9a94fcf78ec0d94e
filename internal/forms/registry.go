// Package forms keeps the admin forms that are being edited. Each form owns
// its parsed markup, an upload binder and a broadcaster that pushes changes
// to connected browsers.
package forms

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/google/uuid"
	"github.com/hackclub/mediafield/internal/binder"
	"github.com/hackclub/mediafield/internal/dom"
	"github.com/hackclub/mediafield/internal/metrics"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/rs/zerolog"
)

// DefaultMarkup is the image field used when a form is created without
// markup of its own.
const DefaultMarkup = `<form method="post" enctype="multipart/form-data" class="media-form">
<div class="form-row">
<label for="id_image">Image</label>
<input type="file" name="image" id="id_image" accept="image/*">
</div>
<div class="current-file"></div>
<button type="button" class="cloudinary-button">Upload image</button>
</form>`

type Registry struct {
	cfg        widget.Config
	host       widget.Host
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	widgetOpts []widget.Option
	idleTTL    time.Duration

	mu    sync.RWMutex
	forms map[string]*Form
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithWidgetOptions(opts ...widget.Option) Option {
	return func(r *Registry) { r.widgetOpts = append(r.widgetOpts, opts...) }
}

// WithIdleTTL sets how long a form with no websocket subscribers survives
// without being used. Zero keeps forms until they are removed.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

func NewRegistry(cfg widget.Config, host widget.Host, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:    cfg,
		host:   host,
		logger: logger,
		forms:  make(map[string]*Form),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create mounts a new form from markup, or DefaultMarkup when markup is
// blank.
func (r *Registry) Create(markup string, opts ...CreateOption) (*Form, error) {
	var co createOptions
	for _, opt := range opts {
		opt(&co)
	}

	if strings.TrimSpace(markup) == "" {
		markup = DefaultMarkup
	}
	doc, err := dom.ParseString(markup)
	if err != nil {
		return nil, err
	}
	if co.current != nil {
		if err := renderCurrentFile(doc, *co.current); err != nil {
			return nil, fmt.Errorf("failed to render current file: %w", err)
		}
	}

	id := uuid.NewString()
	f := &Form{
		ID:          id,
		Created:     time.Now(),
		broadcaster: broadcast.NewBroadcaster(256),
		logger:      r.logger.With().Str("form", id).Logger(),
		done:        make(chan struct{}),
		lastActive:  time.Now(),
	}

	binderOpts := []binder.Option{
		binder.WithLogger(f.logger),
		binder.OnChange(f.changed),
		binder.OnNotice(f.noticed),
		binder.WithWidgetOptions(r.widgetOpts...),
	}
	if r.metrics != nil {
		binderOpts = append(binderOpts, binder.WithRecorder(r.metrics))
	}

	b, err := binder.Initialize(doc, r.cfg, r.host, binderOpts...)
	if err != nil {
		f.broadcaster.Close()
		return nil, fmt.Errorf("failed to mount form: %w", err)
	}
	f.binder = b

	r.mu.Lock()
	r.forms[id] = f
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.FormOpened()
	}
	return f, nil
}

func (r *Registry) Get(id string) (*Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	return f, ok
}

// Dialog finds an open dialog across all forms.
func (r *Registry) Dialog(id string) (*widget.Dialog, *Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.forms {
		if d, ok := f.binder.Widget().Dialog(id); ok {
			return d, f, true
		}
	}
	return nil, nil, false
}

// Remove drops a form. Results that arrive afterwards are discarded.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	f, ok := r.forms[id]
	delete(r.forms, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	f.close()
	if r.metrics != nil {
		r.metrics.FormClosed()
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Close removes every form.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// Sweep removes forms that have had no subscribers and no use since
// now minus the idle TTL. It returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)

	r.mu.RLock()
	var idle []string
	for id, f := range r.forms {
		if f.idle(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range idle {
		if r.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Int("remaining", r.Len()).Msg("evicted idle forms")
	}
	return removed
}

// Run sweeps idle forms until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
