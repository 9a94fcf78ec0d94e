// Package widget models the vendor upload widget: a factory that takes a
// fixed configuration and a completion callback, and hands out dialogs that
// each transfer at most one file to the remote media host.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hackclub/mediafield/internal/util"
	"github.com/rs/zerolog"
)

const (
	EventSuccess = "success"
	EventClose   = "close"
	EventAbort   = "abort"

	ResourceImage = "image"

	DefaultUploadTimeout = 2 * time.Minute
	DefaultDialogTTL     = 30 * time.Minute
)

var (
	ErrInvalidConfig    = errors.New("invalid widget config")
	ErrDialogClosed     = errors.New("dialog closed")
	ErrUploadInProgress = errors.New("upload already in progress")
	ErrNotImage         = errors.New("source is not an image")
	ErrEmptySource      = errors.New("source has no data")
	ErrNoInfo           = errors.New("media host returned no asset info")
)

// Config is the fixed widget configuration.
type Config struct {
	CloudName    string `json:"cloudName"`
	UploadPreset string `json:"uploadPreset"`
	Multiple     bool   `json:"multiple"`
	ResourceType string `json:"resourceType"`
}

func (c Config) validate() error {
	switch {
	case c.CloudName == "":
		return fmt.Errorf("%w: cloud name is required", ErrInvalidConfig)
	case c.UploadPreset == "":
		return fmt.Errorf("%w: upload preset is required", ErrInvalidConfig)
	case c.Multiple:
		return fmt.Errorf("%w: only single-file mode is supported", ErrInvalidConfig)
	case c.ResourceType != ResourceImage:
		return fmt.Errorf("%w: unsupported resource type %q", ErrInvalidConfig, c.ResourceType)
	}
	return nil
}

// Info describes a hosted asset. Only SecureURL is relied upon.
type Info struct {
	SecureURL    string `json:"secure_url"`
	PublicID     string `json:"public_id,omitempty"`
	Format       string `json:"format,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Bytes        int    `json:"bytes,omitempty"`
}

// Result is what a dialog reports to the callback.
type Result struct {
	Event string `json:"event"`
	Info  Info   `json:"info"`
}

// Callback receives the outcome of a dialog. Exactly one of err and res is
// non-nil.
type Callback func(err error, res *Result)

// Source is the file picked in a dialog: either raw bytes or a remote HTTPS
// URL to fetch.
type Source struct {
	Data        []byte
	Filename    string
	ContentType string
	URL         string
}

// Host transfers a source to the remote media host and reports where it
// landed.
type Host interface {
	Upload(ctx context.Context, cfg Config, src Source) (*Info, error)
}

// Fetcher downloads URL sources.
type Fetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, string, error)
}

type Widget struct {
	cfg      Config
	host     Host
	callback Callback
	fetcher  Fetcher
	timeout  time.Duration
	ttl      time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	dialogs map[string]*Dialog
}

type Option func(*Widget)

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Widget) { w.logger = logger }
}

func WithFetcher(f Fetcher) Option {
	return func(w *Widget) { w.fetcher = f }
}

func WithUploadTimeout(d time.Duration) Option {
	return func(w *Widget) { w.timeout = d }
}

// WithDialogTTL bounds how long a dialog may stay open without an upload
// before it is closed. Zero disables expiry.
func WithDialogTTL(d time.Duration) Option {
	return func(w *Widget) { w.ttl = d }
}

// New builds a widget. It fails when the configuration is unusable or no
// host or callback is supplied.
func New(cfg Config, host Host, cb Callback, opts ...Option) (*Widget, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, fmt.Errorf("%w: media host is required", ErrInvalidConfig)
	}
	if cb == nil {
		return nil, fmt.Errorf("%w: callback is required", ErrInvalidConfig)
	}

	w := &Widget{
		cfg:      cfg,
		host:     host,
		callback: cb,
		timeout:  DefaultUploadTimeout,
		ttl:      DefaultDialogTTL,
		logger:   zerolog.Nop(),
		dialogs:  make(map[string]*Dialog),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.fetcher == nil {
		w.fetcher = util.NewHTTPFetcher()
	}
	return w, nil
}

func (w *Widget) Config() Config {
	return w.cfg
}

// Open starts a new dialog. Every call returns an independent dialog. A
// dialog that sees no upload within the dialog TTL is closed.
func (w *Widget) Open() *Dialog {
	d := &Dialog{
		ID:     uuid.NewString(),
		widget: w,
		done:   make(chan struct{}),
	}

	w.mu.Lock()
	w.dialogs[d.ID] = d
	w.mu.Unlock()

	if w.ttl > 0 {
		d.mu.Lock()
		d.expiry = time.AfterFunc(w.ttl, d.expire)
		d.mu.Unlock()
	}

	w.logger.Debug().Str("dialog", d.ID).Msg("dialog opened")
	return d
}

// Dialog looks up a dialog that has not finished yet.
func (w *Widget) Dialog(id string) (*Dialog, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.dialogs[id]
	return d, ok
}

// OpenDialogs returns how many dialogs are waiting for a result.
func (w *Widget) OpenDialogs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dialogs)
}

func (w *Widget) forget(id string) {
	w.mu.Lock()
	delete(w.dialogs, id)
	w.mu.Unlock()
}

// resolve turns a URL source into bytes and checks the payload is an image.
func (w *Widget) resolve(ctx context.Context, src Source) (Source, error) {
	if src.URL != "" && len(src.Data) == 0 {
		data, contentType, err := w.fetcher.FetchURL(ctx, src.URL)
		if err != nil {
			return src, fmt.Errorf("failed to fetch source: %w", err)
		}
		src.Data = data
		src.ContentType = contentType
	}
	if len(src.Data) == 0 {
		return src, ErrEmptySource
	}
	if !util.IsImageMIME(src.ContentType) {
		detected := util.DetectContentType(src.Data)
		if !util.IsImageMIME(detected) {
			return src, fmt.Errorf("%w: detected %s", ErrNotImage, detected)
		}
		src.ContentType = detected
	}
	return src, nil
}
