// Package binder connects the upload widget to an admin form. Clicking a
// trigger opens a dialog; a successful upload points the preview image and
// the hidden cloudinary_url field at the hosted asset.
package binder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/hackclub/mediafield/internal/dom"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const (
	FileInputSelector = `input[type="file"]`
	PreviewSelector   = ".preview-image"
	ContainerSelector = ".current-file"
	TriggerSelector   = ".cloudinary-button"
	URLFieldSelector  = `input[name="cloudinary_url"]`

	PreviewClass = "preview-image"
	URLFieldName = "cloudinary_url"
)

var (
	fileInputSel = cascadia.MustCompile(FileInputSelector)
	previewSel   = cascadia.MustCompile(PreviewSelector)
	containerSel = cascadia.MustCompile(ContainerSelector)
	triggerSel   = cascadia.MustCompile(TriggerSelector)
	urlFieldSel  = cascadia.MustCompile(URLFieldSelector)
)

// ErrNoSecureURL is reported when the host claims success without a URL.
var ErrNoSecureURL = errors.New("upload result has no secure url")

// Recorder receives binder events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	DialogOpened()
	ResultReceived(event string, err error)
}

type Binder struct {
	doc    *dom.Document
	slots  Slots
	widget *widget.Widget
	logger zerolog.Logger

	mu       sync.Mutex
	onChange func(secureURL string)
	onNotice func(err error)
	recorder Recorder

	widgetOpts []widget.Option
}

type Option func(*Binder)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Binder) { b.logger = logger }
}

// WithSlots replaces the document-backed slot store.
func WithSlots(s Slots) Option {
	return func(b *Binder) { b.slots = s }
}

// OnChange registers a hook that runs after a successful result has been
// written into the form.
func OnChange(fn func(secureURL string)) Option {
	return func(b *Binder) { b.onChange = fn }
}

// OnNotice registers a hook for upload failures the user should hear
// about. It never receives close or abort events.
func OnNotice(fn func(err error)) Option {
	return func(b *Binder) { b.onNotice = fn }
}

func WithRecorder(r Recorder) Option {
	return func(b *Binder) { b.recorder = r }
}

// WithWidgetOptions passes options through to the widget factory.
func WithWidgetOptions(opts ...widget.Option) Option {
	return func(b *Binder) { b.widgetOpts = append(b.widgetOpts, opts...) }
}

// Initialize builds the widget for doc and arms trigger dispatch. It is
// called once per form when the form is mounted.
func Initialize(doc *dom.Document, cfg widget.Config, host widget.Host, opts ...Option) (*Binder, error) {
	b := &Binder{
		doc:    doc,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.slots == nil {
		b.slots = NewDocumentSlots(doc)
	}

	wopts := append([]widget.Option{widget.WithLogger(b.logger)}, b.widgetOpts...)
	w, err := widget.New(cfg, host, b.OnResult, wopts...)
	if err != nil {
		b.logger.Error().Err(err).Str("cloud_name", cfg.CloudName).Msg("failed to create upload widget")
		return nil, fmt.Errorf("failed to create upload widget: %w", err)
	}
	b.widget = w

	b.logger.Info().
		Int("triggers", doc.Count(triggerSel)).
		Str("cloud_name", cfg.CloudName).
		Msg("upload binder initialized")
	return b, nil
}

func (b *Binder) Widget() *widget.Widget {
	return b.widget
}

// Click dispatches a click on target. If target sits inside a trigger that
// is part of the document, a new dialog is opened. Triggers are matched at
// click time, so ones added after Initialize work too.
func (b *Binder) Click(target *html.Node) (*widget.Dialog, bool) {
	b.mu.Lock()
	trigger := dom.Closest(target, triggerSel)
	live := trigger != nil && b.doc.Contains(trigger)
	b.mu.Unlock()

	if !live {
		return nil, false
	}
	return b.open(), true
}

// ClickTrigger clicks the trigger at index among those currently on the
// page.
func (b *Binder) ClickTrigger(index int) (*widget.Dialog, bool) {
	b.mu.Lock()
	triggers := b.doc.All(triggerSel)
	b.mu.Unlock()

	if index < 0 || index >= len(triggers) {
		return nil, false
	}
	return b.open(), true
}

func (b *Binder) open() *widget.Dialog {
	d := b.widget.Open()
	if b.recorder != nil {
		b.recorder.DialogOpened()
	}
	return d
}

// OnResult is the widget completion callback. Anything other than a
// successful result leaves the form alone.
func (b *Binder) OnResult(err error, res *widget.Result) {
	event := ""
	if res != nil {
		event = res.Event
	}
	if b.recorder != nil {
		b.recorder.ResultReceived(event, err)
	}

	if err != nil {
		b.logger.Warn().Err(err).Msg("upload failed")
		b.notice(err)
		return
	}
	if res == nil || res.Event != widget.EventSuccess {
		b.logger.Debug().Str("event", event).Msg("ignoring upload result")
		return
	}

	secureURL := res.Info.SecureURL
	if secureURL == "" {
		b.logger.Warn().Str("public_id", res.Info.PublicID).Msg("upload result missing secure url")
		b.notice(ErrNoSecureURL)
		return
	}

	b.mu.Lock()
	created, err := Upsert(b.slots, secureURL, RolePreview, RoleURLField)
	b.mu.Unlock()
	if err != nil {
		b.logger.Error().Err(err).Str("secure_url", secureURL).Msg("failed to update form")
		b.notice(err)
		return
	}

	b.logger.Info().
		Str("secure_url", secureURL).
		Strs("created", roleNames(created)).
		Msg("form updated from upload")

	if b.onChange != nil {
		b.onChange(secureURL)
	}
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return names
}

func (b *Binder) notice(err error) {
	if b.onNotice != nil {
		b.onNotice(err)
	}
}

// View runs fn with exclusive access to the document.
func (b *Binder) View(fn func(doc *dom.Document) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.doc)
}
