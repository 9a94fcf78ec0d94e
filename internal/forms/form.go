package forms

import (
	"bytes"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/dustin/go-broadcast"
	"github.com/hackclub/mediafield/internal/binder"
	"github.com/hackclub/mediafield/internal/dom"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/rs/zerolog"
)

const (
	MessageForm   = "form"
	MessageNotice = "notice"
	MessageClosed = "closed"
)

var (
	formSel     = cascadia.MustCompile("form")
	bodySel     = cascadia.MustCompile("body")
	urlFieldSel = cascadia.MustCompile(binder.URLFieldSelector)
)

// Message is pushed to subscribers when the form changes or an upload
// fails.
type Message struct {
	Type      string `json:"type"`
	HTML      string `json:"html,omitempty"`
	SecureURL string `json:"secureUrl,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Form struct {
	ID      string
	Created time.Time

	binder      *binder.Binder
	broadcaster broadcast.Broadcaster
	logger      zerolog.Logger

	mu          sync.Mutex
	closed      bool
	done        chan struct{}
	subscribers int
	lastActive  time.Time
}

// Render returns the whole page.
func (f *Form) Render() (string, error) {
	f.touch()
	var buf bytes.Buffer
	err := f.binder.View(func(doc *dom.Document) error {
		return doc.Render(&buf)
	})
	return buf.String(), err
}

// RenderForm returns just the <form> element, or the page if it has none.
func (f *Form) RenderForm() (string, error) {
	var out string
	err := f.binder.View(func(doc *dom.Document) error {
		n := doc.First(formSel)
		if n == nil {
			n = doc.Root()
		}
		var err error
		out, err = dom.RenderNode(n)
		return err
	})
	return out, err
}

// AppendMarkup adds markup at the end of the form, e.g. another trigger
// button.
func (f *Form) AppendMarkup(markup string) error {
	f.touch()
	err := f.binder.View(func(doc *dom.Document) error {
		parent := doc.First(formSel)
		if parent == nil {
			parent = doc.First(bodySel)
		}
		return doc.AppendMarkup(parent, markup)
	})
	if err != nil {
		return err
	}
	f.publishForm("")
	return nil
}

// Click presses the trigger at index.
func (f *Form) Click(index int) (*widget.Dialog, bool) {
	f.touch()
	return f.binder.ClickTrigger(index)
}

// SecureURL returns the value of the hidden URL field, if present.
func (f *Form) SecureURL() string {
	var v string
	_ = f.binder.View(func(doc *dom.Document) error {
		v, _ = dom.Attr(doc.First(urlFieldSel), "value")
		return nil
	})
	return v
}

// Widget exposes the form's upload widget.
func (f *Form) Widget() *widget.Widget {
	return f.binder.Widget()
}

// Subscribe returns a channel receiving Message values until Unsubscribe.
// Subscribers must keep draining the channel until Unsubscribe returns, and
// should stop once Done is closed.
func (f *Form) Subscribe() chan interface{} {
	ch := make(chan interface{}, 16)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.broadcaster.Register(ch)
	f.subscribers++
	f.lastActive = time.Now()
	return ch
}

func (f *Form) Unsubscribe(ch chan interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.broadcaster.Unregister(ch)
	f.subscribers--
	f.lastActive = time.Now()
}

// Done is closed when the form is removed from its registry.
func (f *Form) Done() <-chan struct{} {
	return f.done
}

func (f *Form) touch() {
	f.mu.Lock()
	f.lastActive = time.Now()
	f.mu.Unlock()
}

// idle reports whether nobody has watched or used the form since before
// cutoff.
func (f *Form) idle(cutoff time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers == 0 && f.lastActive.Before(cutoff)
}

func (f *Form) changed(secureURL string) {
	f.publishForm(secureURL)
}

func (f *Form) noticed(err error) {
	f.publish(Message{Type: MessageNotice, Message: err.Error()})
}

func (f *Form) publishForm(secureURL string) {
	html, err := f.RenderForm()
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to render form")
		return
	}
	f.publish(Message{Type: MessageForm, HTML: html, SecureURL: secureURL})
}

func (f *Form) publish(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if !f.broadcaster.TrySubmit(m) {
		f.logger.Warn().Str("type", m.Type).Msg("subscribers lagging, dropped update")
	}
}

func (f *Form) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	if err := f.broadcaster.Close(); err != nil {
		f.logger.Warn().Err(err).Msg("failed to close broadcaster")
	}
}
