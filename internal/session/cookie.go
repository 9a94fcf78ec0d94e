package session

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	SessionName = "mediafield-session"
	FormKey     = "form_id"

	// MaxAge is how long the browser remembers its form.
	MaxAge = 12 * time.Hour
)

// Manager remembers which form the browser is editing, so a page reload
// lands on the same form.
type Manager struct {
	store sessions.Store
}

func NewManager(sessionSecret string, secure bool) *Manager {
	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{store: store}
}

func (m *Manager) SetFormID(w http.ResponseWriter, r *http.Request, id string) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return err
	}
	session.Values[FormKey] = id
	return session.Save(r, w)
}

// FormID returns the remembered form, or "" when there is none.
func (m *Manager) FormID(r *http.Request) string {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	id, _ := session.Values[FormKey].(string)
	return id
}

func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return err
	}
	delete(session.Values, FormKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
