package http

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/hackclub/mediafield/internal/forms"
	"github.com/rs/zerolog"
)

// HandleWebsocket pushes form updates and upload notices to the browser.
// The first message is always the current form.
func (s *Server) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	form := formFromContext(r.Context())

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("form", form.ID).Msg("error upgrading websocket")
		return
	}

	conn := &wsConnection{
		ws:     ws,
		form:   form,
		send:   form.Subscribe(),
		done:   make(chan struct{}),
		logger: s.logger.With().Str("form", form.ID).Logger(),
	}

	go conn.writer()
	conn.reader()

	close(conn.done)
	conn.unsubscribe()
}

// checkOrigin accepts same-host requests and the configured app origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	app, err := url.Parse(s.config.AppBaseURL)
	return err == nil && u.Host == app.Host
}

type wsConnection struct {
	ws     *websocket.Conn
	form   *forms.Form
	send   chan interface{}
	done   chan struct{}
	logger zerolog.Logger
}

// reader discards client frames until the connection drops.
func (c *wsConnection) reader() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			break
		}
	}
	c.ws.Close()
}

func (c *wsConnection) writer() {
	defer c.ws.Close()

	html, err := c.form.RenderForm()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to render form")
		return
	}
	if err := c.ws.WriteJSON(forms.Message{Type: forms.MessageForm, HTML: html}); err != nil {
		return
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-c.form.Done():
			c.ws.WriteJSON(forms.Message{Type: forms.MessageClosed})
			return
		case <-c.done:
			return
		}
	}
}

// unsubscribe keeps draining send while the broadcaster lets go of it.
func (c *wsConnection) unsubscribe() {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-c.send:
				if !ok {
					return
				}
			case <-stop:
				return
			}
		}
	}()
	c.form.Unsubscribe(c.send)
	close(stop)
}
