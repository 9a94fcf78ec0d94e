package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hackclub/mediafield/internal/config"
	"github.com/hackclub/mediafield/internal/forms"
	"github.com/hackclub/mediafield/internal/metrics"
	"github.com/hackclub/mediafield/internal/session"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const hostedURL = "https://res.cloudinary.com/demo/image/upload/v1/a.png"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubHost struct{}

func (stubHost) Upload(ctx context.Context, cfg widget.Config, src widget.Source) (*widget.Info, error) {
	return &widget.Info{SecureURL: hostedURL, Format: "png"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *forms.Registry) {
	t.Helper()
	cfg := &config.Config{
		AppBaseURL:             "http://localhost:8080",
		SessionSecret:          "0123456789abcdef0123456789abcdef",
		CloudinaryCloudName:    "demo",
		CloudinaryUploadPreset: "unsigned",
		MediaHost:              config.HostCloudinary,
	}
	reg := prometheus.NewRegistry()
	registry := forms.NewRegistry(cfg.Widget(), stubHost{}, zerolog.Nop(), forms.WithMetrics(metrics.New(reg)))
	srv := NewServer(cfg, zerolog.Nop(), session.NewManager(cfg.SessionSecret, false), registry,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		registry.Close()
	})
	return ts, registry
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func createForm(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/admin/forms", "application/json", nil)
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	return body["id"]
}

func click(t *testing.T, ts *httptest.Server, formID string, index string) (string, int) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/admin/forms/"+formID+"/triggers/"+index+"/click", "", nil)
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		return "", resp.StatusCode
	}
	var body map[string]string
	decode(t, resp, &body)
	return body["dialogId"], resp.StatusCode
}

func uploadFile(t *testing.T, ts *httptest.Server, dialogID, query string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "a.png")
	part.Write(pngBytes)
	mw.Close()

	resp, err := http.Post(ts.URL+"/admin/dialogs/"+dialogID+query, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func getPage(t *testing.T, ts *httptest.Server, formID string) string {
	t.Helper()
	resp, err := http.Get(ts.URL + "/admin/forms/" + formID + "/")
	if err != nil {
		t.Fatalf("get form: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.String()
}

func TestHealthAndConfig(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var cfg widget.Config
	decode(t, resp, &cfg)
	if cfg.CloudName != "demo" || cfg.UploadPreset != "unsigned" || cfg.Multiple || cfg.ResourceType != "image" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestUploadUpdatesForm(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	if page := getPage(t, ts, formID); strings.Contains(page, "preview-image") {
		t.Fatal("fresh form already has a preview")
	}

	dialogID, status := click(t, ts, formID, "0")
	if status != http.StatusCreated {
		t.Fatalf("click status = %d", status)
	}

	resp := uploadFile(t, ts, dialogID, "?wait=true")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var result map[string]interface{}
	decode(t, resp, &result)
	if result["event"] != widget.EventSuccess || result["secureUrl"] != hostedURL {
		t.Errorf("result = %v", result)
	}

	page := getPage(t, ts, formID)
	for _, want := range []string{
		`<img class="preview-image" src="` + hostedURL + `"/>`,
		`<input type="hidden" name="cloudinary_url" value="` + hostedURL + `"/>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %s", want)
		}
	}

	// the dialog is spent
	resp = uploadFile(t, ts, dialogID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("reuse status = %d, want 404", resp.StatusCode)
	}
}

func TestClickUnknownTrigger(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	if _, status := click(t, ts, formID, "3"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if _, status := click(t, ts, formID, "x"); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if _, status := click(t, ts, "missing", "0"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestAppendedTriggerIsClickable(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	resp, err := http.Post(ts.URL+"/admin/forms/"+formID+"/markup", "text/html",
		strings.NewReader(`<button type="button" class="cloudinary-button">Again</button>`))
	if err != nil {
		t.Fatalf("markup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("markup status = %d", resp.StatusCode)
	}

	if _, status := click(t, ts, formID, "1"); status != http.StatusCreated {
		t.Errorf("click on appended trigger status = %d", status)
	}
}

func TestCloseDialog(t *testing.T) {
	ts, registry := newTestServer(t)
	formID := createForm(t, ts)
	dialogID, _ := click(t, ts, formID, "0")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/admin/dialogs/"+dialogID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("close status = %d", resp.StatusCode)
	}
	if _, _, ok := registry.Dialog(dialogID); ok {
		t.Error("closed dialog still open")
	}
	if page := getPage(t, ts, formID); strings.Contains(page, "preview-image") {
		t.Error("closing the dialog changed the form")
	}
}

func TestSubmitEchoesURL(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	resp, err := http.Post(ts.URL+"/admin/forms/"+formID+"/submit", "application/x-www-form-urlencoded",
		strings.NewReader("cloudinary_url="+hostedURL))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["cloudinary_url"] != hostedURL {
		t.Errorf("echo = %v", body)
	}
}

func TestCurrentFormIsRemembered(t *testing.T) {
	ts, _ := newTestServer(t)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/admin/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	first := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusFound || !strings.HasPrefix(first, "/admin/forms/") {
		t.Fatalf("redirect = %d %q", resp.StatusCode, first)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/admin/", nil)
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Location"); got != first {
		t.Errorf("second redirect = %q, want %q", got, first)
	}
}

func TestWebsocketPushesUpdates(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/forms/" + formID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg forms.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != forms.MessageForm || !strings.Contains(msg.HTML, "cloudinary-button") {
		t.Fatalf("snapshot = %+v", msg)
	}

	dialogID, _ := click(t, ts, formID, "0")
	resp := uploadFile(t, ts, dialogID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Type != forms.MessageForm || msg.SecureURL != hostedURL {
		t.Errorf("update = %+v", msg)
	}
}

func TestWebsocketEndsWhenFormRemoved(t *testing.T) {
	ts, _ := newTestServer(t)
	formID := createForm(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/forms/" + formID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg forms.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/admin/forms/"+formID+"/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read closed message: %v", err)
	}
	if msg.Type != forms.MessageClosed {
		t.Errorf("message = %+v, want closed", msg)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after form removal")
	}
}

func TestCreateFormWithCurrentFile(t *testing.T) {
	ts, _ := newTestServer(t)
	const current = "https://res.cloudinary.com/demo/image/upload/v1/old.jpg"

	body := strings.NewReader(`{"currentFile":{"url":"` + current + `","name":"old.jpg"}}`)
	resp, err := http.Post(ts.URL+"/admin/forms", "application/json", body)
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	var created map[string]string
	decode(t, resp, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	page := getPage(t, ts, created["id"])
	if !strings.Contains(page, `<img class="preview-image" src="`+current+`"/>`) {
		t.Errorf("page missing current preview:\n%s", page)
	}

	resp, err = http.Post(ts.URL+"/admin/forms", "application/json",
		strings.NewReader(`{"currentFile":{"url":"file:///etc/passwd"}}`))
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad current file status = %d, want 400", resp.StatusCode)
	}
}
