package studio

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanogen-server/modules/common/datauri"
	"nanogen-server/modules/submission"
)

const testMaxEventBytes = 16 << 10

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestHandler(t *testing.T, gen submission.Generator) (*Handler, *Manager, *mux.Router) {
	t.Helper()
	m := newTestManager(gen)
	h := NewHandler(m, HandlerConfig{ProductName: "nanogen", WebPQuality: 90, MaxUploadBytes: 1 << 20, MaxEventBytes: testMaxEventBytes})
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return h, m, r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, SessionResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp SessionResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// stateOf - 파생 필드(canSubmit, result 등)까지 보려고 원본 JSON에서 읽음
func stateOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var raw struct {
		State map[string]any `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	return raw.State
}

func TestHandler_SessionLifecycle(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{url: "data:image/png;base64,AAA="})

	rec, resp := do(t, r, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "idle", stateOf(t, rec)["status"])
	base := "/api/sessions/" + resp.SessionID

	rec, resp = do(t, r, http.MethodPost, base+"/events", `{"type":"submit"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *resp.Accepted, "blank prompt cannot be submitted")

	rec, resp = do(t, r, http.MethodPost, base+"/events", `{"type":"set_aspect_ratio","aspectRatio":"16:9"}`)
	assert.True(t, *resp.Accepted)
	assert.Equal(t, "16:9", stateOf(t, rec)["aspectRatio"])

	do(t, r, http.MethodPost, base+"/events", `{"type":"set_prompt","prompt":"a cat"}`)
	rec, resp = do(t, r, http.MethodPost, base+"/events", `{"type":"submit"}`)
	assert.True(t, *resp.Accepted)
	assert.Equal(t, "loading", stateOf(t, rec)["status"])

	m.WaitAll()

	rec, _ = do(t, r, http.MethodGet, base, "")
	state := stateOf(t, rec)
	assert.Equal(t, "success", state["status"])
	result := state["result"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AAA=", result["imageUrl"])
	assert.Equal(t, "a cat", result["prompt"])
}

func TestHandler_ErrorAndDismiss(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{err: errors.New("No image was generated. Please try a different prompt.")})
	m.GetOrCreate("s1")

	do(t, r, http.MethodPost, "/api/sessions/s1/events", `{"type":"set_prompt","prompt":"a cat"}`)
	do(t, r, http.MethodPost, "/api/sessions/s1/events", `{"type":"submit"}`)
	m.WaitAll()

	rec, _ := do(t, r, http.MethodGet, "/api/sessions/s1", "")
	state := stateOf(t, rec)
	assert.Equal(t, "error", state["status"])
	assert.Equal(t, "No image was generated. Please try a different prompt.", state["message"])

	rec, resp := do(t, r, http.MethodPost, "/api/sessions/s1/events", `{"type":"dismiss"}`)
	assert.True(t, *resp.Accepted)
	state = stateOf(t, rec)
	assert.Equal(t, "idle", state["status"])
	assert.NotContains(t, state, "message")
}

func TestHandler_EventValidation(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	m.GetOrCreate("s1")

	rec, _ := do(t, r, http.MethodPost, "/api/sessions/missing/events", `{"type":"submit"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, body := range []string{
		`{"type":`,
		`{"type":"explode"}`,
		`{"type":"set_aspect_ratio","aspectRatio":"2:1"}`,
		`{"type":"select_image","image":"data:text/plain;base64,aGk="}`,
		`{"type":"select_image","image":"data:image/png;base64,"}`,
		`{"type":"select_image","image":"data:image/png;base64,%%%"}`,
	} {
		rec, resp := do(t, r, http.MethodPost, "/api/sessions/s1/events", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, resp.ErrorMessage, body)
	}
}

func multipartUpload(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="upload"`)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestHandler_UploadImage(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	session := m.GetOrCreate("s1")
	data := pngBytes(t)

	body, ct := multipartUpload(t, "image/png", data)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := session.Snapshot()
	assert.True(t, snap.IsEdit())
	assert.Equal(t, datauri.Encode("image/png", data), snap.SourceImage)
}

func TestHandler_UploadRejectsNonImage(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	session := m.GetOrCreate("s1")

	body, ct := multipartUpload(t, "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please upload an image file")
	assert.False(t, session.Snapshot().IsEdit())
}

func TestHandler_Download(t *testing.T) {
	data := pngBytes(t)
	_, m, r := newTestHandler(t, stubGenerator{url: datauri.Encode("image/png", data)})
	m.GetOrCreate("s1")

	rec, _ := do(t, r, http.MethodGet, "/api/sessions/s1/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing to download before success")

	do(t, r, http.MethodPost, "/api/sessions/s1/events", `{"type":"set_prompt","prompt":"a cat"}`)
	do(t, r, http.MethodPost, "/api/sessions/s1/events", `{"type":"submit"}`)
	m.WaitAll()

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/download", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="nanogen-1700000000000.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, data, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/s1/download?format=webp", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="nanogen-1700000000000.webp"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "RIFF", string(rec.Body.Bytes()[:4]))

	rec, _ = do(t, r, http.MethodGet, "/api/sessions/s1/download?format=bmp", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MetricsAndCleanup(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	m.GetOrCreate("s1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 1, metrics.ActiveSessions)
	require.Len(t, metrics.Sessions, 1)
	assert.Equal(t, submission.StatusIdle, metrics.Sessions[0].Status)

	req = httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cleanup completed")
}

func readState(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MessageState, msg["type"], msg)
	return msg["state"].(map[string]any)
}

func TestHandler_WebSocketFlow(t *testing.T) {
	_, _, r := newTestHandler(t, stubGenerator{url: "data:image/png;base64,AAA="})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=ws-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "idle", readState(t, conn)["status"])

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: MessageSetPrompt, Prompt: "a cat"}))
	assert.Equal(t, "a cat", readState(t, conn)["prompt"])

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: MessageSubmit}))
	assert.Equal(t, "loading", readState(t, conn)["status"])

	final := readState(t, conn)
	assert.Equal(t, "success", final["status"])
	assert.Equal(t, "data:image/png;base64,AAA=", final["result"].(map[string]any)["imageUrl"])

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "bogus"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Message, "bogus")
}

func TestHandler_WebSocketRequiresSession(t *testing.T) {
	_, _, r := newTestHandler(t, stubGenerator{})
	rec, _ := do(t, r, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_EventTooLarge(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	session := m.GetOrCreate("s1")

	body := `{"type":"select_image","image":"data:image/png;base64,` + strings.Repeat("A", testMaxEventBytes) + `"}`
	rec, resp := do(t, r, http.MethodPost, "/api/sessions/s1/events", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Event is too large", resp.ErrorMessage)
	assert.False(t, session.Snapshot().IsEdit())
}

func TestHandler_WebSocketMessageTooLarge(t *testing.T) {
	_, m, r := newTestHandler(t, stubGenerator{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=ws-big"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readState(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{
		Type:  MessageSelectImage,
		Image: "data:image/png;base64," + strings.Repeat("A", testMaxEventBytes),
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "connection is closed once the read limit is exceeded")

	session, ok := m.Get("ws-big")
	require.True(t, ok)
	assert.False(t, session.Snapshot().IsEdit())
}
