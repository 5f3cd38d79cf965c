package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumedhnvda/GM-uni/internal/v1/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "test-token")
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", "tok")
	assert.Error(t, err)

	_, err = NewClient("://bad", "tok")
	assert.Error(t, err)
}

func TestClient_Me(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"email":     "farmer@example.com",
			"full_name": "Test Farmer",
		})
	}))

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "farmer@example.com", u.Email)
	assert.Equal(t, "Test Farmer", u.FullName)
}

func TestClient_MyRoomAndMessages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/community/my-room":
			_ = json.NewEncoder(w).Encode(types.RoomInfo{
				RoomID:      "room-42",
				DisplayName: "Mandya Farmers",
				MemberCount: 17,
			})
		case "/community/messages/room-42":
			_ = json.NewEncoder(w).Encode([]types.ChatMessage{
				{ID: "m1", UserEmail: "a@b.c", Content: "hello", MessageType: types.MessageTypeText},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	room, err := c.MyRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RoomIDType("room-42"), room.RoomID)
	assert.Equal(t, 17, room.MemberCount)

	msgs, err := c.Messages(context.Background(), room.RoomID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestClient_Upload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/community/upload", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "leaf.jpg", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "jpegdata", string(data))
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "/media/leaf.jpg"})
	}))

	url, err := c.Upload(context.Background(), "leaf.jpg", "image/jpeg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "/media/leaf.jpg", url)
}

func TestClient_Upload_MissingURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))

	_, err := c.Upload(context.Background(), "f.png", "image/png", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestClient_RequestAnalysis(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var req AnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ragi", req.Crop)
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "looks healthy"})
	}))

	report, err := c.RequestAnalysis(context.Background(), AnalysisRequest{
		Location: "Mandya",
		LandSize: 2.5,
		Crop:     "ragi",
	})
	require.NoError(t, err)
	assert.Contains(t, string(report), "looks healthy")
}

func TestClient_SpeakAndTranscribe(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tts":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"audio": base64.StdEncoding.EncodeToString(audio),
			})
		case "/stt":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "kn", r.FormValue("language"))
			_ = json.NewEncoder(w).Encode(map[string]string{"transcript": "namaskara"})
		default:
			http.NotFound(w, r)
		}
	}))

	got, err := c.Speak(context.Background(), "hello", "kn")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	text, err := c.Transcribe(context.Background(), audio, "kn")
	require.NoError(t, err)
	assert.Equal(t, "namaskara", text)
}

func TestClient_ResolveMediaURL(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())

	assert.Equal(t, "", c.ResolveMediaURL(""))
	assert.Equal(t, "https://cdn.example.com/a.png", c.ResolveMediaURL("https://cdn.example.com/a.png"))
	assert.Equal(t, srv.URL+"/media/a.png", c.ResolveMediaURL("/media/a.png"))
	assert.Equal(t, srv.URL+"/media/a.png", c.ResolveMediaURL("media/a.png"))
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))

	for i := 0; i < 6; i++ {
		_, err := c.MyRoom(context.Background())
		require.Error(t, err)
	}

	hitsBeforeOpen := hits
	_, err := c.MyRoom(context.Background())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, hitsBeforeOpen, hits, "open breaker must fail fast without touching the backend")
}

func TestClient_NonSuccessStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room not assigned", http.StatusNotFound)
	}))

	_, err := c.MyRoom(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
