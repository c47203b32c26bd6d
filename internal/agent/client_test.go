package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const testToken = "token-123"

// fakeAPI mimics the student surface of the proctoring API.
type fakeAPI struct {
	t      *testing.T
	testID uuid.UUID
	paper  model.StudentPaper
	// facesFor returns the face count of the n-th uploaded frame (0-based).
	facesFor func(n int64) int

	frames atomic.Int64

	mu          sync.Mutex
	submissions []model.SubmitTestRequest
	violations  []model.ViolationReportRequest
	closed      []string
	frameBodies [][]byte
}

func newFakeAPI(t *testing.T, questions int) *fakeAPI {
	api := &fakeAPI{
		t:        t,
		testID:   uuid.New(),
		facesFor: func(int64) int { return 1 },
	}
	api.paper = model.StudentPaper{ID: api.testID, Title: "Biology midterm"}
	for range questions {
		api.paper.Questions = append(api.paper.Questions, model.Question{Text: "Explain osmosis"})
	}
	return api
}

func (f *fakeAPI) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			writeFail(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
			return
		}
		writeData(w, http.StatusOK, model.LoginResponse{
			Token: testToken,
			User:  &model.User{ID: 7, Email: req.Email, Role: model.RoleStudent},
		})
	})
	mux.HandleFunc("GET /api/v1/student/tests/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"test": f.paper})
	}))
	mux.HandleFunc("POST /api/v1/student/tests/{id}/proctor-sessions", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusCreated, map[string]any{"session": model.ProctorSession{
			ID: "sess-1", TestID: f.testID, StudentID: 7, StartedAt: time.Now(),
		}})
	}))
	mux.HandleFunc("POST /api/v1/student/proctor-sessions/{sid}/frames", f.authed(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		if err != nil {
			writeFail(w, http.StatusBadRequest, "FRAME_REQUIRED", "An image frame is required")
			return
		}
		body, _ := io.ReadAll(file)
		f.mu.Lock()
		f.frameBodies = append(f.frameBodies, body)
		f.mu.Unlock()

		faces := f.facesFor(f.frames.Add(1) - 1)
		class := string(proctor.Classify(faces))
		writeData(w, http.StatusOK, model.FrameResult{FaceCount: faces, Classification: class})
	}))
	mux.HandleFunc("POST /api/v1/student/proctor-sessions/{sid}/violations", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req model.ViolationReportRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.violations = append(f.violations, req)
		f.mu.Unlock()
		writeData(w, http.StatusOK, map[string]any{})
	}))
	mux.HandleFunc("DELETE /api/v1/student/proctor-sessions/{sid}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.closed = append(f.closed, r.PathValue("sid"))
		f.mu.Unlock()
		writeData(w, http.StatusOK, map[string]any{})
	}))
	mux.HandleFunc("POST /api/v1/student/tests/{id}/submit", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req model.SubmitTestRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.submissions) > 0 {
			writeFail(w, http.StatusConflict, "ALREADY_SUBMITTED", "You have already submitted this test")
			return
		}
		f.submissions = append(f.submissions, req)
		writeData(w, http.StatusCreated, map[string]any{"submission": Receipt{
			ID: uuid.New(), TestID: f.testID, SubmittedAt: time.Now(), Forced: req.Force,
		}})
	}))
	mux.HandleFunc("GET /ws/v1/student/proctor-sessions/{sid}/alerts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"event": "connected", "session_id": r.PathValue("sid")})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeFail(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "Authorization token is required")
			return
		}
		next(w, r)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeFail(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  nil,
		"error": map[string]string{"code": code, "message": message},
	})
}

func TestClient_LoginAndAuthorizedCalls(t *testing.T) {
	api := newFakeAPI(t, 2)
	srv := api.server()
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	_, err := client.GetTest(ctx, api.testID)
	require.Error(t, err)
	assert.True(t, IsCode(err, "TOKEN_REQUIRED"))

	user, err := client.Login(ctx, "ana@school.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, testToken, client.Token())

	paper, err := client.GetTest(ctx, api.testID)
	require.NoError(t, err)
	assert.Equal(t, "Biology midterm", paper.Title)
	assert.Len(t, paper.Questions, 2)
}

func TestClient_APIErrorCarriesServerMessage(t *testing.T) {
	api := newFakeAPI(t, 1)
	srv := api.server()
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	_, err := client.Login(context.Background(), "ana@school.test", "wrong")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	assert.Equal(t, "Invalid email or password", err.Error())
}

func TestClient_DetectFacesUploadsImageField(t *testing.T) {
	api := newFakeAPI(t, 1)
	api.facesFor = func(int64) int { return 2 }
	srv := api.server()
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()
	_, err := client.Login(ctx, "ana@school.test", "secret")
	require.NoError(t, err)

	res, err := client.DetectFaces(ctx, "sess-1", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.FaceCount)
	assert.Equal(t, "multi-face", res.Classification)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.frameBodies, 1)
	assert.Equal(t, []byte("jpeg-bytes"), api.frameBodies[0])
}

func TestClient_SubmitTwiceReportsConflict(t *testing.T) {
	api := newFakeAPI(t, 1)
	srv := api.server()
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()
	_, err := client.Login(ctx, "ana@school.test", "secret")
	require.NoError(t, err)

	req := model.SubmitTestRequest{Answers: []model.Answer{{QuestionIndex: 0, Text: "Water moves"}}}
	receipt, err := client.Submit(ctx, api.testID, req)
	require.NoError(t, err)
	assert.Equal(t, api.testID, receipt.TestID)

	_, err = client.Submit(ctx, api.testID, req)
	require.Error(t, err)
	assert.True(t, IsCode(err, "ALREADY_SUBMITTED"))
	assert.Equal(t, "You have already submitted this test", err.Error())
}

func TestClient_StreamAlertsRequiresLogin(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, zerolog.Nop())
	err := client.StreamAlerts(context.Background(), "sess-1", func(alert.Alert) {})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_StreamAlertsDeliversAlerts(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/v1/student/proctor-sessions/sess-1/alerts", r.URL.Path)
		assert.Equal(t, testToken, r.URL.Query().Get("token"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"event": "connected", "session_id": "sess-1"})
		_ = conn.WriteJSON(map[string]any{"event": "alert", "alert": alert.Alert{
			SessionID: "sess-1", Type: "danger", Message: "Multiple faces detected", FaceCount: 2,
		}})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zerolog.Nop())
	client.token = testToken

	var got []alert.Alert
	err := client.StreamAlerts(context.Background(), "sess-1", func(a alert.Alert) {
		got = append(got, a)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "danger", got[0].Type)
	assert.Equal(t, 2, got[0].FaceCount)
}

func TestDirCamera(t *testing.T) {
	t.Run("cycles frames in name order", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("second"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("first"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))

		stream, err := NewDirCamera(dir).Open(context.Background())
		require.NoError(t, err)

		var frames []string
		for range 3 {
			frame, err := stream.Capture(context.Background())
			require.NoError(t, err)
			frames = append(frames, string(frame))
		}
		assert.Equal(t, []string{"first", "second", "first"}, frames)

		require.NoError(t, stream.Close())
		_, err = stream.Capture(context.Background())
		assert.ErrorIs(t, err, ErrStreamClosed)
	})

	t.Run("empty directory is an unavailable camera", func(t *testing.T) {
		_, err := NewDirCamera(t.TempDir()).Open(context.Background())
		assert.ErrorIs(t, err, proctor.ErrCameraUnavailable)
	})

	t.Run("missing directory is an unavailable camera", func(t *testing.T) {
		_, err := NewDirCamera(filepath.Join(t.TempDir(), "nope")).Open(context.Background())
		assert.ErrorIs(t, err, proctor.ErrCameraUnavailable)
	})
}
