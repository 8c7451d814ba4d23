package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-faceid/images"
	"github.com/nvr-ai/go-faceid/inference"
	"github.com/nvr-ai/go-faceid/models"
	"github.com/nvr-ai/go-faceid/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine answers with canned results and records the payloads it saw.
type fakeEngine struct {
	classes  *models.ClassDictionary
	profiler *profiler.RuntimeProfiler
	results  []inference.Result
	err      error
	wait     bool
	seen     [][]byte
}

func (e *fakeEngine) Classify(ctx context.Context, src images.Source) ([]inference.Result, error) {
	e.seen = append(e.seen, src.Data)
	if e.wait {
		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), "waiting for face cascade")
	}
	return e.results, e.err
}

func (e *fakeEngine) Classes() *models.ClassDictionary { return e.classes }
func (e *fakeEngine) Profiler() *profiler.RuntimeProfiler { return e.profiler }

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	classes, err := models.NewClassDictionary(map[string]int{"lionel_messi": 0, "roger_federer": 1})
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return &fakeEngine{
		classes:  classes,
		profiler: profiler.NewRuntimeProfiler(profiler.DefaultOptions(), logger),
		results:  []inference.Result{},
	}
}

func newTestServer(t *testing.T, engine Classifier, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := test.NewNullLogger()
	s, err := New(cfg, engine, logger)
	require.NoError(t, err)
	return s
}

func postForm(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/classify_image", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func payload(data []byte) url.Values {
	return url.Values{FormField: {"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)}}
}

func TestClassifyImageNoFaces(t *testing.T) {
	engine := newFakeEngine(t)
	s := newTestServer(t, engine, nil)

	rec := postForm(t, s, payload([]byte("jpeg bytes")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `[]`, rec.Body.String())
	require.Len(t, engine.seen, 1)
	assert.Equal(t, []byte("jpeg bytes"), engine.seen[0])
}

func TestClassifyImageResults(t *testing.T) {
	engine := newFakeEngine(t)
	engine.results = []inference.Result{
		{Class: "roger_federer", ClassProbability: []float64{3.21, 96.79}, ClassDictionary: engine.classes.Map()},
		{Class: "lionel_messi", ClassProbability: []float64{88.5, 11.5}, ClassDictionary: engine.classes.Map()},
	}
	s := newTestServer(t, engine, nil)

	rec := postForm(t, s, payload([]byte("jpeg bytes")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"class": "roger_federer", "class_probability": [3.21, 96.79], "class_dictionary": {"lionel_messi": 0, "roger_federer": 1}},
		{"class": "lionel_messi", "class_probability": [88.5, 11.5], "class_dictionary": {"lionel_messi": 0, "roger_federer": 1}}
	]`, rec.Body.String())
}

func TestClassifyImageMultipart(t *testing.T) {
	engine := newFakeEngine(t)
	s := newTestServer(t, engine, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField(FormField, base64.StdEncoding.EncodeToString([]byte("png bytes"))))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/classify_image", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.seen, 1)
	assert.Equal(t, []byte("png bytes"), engine.seen[0])
}

func TestClassifyImageClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		err      error
		wantCode int
	}{
		{name: "missing field", form: url.Values{"other": {"x"}}, wantCode: http.StatusBadRequest},
		{name: "empty field", form: url.Values{FormField: {""}}, wantCode: http.StatusBadRequest},
		{name: "bad base64", form: url.Values{FormField: {"data:image/png;base64,%%%"}}, wantCode: http.StatusBadRequest},
		{
			name:     "undecodable image",
			form:     payload([]byte("garbage")),
			err:      errors.Wrap(images.ErrUndecodable, "decode 7 bytes"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "internal failure",
			form:     payload([]byte("jpeg")),
			err:      errors.New("session exploded"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(t)
			engine.err = tt.err
			s := newTestServer(t, engine, nil)

			rec := postForm(t, s, tt.form)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.NotContains(t, body.Error, "exploded", "internal details are not exposed")
		})
	}
}

func TestClassifyImageTooLarge(t *testing.T) {
	engine := newFakeEngine(t)
	s := newTestServer(t, engine, func(c *Config) { c.MaxUploadBytes = 64 })

	rec := postForm(t, s, payload(bytes.Repeat([]byte("x"), 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, engine.seen)
}

func TestClassifyImageTimeout(t *testing.T) {
	engine := newFakeEngine(t)
	engine.wait = true
	s := newTestServer(t, engine, func(c *Config) { c.RequestTimeout = 20 * time.Millisecond })

	rec := postForm(t, s, payload([]byte("jpeg")))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, newFakeEngine(t), nil)

	req := httptest.NewRequest(http.MethodOptions, "/classify_image", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthAndStats(t *testing.T) {
	engine := newFakeEngine(t)
	engine.profiler.StartOperation("classify")()
	s := newTestServer(t, engine, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "classes": ["lionel_messi", "roger_federer"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap profiler.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Operations["classify"].Count)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.Wrap(images.ErrInvalidPayload, "x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(images.ErrUndecodable))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(errors.Wrap(context.DeadlineExceeded, "x")))
	assert.Equal(t, StatusClientClosedRequest, statusFor(errors.Wrap(context.Canceled, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"no addr":          func(c *Config) { c.Addr = "" },
		"no upload limit":  func(c *Config) { c.MaxUploadBytes = 0 },
		"no timeout":       func(c *Config) { c.RequestTimeout = 0 },
		"no shutdown":      func(c *Config) { c.ShutdownTimeout = 0 },
		"unknown gin mode": func(c *Config) { c.Mode = "loud" },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, newFakeEngine(t), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// cancelledEngine fails every classification the way the engine does when the request
// context is cancelled.
type cancelledEngine struct{ *fakeEngine }

func (e cancelledEngine) Classify(ctx context.Context, src images.Source) ([]inference.Result, error) {
	return nil, errors.Wrap(context.Canceled, "waiting for ONNX session")
}

func TestClassifyImageClientGone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s, err := New(cfg, cancelledEngine{newFakeEngine(t)}, logger)
	require.NoError(t, err)

	rec := postForm(t, s, payload([]byte("jpeg")))
	assert.Equal(t, StatusClientClosedRequest, rec.Code)

	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level, e.Message)
	}
}
