package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/sentinel-live/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeService stands in for the remote detection/effect backend.
func fakeService(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	for path, h := range routes {
		r.HandleFunc(path, h).Methods("POST")
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func replyJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func testFrame() *types.Frame {
	return &types.Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Width: types.CaptureWidth, Height: types.CaptureHeight}
}

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestDetect(t *testing.T) {
	var gotImage string
	srv := fakeService(t, map[string]http.HandlerFunc{
		DetectPath: func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var req struct {
				Image string `json:"image"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotImage = req.Image
			replyJSON(`{"detections":[
				{"id":"b","x":10,"y":20,"width":30,"height":40,"confidence":0.9,"label":"face"},
				{"id":"a","x":100,"y":100,"width":50,"height":50,"confidence":1}
			]}`)(w, r)
		},
	})

	c := New(srv.URL, time.Second, nil)
	dets, err := c.Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if gotImage != testFrame().DataURI() {
		t.Errorf("Service received %q, want the frame data URI", gotImage)
	}

	// Service order is preserved, no sorting
	want := []types.Detection{
		{ID: "b", X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.9, Label: "face"},
		{ID: "a", X: 100, Y: 100, Width: 50, Height: 50, Confidence: 1},
	}
	if diff := cmp.Diff(want, dets); diff != "" {
		t.Errorf("Detect() mismatch (-want +got):\n%s", diff)
	}
}

func TestDetect_MalformedIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
	}{
		{"Not JSON", `<html>oops</html>`, 0},
		{"Missing detections", `{"faces":[]}`, 0},
		{"Null detections", `{"detections":null}`, 0},
		{"Wrong type", `{"detections":"none"}`, 0},
		{"Entry missing fields", `{"detections":[{"id":"x","x":1}]}`, 0},
		{"Entry with string coords", `{"detections":[{"id":"x","x":"1","y":1,"width":5,"height":5,"confidence":1}]}`, 0},
		{"One good one bad", `{"detections":[{"x":1,"y":1,"width":5,"height":5,"confidence":1},{"y":2}]}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeService(t, map[string]http.HandlerFunc{DetectPath: replyJSON(tt.body)})
			logger, logs := observedLogger()

			dets, err := New(srv.URL, time.Second, logger).Detect(context.Background(), testFrame())
			if err != nil {
				t.Fatalf("Malformed body must not be an error, got %v", err)
			}
			if dets == nil {
				t.Error("Expected an empty, non-nil list")
			}
			if len(dets) != tt.wantLen {
				t.Errorf("Got %d detections, want %d", len(dets), tt.wantLen)
			}
			if tt.name != "Missing detections" && tt.name != "Null detections" && logs.FilterLevelExact(zapcore.WarnLevel).Len() == 0 {
				t.Error("Expected a warning for the malformed response")
			}
		})
	}
}

func TestDetect_RemoteFailure(t *testing.T) {
	srv := fakeService(t, map[string]http.HandlerFunc{
		DetectPath: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"cascade not loaded"}`))
		},
	})

	_, err := New(srv.URL, time.Second, nil).Detect(context.Background(), testFrame())
	if err == nil {
		t.Fatal("Expected an error for a 500 response")
	}
	if !errors.Is(err, ErrRemote) {
		t.Errorf("Expected ErrRemote, got %v", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("Expected *RemoteError, got %T", err)
	}
	if re.StatusCode != http.StatusInternalServerError || re.Message != "cascade not loaded" {
		t.Errorf("Unexpected RemoteError %+v", re)
	}
}

func TestDetect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 200*time.Millisecond, nil).Detect(context.Background(), testFrame())
	if !errors.Is(err, ErrRemote) {
		t.Errorf("Expected ErrRemote for a closed server, got %v", err)
	}
}

func TestDetect_IDs(t *testing.T) {
	srv := fakeService(t, map[string]http.HandlerFunc{DetectPath: replyJSON(`{"detections":[
		{"id":7,"x":1,"y":1,"width":5,"height":5,"confidence":1},
		{"x":1,"y":1,"width":5,"height":5,"confidence":1}
	]}`)})

	dets, err := New(srv.URL, time.Second, nil).Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(dets))
	}
	if dets[0].ID != "7" {
		t.Errorf("Numeric id should be kept as text, got %q", dets[0].ID)
	}
	if len(dets[1].ID) != 8 {
		t.Errorf("Missing id should be filled with 8 chars, got %q", dets[1].ID)
	}
}

func TestSanitize(t *testing.T) {
	bounds := types.CaptureSize
	tests := []struct {
		name   string
		in     types.Detection
		want   types.Detection
		wantOK bool
	}{
		{
			name:   "Inside",
			in:     types.Detection{X: 10, Y: 10, Width: 20, Height: 20, Confidence: 0.5},
			want:   types.Detection{X: 10, Y: 10, Width: 20, Height: 20, Confidence: 0.5},
			wantOK: true,
		},
		{
			name:   "Overflows bottom right",
			in:     types.Detection{X: 780, Y: 440, Width: 50, Height: 50, Confidence: 1},
			want:   types.Detection{X: 780, Y: 440, Width: 20, Height: 10, Confidence: 1},
			wantOK: true,
		},
		{
			name:   "Negative origin",
			in:     types.Detection{X: -10, Y: -5, Width: 30, Height: 15, Confidence: 1.7},
			want:   types.Detection{X: 0, Y: 0, Width: 20, Height: 10, Confidence: 1},
			wantOK: true,
		},
		{
			name:   "Entirely outside",
			in:     types.Detection{X: 900, Y: 10, Width: 20, Height: 20, Confidence: 1},
			wantOK: false,
		},
		{
			name:   "Zero area",
			in:     types.Detection{X: 10, Y: 10, Width: 0, Height: 20, Confidence: 1},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sanitize(tt.in, bounds)
			if ok != tt.wantOK {
				t.Fatalf("Sanitize() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Sanitize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestApplyEffect(t *testing.T) {
	dets := []types.Detection{{ID: "a", X: 1, Y: 2, Width: 3, Height: 4, Confidence: 1}}

	for _, kind := range types.EffectKinds {
		t.Run(string(kind), func(t *testing.T) {
			hits := map[string]int{}
			handler := func(path string) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					hits[path]++
					var req struct {
						Image      string            `json:"image"`
						Detections []types.Detection `json:"detections"`
					}
					if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
						t.Errorf("Bad request body: %v", err)
					}
					if diff := cmp.Diff(dets, req.Detections); diff != "" {
						t.Errorf("Detections sent mismatch (-want +got):\n%s", diff)
					}
					replyJSON(`{"image":"data:image/jpeg;base64,` + strings.TrimPrefix(path, "/") + `"}`)(w, r)
				}
			}
			srv := fakeService(t, map[string]http.HandlerFunc{
				"/grayscale-faces": handler("/grayscale-faces"),
				"/blur-faces":      handler("/blur-faces"),
			})

			img, err := New(srv.URL, time.Second, nil).ApplyEffect(context.Background(), testFrame(), dets, kind)
			if err != nil {
				t.Fatalf("ApplyEffect failed: %v", err)
			}
			if hits[kind.Endpoint()] != 1 || len(hits) != 1 {
				t.Errorf("Expected exactly one call to %s, got %v", kind.Endpoint(), hits)
			}
			if !strings.HasSuffix(string(img), strings.TrimPrefix(kind.Endpoint(), "/")) {
				t.Errorf("Unexpected image %q", img)
			}
		})
	}
}

func TestApplyEffect_Malformed(t *testing.T) {
	srv := fakeService(t, map[string]http.HandlerFunc{"/blur-faces": replyJSON(`{"image":`)})
	img, err := New(srv.URL, time.Second, nil).ApplyEffect(context.Background(), testFrame(),
		[]types.Detection{{X: 1, Y: 1, Width: 1, Height: 1}}, types.EffectBlur)
	if err != nil {
		t.Fatalf("Malformed body must not be an error, got %v", err)
	}
	if img != "" {
		t.Errorf("Expected empty image, got %q", img)
	}
}

func TestApplyEffect_UnknownKind(t *testing.T) {
	_, err := New("http://127.0.0.1:1", time.Second, nil).ApplyEffect(context.Background(), testFrame(), nil, "sepia")
	if err == nil {
		t.Fatal("Expected an error for an unknown effect")
	}
}
