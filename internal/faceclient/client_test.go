package faceclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrainSkipMode(t *testing.T) {
	c := New("", true)
	result, err := c.Train(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ModelPath != "models/student-1_model.yml" {
		t.Errorf("got model path %q", result.ModelPath)
	}
	if result.SampleCount == 0 {
		t.Error("expected a nonzero sample count")
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("skip mode health must succeed: %v", err)
	}
}

func TestTrainSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/train" {
			t.Errorf("got path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"model_path":"models/student-1_model.yml","sample_count":42}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	result, err := c.Train(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SampleCount != 42 {
		t.Errorf("got sample count %d, want 42", result.SampleCount)
	}
}

func TestTrainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no dataset", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.Train(context.Background(), "student-1"); err == nil {
		t.Error("expected non-2xx response to error")
	}
}

func TestTrainRequiresIdentity(t *testing.T) {
	c := New("http://localhost:0", false)
	if _, err := c.Train(context.Background(), ""); err == nil {
		t.Error("expected empty identity id to be rejected")
	}
}

func TestTrainMissingModelPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sample_count":42}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.Train(context.Background(), "student-1"); err == nil {
		t.Error("expected missing model path to error")
	}
}
