package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/models"
	"github.com/ternarybob/tabula/internal/storage/artifacts"
)

func newTestPipeline(t *testing.T, endpoint string) (*Pipeline, *artifacts.Store) {
	t.Helper()
	logger := arbor.NewLogger()

	store, err := artifacts.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	client, err := NewSessionClient(testPortalConfig(endpoint), logger)
	if err != nil {
		t.Fatalf("NewSessionClient() error = %v", err)
	}

	return NewPipeline(client, store, logger), store.(*artifacts.Store)
}

func TestPipelineEndToEnd(t *testing.T) {
	const csvBody = "periodo;total\n202508;42\n"
	var postedSelection []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<html><body><input name="javax.faces.ViewState" value="vs-1"/><select name="j_idt76"><option value="202507">x</option><option value="202508">y</option></select></body></html>`)
			return
		}
		r.ParseForm()
		postedSelection = r.PostForm["j_idt76"]
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, csvBody)
	}))
	defer server.Close()

	pipeline, store := newTestPipeline(t, server.URL)
	task := models.NewTask("task_e2e", []string{"202508", "202509"})

	path, err := pipeline.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only the overlap with the server's options is submitted
	if !reflect.DeepEqual(postedSelection, []string{"202508"}) {
		t.Errorf("posted selection = %v, want [202508]", postedSelection)
	}

	if path != store.Path(task.ID) {
		t.Errorf("artifact path = %q, want %q", path, store.Path(task.ID))
	}
	data, err := store.Read(task.ID)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, []byte(csvBody)) {
		t.Errorf("artifact = %q, want response body", data)
	}
}

func TestPipelineEmptySelectionFailsBeforeSubmit(t *testing.T) {
	var posts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, testFormPage, "vs-2")
	}))
	defer server.Close()

	pipeline, store := newTestPipeline(t, server.URL)
	task := models.NewTask("task_nooverlap", []string{"999999"})

	_, err := pipeline.Run(context.Background(), task)

	var emptyErr *EmptySelectionError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptySelectionError, got %v", err)
	}
	if atomic.LoadInt32(&posts) != 0 {
		t.Error("pipeline must fail before any submission")
	}
	if store.Exists(task.ID) {
		t.Error("no artifact may be written on failure")
	}
}

func TestPipelineValidationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, testFormPage, "vs-3")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>form rejected</html>")
	}))
	defer server.Close()

	pipeline, store := newTestPipeline(t, server.URL)
	task := models.NewTask("task_rejected", []string{"202507"})

	_, err := pipeline.Run(context.Background(), task)

	var vf *ValidationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
	if store.Exists(task.ID) {
		t.Error("no artifact may be written on failure")
	}
}

func TestPipelineRetriesTransportFaults(t *testing.T) {
	var posts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, testFormPage, "vs-4")
			return
		}
		if atomic.AddInt32(&posts, 1) == 1 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "ok\n")
	}))
	defer server.Close()

	pipeline, _ := newTestPipeline(t, server.URL)
	pipeline.retry.InitialBackoff = 10 // nanoseconds, keep the test fast
	task := models.NewTask("task_flaky", []string{"202507"})

	_, err := pipeline.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run() after retry error = %v", err)
	}
	if atomic.LoadInt32(&posts) != 2 {
		t.Errorf("posts = %d, want 2 (one failure, one retry)", posts)
	}
}

func TestPipelineAvailableOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, testFormPage, "vs-5")
	}))
	defer server.Close()

	pipeline, _ := newTestPipeline(t, server.URL)

	options, err := pipeline.AvailableOptions(context.Background())
	if err != nil {
		t.Fatalf("AvailableOptions() error = %v", err)
	}
	if !reflect.DeepEqual(options, []string{"202507", "202508", "202509"}) {
		t.Errorf("options = %v", options)
	}
}
