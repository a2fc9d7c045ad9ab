package docproc

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/mohans/docgateway/ocr"
	"github.com/mohans/docgateway/storage"
	"github.com/mohans/docgateway/taskqueue"
)

type fakeEngine struct {
	text string
	conf float64
	err  error
}

func (e fakeEngine) Name() string { return "fake" }
func (e fakeEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if e.err != nil {
		return ocr.Result{}, e.err
	}
	return ocr.Result{Text: e.text, Confidence: e.conf, Engine: "fake"}, nil
}

func newTestHandlers(t *testing.T, engine ocr.Engine) (*Handlers, string) {
	t.Helper()
	base := t.TempDir()
	files := storage.New(base)
	h := New(files, nil, engine, ocr.NewRegionProcessor(engine, nil, []string{"eng"}), nil, nil)
	return h, base
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 60, 40))); err != nil {
		t.Fatal(err)
	}
}

func TestProcessDocument_ImagePipeline(t *testing.T) {
	h, base := newTestHandlers(t, fakeEngine{text: "hello page", conf: 0.9})
	upload := filepath.Join(base, "pending", "task-1", "scan.png")
	writeTestImage(t, upload)

	res, err := h.ProcessDocument(context.Background(), taskqueue.ProcessDocumentPayload{
		FilePath:         upload,
		OriginalFilename: "scan.png",
	}, "task-1")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Status != "success" || res.TotalPages != 1 || res.OriginalFilename != "scan.png" {
		t.Fatalf("unexpected result: %+v", res)
	}

	outDir := filepath.Join(base, "task-1")
	if res.OutputDirectory != outDir {
		t.Fatalf("output dir %q, want %q", res.OutputDirectory, outDir)
	}
	text, err := os.ReadFile(filepath.Join(outDir, "text.txt"))
	if err != nil {
		t.Fatalf("text output: %v", err)
	}
	if string(text) != "hello page" {
		t.Fatalf("text = %q", text)
	}
	if _, err := os.Stat(filepath.Join(outDir, "images", "page_1_full.png")); err != nil {
		t.Fatalf("page image copy: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "metadata_hierarchy.json"))
	if err != nil {
		t.Fatalf("metadata output: %v", err)
	}
	var meta pageHierarchy
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("metadata decode: %v", err)
	}
	if meta.TotalPages != 1 || len(meta.Pages) != 1 || meta.Pages[0].Text != "hello page" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestProcessDocument_RejectsPDF(t *testing.T) {
	h, base := newTestHandlers(t, fakeEngine{})
	upload := filepath.Join(base, "pending", "task-1", "doc.pdf")
	if err := os.MkdirAll(filepath.Dir(upload), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(upload, []byte("%PDF-1.4"), 0o644)

	_, err := h.ProcessDocument(context.Background(), taskqueue.ProcessDocumentPayload{
		FilePath:         upload,
		OriginalFilename: "doc.pdf",
	}, "task-1")
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("pdf must fail permanently, got %v", err)
	}
	if !strings.Contains(err.Error(), "layout analysis engine") {
		t.Fatalf("error should point at the external engine: %v", err)
	}
}

func TestProcessDocument_UnsupportedFormat(t *testing.T) {
	h, _ := newTestHandlers(t, fakeEngine{})
	_, err := h.ProcessDocument(context.Background(), taskqueue.ProcessDocumentPayload{
		FilePath:         "/tmp/whatever.docx",
		OriginalFilename: "whatever.docx",
	}, "task-1")
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("unsupported format must fail permanently, got %v", err)
	}
}

func TestProcessDocument_EngineFailure(t *testing.T) {
	h, base := newTestHandlers(t, fakeEngine{err: errors.New("tesseract exploded")})
	upload := filepath.Join(base, "pending", "task-1", "scan.png")
	writeTestImage(t, upload)

	_, err := h.ProcessDocument(context.Background(), taskqueue.ProcessDocumentPayload{
		FilePath: upload, OriginalFilename: "scan.png",
	}, "task-1")
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("engine failure should be retryable, got %v", err)
	}
}

func TestHandleChunkDocument(t *testing.T) {
	h, _ := newTestHandlers(t, fakeEngine{})
	payload, _ := json.Marshal(taskqueue.ChunkDocumentPayload{
		DocumentID: "doc-1",
		Text:       "para one\n\npara two\n\npara three",
		ChunkSize:  12,
	})
	task := asynq.NewTask(string(taskqueue.KindChunkDocument), payload)
	if err := h.HandleChunkDocument(context.Background(), task); err != nil {
		t.Fatalf("HandleChunkDocument: %v", err)
	}
}

func TestHandleChunkDocument_BadPayload(t *testing.T) {
	h, _ := newTestHandlers(t, fakeEngine{})
	for name, payload := range map[string][]byte{
		"malformed":    []byte("{"),
		"missing text": []byte("{}"),
	} {
		task := asynq.NewTask(string(taskqueue.KindChunkDocument), payload)
		err := h.HandleChunkDocument(context.Background(), task)
		if err == nil || !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("%s: want SkipRetry, got %v", name, err)
		}
	}
}

func TestHandleOCRRegion(t *testing.T) {
	h, base := newTestHandlers(t, fakeEngine{text: "region text", conf: 0.8})
	writeTestImage(t, filepath.Join(base, "doc-1", "images", "page_1_full.png"))

	payload, _ := json.Marshal(taskqueue.OCRRegionPayload{
		DocumentID: "doc-1",
		PageImage:  "images/page_1_full.png",
		X:          1, Y: 2, Width: 20, Height: 10,
		Language: "jpn+eng",
	})
	task := asynq.NewTask(string(taskqueue.KindOCRRegion), payload)
	if err := h.HandleOCRRegion(context.Background(), task); err != nil {
		t.Fatalf("HandleOCRRegion: %v", err)
	}
}

func TestHandleOCRRegion_TraversalRejected(t *testing.T) {
	h, _ := newTestHandlers(t, fakeEngine{})
	payload, _ := json.Marshal(taskqueue.OCRRegionPayload{
		DocumentID: "doc-1",
		PageImage:  "../other/secret.png",
		Width:      10, Height: 10,
	})
	task := asynq.NewTask(string(taskqueue.KindOCRRegion), payload)
	err := h.HandleOCRRegion(context.Background(), task)
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("traversal must fail permanently, got %v", err)
	}
}

func TestHandleProcessDocument_FailureCallback(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		got.Store(body)
	}))
	defer srv.Close()

	h, _ := newTestHandlers(t, fakeEngine{})
	payload, _ := json.Marshal(taskqueue.ProcessDocumentPayload{
		FilePath:         "/tmp/doc.pdf",
		OriginalFilename: "doc.pdf",
		CallbackURL:      srv.URL,
	})
	task := asynq.NewTask(string(taskqueue.KindProcessDocument), payload)
	if err := h.HandleProcessDocument(context.Background(), task); err == nil {
		t.Fatal("want error for pdf payload")
	}

	body, _ := got.Load().(map[string]any)
	if body == nil {
		t.Fatal("callback was not delivered")
	}
	if body["status"] != string(taskqueue.StatusFailure) {
		t.Fatalf("callback status = %v", body["status"])
	}
}

func TestHandleProcessDocument_NoCallbackOnRetryableFailure(t *testing.T) {
	// The engine erroring is retryable; the callback URL must hear nothing
	// until the broker gives up for good.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	h, base := newTestHandlers(t, fakeEngine{err: errors.New("tesseract exploded")})
	upload := filepath.Join(base, "pending", "task-1", "scan.png")
	writeTestImage(t, upload)

	payload, _ := json.Marshal(taskqueue.ProcessDocumentPayload{
		FilePath:         upload,
		OriginalFilename: "scan.png",
		CallbackURL:      srv.URL,
	})
	task := asynq.NewTask(string(taskqueue.KindProcessDocument), payload)
	err := h.HandleProcessDocument(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("want retryable error, got %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("callback fired %d times on a retryable attempt", n)
	}
}
