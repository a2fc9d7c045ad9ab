package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEngine struct {
	name   string
	text   string
	conf   float64
	err    error
	called int
}

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	f.called++
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Text: f.text, Confidence: f.conf, Engine: f.name}, nil
}

func TestRegionProcessor_PrimarySucceeds(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "請求書", conf: 0.9}
	fallback := &fakeEngine{name: "fallback", text: "other", conf: 0.5}
	p := NewRegionProcessor(primary, fallback, []string{"jpn"})

	res, err := p.Process(context.Background(), []byte("img"), Region{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "請求書" || res.Engine != "primary" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if fallback.called != 0 {
		t.Fatalf("fallback should not run when primary is satisfactory")
	}
}

func TestRegionProcessor_FallbackOnError(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("cuda oom")}
	fallback := &fakeEngine{name: "fallback", text: "recovered", conf: 0.8}
	p := NewRegionProcessor(primary, fallback, nil)

	res, err := p.Process(context.Background(), []byte("img"), Region{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "recovered" || res.Engine != "fallback" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if fallback.called != 1 {
		t.Fatalf("fallback called %d times, want 1", fallback.called)
	}
}

func TestRegionProcessor_FallbackOnLowConfidence(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "garbage", conf: 0.02}
	fallback := &fakeEngine{name: "fallback", text: "clean", conf: 0.7}
	p := NewRegionProcessor(primary, fallback, nil)

	res, err := p.Process(context.Background(), []byte("img"), Region{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Engine != "fallback" {
		t.Fatalf("expected fallback result, got %+v", res)
	}
}

func TestRegionProcessor_BothFail(t *testing.T) {
	primary := &fakeEngine{name: "primary", err: errors.New("p-err")}
	fallback := &fakeEngine{name: "fallback", err: errors.New("f-err")}
	p := NewRegionProcessor(primary, fallback, nil)

	_, err := p.Process(context.Background(), []byte("img"), Region{Width: 10, Height: 10}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "p-err") || !strings.Contains(err.Error(), "f-err") {
		t.Fatalf("error should name both engines: %v", err)
	}
}

func TestRegionProcessor_NoFallbackKeepsPrimaryOutput(t *testing.T) {
	primary := &fakeEngine{name: "primary", text: "meh", conf: 0.05}
	p := NewRegionProcessor(primary, nil, nil)

	res, err := p.Process(context.Background(), []byte("img"), Region{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "meh" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegionProcessor_EmptyRegionRejected(t *testing.T) {
	p := NewRegionProcessor(&fakeEngine{name: "primary"}, nil, nil)
	if _, err := p.ProcessFile(context.Background(), "/nonexistent.png", Region{}, nil); err == nil {
		t.Fatalf("expected error for empty region")
	}
}

func TestCropImage_NilRegionPassthrough(t *testing.T) {
	data := []byte{1, 2, 3}
	out, err := cropImage(data, nil)
	if err != nil {
		t.Fatalf("cropImage: %v", err)
	}
	if &out[0] != &data[0] {
		t.Fatalf("expected passthrough without re-encode")
	}
}
