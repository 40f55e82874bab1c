package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/smm-studio/internal/instagram"
	"github.com/fpang/smm-studio/internal/metrics"
	"github.com/fpang/smm-studio/internal/store"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// --- fakes ---

type fakeAccounts struct {
	accounts map[string]*store.Account
	err      error
	calls    int
}

func (f *fakeAccounts) GetAccount(_ context.Context, id, userID string) (*store.Account, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	return a, nil
}

type fakeBlobs struct {
	uploads []string
	types   []string
	err     error
}

func (f *fakeBlobs) Upload(_ context.Context, _ []byte, contentType, path string) (string, error) {
	f.uploads = append(f.uploads, path)
	f.types = append(f.types, contentType)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + path, nil
}

// statusStep is one scripted response to ContainerStatus.
type statusStep struct {
	status string
	err    error
}

type fakeGraph struct {
	mu sync.Mutex

	createErr  error
	publishErr error
	steps      []statusStep

	creates     []string
	statusCalls int
	publishes   []string
	nextID      int
}

func (f *fakeGraph) CreateImageContainer(_ context.Context, businessID, accessToken, imageURL, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, businessID+"|"+accessToken+"|"+imageURL+"|"+caption)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	return fmt.Sprintf("c-%d", f.nextID), nil
}

func (f *fakeGraph) ContainerStatus(_ context.Context, containerID, accessToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusCalls
	f.statusCalls++
	if len(f.steps) == 0 {
		return instagram.StatusFinished, nil
	}
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].status, f.steps[i].err
}

func (f *fakeGraph) Publish(_ context.Context, businessID, accessToken, containerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, containerID)
	if f.publishErr != nil {
		return "", f.publishErr
	}
	return "m-1", nil
}

func (f *fakeGraph) remoteCalls() int {
	return len(f.creates) + f.statusCalls + len(f.publishes)
}

func steps(statuses ...string) []statusStep {
	out := make([]statusStep, len(statuses))
	for i, s := range statuses {
		out[i] = statusStep{status: s}
	}
	return out
}

// harness wires fakes into an orchestrator whose sleep only counts.
type harness struct {
	accounts *fakeAccounts
	blobs    *fakeBlobs
	graph    *fakeGraph
	sleeps   []time.Duration
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		accounts: &fakeAccounts{accounts: map[string]*store.Account{
			"acc-1": {ID: "acc-1", UserID: "user-1", InstagramBusinessID: "ig-1", AccessToken: "tok-1"},
		}},
		blobs: &fakeBlobs{},
		graph: &fakeGraph{},
	}
	h.orch = New(h.accounts, h.blobs, h.graph, cfg, WithSleep(func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}))
	return h
}

func validRequest() Request {
	return Request{ImageRef: "https://example.com/a.jpg", Caption: "Hello", AccountID: "acc-1", UserID: "user-1"}
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func expectKind(t *testing.T, res *Result, kind Kind) {
	t.Helper()
	if res.Err == nil {
		t.Fatalf("expected %s, got success %+v", kind, res)
	}
	if res.Err.Kind != kind {
		t.Fatalf("expected %s, got %s (%s)", kind, res.Err.Kind, res.Err.Message)
	}
	if res.MediaID != "" {
		t.Errorf("failed result should carry no media ID, got %s", res.MediaID)
	}
}

// --- tests ---

func TestPublish_EndToEnd(t *testing.T) {
	h := newHarness(t, Config{})
	res := h.orch.Publish(context.Background(), validRequest())

	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.MediaID != "m-1" || res.ContainerID != "c-1" || res.State != StateDone {
		t.Errorf("unexpected result %+v", res)
	}
	if len(h.graph.creates) != 1 || h.graph.statusCalls != 1 || len(h.graph.publishes) != 1 {
		t.Errorf("expected 1/1/1 remote calls, got %d/%d/%d", len(h.graph.creates), h.graph.statusCalls, len(h.graph.publishes))
	}
	if h.graph.creates[0] != "ig-1|tok-1|https://example.com/a.jpg|Hello" {
		t.Errorf("unexpected create call %q", h.graph.creates[0])
	}
	if len(h.blobs.uploads) != 0 {
		t.Errorf("expected no uploads, got %v", h.blobs.uploads)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("expected no sleeps before the first poll, got %v", h.sleeps)
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{"missing image", func(r *Request) { r.ImageRef = "" }},
		{"blank image", func(r *Request) { r.ImageRef = "   " }},
		{"missing account", func(r *Request) { r.AccountID = "" }},
		{"both missing", func(r *Request) { r.ImageRef, r.AccountID = "", "" }},
		{"unsupported scheme", func(r *Request) { r.ImageRef = "ftp://example.com/a.jpg" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			req := validRequest()
			tt.mod(&req)

			res := h.orch.Publish(context.Background(), req)
			expectKind(t, res, KindValidation)
			if h.graph.remoteCalls() != 0 || len(h.blobs.uploads) != 0 || h.accounts.calls != 0 {
				t.Errorf("expected zero collaborator calls, got graph=%d blobs=%d accounts=%d",
					h.graph.remoteCalls(), len(h.blobs.uploads), h.accounts.calls)
			}
		})
	}
}

func TestPublish_Authorization(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		h := newHarness(t, Config{})
		req := validRequest()
		req.UserID = ""
		expectKind(t, h.orch.Publish(context.Background(), req), KindAuthorization)
		if h.graph.remoteCalls() != 0 {
			t.Error("remote calls made for unauthenticated caller")
		}
	})

	t.Run("not owned", func(t *testing.T) {
		h := newHarness(t, Config{})
		req := validRequest()
		req.UserID = "user-2"
		res := h.orch.Publish(context.Background(), req)
		expectKind(t, res, KindAuthorization)
		if res.Err.Message != "Instagram account not found" {
			t.Errorf("unexpected message %q", res.Err.Message)
		}
		if h.graph.remoteCalls() != 0 || len(h.blobs.uploads) != 0 {
			t.Error("side effects for an account the caller does not own")
		}
	})

	t.Run("missing account", func(t *testing.T) {
		h := newHarness(t, Config{})
		req := validRequest()
		req.AccountID = "acc-404"
		expectKind(t, h.orch.Publish(context.Background(), req), KindAuthorization)
	})

	t.Run("store failure", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.accounts.err = errors.New("db down")
		expectKind(t, h.orch.Publish(context.Background(), validRequest()), KindAuthorization)
		if h.graph.remoteCalls() != 0 {
			t.Error("remote calls made after account lookup failure")
		}
	})
}

func TestPublish_InlineImage(t *testing.T) {
	h := newHarness(t, Config{})
	req := validRequest()
	req.ImageRef = pngDataURI(t)

	res := h.orch.Publish(context.Background(), req)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if len(h.blobs.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(h.blobs.uploads))
	}
	path := h.blobs.uploads[0]
	if !strings.HasPrefix(path, "user-1/") || !strings.HasSuffix(path, ".png") {
		t.Errorf("unexpected upload path %q", path)
	}
	if h.blobs.types[0] != "image/png" {
		t.Errorf("unexpected content type %q", h.blobs.types[0])
	}
	if !strings.Contains(h.graph.creates[0], "https://cdn.example.com/"+path) {
		t.Errorf("container not created from uploaded URL: %q", h.graph.creates[0])
	}
	if res.ImageURL != "https://cdn.example.com/"+path {
		t.Errorf("unexpected resolved URL %q", res.ImageURL)
	}
}

func TestPublish_UploadErrors(t *testing.T) {
	t.Run("malformed data URI", func(t *testing.T) {
		h := newHarness(t, Config{})
		req := validRequest()
		req.ImageRef = "data:image/png,not-base64-marker"

		res := h.orch.Publish(context.Background(), req)
		expectKind(t, res, KindUpload)
		if res.State != StateUploadingImage {
			t.Errorf("expected abort in UploadingImage, got %s", res.State)
		}
		if len(h.graph.creates) != 0 || len(h.blobs.uploads) != 0 {
			t.Error("side effects after malformed data URI")
		}
	})

	t.Run("blob store rejects", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.blobs.err = errors.New("bucket full")
		req := validRequest()
		req.ImageRef = pngDataURI(t)

		res := h.orch.Publish(context.Background(), req)
		expectKind(t, res, KindUpload)
		if !strings.Contains(res.Err.Message, "bucket full") {
			t.Errorf("expected upload error detail, got %q", res.Err.Message)
		}
		if len(h.graph.creates) != 0 {
			t.Error("container created after failed upload")
		}
	})
}

func TestPublish_CreateError(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.createErr = &instagram.APIError{Message: "Invalid image URL", Code: 9004}

	res := h.orch.Publish(context.Background(), validRequest())
	expectKind(t, res, KindRemoteAPI)
	if res.Err.Message != "Failed to create media: Invalid image URL" {
		t.Errorf("unexpected message %q", res.Err.Message)
	}
	if h.graph.statusCalls != 0 || len(h.graph.publishes) != 0 {
		t.Error("polled or published after create failure")
	}
}

func TestPublish_PollThenFinish(t *testing.T) {
	h := newHarness(t, Config{Interval: 2500 * time.Millisecond})
	h.graph.steps = steps(instagram.StatusInProgress, instagram.StatusInProgress, instagram.StatusFinished)

	res := h.orch.Publish(context.Background(), validRequest())
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if h.graph.statusCalls != 3 || len(h.graph.publishes) != 1 {
		t.Errorf("expected 3 status calls and 1 publish, got %d and %d", h.graph.statusCalls, len(h.graph.publishes))
	}
	if res.MediaID != "m-1" || res.Attempts != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 2500*time.Millisecond {
		t.Errorf("expected 2 sleeps of 2.5s, got %v", h.sleeps)
	}
}

func TestPublish_Timeout(t *testing.T) {
	for _, status := range []string{instagram.StatusInProgress, "PUBLISHED_SOMEHOW"} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.graph.steps = steps(status)

			res := h.orch.Publish(context.Background(), validRequest())
			expectKind(t, res, KindTimeout)
			if h.graph.statusCalls != DefaultMaxAttempts {
				t.Errorf("expected %d status calls, got %d", DefaultMaxAttempts, h.graph.statusCalls)
			}
			if len(h.graph.publishes) != 0 {
				t.Error("published after timeout")
			}
			if res.Err.Message != "Container not ready after 10 attempts (22.5s)" {
				t.Errorf("unexpected message %q", res.Err.Message)
			}
			if len(h.sleeps) != DefaultMaxAttempts-1 {
				t.Errorf("expected %d sleeps, got %d", DefaultMaxAttempts-1, len(h.sleeps))
			}
		})
	}
}

func TestPublish_ErrorStatus(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.steps = steps(instagram.StatusInProgress, instagram.StatusInProgress, instagram.StatusError)

	res := h.orch.Publish(context.Background(), validRequest())
	expectKind(t, res, KindRemoteAPI)
	if h.graph.statusCalls != 3 {
		t.Errorf("expected polling to stop at 3, got %d", h.graph.statusCalls)
	}
	if len(h.graph.publishes) != 0 {
		t.Error("published an errored container")
	}
	if !strings.Contains(res.Err.Message, "ERROR") {
		t.Errorf("message should mention ERROR status: %q", res.Err.Message)
	}
}

func TestPublish_TransientPollErrors(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.steps = []statusStep{
		{err: errors.New("connection reset")},
		{err: errors.New("parse response (HTTP 502)")},
		{status: instagram.StatusFinished},
	}

	res := h.orch.Publish(context.Background(), validRequest())
	if !res.OK() {
		t.Fatalf("transient poll errors should be retried, got %v", res.Err)
	}
	if res.Attempts != 3 || h.graph.statusCalls != 3 {
		t.Errorf("expected 3 attempts, got %d (calls %d)", res.Attempts, h.graph.statusCalls)
	}
}

func TestPublish_TransientPollErrorsExhaust(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 4})
	h.graph.steps = []statusStep{{err: errors.New("timeout")}}

	res := h.orch.Publish(context.Background(), validRequest())
	expectKind(t, res, KindTimeout)
	if h.graph.statusCalls != 4 {
		t.Errorf("expected 4 status calls, got %d", h.graph.statusCalls)
	}
}

func TestPublish_PollAPIErrorIsTerminal(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.steps = []statusStep{{err: &instagram.APIError{Message: "Invalid container", Code: 100}}}

	res := h.orch.Publish(context.Background(), validRequest())
	expectKind(t, res, KindRemoteAPI)
	if h.graph.statusCalls != 1 {
		t.Errorf("expected polling to stop after the API error, got %d calls", h.graph.statusCalls)
	}
}

func TestPublish_PublishError(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.publishErr = &instagram.APIError{Message: "Media ID is not available", Code: 9007}

	res := h.orch.Publish(context.Background(), validRequest())
	expectKind(t, res, KindRemoteAPI)
	if res.Err.Message != "Failed to publish: Media ID is not available" {
		t.Errorf("unexpected message %q", res.Err.Message)
	}
	if res.State != StatePublishing {
		t.Errorf("expected abort in Publishing, got %s", res.State)
	}
	if len(h.graph.publishes) != 1 {
		t.Errorf("publish must not be retried, got %d calls", len(h.graph.publishes))
	}
}

func TestPublish_NoDeduplication(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i < 2; i++ {
		if res := h.orch.Publish(context.Background(), validRequest()); !res.OK() {
			t.Fatalf("run %d failed: %v", i, res.Err)
		}
	}
	if len(h.graph.creates) != 2 || len(h.graph.publishes) != 2 {
		t.Errorf("expected two independent cycles, got %d creates and %d publishes", len(h.graph.creates), len(h.graph.publishes))
	}
}

func TestPublish_CanceledDuringPoll(t *testing.T) {
	h := newHarness(t, Config{})
	h.graph.steps = steps(instagram.StatusInProgress)

	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := h.orch.Publish(ctx, validRequest())
	expectKind(t, res, KindCanceled)
	if h.graph.statusCalls != 1 || len(h.graph.publishes) != 0 {
		t.Errorf("expected 1 poll and no publish, got %d/%d", h.graph.statusCalls, len(h.graph.publishes))
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.MaxAttempts != 10 || cfg.Interval != 2500*time.Millisecond {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	cfg = Config{MaxAttempts: 3, Interval: time.Second}.withDefaults()
	if cfg.MaxAttempts != 3 || cfg.Interval != time.Second {
		t.Errorf("overrides lost: %+v", cfg)
	}
}

func TestContextSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := contextSleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := contextSleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
