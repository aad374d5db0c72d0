package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/recut/internal/observe"
	"github.com/MrWong99/recut/pkg/audio"
	"github.com/MrWong99/recut/pkg/queue"
	qmock "github.com/MrWong99/recut/pkg/queue/mock"
	"github.com/MrWong99/recut/pkg/store"
	"github.com/MrWong99/recut/pkg/types"
)

// collectMetrics builds an instrumented Metrics and a reader to inspect what
// the orchestrator and worker recorded.
func collectMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// constClip builds a clip where every sample has value v, so reassembly order
// can be read back from the output samples.
func constClip(d time.Duration, rate int, v int16) audio.Clip {
	n := int(d.Seconds() * float64(rate))
	c := audio.Clip{Data: make([]byte, n*2), SampleRate: rate}
	for i := 0; i < n; i++ {
		c.Data[i*2] = byte(v)
		c.Data[i*2+1] = byte(v >> 8)
	}
	return c
}

func wavBytes(t *testing.T, c audio.Clip) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, c); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sampleAt(c audio.Clip, i int) int16 {
	return int16(c.Data[i*2]) | int16(c.Data[i*2+1])<<8
}

func TestSplit_SnapsBoundaryPastStraddlingWord(t *testing.T) {
	t.Parallel()

	src := audio.Silence(300*time.Millisecond, 16000)
	words := []types.Word{
		{Text: "one", Start: 0, End: 50 * time.Millisecond},
		{Text: "two", Start: 80 * time.Millisecond, End: 150 * time.Millisecond},
		{Text: "three", Start: 160 * time.Millisecond, End: 200 * time.Millisecond},
	}

	pieces := split(src, words, 100*time.Millisecond)
	if len(pieces) != 3 {
		t.Fatalf("got %d pieces, want 3", len(pieces))
	}
	// "two" straddles the 100ms boundary, so chunk 0 extends to its end.
	if got, want := pieces[0].clip.Duration(), 150*time.Millisecond; got != want {
		t.Errorf("piece 0 duration = %v, want %v", got, want)
	}
	if len(pieces[0].words) != 2 {
		t.Fatalf("piece 0 has %d words, want 2", len(pieces[0].words))
	}
	if len(pieces[1].words) != 1 {
		t.Fatalf("piece 1 has %d words, want 1", len(pieces[1].words))
	}
	// Rebased to the chunk start.
	if got, want := pieces[1].words[0].Start, 10*time.Millisecond; got != want {
		t.Errorf("piece 1 word start = %v, want %v", got, want)
	}
	var total time.Duration
	for _, p := range pieces {
		total += p.clip.Duration()
	}
	if total != src.Duration() {
		t.Errorf("pieces total %v, want %v", total, src.Duration())
	}
}

func TestProcess_ReassemblesByIndexNotCompletionOrder(t *testing.T) {
	t.Parallel()

	st, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q := &qmock.Queue{}
	q.SubmitFunc = func(_ context.Context, p queue.Payload) error {
		// Later chunks complete first: 2, then 1, then 0.
		delay := time.Duration(2-p.ChunkIndex) * 30 * time.Millisecond
		data := wavBytes(t, constClip(100*time.Millisecond, 16000, int16(1000*(p.ChunkIndex+1))))
		uri := p.OutputURI
		time.AfterFunc(delay, func() {
			st.Upload(context.Background(), data, uri, "audio/wav")
		})
		return nil
	}

	o := New(st, q, Config{
		ChunkLen:      100 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		RetryWindow:   time.Minute,
		GlobalTimeout: 5 * time.Second,
	}, nil, nil)

	out, err := o.Process(context.Background(), "ep1",
		audio.Silence(300*time.Millisecond, 16000), nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got, want := out.Duration(), 300*time.Millisecond; got != want {
		t.Fatalf("reassembled duration = %v, want %v", got, want)
	}
	samplesPerChunk := 1600
	for i := 0; i < 3; i++ {
		if got, want := sampleAt(out, i*samplesPerChunk), int16(1000*(i+1)); got != want {
			t.Errorf("chunk %d sample = %d, want %d (index order violated)", i, got, want)
		}
	}
}

func TestProcess_RedispatchesStuckChunk(t *testing.T) {
	t.Parallel()

	st, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu     sync.Mutex
		counts = map[int]int{}
	)
	q := &qmock.Queue{}
	q.SubmitFunc = func(ctx context.Context, p queue.Payload) error {
		mu.Lock()
		counts[p.ChunkIndex]++
		n := counts[p.ChunkIndex]
		mu.Unlock()
		if p.ChunkIndex == 1 && n < 2 {
			return nil // first dispatch of chunk 1 produces nothing
		}
		data := wavBytes(t, constClip(100*time.Millisecond, 16000, 7))
		_, err := st.Upload(ctx, data, p.OutputURI, "audio/wav")
		return err
	}

	m, reader := collectMetrics(t)
	o := New(st, q, Config{
		ChunkLen:      100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		RetryWindow:   20 * time.Millisecond,
		GlobalTimeout: 5 * time.Second,
	}, m, nil)

	_, err = o.Process(context.Background(), "ep1",
		audio.Silence(200*time.Millisecond, 16000), nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	mu.Lock()
	if counts[1] != 2 {
		t.Errorf("chunk 1 dispatched %d times, want 2", counts[1])
	}
	mu.Unlock()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	retries := findMetric(rm, "recut.chunk.retries")
	if retries == nil {
		t.Fatal("recut.chunk.retries not recorded")
	}
	var total int64
	for _, dp := range retries.Data.(metricdata.Sum[int64]).DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("chunk retries = %d, want 1", total)
	}
	// Both chunks completed, so the in-flight gauge must be back at zero.
	inflight := findMetric(rm, "recut.chunks_in_flight")
	if inflight == nil {
		t.Fatal("recut.chunks_in_flight not recorded")
	}
	for _, dp := range inflight.Data.(metricdata.Sum[int64]).DataPoints {
		if dp.Value != 0 {
			t.Errorf("chunks in flight = %d, want 0", dp.Value)
		}
	}
}

func TestProcess_RetryCapFailsJob(t *testing.T) {
	t.Parallel()

	st, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q := &qmock.Queue{}
	q.SubmitFunc = func(ctx context.Context, p queue.Payload) error {
		if p.ChunkIndex == 0 {
			return nil // never completes
		}
		data := wavBytes(t, constClip(100*time.Millisecond, 16000, 7))
		_, err := st.Upload(ctx, data, p.OutputURI, "audio/wav")
		return err
	}

	o := New(st, q, Config{
		ChunkLen:      100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		RetryWindow:   5 * time.Millisecond,
		MaxRetries:    1,
		GlobalTimeout: 5 * time.Second,
	}, nil, nil)

	_, err = o.Process(context.Background(), "ep1",
		audio.Silence(200*time.Millisecond, 16000), nil, nil)
	if !errors.Is(err, ErrChunkedModeFailed) {
		t.Fatalf("Process error = %v, want ErrChunkedModeFailed", err)
	}
}

// failStore rejects every upload, simulating unusable blob storage.
type failStore struct{}

func (failStore) Download(context.Context, string) ([]byte, error) {
	return nil, store.ErrNotFound
}

func (failStore) Upload(context.Context, []byte, string, string) (string, error) {
	return "", fmt.Errorf("storage unavailable")
}

func TestProcess_UploadFailureAbortsBeforeDispatch(t *testing.T) {
	t.Parallel()

	q := &qmock.Queue{}
	o := New(failStore{}, q, Config{ChunkLen: 100 * time.Millisecond}, nil, nil)

	_, err := o.Process(context.Background(), "ep1",
		audio.Silence(200*time.Millisecond, 16000), nil, nil)
	if !errors.Is(err, ErrChunkedModeFailed) {
		t.Fatalf("Process error = %v, want ErrChunkedModeFailed", err)
	}
	if q.SubmitCount() != 0 {
		t.Errorf("dispatched %d chunks despite upload failure, want 0", q.SubmitCount())
	}
}

func TestWorker_TrimsLastChunkTail(t *testing.T) {
	t.Parallel()

	st, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	audioURI, err := st.Upload(ctx, wavBytes(t, audio.Silence(2*time.Second, 16000)), "in/audio.wav", "audio/wav")
	if err != nil {
		t.Fatal(err)
	}
	var tr bytes.Buffer
	words := []types.Word{{Text: "hi", Start: 200 * time.Millisecond, End: time.Second}}
	if err := types.EncodeTranscript(&tr, words); err != nil {
		t.Fatal(err)
	}
	trURI, err := st.Upload(ctx, tr.Bytes(), "in/transcript.json", "application/json")
	if err != nil {
		t.Fatal(err)
	}

	var gotDur time.Duration
	worker := Worker(st, func(_ context.Context, clip audio.Clip, _ []types.Word, isLast bool, _ json.RawMessage) (audio.Clip, error) {
		if !isLast {
			t.Error("isLast = false, want true")
		}
		gotDur = clip.Duration()
		return clip, nil
	}, nil, nil)

	p := queue.Payload{
		ChunkIndex:    0,
		TotalChunks:   1,
		AudioURI:      audioURI,
		TranscriptURI: trURI,
		OutputURI:     "out/cleaned.wav",
	}
	if err := worker(ctx, p); err != nil {
		t.Fatalf("worker: %v", err)
	}
	// Final word ends at 1s; tail beyond 1s + 500ms pad is dropped.
	if want := 1500 * time.Millisecond; gotDur != want {
		t.Errorf("worker clip duration = %v, want %v", gotDur, want)
	}
	data, err := st.Download(ctx, "out/cleaned.wav")
	if err != nil {
		t.Fatalf("cleaned artifact missing: %v", err)
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if want := 1500 * time.Millisecond; clip.Duration() != want {
		t.Errorf("artifact duration = %v, want %v", clip.Duration(), want)
	}
}

func TestShouldChunk(t *testing.T) {
	t.Parallel()

	o := New(failStore{}, &qmock.Queue{}, Config{Threshold: 10 * time.Minute}, nil, nil)
	if o.ShouldChunk(5 * time.Minute) {
		t.Error("ShouldChunk(5m) = true, want false")
	}
	if !o.ShouldChunk(15 * time.Minute) {
		t.Error("ShouldChunk(15m) = false, want true")
	}
}

func TestWorker_RecordsChunkDuration(t *testing.T) {
	t.Parallel()

	st, err := store.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	audioURI, err := st.Upload(ctx, wavBytes(t, audio.Silence(100*time.Millisecond, 16000)), "in/audio.wav", "audio/wav")
	if err != nil {
		t.Fatal(err)
	}
	var tr bytes.Buffer
	if err := types.EncodeTranscript(&tr, nil); err != nil {
		t.Fatal(err)
	}
	trURI, err := st.Upload(ctx, tr.Bytes(), "in/transcript.json", "application/json")
	if err != nil {
		t.Fatal(err)
	}

	m, reader := collectMetrics(t)
	worker := Worker(st, func(_ context.Context, clip audio.Clip, _ []types.Word, _ bool, _ json.RawMessage) (audio.Clip, error) {
		return clip, nil
	}, m, nil)

	p := queue.Payload{
		ChunkIndex:    0,
		TotalChunks:   2,
		AudioURI:      audioURI,
		TranscriptURI: trURI,
		OutputURI:     "out/cleaned.wav",
	}
	if err := worker(ctx, p); err != nil {
		t.Fatalf("worker: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "recut.chunk.duration")
	if met == nil {
		t.Fatal("recut.chunk.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("metric data = %T with no points, want a histogram sample", met.Data)
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("chunk duration samples = %d, want 1", hist.DataPoints[0].Count)
	}
}
