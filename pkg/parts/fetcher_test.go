package parts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func newLibraryServer(t *testing.T, files map[string]string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_HTTP(t *testing.T) {
	var hits atomic.Int32
	srv := newLibraryServer(t, map[string]string{"/parts/3001.dat": "0 Brick 2 x 4\n"}, &hits)
	f := NewFetcher()

	data, err := f.Fetch(context.Background(), srv.URL+"/parts/3001.dat")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "0 Brick 2 x 4\n" {
		t.Errorf("unexpected body %q", data)
	}

	// Second fetch is served from cache
	if _, err := f.Fetch(context.Background(), srv.URL+"/parts/3001.dat"); err != nil {
		t.Fatalf("cached Fetch failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
	if h, _ := f.Cache().Stats(); h != 1 {
		t.Errorf("expected 1 cache hit, got %d", h)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := newLibraryServer(t, nil, nil)
	f := NewFetcher()

	_, err := f.Fetch(context.Background(), srv.URL+"/parts/missing.dat")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL+"/x.dat")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("server errors must not look like missing files")
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := newLibraryServer(t, map[string]string{"/a.dat": "0 a"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher().Fetch(ctx, srv.URL+"/a.dat"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetch_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "3001.dat")
	if err := os.WriteFile(p, []byte("0 local"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher()

	for _, loc := range []string{p, "file://" + p} {
		data, err := f.Fetch(context.Background(), loc)
		if err != nil {
			t.Fatalf("Fetch(%q) failed: %v", loc, err)
		}
		if string(data) != "0 local" {
			t.Errorf("Fetch(%q) = %q", loc, data)
		}
	}

	_, err := f.Fetch(context.Background(), filepath.Join(dir, "nope.dat"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchFirst(t *testing.T) {
	srv := newLibraryServer(t, map[string]string{"/p/48/4-4cyli.dat": "0 hi-res"}, nil)
	m := NewMapper(srv.URL + "/")
	f := NewFetcher()

	data, loc, err := f.FetchFirst(context.Background(), m.Candidates("4-4cyli.dat"))
	if err != nil {
		t.Fatalf("FetchFirst failed: %v", err)
	}
	if loc != srv.URL+"/p/48/4-4cyli.dat" {
		t.Errorf("unexpected location %q", loc)
	}
	if string(data) != "0 hi-res" {
		t.Errorf("unexpected data %q", data)
	}

	_, _, err = f.FetchFirst(context.Background(), m.Candidates("nothing.dat"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_ConcurrentSameLocation(t *testing.T) {
	var hits atomic.Int32
	srv := newLibraryServer(t, map[string]string{"/stud.dat": "0 stud"}, &hits)
	f := NewFetcher()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), srv.URL+"/stud.dat"); err != nil {
				t.Errorf("Fetch failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Duplicate requests collapse into one download or hit the cache;
	// either way far fewer than 16 round trips happen.
	if got := hits.Load(); got > 16 || got < 1 {
		t.Errorf("unexpected request count %d", got)
	}
	if f.Cache().Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", f.Cache().Len())
	}
}

func TestFetch_SharedDownloadOutlivesCancelledCaller(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte("0 slope"))
	}))
	t.Cleanup(srv.Close)
	f := NewFetcher()
	loc := srv.URL + "/parts/3040.dat"

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, loc)
		first <- err
	}()
	<-started
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	// A caller with a live context joins the download still in flight, or
	// reads its cached result, instead of inheriting the cancellation.
	second := make(chan error, 1)
	var data []byte
	go func() {
		var err error
		data, err = f.Fetch(context.Background(), loc)
		second <- err
	}()
	close(release)
	if err := <-second; err != nil {
		t.Fatalf("live caller failed: %v", err)
	}
	if string(data) != "0 slope" {
		t.Errorf("unexpected body %q", data)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}
