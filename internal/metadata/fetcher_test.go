package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pv/sensor-panel/internal/apperr"
	"github.com/pv/sensor-panel/internal/backend"
	"github.com/pv/sensor-panel/internal/endpoint"
	"github.com/pv/sensor-panel/internal/models"
	"github.com/pv/sensor-panel/internal/resource"
)

func metadataServer(t *testing.T, body *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metadata" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body.Load().(string)))
	}))
}

func TestFetchDecodeError(t *testing.T) {
	var body atomic.Value
	body.Store(`{"devices":[]}`)
	srv := metadataServer(t, &body)
	defer srv.Close()

	_, err := Fetch(context.Background(), backend.NewClient(0), endpoint.NewGeneral(srv.URL), "k")
	if !apperr.Is(err, apperr.DecodeError) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}

func TestFetchNullIsEmptyList(t *testing.T) {
	var body atomic.Value
	body.Store(`null`)
	srv := metadataServer(t, &body)
	defer srv.Close()

	devices, err := Fetch(context.Background(), backend.NewClient(0), endpoint.NewGeneral(srv.URL), "k")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("expected empty list, got %v", devices)
	}
}

// Restart заменяет список целиком: удалённое устройство не остаётся
func TestRestartFullReplacement(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"d1","name":"A","type":"x"},{"id":"d2","name":"B","type":"x"}]`)
	srv := metadataServer(t, &body)
	defer srv.Close()

	f := NewFetcher(backend.NewClient(0))
	defer f.Close()

	f.Load(endpoint.NewGeneral(srv.URL), "k")
	f.Wait()
	if n := len(f.State().Value); n != 2 {
		t.Fatalf("expected 2 devices, got %d", n)
	}

	body.Store(`[{"id":"d2","name":"B","type":"x"}]`)
	f.Restart()
	f.Wait()

	st := f.State()
	if st.Status != resource.Ready || len(st.Value) != 1 || st.Value[0].ID != "d2" {
		t.Errorf("expected only d2 after restart, got %+v", st.Value)
	}
}

func TestRestartTwiceSameSet(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"d1","name":"A","type":"x"},{"id":"d2","name":"B","type":"x"}]`)
	srv := metadataServer(t, &body)
	defer srv.Close()

	f := NewFetcher(backend.NewClient(0))
	defer f.Close()
	f.Load(endpoint.NewEdge(srv.URL), "k")
	f.Wait()

	ids := func() map[string]bool {
		set := make(map[string]bool)
		for _, d := range f.State().Value {
			set[d.ID] = true
		}
		return set
	}

	f.Restart()
	f.Wait()
	first := ids()
	f.Restart()
	f.Wait()
	second := ids()

	if len(first) != 2 || len(first) != len(second) {
		t.Fatalf("sets differ: %v vs %v", first, second)
	}
	for id := range first {
		if !second[id] {
			t.Errorf("device %s missing after second restart", id)
		}
	}
}

// fakeSource отвечает по каналу на каждый base URL
type fakeSource struct {
	mu    sync.Mutex
	gates map[string]chan []models.Device
}

func (s *fakeSource) gate(url string) chan []models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = make(map[string]chan []models.Device)
	}
	ch, ok := s.gates[url]
	if !ok {
		ch = make(chan []models.Device, 1)
		s.gates[url] = ch
	}
	return ch
}

func (s *fakeSource) GetMetadata(ctx context.Context, ep endpoint.Endpoint, projectKey string) ([]models.Device, error) {
	return <-s.gate(ep.BaseURL()), nil
}

func TestEndpointSwitchSupersedes(t *testing.T) {
	src := &fakeSource{}
	f := NewFetcher(src)
	defer f.Close()

	f.Load(endpoint.NewGeneral("http://a"), "k")
	genB := f.Load(endpoint.NewGeneral("http://b"), "k")

	src.gate("http://b") <- []models.Device{{ID: "from-b"}}
	for f.State().Status != resource.Ready {
		time.Sleep(5 * time.Millisecond)
	}
	src.gate("http://a") <- []models.Device{{ID: "from-a"}}
	f.Wait()

	st := f.State()
	if st.Generation != genB || len(st.Value) != 1 || st.Value[0].ID != "from-b" {
		t.Errorf("expected B result, got %+v", st)
	}
}

func TestInputsEquality(t *testing.T) {
	src := &fakeSource{}
	f := NewFetcher(src)
	defer f.Close()

	src.gate("http://a") <- nil
	gen1 := f.Load(endpoint.NewGeneral("http://a"), "k")
	f.Wait()

	if gen := f.Load(endpoint.NewGeneral("http://a"), "k"); gen != gen1 {
		t.Error("same endpoint and key must not restart")
	}

	src.gate("http://a") <- nil
	if gen := f.Load(endpoint.NewEdge("http://a"), "k"); gen == gen1 {
		t.Error("different endpoint kind must restart")
	}
	f.Wait()

	src.gate("http://a") <- nil
	genKey := f.Load(endpoint.NewEdge("http://a"), "other")
	f.Wait()
	in, ok := f.Inputs()
	if !ok || in.ProjectKey != "other" || f.State().Generation != genKey {
		t.Errorf("unexpected inputs after key change: %+v", in)
	}
}

func TestLoadNilClears(t *testing.T) {
	src := &fakeSource{}
	f := NewFetcher(src)
	defer f.Close()

	f.Load(nil, "")
	if st := f.State(); st.Status != resource.Idle {
		t.Errorf("expected idle, got %s", st.Status)
	}
}
