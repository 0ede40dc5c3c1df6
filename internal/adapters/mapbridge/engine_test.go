package mapbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/ports"
)

type recorder struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (r *recorder) Send(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.Cmd
	}
	return out
}

func TestFactory_SendsInit(t *testing.T) {
	rec := &recorder{}
	var created *Engine
	eng, err := Factory(rec, func(e *Engine) { created = e })(context.Background(), "map-1", "pk.abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng != created {
		t.Error("created callback should receive the returned engine")
	}
	if len(rec.cmds) != 1 || rec.cmds[0].Cmd != "init" || rec.cmds[0].Container != "map-1" || rec.cmds[0].Token != "pk.abc" {
		t.Errorf("unexpected commands: %+v", rec.cmds)
	}
	if eng.Loaded() {
		t.Error("engine must not be loaded before the browser says so")
	}
}

func TestEngine_DispatchLoadAndOff(t *testing.T) {
	e := New(&recorder{})
	var loads, clicks int
	offLoad := e.On(ports.EventLoad, func(ports.EngineEvent) { loads++ })
	offClick := e.On(ports.EventClick, func(ports.EngineEvent) { clicks++ })

	e.Dispatch(ports.EngineEvent{Type: ports.EventLoad})
	if !e.Loaded() || loads != 1 || clicks != 0 {
		t.Fatalf("loaded=%v loads=%d clicks=%d", e.Loaded(), loads, clicks)
	}

	offClick()
	offClick()
	e.Dispatch(ports.EngineEvent{Type: ports.EventClick})
	if clicks != 0 {
		t.Error("detached handler must not fire")
	}
	offLoad()
	if e.ListenerCount() != 0 {
		t.Errorf("expected 0 listeners, got %d", e.ListenerCount())
	}
}

func TestEngine_SourceLayerBookkeeping(t *testing.T) {
	rec := &recorder{}
	e := New(rec)
	fc := geojson.NewFeatureCollection()

	if err := e.AddLayer(ports.LayerSpec{ID: "l", Type: ports.LayerFill, Source: "s"}); err == nil {
		t.Error("layer on unknown source should fail")
	}
	if err := e.AddSource("s", fc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.AddSource("s", fc); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if err := e.AddLayer(ports.LayerSpec{ID: "l", Type: ports.LayerFill, Source: "s"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.RemoveLayer("l"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.RemoveLayer("l"); err != nil {
		t.Errorf("removing an unknown layer should be a no-op, got %v", err)
	}

	got := rec.names()
	want := []string{"addSource", "addLayer", "removeLayer"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestEngine_FailedSendReleasesID(t *testing.T) {
	rec := &recorder{err: errors.New("socket closed")}
	e := New(rec)

	if err := e.AddMarker("m", orb.Point{1, 2}); err == nil {
		t.Fatal("expected send error")
	}
	rec.err = nil
	if err := e.AddMarker("m", orb.Point{1, 2}); err != nil {
		t.Errorf("id should be reusable after a failed send, got %v", err)
	}
}

func TestEngine_RemoveStopsEverything(t *testing.T) {
	rec := &recorder{}
	e := New(rec)
	fired := false
	e.On(ports.EventClick, func(ports.EngineEvent) { fired = true })

	if err := e.Remove(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Remove(); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
	e.Dispatch(ports.EngineEvent{Type: ports.EventClick})
	if fired {
		t.Error("events after Remove must be dropped")
	}
	if err := e.SetCursor("crosshair"); !errors.Is(err, ErrRemoved) {
		t.Errorf("expected ErrRemoved, got %v", err)
	}
	if err := e.Draw().DeleteAll(); !errors.Is(err, ErrRemoved) {
		t.Errorf("expected ErrRemoved, got %v", err)
	}
	if n := len(rec.names()); n != 1 {
		t.Errorf("expected only the remove command, got %d commands", n)
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"click","lngLat":[-3.7,40.4]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != ports.EventClick || ev.LngLat != (orb.Point{-3.7, 40.4}) {
		t.Errorf("unexpected event: %+v", ev)
	}

	raw := `{"event":"draw.create","features":[{"type":"Feature","properties":{"id":"x"},
		"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`
	ev, err = DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(ev.Features))
	}
	if _, ok := ev.Features[0].Geometry.(orb.Polygon); !ok {
		t.Errorf("expected polygon, got %T", ev.Features[0].Geometry)
	}

	if _, err := DecodeEvent([]byte(`{"event":"zoomend"}`)); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestDecodeEvent_ClickNeedsPosition(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing", `{"event":"click"}`},
		{"null", `{"event":"click","lngLat":null}`},
		{"one value", `{"event":"click","lngLat":[-3.7]}`},
		{"three values", `{"event":"click","lngLat":[-3.7,40.4,12]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), "lngLat") {
				t.Errorf("expected lngLat error, got %v", err)
			}
		})
	}

	ev, err := DecodeEvent([]byte(`{"event":"click","lngLat":[0,0]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.LngLat != (orb.Point{0, 0}) {
		t.Errorf("expected explicit origin to be kept, got %v", ev.LngLat)
	}
}

func TestCommand_JSON(t *testing.T) {
	cursor := ""
	data, err := json.Marshal(Command{Cmd: "setCursor", Cursor: &cursor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"cmd":"setCursor","cursor":""}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}
