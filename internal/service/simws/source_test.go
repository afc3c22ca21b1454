package simws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"PolEn/internal/domain/models"
	"PolEn/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestStreamRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var params models.RunParams
		if err := conn.ReadJSON(&params); err != nil {
			t.Errorf("read params: %v", err)
			return
		}
		if params.Horizon != 6 || params.PathCount != 800 {
			t.Errorf("params = %+v", params)
		}

		one := 1
		two := 2
		crisis := 0.1
		es := 1.2
		fan := &models.FanBand{P5: 1, P25: 2, P50: 3, P75: 4, P95: 5}
		conn.WriteJSON(models.StepMessage{Step: &one, Horizon: 6, StressFan: fan, GrowthFan: fan, CrisisProb: &crisis, ES95Stress: &es})
		conn.WriteJSON(models.StepMessage{Step: &two, Horizon: 6, StressFan: fan, GrowthFan: fan, CrisisProb: &crisis, ES95Stress: &es})
		conn.WriteJSON(models.StepMessage{Done: true})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	d := NewDialer(url, testLogger(t))
	src, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.Send(ctx, models.RunParams{Horizon: 6, PathCount: 800, SpeedMS: 20}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, errs := src.Read(ctx)
	var got []models.StepMessage
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				t.Fatalf("stream closed early, got %d frames", len(got))
			}
			got = append(got, msg)
			if msg.IsTerminal() {
				if len(got) != 3 {
					t.Fatalf("frames = %d, want 3", len(got))
				}
				if got[0].Step == nil || *got[0].Step != 1 {
					t.Fatalf("first frame = %+v", got[0])
				}
				if !got[2].Done {
					t.Fatal("terminal frame not done")
				}
				return
			}
		case err := <-errs:
			t.Fatalf("transport error: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
}

func TestWireKeysMatchEngineContract(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// The engine decodes the initiation frame by key, so the exact names
		// matter: path_count, not a framework-side alias.
		var raw map[string]interface{}
		if err := conn.ReadJSON(&raw); err != nil {
			t.Errorf("read params: %v", err)
			return
		}
		if _, ok := raw["path_count"]; !ok {
			t.Errorf("initiation frame missing path_count: %v", raw)
		}
		for _, key := range []string{"action_bps", "horizon", "speed_ms", "shocks", "regime_switching"} {
			if _, ok := raw[key]; !ok {
				t.Errorf("initiation frame missing %s: %v", key, raw)
			}
		}

		// Step frames name their spaghetti path ids "id".
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"step":1,"H":6,"stress_fan":{"p5":1,"p25":2,"p50":3,"p75":4,"p95":5},`+
				`"growth_fan":{"p5":1,"p25":2,"p50":3,"p75":4,"p95":5},"crisis_prob":0.1,`+
				`"es95_stress":1.2,"spaghetti":[{"id":4,"stress":1.5}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"done":true}`))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src, err := NewDialer(url, testLogger(t)).Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.Send(ctx, models.RunParams{Horizon: 6, PathCount: 800, SpeedMS: 20}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, errs := src.Read(ctx)
	select {
	case msg := <-msgs:
		if len(msg.Spaghetti) != 1 || msg.Spaghetti[0].PathID != 4 || msg.Spaghetti[0].Stress != 1.5 {
			t.Fatalf("spaghetti = %+v, want path id 4 stress 1.5", msg.Spaghetti)
		}
	case err := <-errs:
		t.Fatalf("transport error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out")
	}
}

func TestDialFailure(t *testing.T) {
	d := NewDialer("ws://127.0.0.1:1/ws/simulate", testLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}
