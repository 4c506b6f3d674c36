package debugfeed

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/QYUbit/revolute/pkg/codec"
	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/QYUbit/revolute/pkg/physics"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

func testFrame(n uint64) render.Frame {
	return render.Frame{
		Number:     n,
		Camera:     mathx.FromXYZ(0.1, -0.9, 0.3).LookingAt(mgl64.Vec3{0.1, -0.35, 0}, mathx.AxisZ),
		ClearColor: render.Black,
		Bodies: []render.BodyView{
			{Entity: 3, Shape: physics.ShapeCuboid, HalfExtents: mgl64.Vec3{0.03, 0.01, 0.02}, Kind: physics.Fixed, Transform: mathx.FromXYZ(0.14, -0.1, 0.01)},
			{Entity: 7, Shape: physics.ShapeBall, Radius: 0.015, Kind: physics.Dynamic, Transform: mathx.FromXYZ(0.13, -0.5, 0.01)},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *WebSocketHub, *render.Recorder) {
	t.Helper()
	hub := NewWebSocketHub(nil)
	rec := render.NewRecorder(4)
	srv := httptest.NewServer(NewServer(hub, rec, nil).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, rec
}

func TestWebSocketHubStreamsFrames(t *testing.T) {
	srv, hub, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "client registration", func() bool { return len(hub.Clients()) == 1 })

	hub.Publish(testFrame(12))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if typ != websocket.BinaryMessage {
		t.Errorf("Expected binary message, got type %d", typ)
	}

	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if f.Number != 12 || len(f.Bodies) != 2 {
		t.Errorf("Unexpected frame %d with %d bodies", f.Number, len(f.Bodies))
	}
}

func TestWebSocketHubForgetsDisconnectedClients(t *testing.T) {
	srv, hub, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, "client registration", func() bool { return len(hub.Clients()) == 1 })

	conn.Close()
	waitFor(t, "client removal", func() bool { return len(hub.Clients()) == 0 })
}

func TestWebSocketHubClosed(t *testing.T) {
	srv, hub, _ := newTestServer(t)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := hub.Close(); err != ErrFeedClosed {
		t.Errorf("Expected ErrFeedClosed on second Close, got %v", err)
	}

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from closed hub, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, rec := newTestServer(t)
	rec.Publish(testFrame(5))

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Frame  uint64 `json:"frame"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Frame != 5 {
		t.Errorf("Unexpected health response %+v", body)
	}
}

func TestScene(t *testing.T) {
	srv, _, rec := newTestServer(t)

	resp, err := http.Get(srv.URL + "/scene")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first frame, got %d", resp.StatusCode)
	}

	rec.Publish(testFrame(9))

	resp, err = http.Get(srv.URL + "/scene")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var scene sceneJSON
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		t.Fatal(err)
	}
	if scene.Frame != 9 || len(scene.Bodies) != 2 {
		t.Fatalf("Unexpected scene frame=%d bodies=%d", scene.Frame, len(scene.Bodies))
	}

	ball := scene.Bodies[1]
	if ball.Shape != "ball" || ball.Kind != "dynamic" || ball.Radius != 0.015 {
		t.Errorf("Unexpected ball %+v", ball)
	}
	if ball.Position != [3]float64{0.13, -0.5, 0.01} {
		t.Errorf("Unexpected ball position %v", ball.Position)
	}

	fwd := mgl64.Vec3(scene.Camera.Forward)
	want := mgl64.Vec3{0, 0.55, -0.3}.Normalize()
	if !fwd.ApproxEqualThreshold(want, 1e-9) {
		t.Errorf("Camera forward %v, want %v", fwd, want)
	}
}

func TestSelfSignedTLS(t *testing.T) {
	conf, err := SelfSignedTLS("10.1.2.3", "feed.internal")
	if err != nil {
		t.Fatalf("SelfSignedTLS failed: %v", err)
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != NextProto {
		t.Errorf("Unexpected ALPN %v", conf.NextProtos)
	}

	cert, err := x509.ParseCertificate(conf.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := cert.VerifyHostname("feed.internal"); err != nil {
		t.Error(err)
	}
	if err := cert.VerifyHostname("10.1.2.3"); err != nil {
		t.Error(err)
	}
	if err := cert.VerifyHostname("127.0.0.1"); err != nil {
		t.Error(err)
	}
}

func TestQuicFeedDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverTLS, err := SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}

	feed := NewQuicFeed("127.0.0.1:0", serverTLS, nil)
	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer feed.Close()

	if err := feed.Start(ctx); err != ErrAlreadyStarted {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	addr := feed.Addr().(*net.UDPAddr)
	conn, err := quic.DialAddr(ctx, addr.String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{NextProto},
	}, &quic.Config{EnableDatagrams: true})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.CloseWithError(0, "")

	waitFor(t, "quic client registration", func() bool { return len(feed.Clients()) == 1 })

	// Datagrams may be lost, so keep publishing until one arrives.
	pubCtx, stopPublishing := context.WithCancel(ctx)
	defer stopPublishing()
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-pubCtx.Done():
				return
			case <-ticker.C:
				feed.Publish(testFrame(77))
			}
		}
	}()

	data, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		t.Fatalf("ReceiveDatagram failed: %v", err)
	}
	stopPublishing()

	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if f.Number != 77 {
		t.Errorf("Expected frame 77, got %d", f.Number)
	}

	id := feed.Clients()[0]
	if err := feed.CloseClient(id, "bye"); err != nil {
		t.Errorf("CloseClient failed: %v", err)
	}
	if err := feed.CloseClient(id, "bye"); err == nil {
		t.Error("Expected ErrClientNotFound for a removed client")
	}
}

func TestServeHTTP3(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlsConf, err := SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	hub := NewWebSocketHub(nil)
	defer hub.Close()
	rec := render.NewRecorder(1)
	rec.Publish(testFrame(3))

	done := make(chan error, 1)
	go func() { done <- NewServer(hub, rec, nil).ServeHTTP3(ctx, conn, tlsConf) }()

	tr := &http3.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	defer tr.Close()
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	resp, err := client.Get("https://" + conn.LocalAddr().String() + "/scene")
	if err != nil {
		t.Fatalf("HTTP/3 request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.ProtoMajor != 3 {
		t.Errorf("Expected HTTP/3, got %s", resp.Proto)
	}

	var scene sceneJSON
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		t.Fatal(err)
	}
	if scene.Frame != 3 {
		t.Errorf("Expected frame 3, got %d", scene.Frame)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeHTTP3 returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ServeHTTP3 did not stop")
	}
}

func TestWebTransportFeedDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tlsConf, err := SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	hub := NewWebSocketHub(nil)
	defer hub.Close()
	feed := NewWebTransportFeed(nil)
	defer feed.Close()

	server := NewServer(hub, render.NewRecorder(1), nil)
	server.EnableWebTransport(feed)

	serveCtx, stopServing := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- server.ServeHTTP3(serveCtx, conn, tlsConf) }()

	dialer := webtransport.Dialer{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	defer dialer.Close()

	url := "https://" + conn.LocalAddr().String() + WebTransportPath
	var session *webtransport.Session
	waitFor(t, "webtransport session", func() bool {
		rsp, sess, err := dialer.Dial(ctx, url, nil)
		if err != nil {
			return false
		}
		if rsp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rsp.StatusCode)
		}
		session = sess
		return true
	})
	defer session.CloseWithError(0, "")

	waitFor(t, "webtransport client registration", func() bool { return len(feed.Clients()) == 1 })

	// Datagrams may be lost, so keep publishing until one arrives.
	pubCtx, stopPublishing := context.WithCancel(ctx)
	defer stopPublishing()
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-pubCtx.Done():
				return
			case <-ticker.C:
				feed.Publish(testFrame(41))
			}
		}
	}()

	data, err := session.ReceiveDatagram(ctx)
	if err != nil {
		t.Fatalf("ReceiveDatagram failed: %v", err)
	}
	stopPublishing()

	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if f.Number != 41 {
		t.Errorf("Expected frame 41, got %d", f.Number)
	}

	id := feed.Clients()[0]
	if err := feed.CloseClient(id, "bye"); err != nil {
		t.Errorf("CloseClient failed: %v", err)
	}
	if err := feed.CloseClient(id, "bye"); err == nil {
		t.Error("Expected ErrClientNotFound for a removed client")
	}

	stopServing()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeHTTP3 returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ServeHTTP3 did not stop")
	}

	if err := feed.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := feed.Close(); err != ErrFeedClosed {
		t.Errorf("Expected ErrFeedClosed on second Close, got %v", err)
	}
}

func TestWebTransportFeedRefusesWithoutServer(t *testing.T) {
	feed := NewWebTransportFeed(nil)
	defer feed.Close()

	rec := httptest.NewRecorder()
	feed.ServeHTTP(rec, httptest.NewRequest(http.MethodConnect, WebTransportPath, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}
