package debugfeed

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/QYUbit/revolute/pkg/axlog"
	"github.com/QYUbit/revolute/pkg/codec"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// WebTransportPath is the route browsers open a WebTransport session on.
const WebTransportPath = "/wt"

type wtClient struct {
	id      string
	session *webtransport.Session
	send    chan []byte
	once    sync.Once
}

// WebTransportFeed pushes frames to WebTransport sessions opened against the
// HTTP/3 server. Frames go out as datagrams and fall back to a unidirectional
// stream when a datagram is rejected.
type WebTransportFeed struct {
	logger axlog.Logger

	server   *webtransport.Server
	serverMu sync.RWMutex

	clients  map[string]*wtClient
	clientMu sync.RWMutex

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWebTransportFeed(logger axlog.Logger) *WebTransportFeed {
	if logger == nil {
		logger = axlog.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebTransportFeed{
		logger:  logger.With("feed", "webtransport"),
		clients: make(map[string]*wtClient),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// bind creates the WebTransport server that serves handler over HTTP/3.
// Sessions can only be upgraded on connections served by the latest bound
// server.
func (f *WebTransportFeed) bind(handler http.Handler, tlsConf *tls.Config) *webtransport.Server {
	srv := &webtransport.Server{
		H3: http3.Server{
			Handler:   handler,
			TLSConfig: tlsConf,
		},
	}

	f.serverMu.Lock()
	f.server = srv
	f.serverMu.Unlock()
	return srv
}

// ServeHTTP upgrades an extended CONNECT request to a session.
func (f *WebTransportFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.serverMu.RLock()
	srv := f.server
	f.serverMu.RUnlock()

	if srv == nil || f.closed.Load() {
		http.Error(w, ErrFeedClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	session, err := srv.Upgrade(w, r)
	if err != nil {
		f.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	c := &wtClient{
		id:      uuid.NewString(),
		session: session,
		send:    make(chan []byte, queueSize),
	}

	f.clientMu.Lock()
	f.clients[c.id] = c
	f.clientMu.Unlock()

	f.logger.Info("client connected", "client", c.id, "remote", session.RemoteAddr().String())

	go f.writePump(c)
	go func() {
		<-session.Context().Done()
		f.remove(c, "")
	}()
}

func (f *WebTransportFeed) Publish(frame render.Frame) {
	data, err := codec.EncodeFrame(frame)
	if err != nil {
		f.logger.Error("encode frame", "frame", frame.Number, "err", err)
		return
	}
	f.Broadcast(data)
}

// Broadcast queues data for every session without blocking.
func (f *WebTransportFeed) Broadcast(data []byte) {
	f.clientMu.RLock()
	defer f.clientMu.RUnlock()

	for _, c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Debug("frame skipped", "client", c.id)
		}
	}
}

func (f *WebTransportFeed) Clients() []string {
	f.clientMu.RLock()
	defer f.clientMu.RUnlock()

	ids := make([]string, 0, len(f.clients))
	for id := range f.clients {
		ids = append(ids, id)
	}
	return ids
}

func (f *WebTransportFeed) CloseClient(id string, reason string) error {
	f.clientMu.RLock()
	c, ok := f.clients[id]
	f.clientMu.RUnlock()

	if !ok {
		return ErrClientNotFound{id}
	}
	f.remove(c, reason)
	return nil
}

func (f *WebTransportFeed) remove(c *wtClient, reason string) {
	f.clientMu.Lock()
	if f.clients[c.id] == c {
		delete(f.clients, c.id)
	}
	f.clientMu.Unlock()

	c.once.Do(func() {
		close(c.send)
		c.session.CloseWithError(0, reason)
		f.logger.Debug("client removed", "client", c.id)
	})
}

func (f *WebTransportFeed) writePump(c *wtClient) {
	for data := range c.send {
		if err := c.session.SendDatagram(data); err == nil {
			continue
		}

		stream, err := c.session.OpenUniStreamSync(f.ctx)
		if err != nil {
			f.logger.Debug("open stream failed", "client", c.id, "err", err)
			f.remove(c, "")
			return
		}
		if _, err := stream.Write(data); err != nil {
			f.logger.Debug("stream write failed", "client", c.id, "err", err)
		}
		stream.Close()
	}
}

// Close ends every session. Later upgrade requests are refused.
func (f *WebTransportFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrFeedClosed
	}
	f.cancel()

	f.clientMu.RLock()
	clients := make([]*wtClient, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.clientMu.RUnlock()

	for _, c := range clients {
		f.remove(c, "feed closed")
	}
	return nil
}
