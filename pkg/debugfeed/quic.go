package debugfeed

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/QYUbit/revolute/pkg/axlog"
	"github.com/QYUbit/revolute/pkg/codec"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

type quicClient struct {
	id   string
	conn *quic.Conn
	send chan []byte
	once sync.Once
}

// QuicFeed pushes frames to QUIC clients. Each frame goes out as a datagram
// when the peer supports them and the frame fits, otherwise on its own
// unidirectional stream.
type QuicFeed struct {
	address    string
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	logger     axlog.Logger

	listener *quic.Listener

	clients  map[string]*quicClient
	clientMu sync.RWMutex

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewQuicFeed(address string, tlsConf *tls.Config, logger axlog.Logger) *QuicFeed {
	if logger == nil {
		logger = axlog.Nop()
	}
	return &QuicFeed{
		address:   address,
		tlsConfig: tlsConf,
		quicConfig: &quic.Config{
			EnableDatagrams: true,
		},
		logger:  logger.With("feed", "quic"),
		clients: make(map[string]*quicClient),
		done:    make(chan struct{}),
	}
}

// Start listens and accepts clients in the background until ctx is done or
// Close is called.
func (q *QuicFeed) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	listener, err := quic.ListenAddr(q.address, q.tlsConfig, q.quicConfig)
	if err != nil {
		close(q.done)
		return err
	}
	q.listener = listener

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.logger.Info("listening", "addr", listener.Addr().String())
	go q.acceptClients(ctx)
	return nil
}

func (q *QuicFeed) Addr() net.Addr {
	if q.listener == nil {
		return nil
	}
	return q.listener.Addr()
}

func (q *QuicFeed) acceptClients(ctx context.Context) {
	defer close(q.done)

	for {
		conn, err := q.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !q.closed.Load() {
				q.logger.Error("accept failed", "err", err)
			}
			return
		}

		c := &quicClient{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, queueSize),
		}

		q.clientMu.Lock()
		q.clients[c.id] = c
		q.clientMu.Unlock()

		q.logger.Info("client connected",
			"client", c.id,
			"remote", conn.RemoteAddr().String(),
			"datagrams", conn.ConnectionState().SupportsDatagrams,
		)

		go q.writePump(ctx, c)
		go func() {
			<-conn.Context().Done()
			q.remove(c, "")
		}()
	}
}

func (q *QuicFeed) Publish(f render.Frame) {
	data, err := codec.EncodeFrame(f)
	if err != nil {
		q.logger.Error("encode frame", "frame", f.Number, "err", err)
		return
	}
	q.Broadcast(data)
}

// Broadcast queues data for every client without blocking. Frames for a
// client whose queue is full are skipped; the next frame supersedes them.
func (q *QuicFeed) Broadcast(data []byte) {
	q.clientMu.RLock()
	defer q.clientMu.RUnlock()

	for _, c := range q.clients {
		select {
		case c.send <- data:
		default:
			q.logger.Debug("frame skipped", "client", c.id)
		}
	}
}

func (q *QuicFeed) Clients() []string {
	q.clientMu.RLock()
	defer q.clientMu.RUnlock()

	ids := make([]string, 0, len(q.clients))
	for id := range q.clients {
		ids = append(ids, id)
	}
	return ids
}

// CloseClient disconnects one client.
func (q *QuicFeed) CloseClient(id string, reason string) error {
	q.clientMu.RLock()
	c, ok := q.clients[id]
	q.clientMu.RUnlock()

	if !ok {
		return ErrClientNotFound{id}
	}
	q.remove(c, reason)
	return nil
}

func (q *QuicFeed) remove(c *quicClient, reason string) {
	q.clientMu.Lock()
	if q.clients[c.id] == c {
		delete(q.clients, c.id)
	}
	q.clientMu.Unlock()

	c.once.Do(func() {
		close(c.send)
		c.conn.CloseWithError(0, reason)
		q.logger.Debug("client removed", "client", c.id)
	})
}

func (q *QuicFeed) writePump(ctx context.Context, c *quicClient) {
	for data := range c.send {
		if c.conn.ConnectionState().SupportsDatagrams {
			if err := c.conn.SendDatagram(data); err == nil {
				continue
			}
		}

		stream, err := c.conn.OpenUniStreamSync(ctx)
		if err != nil {
			q.logger.Debug("open stream failed", "client", c.id, "err", err)
			q.remove(c, "")
			return
		}
		if _, err := stream.Write(data); err != nil {
			q.logger.Debug("stream write failed", "client", c.id, "err", err)
		}
		stream.Close()
	}
}

func (q *QuicFeed) Close() error {
	if !q.started.Load() {
		return ErrNotListening
	}

	var err error
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		if q.cancel != nil {
			q.cancel()
		}

		q.clientMu.RLock()
		clients := make([]*quicClient, 0, len(q.clients))
		for _, c := range q.clients {
			clients = append(clients, c)
		}
		q.clientMu.RUnlock()

		for _, c := range clients {
			q.remove(c, "feed closed")
		}

		if q.listener != nil {
			err = q.listener.Close()
		}
		<-q.done
	})
	return err
}
