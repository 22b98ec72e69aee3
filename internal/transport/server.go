// Package transport exposes the judge engine over NDJSON-framed TCP
// connections, generalizing internal/server/server.go's single stdio
// Session and writer-mutex-guarded NDJSON encoder to one goroutine (and one
// writer mutex) per concurrently connected admin, participant, or
// spectator (spec §6 "External interfaces").
package transport

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/localjudge/engine/internal/broadcast"
	"github.com/localjudge/engine/pkg/types"
)

// Handler is the function signature for a registered method.
type Handler func(conn *Conn, params json.RawMessage) (any, *types.RPCError)

// Server accepts TCP connections and dispatches NDJSON requests on each to
// registered Handlers.
type Server struct {
	listener net.Listener
	handlers map[string]Handler
	hub      *broadcast.Hub
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New creates a Server bound to listener. Call RegisterHandler for every
// method before Serve.
func New(listener net.Listener, hub *broadcast.Hub, logger *slog.Logger) *Server {
	return &Server{
		listener: listener,
		handlers: make(map[string]Handler),
		hub:      hub,
		logger:   logger,
	}
}

// RegisterHandler registers a handler for method, mirroring
// Server.RegisterHandler in the teacher.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlers[method] = h
}

// Serve accepts connections until ctx is canceled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Conn is one accepted connection: its own NDJSON scanner, its own
// writer-mutex-guarded encoder (the subscriber Writer broadcast.Hub pushes
// notifications through), and its own Session.
type Conn struct {
	netConn net.Conn
	writer  *bufio.Writer
	mu      sync.Mutex // protects writer, mirrors the teacher's s.mu

	session *Session
	hub     *broadcast.Hub
	logger  *slog.Logger
}

// WriteNotification implements broadcast.Writer.
func (c *Conn) WriteNotification(n *types.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		c.logger.Error("marshal notification", "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.writer.Write(data)
	_ = c.writer.WriteByte('\n')
	_ = c.writer.Flush()
}

func (c *Conn) writeResponse(resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("marshal response", "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.writer.Write(data)
	_ = c.writer.WriteByte('\n')
	_ = c.writer.Flush()
}

// Session returns this connection's Session, for Handlers.
func (c *Conn) Session() *Session { return c.session }

// Hub returns the broadcast Hub, for Handlers that need to Subscribe.
func (c *Conn) Hub() *broadcast.Hub { return c.hub }

func (s *Server) handleConn(netConn net.Conn) {
	defer netConn.Close()

	conn := &Conn{
		netConn: netConn,
		writer:  bufio.NewWriter(netConn),
		session: NewSession(),
		hub:     s.hub,
		logger:  s.logger,
	}

	scanner := bufio.NewScanner(netConn)
	const maxScanBuf = 4 * 1024 * 1024 // large enough for a pasted solution's source
	scanner.Buffer(make([]byte, maxScanBuf), maxScanBuf)

	defer func() {
		if contestID := conn.session.Contest(); contestID != "" {
			s.hub.Unsubscribe(contestID, conn)
		}
	}()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(conn, line)
		conn.writeResponse(resp)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("connection read error", "err", err)
	}
}

func (s *Server) dispatch(conn *Conn, line []byte) *types.Response {
	var req types.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return types.NewErrorResponse(0, types.NewRPCError(-32700, "parse error", "PARSE_ERROR", false, err.Error()))
	}
	if req.Method == "" {
		return types.NewErrorResponse(req.ID, types.NewRPCError(-32600, "invalid request", "INVALID_REQUEST", false, "method must be non-empty"))
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		return types.NewErrorResponse(req.ID, types.NewRPCError(-32601, "method not found", "METHOD_NOT_FOUND", false, "unknown method: "+req.Method))
	}

	result, rpcErr := h(conn, req.Params)
	if rpcErr != nil {
		return types.NewErrorResponse(req.ID, rpcErr)
	}
	resp, err := types.NewSuccessResponse(req.ID, result)
	if err != nil {
		return types.NewErrorResponse(req.ID, types.ErrorEngineError(err.Error()))
	}
	return resp
}
