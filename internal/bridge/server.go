package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"sendit/internal/logging"
	"sendit/internal/reconcile"
)

// Backend is the command surface a transfer backend exposes. It is the same
// contract the client-side Controller consumes.
type Backend = reconcile.Commander

// maxEventWait caps how long one Events call may block.
const maxEventWait = 30 * time.Second

// Server exposes a Backend and its event Hub via JSON-RPC over a Unix domain
// socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer listens on path, replacing any stale socket file.
func NewServer(ctx context.Context, path string, backend Backend, hub *Hub, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("bridge server requires a backend")
	}
	if hub == nil {
		return nil, errors.New("bridge server requires an event hub")
	}
	logger = logging.NewComponentLogger(logger, "bridge")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{backend: backend, hub: hub, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("bridge server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "bridge_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the backend"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				stop := context.AfterFunc(s.ctx, func() { _ = c.Close() })
				defer stop()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server, drops open connections, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "bridge_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	backend Backend
	hub     *Hub
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) begin(meta CallMeta, command string) (context.Context, *slog.Logger) {
	ctx := s.ctx
	if meta.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, meta.CorrelationID)
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.Command(command))
	logger.Debug("command received")
	return ctx, logger
}

func (s *service) finish(logger *slog.Logger, err error) error {
	if err != nil {
		logger.Info("command rejected", logging.Error(err))
	}
	return err
}

func (s *service) AddFile(req PathRequest, resp *Ack) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandAddFile)
	if err := s.backend.AddFile(ctx, req.Path); err != nil {
		return s.finish(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) RemoveFile(req PathRequest, resp *Ack) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandRemoveFile)
	if err := s.backend.RemoveFile(ctx, req.Path); err != nil {
		return s.finish(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) RemoveAllFiles(req EmptyRequest, resp *Ack) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandRemoveAllFiles)
	if err := s.backend.RemoveAllFiles(ctx); err != nil {
		return s.finish(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) GenerateTicket(req EmptyRequest, resp *TicketResponse) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandGenerateTicket)
	ticket, err := s.backend.GenerateTicket(ctx)
	if err != nil {
		return s.finish(logger, err)
	}
	resp.Ticket = ticket
	return nil
}

func (s *service) DownloadByTicket(req TicketRequest, resp *Ack) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandDownloadByTicket)
	if err := s.backend.DownloadByTicket(ctx, req.Ticket); err != nil {
		return s.finish(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) CancelDownload(req NameRequest, resp *Ack) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandCancelDownload)
	if err := s.backend.CancelDownload(ctx, req.Name); err != nil {
		return s.finish(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) ValidatePaths(req ValidatePathsRequest, resp *ValidatePathsResponse) error {
	ctx, logger := s.begin(req.CallMeta, reconcile.CommandValidatePaths)
	files, err := s.backend.ValidatePaths(ctx, req.Paths)
	if err != nil {
		return s.finish(logger, err)
	}
	resp.Files = files
	if resp.Files == nil {
		resp.Files = []reconcile.FileInfo{}
	}
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	wait := min(time.Duration(req.WaitMillis)*time.Millisecond, maxEventWait)
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.hub.Fetch(ctx, req.Since, req.Limit, wait > 0)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Events = events
	if resp.Events == nil {
		resp.Events = []Event{}
	}
	resp.Next = next
	return nil
}
