package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"vidkiosk/internal/daemon"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/orchestrator"
)

// ServiceName is the RPC receiver name clients call methods on.
const ServiceName = "Vidkiosk"

// SourceCLI tags requests that arrive over IPC.
const SourceCLI = "cli"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
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
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
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
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Play(req PlayRequest, resp *PlayResponse) error {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return errors.New("url is required")
	}
	reply, err := s.daemon.Submit(SourceCLI, raw, req.Wait)
	if err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Queued = true
	resp.Message = "video queued for playback"
	s.logger.Info("play requested via IPC",
		logging.String(logging.FieldEventType, "ipc_play"),
		logging.Bool("wait", req.Wait))
	if reply == nil {
		return nil
	}
	select {
	case out := <-reply:
		resp.Outcome = outcomeResponse(out)
		resp.Message = out.Summary()
	case <-s.ctx.Done():
		resp.Message = "daemon shutting down"
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	resp.Stopped = s.daemon.StopPlayback()
	s.logger.Info("stop requested via IPC",
		logging.String(logging.FieldEventType, "ipc_stop"),
		logging.Bool("stopped", resp.Stopped))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	events, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *service) CacheList(_ CacheListRequest, resp *CacheListResponse) error {
	entries, stats, err := s.daemon.CachedVideos(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = entries
	resp.Stats = stats
	return nil
}

func (s *service) CachePrune(_ CachePruneRequest, resp *CachePruneResponse) error {
	result, err := s.daemon.PruneCache(s.ctx)
	if err != nil {
		return err
	}
	*resp = result
	s.logger.Info("cache pruned via IPC",
		logging.String(logging.FieldEventType, "ipc_cache_prune"),
		logging.Int("removed_count", len(result.Removed)),
		logging.String("freed", logging.FormatBytes(result.FreedBytes)))
	return nil
}

func (s *service) CacheRemove(req CacheRemoveRequest, resp *CacheRemoveResponse) error {
	if err := s.daemon.RemoveCached(s.ctx, req.VideoID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.daemon.Logs(ctx, req.Since, req.Limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = health
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func outcomeResponse(out orchestrator.Outcome) *OutcomeResponse {
	resp := &OutcomeResponse{
		RequestID:  out.RequestID,
		VideoID:    out.Video.ID,
		State:      string(out.State),
		Kind:       string(out.Kind),
		RetryAfter: out.RetryAfter,
		Stopped:    out.Stopped,
		Elapsed:    out.Elapsed,
		Trace:      make([]string, 0, len(out.Trace)),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	for _, state := range out.Trace {
		resp.Trace = append(resp.Trace, string(state))
	}
	return resp
}
