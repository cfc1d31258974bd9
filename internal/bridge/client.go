package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sendit/internal/logging"
	"sendit/internal/reconcile"
)

// ErrBackendUnavailable reports that the backend socket is missing, refused
// the connection, or dropped it.
var ErrBackendUnavailable = errors.New("transfer backend unavailable")

// ClientOptions tunes a Client.
type ClientOptions struct {
	// DialTimeout defaults to 2s.
	DialTimeout time.Duration
	// CallTimeout bounds each command; zero leaves commands bounded by ctx only.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// eventGrace is added to the long-poll wait so a silent connection is noticed.
const eventGrace = 5 * time.Second

// Client provides RPC access to the transfer backend. It is safe for
// concurrent use and implements reconcile.Commander.
type Client struct {
	conn        net.Conn
	client      *rpc.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

var _ reconcile.Commander = (*Client)(nil)

// Dial connects to the backend at the given socket path.
func Dial(path string, opts ClientOptions) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	conn, err := net.DialTimeout("unix", path, opts.DialTimeout)
	if err != nil {
		return nil, classify(fmt.Errorf("dial %s: %w", path, err))
	}
	return &Client{
		conn:        conn,
		client:      rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
		callTimeout: opts.CallTimeout,
		logger:      logging.NewComponentLogger(opts.Logger, "bridge"),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call issues method and waits for the reply, ctx, or timeout. A zero
// timeout waits on ctx alone.
func (c *Client) call(ctx context.Context, method string, args, reply any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	pending := c.client.Go(ServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case done := <-pending.Done:
		if done.Error != nil {
			return classify(fmt.Errorf("%s: %w", method, done.Error))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (c *Client) meta(ctx context.Context, command string) (context.Context, CallMeta) {
	id, ok := logging.CorrelationIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = logging.WithCorrelationID(ctx, id)
	}
	logging.WithContext(ctx, c.logger).Debug("bridge call", logging.Command(command))
	return ctx, CallMeta{CorrelationID: id}
}

// AddFile asks the backend to import path for sending.
func (c *Client) AddFile(ctx context.Context, path string) error {
	ctx, meta := c.meta(ctx, reconcile.CommandAddFile)
	var ack Ack
	return c.call(ctx, "AddFile", PathRequest{CallMeta: meta, Path: path}, &ack, c.callTimeout)
}

// RemoveFile asks the backend to withdraw path from the outbound set.
func (c *Client) RemoveFile(ctx context.Context, path string) error {
	ctx, meta := c.meta(ctx, reconcile.CommandRemoveFile)
	var ack Ack
	return c.call(ctx, "RemoveFile", PathRequest{CallMeta: meta, Path: path}, &ack, c.callTimeout)
}

// RemoveAllFiles asks the backend to withdraw every outbound file.
func (c *Client) RemoveAllFiles(ctx context.Context) error {
	ctx, meta := c.meta(ctx, reconcile.CommandRemoveAllFiles)
	var ack Ack
	return c.call(ctx, "RemoveAllFiles", EmptyRequest{CallMeta: meta}, &ack, c.callTimeout)
}

// GenerateTicket returns a redemption ticket for the outbound files.
func (c *Client) GenerateTicket(ctx context.Context) (string, error) {
	ctx, meta := c.meta(ctx, reconcile.CommandGenerateTicket)
	var resp TicketResponse
	if err := c.call(ctx, "GenerateTicket", EmptyRequest{CallMeta: meta}, &resp, c.callTimeout); err != nil {
		return "", err
	}
	return resp.Ticket, nil
}

// DownloadByTicket redeems ticket. The backend may hold the call until every
// file has arrived, so only ctx bounds it.
func (c *Client) DownloadByTicket(ctx context.Context, ticket string) error {
	ctx, meta := c.meta(ctx, reconcile.CommandDownloadByTicket)
	var ack Ack
	return c.call(ctx, "DownloadByTicket", TicketRequest{CallMeta: meta, Ticket: ticket}, &ack, 0)
}

// CancelDownload asks the backend to abort the inbound transfer name.
func (c *Client) CancelDownload(ctx context.Context, name string) error {
	ctx, meta := c.meta(ctx, reconcile.CommandCancelDownload)
	var ack Ack
	return c.call(ctx, "CancelDownload", NameRequest{CallMeta: meta, Name: name}, &ack, c.callTimeout)
}

// ValidatePaths returns the files among paths the backend would accept.
func (c *Client) ValidatePaths(ctx context.Context, paths []string) ([]reconcile.FileInfo, error) {
	ctx, meta := c.meta(ctx, reconcile.CommandValidatePaths)
	var resp ValidatePathsResponse
	if err := c.call(ctx, "ValidatePaths", ValidatePathsRequest{CallMeta: meta, Paths: paths}, &resp, c.callTimeout); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// FetchEvents performs one long-poll for events after since.
func (c *Client) FetchEvents(ctx context.Context, req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if err := c.call(ctx, "Events", req, &resp, wait+eventGrace); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IsUnavailable reports whether err means the backend cannot be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	switch {
	case errors.Is(err, rpc.ErrShutdown),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ENOENT),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return err
}
