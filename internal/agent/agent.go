// Package agent exposes the printer service to a browser or desktop UI over
// a local websocket. Each socket carries UI intents (scan, stop_scan,
// connect, print, disconnect, state) and receives one result per intent.
// Scans run in the background so a stop_scan can reach them; every other
// intent is answered in order.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chaz8081/posprint/internal/ble"
	"github.com/chaz8081/posprint/internal/printer"
	"github.com/chaz8081/posprint/internal/receipt"
)

// Printer is the part of printer.Service the agent drives.
type Printer interface {
	ScanForDevices(ctx context.Context, timeout time.Duration) ([]ble.Device, error)
	ScanForPrinters(ctx context.Context, timeout time.Duration) ([]ble.Device, error)
	StopScan() error
	ConnectToDevice(ctx context.Context, id string) (ble.Device, error)
	DisconnectFromDevice() error
	PrintReceipt(ctx context.Context, r receipt.Receipt, copies int) error
	ConnectionState() printer.ConnectionState
}

var _ Printer = (*printer.Service)(nil)

// IncomingMessage is one UI intent.
type IncomingMessage struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutgoingMessage answers an IncomingMessage with the same job id.
type OutgoingMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Timestamp string `json:"timestamp"`
}

type scanPayload struct {
	TimeoutMS    int  `json:"timeout_ms"`
	PrintersOnly bool `json:"printers_only"`
}

type connectPayload struct {
	ID string `json:"id"`
}

type printPayload struct {
	Receipt receipt.Receipt `json:"receipt"`
	Copies  int             `json:"copies"`
}

// errBadRequest marks malformed intents.
var errBadRequest = errors.New("agent: bad request")

// Options configures the agent.
type Options struct {
	// AllowedOrigins lists the browser origins, besides the agent's own,
	// that may open a socket. Requests without an Origin header are
	// accepted since they do not come from a web page.
	AllowedOrigins []string
}

// Agent serves the websocket endpoint.
type Agent struct {
	printer  Printer
	opts     Options
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New creates an Agent backed by p.
func New(p Printer, opts Options) *Agent {
	a := &Agent{printer: p, opts: opts, now: time.Now}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

func (a *Agent) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range a.opts.AllowedOrigins {
		if strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler serving /ws.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.serveWS)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (a *Agent) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("agent: listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("[AGENT] listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("agent: shutdown: %w", err)
		}
		return nil
	}
}

// socket serializes writes to one websocket connection.
type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) reply(out OutgoingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(out); err != nil {
		slog.Warn("[AGENT] write failed", "job", out.JobID, "error", err)
	}
}

func (a *Agent) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[AGENT] upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sock := &socket{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	var background sync.WaitGroup
	defer func() {
		cancel()
		background.Wait()
		_ = conn.Close()
	}()

	slog.Info("[AGENT] client connected", "remote", r.RemoteAddr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("[AGENT] read error", "remote", r.RemoteAddr, "error", err)
			}
			slog.Info("[AGENT] client disconnected", "remote", r.RemoteAddr)
			return
		}

		var message IncomingMessage
		if err := json.Unmarshal(data, &message); err != nil {
			sock.reply(a.failure("", fmt.Errorf("%w: %v", errBadRequest, err)))
			continue
		}
		if isScan(message.Type) {
			background.Add(1)
			go func() {
				defer background.Done()
				sock.reply(a.handleIncoming(ctx, message))
			}()
			continue
		}
		sock.reply(a.handleIncoming(ctx, message))
	}
}

func isScan(messageType string) bool {
	return strings.EqualFold(strings.TrimSpace(messageType), "scan")
}

// handleIncoming runs one intent to completion and builds its reply.
func (a *Agent) handleIncoming(ctx context.Context, message IncomingMessage) OutgoingMessage {
	if message.JobID == "" {
		message.JobID = uuid.NewString()
	}
	messageType := strings.ToLower(strings.TrimSpace(message.Type))

	if messageType == "ping" {
		return OutgoingMessage{Type: "pong", JobID: message.JobID, Timestamp: a.timestamp()}
	}

	data, err := a.execute(ctx, messageType, message.Payload)
	if err != nil {
		slog.Warn("[AGENT] job failed", "job", message.JobID, "type", messageType, "error", err)
		return a.failure(message.JobID, err)
	}
	slog.Info("[AGENT] job completed", "job", message.JobID, "type", messageType)
	return OutgoingMessage{
		Type:      "result",
		JobID:     message.JobID,
		Status:    "ok",
		Data:      data,
		Timestamp: a.timestamp(),
	}
}

func (a *Agent) execute(ctx context.Context, messageType string, raw json.RawMessage) (any, error) {
	switch messageType {
	case "scan":
		var p scanPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		timeout := time.Duration(p.TimeoutMS) * time.Millisecond
		if p.PrintersOnly {
			return a.printer.ScanForPrinters(ctx, timeout)
		}
		return a.printer.ScanForDevices(ctx, timeout)

	case "stop_scan":
		return nil, a.printer.StopScan()

	case "connect":
		var p connectPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: connect needs a device id", errBadRequest)
		}
		return a.printer.ConnectToDevice(ctx, p.ID)

	case "disconnect":
		return nil, a.printer.DisconnectFromDevice()

	case "state":
		return a.printer.ConnectionState(), nil

	case "print":
		var p printPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return nil, a.printer.PrintReceipt(ctx, p.Receipt, p.Copies)

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", errBadRequest, messageType)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: payload: %v", errBadRequest, err)
	}
	return nil
}

func (a *Agent) failure(jobID string, err error) OutgoingMessage {
	return OutgoingMessage{
		Type:      "result",
		JobID:     jobID,
		Status:    "failed",
		Error:     err.Error(),
		ErrorKind: errorKind(err),
		Timestamp: a.timestamp(),
	}
}

func errorKind(err error) string {
	if errors.Is(err, errBadRequest) {
		return "bad_request"
	}
	return ble.Kind(err)
}

func (a *Agent) timestamp() string {
	return a.now().UTC().Format(time.RFC3339)
}
