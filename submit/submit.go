// Package submit accepts messages over HTTP and enqueues them.
package submit

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"mailqueue/internal/logger"
	"mailqueue/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 10 << 20

// Enqueuer is the part of the queue the handler needs.
type Enqueuer interface {
	Enqueue(m *queue.Message) error
}

// Attachment is a file in a submission. Data is base64 in JSON.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Request is the POST /v1/messages body.
type Request struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	ReplyTo     string            `json:"reply_to"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Attributes  map[string]string `json:"attributes"`
	Attachments []Attachment      `json:"attachments"`
}

// Response is returned for every outcome; ID is set on success.
type Response struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler serves message submissions.
type Handler struct {
	q          Enqueuer
	from       string
	allowed    []*net.IPNet
	retryAfter time.Duration
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithDefaultSender is used when a request has no from address.
func WithDefaultSender(addr string) Option {
	return func(h *Handler) { h.from = addr }
}

// WithAllowedNetworks restricts submissions to clients in networks. An
// empty list allows everyone.
func WithAllowedNetworks(networks []*net.IPNet) Option {
	return func(h *Handler) { h.allowed = networks }
}

// WithRetryAfter sets the Retry-After hint sent when the queue is full.
func WithRetryAfter(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.retryAfter = d
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler returns a submission handler for q.
func NewHandler(q Enqueuer, opts ...Option) *Handler {
	h := &Handler{q: q, retryAfter: queue.DefaultErrorDelay, logger: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("submit"))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.permitted(r.RemoteAddr) {
		writeJSON(w, http.StatusForbidden, Response{Error: "client not allowed"})
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "malformed request body"})
		return
	}

	m := h.message(req)
	err := h.q.Enqueue(m)
	switch {
	case err == nil:
		h.logger.Info("message submitted", logger.MessageID(m.ID()), logger.Recipients(m.Recipients()))
		writeJSON(w, http.StatusAccepted, Response{ID: m.ID()})
	case errors.Is(err, queue.ErrInvalidMessage):
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
	case errors.Is(err, queue.ErrQueueFull):
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: err.Error()})
	case errors.Is(err, queue.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: err.Error()})
	default:
		h.logger.Error("submission failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Error: "internal error"})
	}
}

func (h *Handler) message(req Request) *queue.Message {
	from := req.From
	if from == "" {
		from = h.from
	}
	opts := []queue.MessageOption{queue.WithRecipients(req.To...)}
	if req.ReplyTo != "" {
		opts = append(opts, queue.WithReplyTo(req.ReplyTo))
	}
	for name, value := range req.Attributes {
		opts = append(opts, queue.WithAttribute(name, value))
	}
	for _, a := range req.Attachments {
		opts = append(opts, queue.WithAttachment(a.Filename, a.ContentType, a.Data))
	}
	return queue.NewMessage(from, req.Subject, req.Body, opts...)
}

func (h *Handler) permitted(remoteAddr string) bool {
	if len(h.allowed) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range h.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
