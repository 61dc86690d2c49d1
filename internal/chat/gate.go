package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUploadFailed = errors.New("image upload failed")
	ErrWriteFailed  = errors.New("chat write failed")
	ErrEmptyMessage = errors.New("message has no text and no image")
)

type GateState int

const (
	GateIdle GateState = iota
	GateUploading
	GateWriting
	GateError
)

func (s GateState) String() string {
	switch s {
	case GateUploading:
		return "uploading"
	case GateWriting:
		return "writing"
	case GateError:
		return "error"
	default:
		return "idle"
	}
}

func (s GateState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GateState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = GateIdle
	case "uploading":
		*s = GateUploading
	case "writing":
		*s = GateWriting
	case "error":
		*s = GateError
	default:
		return fmt.Errorf("unknown gate state %q", text)
	}
	return nil
}

// GateStatus is what the console shows about the send in progress.
type GateStatus struct {
	State     GateState `json:"state"`
	Uploading bool      `json:"uploading"`
	Error     string    `json:"error,omitempty"`
}

type Uploader interface {
	Upload(ctx context.Context, image io.Reader) (string, error)
}

type MessageWriter interface {
	NewMessageID(counterpartyID string) string
	SaveMessage(ctx context.Context, counterpartyID string, msg Message) error
}

// ImageRef points at an attachment whose bytes are read only when the send
// gets to the upload step.
type ImageRef interface {
	Open() (io.ReadCloser, error)
}

type BytesImage []byte

func (b BytesImage) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Gate runs a send as upload-then-write. Its state is exposed for the
// console to disable the send button; it does not stop two concurrent sends.
type Gate struct {
	uploader Uploader
	writer   MessageWriter
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    GateState
	err      error
	onChange func(GateStatus)
}

func NewGate(uploader Uploader, writer MessageWriter, notifier Notifier, log *zap.Logger) *Gate {
	return &Gate{
		uploader: uploader,
		writer:   writer,
		notifier: orNop(notifier),
		log:      log,
		now:      time.Now,
	}
}

// OnChange registers fn to receive every state transition.
func (g *Gate) OnChange(fn func(GateStatus)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

func (g *Gate) Status() GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Gate) Uploading() bool {
	return g.Status().Uploading
}

func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// ClearError dismisses a failed send.
func (g *Gate) ClearError() {
	g.mu.Lock()
	if g.state != GateError {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.transition(GateIdle, nil)
}

// Send uploads image if there is one, then writes the message. A failed
// upload writes nothing. The returned message is what was written; the
// conversation stream delivers it back once the write lands.
func (g *Gate) Send(ctx context.Context, counterpartyID, senderID, text string, image ImageRef) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return nil, ErrEmptyMessage
	}
	log := g.log.With(zap.String("counterparty", counterpartyID))

	var imageURL string
	if image != nil {
		g.transition(GateUploading, nil)
		url, err := g.upload(ctx, image)
		if err != nil {
			log.Error("upload attachment", zap.Error(err))
			err = fmt.Errorf("%w: %w", ErrUploadFailed, err)
			g.transition(GateError, err)
			return nil, err
		}
		imageURL = url
	}

	g.transition(GateWriting, nil)
	msg := Message{
		ID:        g.writer.NewMessageID(counterpartyID),
		SenderID:  senderID,
		Text:      text,
		ImageURL:  imageURL,
		Timestamp: g.now().UnixMilli(),
	}
	if err := g.writer.SaveMessage(ctx, counterpartyID, msg); err != nil {
		log.Error("write message", zap.String("message", msg.ID), zap.Error(err))
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		g.transition(GateError, err)
		return nil, err
	}
	g.transition(GateIdle, nil)

	g.notifier.MessageSent(ctx, counterpartyID, msg)
	return &msg, nil
}

func (g *Gate) upload(ctx context.Context, image ImageRef) (string, error) {
	rc, err := image.Open()
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()
	return g.uploader.Upload(ctx, rc)
}

func (g *Gate) transition(state GateState, err error) {
	g.mu.Lock()
	g.state = state
	g.err = err
	status := g.statusLocked()
	fn := g.onChange
	g.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

func (g *Gate) statusLocked() GateStatus {
	st := GateStatus{State: g.state, Uploading: g.state == GateUploading}
	if g.err != nil {
		st.Error = g.err.Error()
	}
	return st
}
