package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/form"
)

// Connector opens a fresh store session. Sessions are never reused.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is a single connection to the document store
type Session interface {
	Insert(ctx context.Context, doc Document) error
	Close(ctx context.Context) error
}

// StoreError reports a document store failure for one message
type StoreError struct {
	Op  string // "connect" or "insert"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Writer persists relayed form bodies, one document per message
type Writer struct {
	connector Connector
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// WriterOption customizes a Writer
type WriterOption func(*Writer)

// WithClock replaces the clock used for the date field
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a storage writer
func NewWriter(connector Connector, cfg config.StorageConfig, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		connector: connector,
		timeout:   cfg.GetTimeoutDuration(),
		logger:    logger.With(slog.String("component", "storage")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Save opens a session, decodes payload and inserts it as one document.
// It returns a *form.ParseError for a malformed body (nothing is inserted)
// or a *StoreError for connect and insert failures. The session is closed
// before Save returns in every case.
func (w *Writer) Save(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	session, err := w.connector.Connect(ctx)
	if err != nil {
		return &StoreError{Op: "connect", Err: err}
	}
	defer w.closeSession(ctx, session)

	fields, err := form.Parse(payload)
	if err != nil {
		return err
	}

	doc := NewDocument(fields, w.now())
	if err := session.Insert(ctx, doc); err != nil {
		return &StoreError{Op: "insert", Err: err}
	}

	w.logger.Debug("Document inserted",
		slog.Int("fields", len(doc.Fields)),
		slog.Any("document", doc.Map()),
	)

	return nil
}

// closeSession releases the session even when the Save context expired
func (w *Writer) closeSession(ctx context.Context, session Session) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	if err := session.Close(closeCtx); err != nil {
		w.logger.Warn("Failed to close database connection", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("Database connection closed")
}
