package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
)

const (
	streamHeartbeat = 25 * time.Second
	streamMaxAge    = 30 * time.Minute
)

// ChangeBus fans calendar changes out to the subscribers of each user.
// It implements port.ChangeNotifier.
type ChangeBus struct {
	mu   sync.RWMutex
	subs map[string][]chan domain.CalendarChange // subscribers per subject
}

// NewChangeBus creates an empty bus.
func NewChangeBus() *ChangeBus {
	return &ChangeBus{subs: make(map[string][]chan domain.CalendarChange)}
}

// Publish delivers change to every subscriber of change.Subject. Slow
// subscribers drop updates instead of blocking the publisher.
func (b *ChangeBus) Publish(change domain.CalendarChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[change.Subject] {
		select {
		case ch <- change:
		default:
		}
	}
}

// Subscribe returns a channel that receives the subject's changes.
func (b *ChangeBus) Subscribe(subject string) chan domain.CalendarChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.CalendarChange, 10)
	b.subs[subject] = append(b.subs[subject], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers and closes it.
func (b *ChangeBus) Unsubscribe(subject string, ch chan domain.CalendarChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[subject]
	for i, s := range subs {
		if s == ch {
			b.subs[subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[subject]) == 0 {
		delete(b.subs, subject)
	}
	close(ch)
}

// StreamHandler pushes calendar changes to clients over Server-Sent Events.
type StreamHandler struct {
	bus *ChangeBus
}

// NewStreamHandler creates a new SSE stream handler.
func NewStreamHandler(bus *ChangeBus) *StreamHandler {
	return &StreamHandler{bus: bus}
}

// Register sets up streaming routes.
func (h *StreamHandler) Register(router fiber.Router) {
	router.Get("/calendar/stream", h.StreamChanges)
}

// StreamChanges streams the caller's calendar changes until the client goes away.
func (h *StreamHandler) StreamChanges(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	subject := uc.Subject

	ch := h.bus.Subscribe(subject)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.bus.Unsubscribe(subject, ch)

		fmt.Fprintf(w, "event: ready\ndata: {\"userId\":%q}\n\n", subject)
		if err := w.Flush(); err != nil {
			return
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		timeout := time.After(streamMaxAge)

		for {
			select {
			case change, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(change)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.Kind, string(data))
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-timeout:
				slog.Debug("SSE stream expired", "subject", subject)
				return
			}
		}
	})
}
