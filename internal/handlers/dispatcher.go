package handlers

import (
	"context"
	"runtime/debug"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler handles one update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Dispatcher runs updates of the same actor one at a time, in arrival order,
// while different actors are served concurrently.
type Dispatcher struct {
	handler UpdateHandler
	logger  Logger

	mu      sync.Mutex
	pending map[int64][]tgbotapi.Update
	wg      sync.WaitGroup
}

func NewDispatcher(handler UpdateHandler, logger Logger) *Dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Dispatcher{
		handler: handler,
		logger:  logger,
		pending: make(map[int64][]tgbotapi.Update),
	}
}

// ActorID returns the Telegram user an update belongs to, or 0.
func ActorID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.PreCheckoutQuery != nil && update.PreCheckoutQuery.From != nil:
		return update.PreCheckoutQuery.From.ID
	}
	return 0
}

// Dispatch queues update behind the actor's earlier updates.
func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) {
	actor := ActorID(update)

	d.mu.Lock()
	queue, busy := d.pending[actor]
	d.pending[actor] = append(queue, update)
	d.mu.Unlock()

	if !busy {
		d.wg.Add(1)
		go d.drain(ctx, actor)
	}
}

// Run dispatches updates until the channel closes or ctx is done, then waits
// for in-flight updates. Queued updates are still handled after ctx is done.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer d.Wait()
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			d.Dispatch(work, update)
		}
	}
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, actor int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.pending[actor]
		if len(queue) == 0 {
			delete(d.pending, actor)
			d.mu.Unlock()
			return
		}
		update := queue[0]
		d.pending[actor] = queue[1:]
		d.mu.Unlock()

		d.handle(ctx, update)
	}
}

func (d *Dispatcher) handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("❌ panic handling update %d: %v\n%s", update.UpdateID, r, debug.Stack())
		}
	}()
	d.handler.HandleUpdate(ctx, update)
}
