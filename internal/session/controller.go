// Package session owns the conversation history, the single-flight send
// lifecycle, and the user/admin visibility mode. It merges the metadata of
// successful chat responses into the shared snapshots and notifies observers
// of every state change.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/state"
)

// Service is the subset of the chat service the controller drives directly.
// *rag.Client satisfies it.
type Service interface {
	Chat(ctx context.Context, message, userID string) (rag.ChatResponse, error)
	StartFinetune(ctx context.Context, force, backupExisting bool) (rag.FinetuneResult, error)
	ClearConversations(ctx context.Context, backup bool) (rag.ClearResult, error)
}

// Controller is the client-side session state machine. All mutation goes
// through its methods; the history is append-only and messages are never
// edited or removed.
type Controller struct {
	svc    Service
	rec    *state.Reconciler
	userID string
	logger *slog.Logger

	mu        sync.Mutex
	messages  []Message
	loading   bool
	admin     bool
	observers []func(Event)

	// refreshMLOps runs on admin entry so the admin view is not stale by up
	// to a full poll period. refreshAll backs the admin force-refresh action.
	refreshMLOps func(context.Context)
	refreshAll   func(context.Context)
}

// NewController wires a controller to the chat service and the shared
// reconciler. Snapshot merges from any source (including the background
// poller) are re-emitted to this controller's observers.
func NewController(svc Service, rec *state.Reconciler, userID string) *Controller {
	c := &Controller{
		svc:    svc,
		rec:    rec,
		userID: userID,
		logger: slog.Default(),
	}
	rec.OnStats = func(s state.StatsSnapshot) { c.notify(StatsUpdated{Stats: s}) }
	rec.OnMLOps = func(m state.MLOpsSnapshot) { c.notify(MLOpsUpdated{MLOps: m}) }
	return c
}

// Subscribe registers an observer for all subsequent events. Observers are
// invoked synchronously, outside the controller lock, in subscription order.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// SetRefreshHooks wires the out-of-cadence refresh actions. mlops runs when
// admin mode is entered; all backs the explicit force-refresh command.
func (c *Controller) SetRefreshHooks(mlops, all func(context.Context)) {
	c.mu.Lock()
	c.refreshMLOps = mlops
	c.refreshAll = all
	c.mu.Unlock()
}

func (c *Controller) notify(ev Event) {
	c.mu.Lock()
	obs := make([]func(Event), len(c.observers))
	copy(obs, c.observers)
	c.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// Loading reports whether a send is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// History returns a copy of the message sequence in insertion order.
func (c *Controller) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) append(msg Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify(MessageAppended{Message: msg})
}

// Send submits a user message. It returns false, with no side effects, when
// the text is empty after trimming or another send is already in flight
// (single-flight: the loading flag is the sole gate on this path).
//
// On acceptance the user message is appended before any network round trip,
// and the loading flag is released on every exit path.
func (c *Controller) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.notify(LoadingChanged{Loading: false})
	}()

	c.append(Message{Role: RoleUser, Content: text, Timestamp: time.Now()})
	c.notify(LoadingChanged{Loading: true})

	resp, err := c.svc.Chat(ctx, text, c.userID)
	if err != nil {
		c.logger.Warn("chat request failed", "error", err)
		c.append(Message{
			Role:      RoleAssistant,
			Content:   fmt.Sprintf("Request failed: %v", err),
			Timestamp: time.Now(),
			Meta:      &Metadata{IsError: true},
		})
		return true
	}

	admin := c.AdminEnabled()
	meta := &Metadata{
		SearchResults: resp.SearchResults,
		Timing:        resp.Timing,
		Stats:         resp.Stats,
	}
	if admin && resp.MLOpsInfo != nil {
		meta.MLOps = resp.MLOpsInfo
	}
	c.append(Message{Role: RoleAssistant, Content: resp.Response, Timestamp: time.Now(), Meta: meta})

	if resp.Stats != nil {
		// A stats block missing a field decodes to its zero value. Zeros are
		// treated as absent, like the empty model version below, so a partial
		// block never clears a previously known count or average.
		var u state.StatsUpdate
		if resp.Stats.TotalQueries > 0 {
			u.TotalQueries = state.Ptr(resp.Stats.TotalQueries)
		}
		if resp.Stats.AvgGPT != "" {
			u.AvgResponseTime = state.Ptr(resp.Stats.AvgGPT)
		}
		if u.TotalQueries != nil || u.AvgResponseTime != nil {
			c.rec.MergeStats(u)
		}
	}
	if admin && resp.MLOpsInfo != nil {
		c.rec.MergeMLOps(mlopsInfoUpdate(*resp.MLOpsInfo))
	}
	return true
}

// mlopsInfoUpdate converts the chat response's pipeline block into a partial
// snapshot update. An empty model version is treated as absent so it never
// clears a previously known version.
func mlopsInfoUpdate(info rag.MLOpsInfo) state.MLOpsUpdate {
	u := state.MLOpsUpdate{
		TotalCollected: state.Ptr(info.TotalCollected),
		NewDataCount:   state.Ptr(info.NewDataCount),
		PendingCount:   state.Ptr(info.PendingCount),
		TrainingStatus: state.Ptr(state.DeriveTrainingStatus(
			info.TrainingTriggered, false, info.TrainingQueued, info.ShouldTrain)),
	}
	if info.CurrentVersion != "" {
		u.ModelVersion = state.Ptr(info.CurrentVersion)
	}
	return u
}

// AdminEnabled reports the current visibility mode.
func (c *Controller) AdminEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

// ToggleAdmin flips the visibility mode unconditionally and returns the new
// state. Entering admin triggers the immediate ML-pipeline refresh hook;
// leaving only hides the panel: the training snapshot keeps its last known
// values and later fetch results still merge while hidden.
func (c *Controller) ToggleAdmin(ctx context.Context) bool {
	c.mu.Lock()
	c.admin = !c.admin
	admin := c.admin
	hook := c.refreshMLOps
	c.mu.Unlock()

	c.notify(ModeChanged{Admin: admin})
	if admin && hook != nil {
		hook(ctx)
	}
	return admin
}

// TriggerTraining manually starts a fine-tuning pass. Outside admin mode it
// is a silent no-op and reports ok=false.
func (c *Controller) TriggerTraining(ctx context.Context) (rag.FinetuneResult, bool, error) {
	if !c.AdminEnabled() {
		return rag.FinetuneResult{}, false, nil
	}
	res, err := c.svc.StartFinetune(ctx, true, true)
	return res, true, err
}

// ResetTrainingData clears the collected conversations (with backup).
// Outside admin mode it is a silent no-op and reports ok=false.
func (c *Controller) ResetTrainingData(ctx context.Context) (rag.ClearResult, bool, error) {
	if !c.AdminEnabled() {
		return rag.ClearResult{}, false, nil
	}
	res, err := c.svc.ClearConversations(ctx, true)
	return res, true, err
}

// ForceRefresh runs an immediate full status refresh. Outside admin mode it
// is a silent no-op.
func (c *Controller) ForceRefresh(ctx context.Context) bool {
	if !c.AdminEnabled() {
		return false
	}
	c.mu.Lock()
	hook := c.refreshAll
	c.mu.Unlock()
	if hook == nil {
		return false
	}
	hook(ctx)
	return true
}

// Export snapshots the full session as a downloadable document.
func (c *Controller) Export() ExportDocument {
	c.mu.Lock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	admin := c.admin
	c.mu.Unlock()

	return ExportDocument{
		Timestamp:     time.Now(),
		Messages:      msgs,
		TotalMessages: len(msgs),
		AdminMode:     admin,
	}
}
