package session

import "github.com/kalambet/ragchat/internal/state"

// Event is a state-change notification emitted by the Controller. The core
// never touches a rendering surface directly; observers (the TUI, tests)
// subscribe and react.
type Event interface {
	event()
}

// MessageAppended fires after a message is added to the history.
type MessageAppended struct {
	Message Message
}

// LoadingChanged fires when the single-flight send gate opens or closes.
type LoadingChanged struct {
	Loading bool
}

// ModeChanged fires when the admin visibility mode flips.
type ModeChanged struct {
	Admin bool
}

// StatsUpdated fires after any source merges into the stats snapshot.
type StatsUpdated struct {
	Stats state.StatsSnapshot
}

// MLOpsUpdated fires after any source merges into the training snapshot.
type MLOpsUpdated struct {
	MLOps state.MLOpsSnapshot
}

func (MessageAppended) event() {}
func (LoadingChanged) event()  {}
func (ModeChanged) event()     {}
func (StatsUpdated) event()    {}
func (MLOpsUpdated) event()    {}
