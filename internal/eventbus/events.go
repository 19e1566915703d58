package eventbus

import "time"

const (
	TypeMessageDispatched = "message.dispatched"
	TypeBroadcastFinished = "broadcast.finished"
	TypeSenderBanned      = "sender.banned"
	TypeConfigReloaded    = "config.reloaded"
	TypeJobFinished       = "job.finished"
)

// MessageDispatched is published once per inbound message.
type MessageDispatched struct {
	Sender  string
	Outcome string
	Rule    string
	Took    time.Duration
}

// BroadcastFinished is published after every broadcast run.
type BroadcastFinished struct {
	OperatorID string
	Attempted  int
	Succeeded  int
	Failed     int
	Took       time.Duration
}

// SenderBanned is published when the limiter bans a sender.
type SenderBanned struct {
	Sender string
	For    time.Duration
}

// JobFinished is published after each scheduled job run. Err is empty on
// success.
type JobFinished struct {
	Name string
	Took time.Duration
	Err  string
}
