// Package actor implements the mailbox based execution model of the transaction layer.
//
// An [Actor] processes one event at a time from its mailbox; a [Cell] binds the
// actor to a mailbox, an [Executor] and a position in a [PipeLine]. Pipelines
// are ordered from the network side (index 0) towards the application, so
// "downstream" means towards the network and "upstream" towards the
// application. Timers are delivered back into mailboxes by a [Scheduler].
package actor
