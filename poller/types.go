package poller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/awfulava/boardirc/fourchan"
)

// Source is the content source capability the poller reads from. It is
// implemented by *fourchan.Client.
type Source interface {
	BoardIndex(ctx context.Context, board string) ([]fourchan.ThreadStub, error)
	Thread(ctx context.Context, board string, thread int64) ([]fourchan.Post, error)
}

// Target identifies a watch: a whole board when Thread is zero, otherwise a
// single thread of that board.
type Target struct {
	Board  string
	Thread int64
}

// IsThread reports whether the target is a single thread.
func (t Target) IsThread() bool {
	return t.Thread != 0
}

func (t Target) String() string {
	if t.IsThread() {
		return fmt.Sprintf("/%s/%d", t.Board, t.Thread)
	}
	return fmt.Sprintf("/%s/", t.Board)
}

// Action is the kind of watch request.
type Action int

const (
	// LoadAndFollow back-fills the target once for the requester and then
	// keeps watching it.
	LoadAndFollow Action = iota + 1

	// Stop drops the watch and its snapshot.
	Stop
)

func (a Action) String() string {
	switch a {
	case LoadAndFollow:
		return "LoadAndFollow"
	case Stop:
		return "Stop"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Delivery routes an event to one session in one channel instead of every
// watcher.
type Delivery struct {
	Session uuid.UUID
	Channel string
}

// Request is a watch registration sent from the connection domain.
type Request struct {
	Action Action
	Target Target

	// Delivery receives the back-fill of a LoadAndFollow request.
	Delivery *Delivery
}

// Kind is the change event variant.
type Kind int

const (
	NewThread Kind = iota + 1
	UpdatedThread
	NewPost

	// ThreadGone reports that a followed thread no longer exists upstream.
	// Its watch has been dropped.
	ThreadGone
)

func (k Kind) String() string {
	switch k {
	case NewThread:
		return "new_thread"
	case UpdatedThread:
		return "updated_thread"
	case NewPost:
		return "new_post"
	case ThreadGone:
		return "thread_gone"
	}
	return fmt.Sprintf("kind_%d", int(k))
}

// Event is a detected change. Events without a Delivery are meant for every
// watcher of Target.
type Event struct {
	Kind     Kind
	Target   Target
	Post     fourchan.Post
	Delivery *Delivery
}

// update is a message on the internal queue between the request loop and the
// update loop: either a forwarded request or a seed of already delivered
// content.
type update struct {
	request *Request
	seed    *seed
}

// seed carries the snapshot taken by a bulk load so the update loop does not
// announce that content again.
type seed struct {
	target  Target
	threads map[int64]int64
	posts   []int64
}
