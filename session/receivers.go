package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/panellink/itv2"
	"github.com/opd-ai/panellink/wire"
	"github.com/sirupsen/logrus"
)

// receiverResult is what an awaiting sender observes: the completing
// message (nil for a plain acknowledgement) or a failure.
type receiverResult struct {
	msg wire.Message
	err error
}

// pendingReceiver correlates one outstanding send with the inbound stream.
// A notification receiver (command == false) completes on the SimpleAck
// for its sender sequence. A command receiver records that ack without
// completing, and completes on any command message carrying its command
// sequence.
type pendingReceiver struct {
	id         uuid.UUID
	senderSeq  byte
	command    bool
	commandSeq byte
	acked      bool
	done       chan receiverResult
}

// receiverList is the session's ordered set of pending receivers.
// Insertion order is offer order; the first acceptor wins.
type receiverList struct {
	mu   sync.Mutex
	list []*pendingReceiver
}

func newReceiverList() *receiverList {
	return &receiverList{}
}

// AddNotification registers a receiver completing on the SimpleAck for
// senderSeq.
func (r *receiverList) AddNotification(senderSeq byte) *pendingReceiver {
	return r.add(&pendingReceiver{
		id:        uuid.New(),
		senderSeq: senderSeq,
		done:      make(chan receiverResult, 1),
	})
}

// AddCommand registers a receiver completing on the command message for
// commandSeq.
func (r *receiverList) AddCommand(senderSeq, commandSeq byte) *pendingReceiver {
	return r.add(&pendingReceiver{
		id:         uuid.New(),
		senderSeq:  senderSeq,
		command:    true,
		commandSeq: commandSeq,
		done:       make(chan receiverResult, 1),
	})
}

func (r *receiverList) add(p *pendingReceiver) *pendingReceiver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, p)
	return p
}

// Offer presents an inbound packet to the receivers in insertion order
// and reports whether one accepted it.
func (r *receiverList) Offer(pkt *itv2.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.list {
		if !p.command {
			if pkt.IsAck() && pkt.ReceiverSequence == p.senderSeq {
				p.done <- receiverResult{}
				r.removeAt(i)
				return true
			}
			continue
		}
		if pkt.IsAck() {
			if pkt.ReceiverSequence == p.senderSeq && !p.acked {
				p.acked = true
				return true
			}
			continue
		}
		if cm, ok := pkt.Message.(wire.CommandMessage); ok && cm.CommandSeq() == p.commandSeq {
			p.done <- receiverResult{msg: pkt.Message}
			r.removeAt(i)
			return true
		}
	}
	return false
}

// OfferCommand routes a bare command message (a MultipleMessagePacket
// sub-message) to a matching command receiver.
func (r *receiverList) OfferCommand(msg wire.CommandMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.list {
		if p.command && msg.CommandSeq() == p.commandSeq {
			p.done <- receiverResult{msg: msg}
			r.removeAt(i)
			return true
		}
	}
	return false
}

// Remove drops a receiver whose awaiting caller gave up.
func (r *receiverList) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.list {
		if p.id == id {
			r.removeAt(i)
			return
		}
	}
}

// CancelAll completes every pending receiver with err and empties the
// list.
func (r *receiverList) CancelAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.list {
		p.done <- receiverResult{err: err}
	}
	if n := len(r.list); n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "receiverList.CancelAll",
			"count":    n,
		}).Debug("cancelled pending receivers")
	}
	r.list = nil
}

func (r *receiverList) removeAt(i int) {
	r.list = append(r.list[:i], r.list[i+1:]...)
}
