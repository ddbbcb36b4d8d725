package session

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/panellink/message"
	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
)

// pump is the single receive loop. It acks inbound transactions, feeds
// pending receivers, expands multi-message envelopes, and publishes
// unmatched messages as notifications. Recoverable protocol errors are
// logged and skipped; a closed transport ends the loop and closes the
// notification channel.
func (s *Session) pump() {
	defer func() {
		s.receivers.CancelAll(perr.New(perr.Disconnected, "session ended"))
		close(s.notifications)
		close(s.pumpDone)
		s.state.Store(uint32(StateClosed))
	}()

	log := logrus.WithFields(logrus.Fields{
		"function":   "Session.pump",
		"session_id": s.sessionID,
	})

	for {
		pkt, err := s.readPacket()
		if err != nil {
			switch perr.KindOf(err) {
			case perr.Disconnected:
				log.Info("transport closed, pump exiting")
				return
			case perr.FramingError, perr.EncodingError, perr.PacketParseError, perr.EncryptionError:
				if s.ctx.Err() != nil {
					return
				}
				log.WithField("error", err.Error()).Warn("discarding undecodable packet")
				continue
			default:
				log.WithField("error", err.Error()).Error("unrecoverable receive failure, pump exiting")
				return
			}
		}

		s.gate.Reset()
		log.WithField("packet", pkt.String()).Debug("received")

		if !pkt.IsAck() {
			s.remoteSeq.Store(uint32(pkt.SenderSequence))
			if err := s.sendAck(pkt.SenderSequence); err != nil {
				log.WithField("error", err.Error()).Warn("ack write failed, pump exiting")
				return
			}
		}

		if s.receivers.Offer(pkt) {
			continue
		}

		if env, ok := pkt.Message.(*message.MultipleMessagePacket); ok {
			s.expand(env)
			continue
		}

		if pkt.IsAck() {
			log.WithField("packet", pkt.String()).Debug("unmatched ack dropped")
			continue
		}

		s.adoptCommandSeq(pkt.Message)
		if !s.publish(pkt.Message) {
			return
		}
	}
}

// expand processes a MultipleMessagePacket: embedded command messages
// matching a pending receiver complete it and are withheld from the
// notification stream; everything else is published in order.
func (s *Session) expand(env *message.MultipleMessagePacket) {
	matched := 0
	for _, sub := range env.Contents {
		if cm, ok := sub.(wire.CommandMessage); ok && s.receivers.OfferCommand(cm) {
			matched++
			continue
		}
		s.adoptCommandSeq(sub)
		if !s.publish(sub) {
			return
		}
	}
	if matched > 1 {
		logrus.WithFields(logrus.Fields{
			"function":   "Session.expand",
			"session_id": s.sessionID,
			"matched":    matched,
		}).Warn("multiple command responses in one envelope")
	}
}

// adoptCommandSeq keeps the shared command counter in step with
// remote-initiated command transactions.
func (s *Session) adoptCommandSeq(msg wire.Message) {
	if cm, ok := msg.(wire.CommandMessage); ok {
		s.sendMu.Lock()
		s.cmdSeq = cm.CommandSeq()
		s.sendMu.Unlock()
	}
}

// publish hands a message to the notification consumer. Returns false
// when the session was disposed instead.
func (s *Session) publish(msg wire.Message) bool {
	select {
	case s.notifications <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}
