// Package queue also contains the background consumer that listens to
// the seat.released queue and notifies waitlisted demand.  This is the
// one deliberately lossy path in the system: a notification that fails
// is logged and skipped, never retried at the cost of blocking others.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tickethub/seat-inventory/internal/repository"
)

// waitlistBatch bounds how many pending entries a single release event
// can notify.
const waitlistBatch = 100

// StartWaitlistConsumer connects to RabbitMQ, declares the seat.released
// queue (durable), and starts consuming messages.  Each message wakes
// the waitlist for the affected event.  The function runs a reconnect
// loop; it keeps running and logs any processing errors while rejecting
// the offending message so the server continues operating.
func StartWaitlistConsumer(waitlist *repository.WaitlistRepo) error {
	url := brokerURL()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("waitlist-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, waitlist); err != nil {
			log.Printf("waitlist-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection, waitlist *repository.WaitlistRepo) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("waitlist-consumer: set QoS failed: %v", err)
	}

	_, err = ch.QueueDeclare(SeatReleasedQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(SeatReleasedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleSeatsReleased(d.Body, waitlist); err != nil {
			log.Printf("waitlist-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// handleSeatsReleased notifies pending waitlist entries for the event
// named in the message.  Each entry is handled independently: a failure
// to notify one entry is logged and does not block the others.
func handleSeatsReleased(body []byte, waitlist *repository.WaitlistRepo) error {
	var ev SeatsReleasedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ev.Reason == ReleaseExpired && ev.HolderID != "" {
		// Best-effort heads-up to the holder whose lock the sweep reclaimed.
		log.Printf("waitlist-consumer: lock expired for holder=%s event=%s seats=%v", ev.HolderID, ev.EventID, ev.SeatIDs)
	}

	entries, err := waitlist.PendingByEvent(ctx, ev.EventID, waitlistBatch)
	if err != nil {
		return fmt.Errorf("load waitlist: %w", err)
	}
	for _, entry := range entries {
		// Notification delivery is a log line here; a real channel (mail,
		// push) would hang off this loop with the same per-entry isolation.
		log.Printf("waitlist-consumer: notifying contact=%s event=%s seats_available=%d", entry.Contact, ev.EventID, len(ev.SeatIDs))
		if err := waitlist.MarkNotified(ctx, entry.ID, time.Now().UTC()); err != nil {
			log.Printf("waitlist-consumer: mark notified failed for entry %d: %v", entry.ID, err)
			continue
		}
	}
	return nil
}
