package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"pocketmoney/internal/domain/banking"
)

const (
	channelName       = "bank_connection_created"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
	initialSyncBudget = 5 * time.Minute
)

var errMissingID = errors.New("notification payload has no connection id")

// ConnectionNotification is the payload of the bank_connection_created trigger.
type ConnectionNotification struct {
	ID    string `json:"id"`
	KidID string `json:"kid_id"`
}

// Syncer runs a sync for a selection. Implemented by banking.SyncService.
type Syncer interface {
	Sync(ctx context.Context, sel banking.Selection) (*banking.SyncResult, error)
}

// ConnectionListener runs the first sync for a newly linked bank as soon as
// its row is inserted, so the child sees transactions without waiting for
// the next scheduled run.
type ConnectionListener struct {
	connStr    string
	syncer     Syncer
	shutdownCh chan struct{}
	done       chan struct{}
	inflight   sync.WaitGroup
}

func NewConnectionListener(connStr string, syncer Syncer) *ConnectionListener {
	return &ConnectionListener{
		connStr:    connStr,
		syncer:     syncer,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *ConnectionListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Bank connection listener started")
}

// Stop shuts the listener down and waits for in-flight initial syncs.
func (l *ConnectionListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.inflight.Wait()
	log.Println("Bank connection listener stopped")
}

func (l *ConnectionListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for notifications...")
		}
	}
}

func (l *ConnectionListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Printf("Disconnected from PostgreSQL notification channel: %v", err)
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}

	log.Printf("Listening on channel: %s", channelName)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handleNotification(n)
		case <-time.After(pingInterval):
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *ConnectionListener) handleNotification(n *pq.Notification) {
	payload, err := parseNotification(n.Extra)
	if err != nil {
		log.Printf("Failed to parse %s payload: %v", n.Channel, err)
		return
	}

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.initialSync(payload)
	}()
}

// initialSync detaches from the listener context so shutdown does not cut a
// running sync short; it is bounded by its own timeout instead.
func (l *ConnectionListener) initialSync(payload ConnectionNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), initialSyncBudget)
	defer cancel()

	result, err := l.syncer.Sync(ctx, banking.SelectConnection{ConnectionID: payload.ID})
	if err != nil {
		log.Printf("Initial sync for connection %s failed: %v", payload.ID, err)
		return
	}
	log.Printf("Initial sync for connection %s (kid %s): %d transaction(s)", payload.ID, payload.KidID, result.TotalSynced)
}

func parseNotification(extra string) (ConnectionNotification, error) {
	var payload ConnectionNotification
	if err := json.Unmarshal([]byte(extra), &payload); err != nil {
		return payload, err
	}
	if payload.ID == "" {
		return payload, errMissingID
	}
	return payload, nil
}
