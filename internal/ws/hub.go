package ws

import "sync"

// Subscriber abstracts a streaming client. Send runs on the hub loop and
// must not wait on the network; a Send error drops the subscriber.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans ingestion status messages out to the subscribers of each user.
type Hub struct {
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopOnce  sync.Once
}

type message struct {
	userID  string
	payload []byte
}

type subscription struct {
	userID string
	client Subscriber
}

type countRequest struct {
	userID string
	reply  chan int
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	clients := make(map[string]map[Subscriber]struct{})
	for {
		select {
		case <-h.done:
			for _, subs := range clients {
				for c := range subs {
					c.Close()
				}
			}
			return
		case sub := <-h.register:
			if _, ok := clients[sub.userID]; !ok {
				clients[sub.userID] = make(map[Subscriber]struct{})
			}
			clients[sub.userID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if subs, ok := clients[sub.userID]; ok {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(clients, sub.userID)
				}
			}
		case msg := <-h.broadcast:
			subs, ok := clients[msg.userID]
			if !ok {
				continue
			}
			for c := range subs {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					delete(subs, c)
				}
			}
			if len(subs) == 0 {
				delete(clients, msg.userID)
			}
		case req := <-h.count:
			req.reply <- len(clients[req.userID])
		}
	}
}

// Register adds a client to a user's stream.
func (h *Hub) Register(userID string, client Subscriber) {
	select {
	case h.register <- subscription{userID: userID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(userID string, client Subscriber) {
	select {
	case h.unreg <- subscription{userID: userID, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to every client of userID. It is a no-op once the hub is stopped.
func (h *Hub) Broadcast(userID string, payload []byte) {
	select {
	case h.broadcast <- message{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients are registered for userID.
func (h *Hub) Subscribers(userID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Stop closes every client and ends the dispatch loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
