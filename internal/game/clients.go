package game

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"TaskForce/internal/core"
	"TaskForce/internal/logging"
)

type OutKind int

const (
	OutBatch OutKind = iota // Data holds an encoded vars batch
	OutChat                 // Chat holds a message
)

// Outbound is one message queued for a client.
type Outbound struct {
	Kind OutKind
	Data []byte
	Seq  uint64
	Chat *ChatMessage
}

// ChatMessage is a side or global notification.
type ChatMessage struct {
	Faction core.Faction `json:"faction"`
	Text    string       `json:"text"`
	Global  bool         `json:"global"`
	Tick    uint64       `json:"tick"`
}

// Client is an attached replication consumer. Out is closed when the client
// is detached or dropped for falling behind.
type Client struct {
	ID       string
	Name     string
	Faction  core.Faction
	PlayerID string
	Out      chan Outbound
}

func NewClient(name string, faction core.Faction, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:      uuid.NewString(),
		Name:    name,
		Faction: faction,
		Out:     make(chan Outbound, buffer),
	}
}

// receives reports whether a message for faction should reach c.
func (c *Client) receives(msg ChatMessage) bool {
	if msg.Global || msg.Faction == core.FactionAny || c.Faction == core.FactionAny {
		return true
	}
	return c.Faction == msg.Faction
}

type clientSet struct {
	mu      sync.Mutex
	clients map[string]*Client
	log     *logging.Logger
}

func newClientSet(log *logging.Logger) *clientSet {
	return &clientSet{clients: make(map[string]*Client), log: log}
}

func (cs *clientSet) add(c *Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.clients[c.ID] = c
}

// remove detaches and closes c. It reports whether c was attached.
func (cs *clientSet) remove(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.removeLocked(id)
}

func (cs *clientSet) removeLocked(id string) bool {
	c, ok := cs.clients[id]
	if !ok {
		return false
	}
	delete(cs.clients, id)
	close(c.Out)
	return true
}

func (cs *clientSet) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.clients)
}

func (cs *clientSet) ids() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, 0, len(cs.clients))
	for id := range cs.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// send delivers out to every client accepted by filter. A client whose
// buffer is full is dropped. It returns the ids of dropped clients.
func (cs *clientSet) send(out Outbound, filter func(*Client) bool) []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var dropped []string
	for id, c := range cs.clients {
		if filter != nil && !filter(c) {
			continue
		}
		select {
		case c.Out <- out:
		default:
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		cs.log.Warn("slow client dropped", "client", id)
		cs.removeLocked(id)
	}
	return dropped
}

func (cs *clientSet) broadcast(out Outbound) []string { return cs.send(out, nil) }

// Chat implements ChatSink.
func (cs *clientSet) Chat(msg ChatMessage) {
	m := msg
	cs.send(Outbound{Kind: OutChat, Chat: &m}, func(c *Client) bool { return c.receives(m) })
}

func (cs *clientSet) closeAll() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for id := range cs.clients {
		cs.removeLocked(id)
	}
}
