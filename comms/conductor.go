package comms

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/elevarm/goelevarm/onboard"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// ArmCommander is the slice of the coordinator the conductor drives.
type ArmCommander interface {
	MoveToNamed(name string) *onboard.Move
	Hold()
}

// Client is one connected dashboard. Frames that cannot be queued are
// dropped; a slow consumer never stalls the control loop.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Conductor fans telemetry out to every connected dashboard and feeds
// their commands back into the arm. It is the TelemetrySink the control
// loop publishes into.
type Conductor struct {
	Arm ArmCommander

	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]bool
}

func NewConductor(arm ArmCommander, log *zap.SugaredLogger) *Conductor {
	return &Conductor{
		Arm: arm,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]bool),
	}
}

// ServeHTTP upgrades the request and runs the client until it hangs up.
// The conductor mounts directly on the router as the telemetry endpoint.
func (c *Conductor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 16),
	}

	c.mu.Lock()
	c.clients[client] = true
	c.mu.Unlock()

	c.log.Infow("dashboard connected", "remote", r.RemoteAddr)

	go c.writePump(client)
	c.readPump(client)
}

// PublishTelemetry broadcasts one frame to every connected client.
func (c *Conductor) PublishTelemetry(t onboard.Telemetry) {
	payload := StatePayload{
		Telemetry: t,
		Timestamp: time.Now().UnixMilli(),
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorw("unable to marshal telemetry", "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for client := range c.clients {
		select {
		case client.send <- msg:
		default:
			// client is not keeping up, skip this frame for it
		}
	}
}

// ProcessCommand dispatches one inbound operator command.
func (c *Conductor) ProcessCommand(cmd Cmd) {
	switch cmd.Cmd {
	case "move":
		c.Arm.MoveToNamed(cmd.Name)

	case "allstop":
		c.Arm.Hold()

	default:
		c.log.Warnw("unable to process command", "cmd", cmd.Cmd)
	}
}

func (c *Conductor) readPump(client *Client) {
	defer c.dropClient(client)

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnw("dashboard read failed", "err", err)
			}
			return
		}

		var cmd Cmd
		if err = json.Unmarshal(msg, &cmd); err != nil {
			c.log.Warnw("invalid command json", "err", err)
			continue
		}

		c.ProcessCommand(cmd)
	}
}

func (c *Conductor) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conductor) dropClient(client *Client) {
	c.mu.Lock()
	if _, ok := c.clients[client]; ok {
		delete(c.clients, client)
		close(client.send)
	}
	c.mu.Unlock()

	client.conn.Close()
}
