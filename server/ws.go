package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/goailoop/ailoop/broadcast"
	"github.com/goailoop/ailoop/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWS upgrades every request on the agent-protocol listener to a
// WebSocket and hands it off to handleConnection.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	go s.handleConnection(conn)
}

// handleConnection registers a viewer of role agent, forwards its outbound
// mailbox to the socket, and reads inbound frames until EOF or close. Each
// parsed frame updates the connection's current channel, subscribes it so
// responses route back, appends to history, broadcasts, and enqueues for
// dispatch. Malformed frames are logged and skipped — the connection is
// never torn down for a bad frame.
//
// r.Context() is not used here: it is cancelled when serveWS returns, which
// happens as soon as this goroutine is spawned, well before the connection
// itself is done.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	outbox := make(chan model.Message, 64)
	connID := s.broadcast.AddViewer(broadcast.ConnectionAgent, outbox)
	channelName := s.defaultChannel
	s.channels.AddConnection(channelName)
	s.broadcast.Subscribe(connID, channelName)

	forwarderDone := make(chan struct{})
	stopForwarder := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case msg := <-outbox:
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-stopForwarder:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg model.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("ws: malformed frame: %v", err)
			continue
		}

		if msg.Channel != "" && msg.Channel != channelName {
			s.channels.RemoveConnection(channelName)
			channelName = msg.Channel
			s.channels.AddConnection(channelName)
		}
		s.broadcast.Subscribe(connID, channelName)

		s.history.Append(msg)
		if msg.IsPrompt() {
			s.broadcast.BroadcastToViewersOnly(msg)
		} else {
			s.broadcast.BroadcastMessage(msg)
		}
		s.channels.Enqueue(channelName, msg)
	}

	close(stopForwarder)
	<-forwarderDone
	s.broadcast.RemoveViewer(connID)
	s.channels.RemoveConnection(channelName)
}
