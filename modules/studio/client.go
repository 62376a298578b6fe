package studio

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"nanogen-server/modules/submission"
)

const writeWait = 10 * time.Second

// Client - 연결된 웹소켓 클라이언트
type Client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// readPump - 클라이언트 이벤트를 세션에 적용
func (c *Client) readPump(m *Manager, e *entry, session *submission.Session) {
	defer func() {
		e.removeClient(c.sessionID, c.id, m.now())
		c.conn.Close()
	}()

	for {
		var message InboundMessage
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		e.touch(m.now())

		event, err := message.ToEvent()
		if err != nil {
			c.reply(e, OutboundMessage{Type: MessageError, SessionID: c.sessionID, Message: err.Error()})
			continue
		}

		if event == nil {
			snap := session.Snapshot()
			c.reply(e, OutboundMessage{Type: MessageState, SessionID: c.sessionID, State: &snap})
			continue
		}

		// 상태 변경은 OnChange 브로드캐스트로 전달됨. 거부된 이벤트만 본인에게 알림
		if snap, accepted := session.Dispatch(context.Background(), event); !accepted {
			c.reply(e, OutboundMessage{Type: MessageState, SessionID: c.sessionID, State: &snap, Accepted: &accepted})
		}
	}
}

// reply - 이 클라이언트에게만 전송
func (c *Client) reply(e *entry, msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	e.sendTo(c.id, data)
}

// writePump - 큐에 쌓인 메시지를 소켓으로 전송
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
