package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second    // время на запись одного сообщения
	pongWait       = 60 * time.Second    // максимальное время ожидания PONG
	pingPeriod     = (pongWait * 9) / 10 // как часто слать PING
	maxMessageSize = 512                 // максимальный размер входящего сообщения
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client представляет одно WebSocket-соединение агента.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte // исходящие кадры
	AgentID uuid.UUID   // агент, владеющий соединением
	Role    string      // роль агента на момент подключения
}

// NewClient создает нового WebSocket клиента.
func NewClient(hub *Hub, conn *websocket.Conn, agentID uuid.UUID, role string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		AgentID: agentID,
		Role:    role,
	}
}

// SendJSON отправляет JSON-объект клиенту.
func (c *Client) SendJSON(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
	default:
		logrus.Warnf("SendJSON: очередь соединения агента %s переполнена", c.AgentID)
	}
	return nil
}

// SendError отправляет сообщение об ошибке.
func (c *Client) SendError(code, message string) {
	errorMsg, _ := NewErrorMessage(code, message)
	select {
	case c.send <- errorMsg:
	default:
	}
}

// ReadPump читает сообщения из WebSocket, чистит их и вызывает handler.
func (c *Client) ReadPump(messageHandler func(client *Client, message []byte)) {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
		logrus.Infof("ReadPump: соединение агента %s закрыто", c.AgentID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Warnf("ReadPump: обрыв соединения агента %s: %v", c.AgentID, err)
			}
			break
		}

		// Очищаем переносы строк
		raw = bytes.TrimSpace(bytes.Replace(raw, newline, space, -1))
		logrus.Debugf("ReadPump: кадр от агента %s: %s", c.AgentID, string(raw))

		if messageHandler != nil {
			messageHandler(c, raw)
		}
	}
}

// WritePump пишет из канала send в WebSocket и держит соединение живым ping/pong'ом.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// канал закрыт Hub'ом
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// сбрасываем накопленные сообщения
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
