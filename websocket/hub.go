package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hub раздаёт уведомления подключённым агентам. Агент может держать
// несколько соединений; для отключённых адресатов кадры копятся в
// ограниченном буфере и доставляются при переподключении.
type Hub struct {
	// Живые соединения по агентам
	clients map[uuid.UUID]map[*Client]bool

	// Недоставленные кадры отключённых агентов
	pending   map[uuid.UUID]*backlog
	queueSize int

	// Регистрация клиента
	Register chan *Client

	// Отмена регистрации клиента
	Unregister chan *Client

	// Адресные доставки
	deliver chan delivery
}

type delivery struct {
	targets []uuid.UUID
	data    []byte
}

// NewHub создает новый Hub. queueSize — ёмкость буфера недоставленных
// кадров на одного агента.
func NewHub(queueSize int) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		pending:    make(map[uuid.UUID]*backlog),
		queueSize:  queueSize,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		deliver:    make(chan delivery, 64),
	}
}

// Run запускает цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			conns := h.clients[client.AgentID]
			if conns == nil {
				conns = make(map[*Client]bool)
				h.clients[client.AgentID] = conns
			}
			conns[client] = true
			logrus.Infof("Hub: агент %s подключился, соединений: %d", client.AgentID, len(conns))
			h.flushPending(client)

		case client := <-h.Unregister:
			if conns, ok := h.clients[client.AgentID]; ok && conns[client] {
				delete(conns, client)
				close(client.send)
				if len(conns) == 0 {
					delete(h.clients, client.AgentID)
				}
				logrus.Infof("Hub: агент %s отключился", client.AgentID)
			}

		case d := <-h.deliver:
			for _, target := range d.targets {
				h.deliverTo(target, d.data)
			}
		}
	}
}

// SendToUsers шлёт полезную нагрузку набору агентов. Вызывается из
// HTTP-обработчиков; сама доставка происходит в цикле хаба.
func (h *Hub) SendToUsers(targets []uuid.UUID, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("SendToUsers: сериализация уведомления")
		return
	}
	h.SendFrameToUsers(targets, data)
}

// SendFrameToUsers шлёт уже сериализованный кадр набору агентов.
func (h *Hub) SendFrameToUsers(targets []uuid.UUID, frame []byte) {
	if len(targets) == 0 {
		return
	}
	h.deliver <- delivery{targets: targets, data: frame}
}

// deliverTo отдаёт кадр живым соединениям агента либо кладёт его в буфер.
// Доставка best-effort: переполненный буфер теряет старейшие кадры.
func (h *Hub) deliverTo(agentID uuid.UUID, data []byte) {
	conns := h.clients[agentID]
	if len(conns) == 0 {
		b := h.pending[agentID]
		if b == nil {
			b = newBacklog(h.queueSize)
			h.pending[agentID] = b
		}
		b.push(data)
		return
	}
	for client := range conns {
		select {
		case client.send <- data:
		default:
			// соединение не успевает читать: закрываем, агент переподключится
			close(client.send)
			delete(conns, client)
		}
	}
}

// flushPending доставляет накопленное при переподключении агента.
func (h *Hub) flushPending(client *Client) {
	b := h.pending[client.AgentID]
	if b == nil || b.len() == 0 {
		return
	}
	frames := b.drain()
	delete(h.pending, client.AgentID)
	for _, frame := range frames {
		select {
		case client.send <- frame:
		default:
			logrus.Warnf("Hub: очередь соединения агента %s переполнена, часть буфера потеряна", client.AgentID)
			return
		}
	}
	logrus.Infof("Hub: агенту %s доставлено из буфера кадров: %d", client.AgentID, len(frames))
}
