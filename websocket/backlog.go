package websocket

// backlog — ограниченная очередь недоставленных кадров одного агента.
// При переполнении вытесняются самые старые кадры.
type backlog struct {
	frames [][]byte
	max    int
}

func newBacklog(max int) *backlog {
	return &backlog{max: max}
}

// push добавляет кадр, вытесняя старейшие при переполнении.
func (b *backlog) push(frame []byte) {
	if b.max <= 0 {
		return
	}
	if len(b.frames) >= b.max {
		drop := len(b.frames) - b.max + 1
		b.frames = append(b.frames[:0], b.frames[drop:]...)
	}
	b.frames = append(b.frames, frame)
}

// drain возвращает накопленные кадры в порядке поступления и очищает очередь.
func (b *backlog) drain() [][]byte {
	frames := b.frames
	b.frames = nil
	return frames
}

func (b *backlog) len() int {
	return len(b.frames)
}
