package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Watcher is a websocket connection subscribed to a room's status feed. A
// watcher is not a member: it receives the same status/member snapshots a
// polling client would fetch, pushed on every change, and closing it has no
// effect on membership.
type Watcher struct {
	ws    *websocket.Conn
	dataQ chan []byte
	room  *Room
}

func newWatcher(ws *websocket.Conn, r *Room) *Watcher {
	return &Watcher{
		ws:    ws,
		dataQ: make(chan []byte, 16),
		room:  r,
	}
}

// Watch registers a websocket connection on the room and immediately queues
// the current snapshot. It reports false if the room is already dissolved, in
// which case the connection is left untouched.
func (r *Room) Watch(ws *websocket.Conn) bool {
	r.mut.Lock()
	if r.status == StatusDissolved {
		r.mut.Unlock()
		return false
	}
	w := newWatcher(ws, r)
	r.watchers[w] = true
	w.send(r.snapshotPayload())
	r.mut.Unlock()

	go w.runWriter()
	go w.runListener()
	return true
}

// removeWatcher detaches a watcher whose connection has dropped. Watchers
// already detached by a dissolve are ignored.
func (r *Room) removeWatcher(w *Watcher) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.watchers[w] {
		delete(r.watchers, w)
		w.close()
	}
}

// runListener drains the connection until the client drops it. Inbound
// messages carry no meaning on this feed. This should be invoked as a
// goroutine.
func (w *Watcher) runListener() {
	for {
		if _, _, err := w.ws.ReadMessage(); err != nil {
			break
		}
	}
	w.ws.Close()
	w.room.removeWatcher(w)
}

// runWriter pumps queued snapshots to the connection until the queue is
// closed or a write fails. This should be invoked as a goroutine.
func (w *Watcher) runWriter() {
	defer w.ws.Close()
	for b := range w.dataQ {
		w.ws.SetWriteDeadline(time.Now().Add(w.room.hub.cfg.WSTimeout))
		if err := w.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}

	// Queue closed: the room was dissolved or the watcher detached.
	w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room dissolved"),
		time.Now().Add(w.room.hub.cfg.WSTimeout))
}

// send queues a payload without ever blocking the room's critical section.
// When the queue is full the oldest snapshot is dropped so the latest always
// wins; every payload is a full snapshot, so a slow watcher only loses
// staleness, never the final state.
func (w *Watcher) send(b []byte) {
	select {
	case w.dataQ <- b:
		return
	default:
	}

	// Queue full: make room by dropping the oldest entry. The room lock
	// serializes senders, so the slot stays free for the enqueue below.
	select {
	case <-w.dataQ:
	default:
	}
	select {
	case w.dataQ <- b:
	default:
	}
}

func (w *Watcher) close() {
	close(w.dataQ)
}
