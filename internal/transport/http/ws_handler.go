package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler runs a member's attempt over a websocket: it starts or resumes
// the attempt, streams the remaining time and accepts the submission.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	tick     time.Duration
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tick: time.Second,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type timePayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(op string, err error) outboundMessage[any] {
	status, payload := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("ws %s: %v", op, err)
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the attempt use cases.
//
// Client messages: "start", "submit" {answers, timedOut}, "time".
// Server messages: "started", "time", "expired", "submitted", "error".
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	memberID := r.URL.Query().Get("memberId")
	if memberID == "" {
		memberID = r.Header.Get(ActorHeader)
	}
	if quizID == "" || memberID == "" {
		http.Error(w, "missing quizId or memberId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	deadlines := make(chan time.Time, 1)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	clockDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// keep draining so senders never block on a dead connection
				failed = true
				conn.Close()
			}
		}
	}()

	// countdown; a zero deadline stops it
	go func() {
		defer close(clockDone)
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		var deadline time.Time
		for {
			select {
			case d := <-deadlines:
				deadline = d
			case <-ticker.C:
				if deadline.IsZero() {
					continue
				}
				msg := outboundMessage[any]{Type: "time", Payload: timePayload{RemainingSeconds: secondsUntil(deadline)}}
				if !time.Now().Before(deadline) {
					msg.Type = "expired"
					deadline = time.Time{}
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	setDeadline := func(d time.Time) {
		select {
		case <-deadlines:
		default:
		}
		deadlines <- d
	}

	var deadline time.Time
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			res, err := h.service.StartAttempt(r.Context(), quizID, memberID)
			if err != nil {
				send <- errorMessage("start", err)
				continue
			}
			deadline = time.Now().Add(time.Duration(res.RemainingSeconds) * time.Second)
			setDeadline(deadline)
			send <- outboundMessage[any]{Type: "started", Payload: res}
		case "time":
			if deadline.IsZero() {
				send <- errorMessage("time", domain.Declined(domain.ReasonNoAttempt, "no attempt started on this connection"))
				continue
			}
			send <- outboundMessage[any]{Type: "time", Payload: timePayload{RemainingSeconds: secondsUntil(deadline)}}
		case "submit":
			var req submitRequest
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &req); err != nil {
					send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}}
					continue
				}
			}
			res, err := h.service.SubmitAttempt(r.Context(), quizID, memberID, req.Answers, req.TimedOut)
			if err != nil {
				send <- errorMessage("submit", err)
				continue
			}
			deadline = time.Time{}
			setDeadline(deadline)
			send <- outboundMessage[any]{Type: "submitted", Payload: res}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-clockDone
	close(send)
	<-writerDone
}

func secondsUntil(deadline time.Time) int {
	remaining := int(time.Until(deadline) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}
