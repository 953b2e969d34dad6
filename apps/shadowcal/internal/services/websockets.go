package services

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xdoubleu/essentia/v2/pkg/communication/wstools"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/dtos"
)

// WebSocketService publishes the running state of every background job on a
// topic named after the job id.
type WebSocketService struct {
	allowedOrigins []string
	handler        *wstools.WebSocketHandler[dtos.SubscribeMessageDto]

	mu     sync.RWMutex
	topics map[string]*wstools.Topic
	states map[string]dtos.StateMessageDto
}

func NewWebSocketService(
	logger *slog.Logger,
	allowedOrigins []string,
) *WebSocketService {
	handler := wstools.CreateWebSocketHandler[dtos.SubscribeMessageDto](
		logger,
		1,
		100, //nolint:mnd //no magic number
	)

	return &WebSocketService{
		allowedOrigins: allowedOrigins,
		handler:        &handler,
		mu:             sync.RWMutex{},
		topics:         make(map[string]*wstools.Topic),
		states:         make(map[string]dtos.StateMessageDto),
	}
}

func (service *WebSocketService) Handler() http.HandlerFunc {
	return service.handler.Handler()
}

func (service *WebSocketService) UpdateState(
	id string,
	isRunning bool,
	lastRunTime *time.Time,
) {
	state := dtos.StateMessageDto{
		IsRefreshing: isRunning,
		LastRefresh:  lastRunTime,
	}

	service.mu.Lock()
	service.states[id] = state
	topic, ok := service.topics[id]
	service.mu.Unlock()

	if !ok {
		return
	}

	topic.EnqueueEvent(state)
}

func (service *WebSocketService) RegisterTopics(topics []string) {
	for _, topic := range topics {
		registeredTopic, err := service.handler.AddTopic(
			topic,
			service.allowedOrigins,
			func(_ context.Context, tp *wstools.Topic) (any, error) {
				return service.State(tp.Name), nil
			},
		)
		if err != nil {
			panic(err)
		}

		service.mu.Lock()
		service.topics[topic] = registeredTopic
		service.mu.Unlock()
	}
}

func (service *WebSocketService) State(id string) dtos.StateMessageDto {
	service.mu.RLock()
	defer service.mu.RUnlock()

	return service.states[id]
}
