package smartapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"smart_copy/internal/models"

	"github.com/gorilla/websocket"
)

const (
	streamURL = "wss://tns.angelone.in/smart-order-update"

	streamPingInterval = 10 * time.Second
	streamReadTimeout  = 30 * time.Second

	streamRedialAttempts  = 5
	streamRedialBaseDelay = 2 * time.Second
	streamRedialMaxDelay  = 30 * time.Second
)

// OrderUpdate - событие из order-status фида SmartAPI
type OrderUpdate struct {
	UserID      string       `json:"user-id"`
	StatusCode  string       `json:"status-code"`
	OrderStatus string       `json:"order-status"`
	ErrorMsg    string       `json:"error-message"`
	OrderData   models.Order `json:"orderData"`
}

// UpdateHandler вызывается на каждое событие фида
type UpdateHandler func(update OrderUpdate)

// Stream - WebSocket подписка на order-status фид мастер-аккаунта.
// Дает мгновенный сигнал "в книге что-то изменилось"; источником правды
// остается orderBook, который монитор перечитывает по этому сигналу.
// Обрыв соединения передергивается с capped backoff; когда redial
// исчерпан, stream гаснет, а polling продолжает работать сам.
type Stream struct {
	accountName string
	jwtToken    string
	url         string
	logger      *slog.Logger

	handler UpdateHandler

	redialAttempts  int
	redialBaseDelay time.Duration
	redialMaxDelay  time.Duration

	conn   *websocket.Conn
	done   chan struct{}
	mu     sync.Mutex
	active bool
}

// NewStream создает stream для аккаунта с активной сессией
func NewStream(client *Client) (*Stream, error) {
	token, err := client.authToken()
	if err != nil {
		return nil, err
	}

	return &Stream{
		accountName:     client.Name(),
		jwtToken:        token,
		url:             streamURL,
		logger:          client.logger,
		redialAttempts:  streamRedialAttempts,
		redialBaseDelay: streamRedialBaseDelay,
		redialMaxDelay:  streamRedialMaxDelay,
		done:            make(chan struct{}),
	}, nil
}

// SetHandler устанавливает обработчик событий (до Connect)
func (s *Stream) SetHandler(handler UpdateHandler) {
	s.handler = handler
}

// Connect подключается к фиду и запускает read/ping циклы
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("already connected")
	}

	s.logger.Info("Connecting to order stream", slog.String("account", s.accountName))

	conn, err := s.dialConn()
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	s.conn = conn
	s.active = true
	s.done = make(chan struct{})

	go s.readMessages()
	go s.sendPings()

	return nil
}

// Disconnect закрывает соединение и останавливает циклы
func (s *Stream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	s.active = false
	close(s.done)

	if s.conn != nil {
		s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.conn.Close()
		s.conn = nil
	}

	s.logger.Info("Order stream disconnected", slog.String("account", s.accountName))

	return nil
}

// IsActive сообщает, подключен ли stream
func (s *Stream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// dialConn открывает новое соединение с фидом
func (s *Stream) dialConn() (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.jwtToken)

	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)

	return conn, err
}

// currentConn возвращает активное соединение под mutex'ом
func (s *Stream) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn
}

// redial передергивает соединение с capped backoff.
// Ошибка после исчерпания попыток означает, что stream больше не живет.
func (s *Stream) redial() error {
	for attempt := 1; attempt <= s.redialAttempts; attempt++ {
		delay := s.redialBaseDelay << (attempt - 1)
		if delay > s.redialMaxDelay || delay <= 0 {
			delay = s.redialMaxDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-s.done:
			timer.Stop()
			return fmt.Errorf("stream closed during redial")
		case <-timer.C:
		}

		conn, err := s.dialConn()
		if err != nil {
			s.logger.Warn("⚠️  Order stream redial failed",
				slog.String("account", s.accountName),
				slog.Int("attempt", attempt),
				slog.Any("error", err))

			continue
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		s.logger.Info("✅ Order stream reconnected",
			slog.String("account", s.accountName),
			slog.Int("attempt", attempt))

		return nil
	}

	return fmt.Errorf("redial failed after %d attempts", s.redialAttempts)
}

func (s *Stream) readMessages() {
	defer func() {
		if err := s.Disconnect(); err != nil {
			s.logger.Error("Order stream disconnect error", slog.Any("error", err))
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn := s.currentConn()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.logger.Warn("⚠️  Order stream read error, redialing",
				slog.String("account", s.accountName),
				slog.Any("error", err))

			if rerr := s.redial(); rerr != nil {
				s.logger.Error("Order stream gone, polling carries on",
					slog.String("account", s.accountName),
					slog.Any("error", rerr))

				return
			}

			continue
		}

		// Фид отвечает pong на наш текстовый ping
		if string(message) == "pong" {
			continue
		}

		s.logger.Debug("📥 Stream READ", slog.String("raw", string(message)))

		var update OrderUpdate
		if err := json.Unmarshal(message, &update); err != nil {
			s.logger.Error("Failed to unmarshal stream message",
				slog.Any("error", err),
				slog.String("raw", string(message)))

			continue
		}

		if s.handler != nil {
			s.handler(update)
		}
	}
}

func (s *Stream) sendPings() {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			conn := s.currentConn()
			if conn == nil {
				return
			}

			// Во время redial старое соединение мертво: пропускаем тик,
			// write на новом conn восстановится сам
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				s.logger.Warn("⚠️  Order stream ping error", slog.Any("error", err))
			}
		}
	}
}
