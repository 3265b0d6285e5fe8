package smartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"smart_copy/internal/models"
	"smart_copy/services/httpmiddleware"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://apiconnect.angelbroking.com"

	// API endpoints
	loginEndpoint      = "/rest/auth/angelbroking/user/v1/loginByPassword"
	logoutEndpoint     = "/rest/secure/angelbroking/user/v1/logout"
	profileEndpoint    = "/rest/secure/angelbroking/user/v1/getProfile"
	orderBookEndpoint  = "/rest/secure/angelbroking/order/v1/getOrderBook"
	tradeBookEndpoint  = "/rest/secure/angelbroking/order/v1/getTradeBook"
	placeOrderEndpoint = "/rest/secure/angelbroking/order/v1/placeOrder"
)

// Credentials - учетные данные одного аккаунта Angel One.
// Загружаются один раз из окружения и дальше не изменяются.
type Credentials struct {
	Name       string // Master, Follower1, ...
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
	SecretKey  string
}

// Validate проверяет, что все обязательные поля заполнены
func (c Credentials) Validate() error {
	var missing []string

	for field, value := range map[string]string{
		"api_key":     c.APIKey,
		"client_id":   c.ClientID,
		"password":    c.Password,
		"totp_secret": c.TOTPSecret,
		"secret_key":  c.SecretKey,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("account %q missing: %s", c.Name, strings.Join(missing, ", "))
	}

	return nil
}

// apiResponse - общий конверт ответов SmartAPI
type apiResponse struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// Client - клиент SmartAPI для одного аккаунта
type Client struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	// Клиентский pacing по endpoint'ам: orderBook щадяще (1 rps),
	// placeOrder по документированному лимиту брокера (10 rps).
	// Это дополнение к общему окну монитора, не его замена.
	bookLimiter  *rate.Limiter
	orderLimiter *rate.Limiter

	session *Session
}

// New создает SmartAPI клиент для аккаунта
func New(creds Credentials, logger *slog.Logger) *Client {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: httpmiddleware.Wrap(
			httpmiddleware.DefaultTransport(),
			httpmiddleware.RequestGetBodySetter,
			httpmiddleware.Logger(logger, -1),
		),
	}

	return &Client{
		creds:        creds,
		httpClient:   httpClient,
		logger:       logger,
		baseURL:      defaultBaseURL,
		bookLimiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		orderLimiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// SetBaseURL переопределяет адрес API (mock-серверы в тестах)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimSuffix(u, "/")
}

// Name возвращает имя аккаунта (для логов)
func (c *Client) Name() string {
	return c.creds.Name
}

// ClientID возвращает client code аккаунта
func (c *Client) ClientID() string {
	return c.creds.ClientID
}

// setHeaders устанавливает обязательные заголовки SmartAPI
func (c *Client) setHeaders(req *http.Request, authToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	req.Header.Set("X-PrivateKey", c.creds.APIKey)

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
}

// do выполняет запрос и классифицирует ошибку по таксономии ошибок брокера
func (c *Client) do(ctx context.Context, method, endpoint string, body any, authToken string) (*apiResponse, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &FetchError{Op: endpoint, Err: err}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, &FetchError{Op: endpoint, Err: err}
	}
	c.setHeaders(req, authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Op: endpoint, Err: err}
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// SmartAPI при жестком throttling отдает plain-text "Access denied..."
		if throttledMessage(string(raw)) || resp.StatusCode == http.StatusForbidden {
			return nil, &ThrottleError{Message: strings.TrimSpace(string(raw))}
		}

		return nil, &FetchError{Op: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}

	if !envelope.Status && throttledMessage(envelope.Message) {
		return nil, &ThrottleError{Message: envelope.Message}
	}

	return &envelope, nil
}

// authToken возвращает JWT активной сессии
func (c *Client) authToken() (string, error) {
	if c.session == nil || !c.session.Initialized {
		return "", fmt.Errorf("client %s not initialized", c.creds.Name)
	}

	return c.session.JWTToken, nil
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Login выполняет generateSession: clientcode + password + свежий TOTP код
func (c *Client) Login(ctx context.Context) (*Session, error) {
	code, err := totp.GenerateCode(c.creds.TOTPSecret, time.Now())
	if err != nil {
		return nil, &AuthError{ClientID: c.creds.ClientID, Message: fmt.Sprintf("bad totp secret: %v", err)}
	}

	body := map[string]string{
		"clientcode": c.creds.ClientID,
		"password":   c.creds.Password,
		"totp":       code,
	}

	envelope, err := c.do(ctx, http.MethodPost, loginEndpoint, body, "")
	if err != nil {
		return nil, err
	}

	if !envelope.Status {
		return nil, &AuthError{ClientID: c.creds.ClientID, Message: envelope.Message}
	}

	var data loginData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &FetchError{Op: loginEndpoint, Err: err}
	}

	now := time.Now()
	session := &Session{
		JWTToken:     data.JWTToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		CreatedAt:    now,
		ExpiresAt:    tokenExpiry(data.JWTToken),
		Initialized:  true,
	}
	c.session = session

	c.logger.Info("✅ Session created",
		slog.String("account", c.creds.Name),
		slog.Time("expires_at", session.ExpiresAt))

	return session, nil
}

// Logout завершает сессию на стороне брокера
func (c *Client) Logout(ctx context.Context) error {
	token, err := c.authToken()
	if err != nil {
		return err
	}

	body := map[string]string{"clientcode": c.creds.ClientID}

	envelope, err := c.do(ctx, http.MethodPost, logoutEndpoint, body, token)
	if err != nil {
		return err
	}

	if !envelope.Status {
		return &FetchError{Op: logoutEndpoint, Err: fmt.Errorf("%s", envelope.Message)}
	}

	c.session = nil

	return nil
}

// Profile запрашивает профиль аккаунта (используется для verify сессий)
func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, err
	}

	envelope, err := c.do(ctx, http.MethodGet, profileEndpoint, nil, token)
	if err != nil {
		return nil, err
	}

	if !envelope.Status {
		return nil, &FetchError{Op: profileEndpoint, Err: fmt.Errorf("%s", envelope.Message)}
	}

	var profile models.Profile
	if err := json.Unmarshal(envelope.Data, &profile); err != nil {
		return nil, &FetchError{Op: profileEndpoint, Err: err}
	}

	return &profile, nil
}

// OrderBook запрашивает книгу ордеров аккаунта.
// data: null у брокера означает "ордеров нет" - возвращаем пустой срез.
func (c *Client) OrderBook(ctx context.Context) ([]models.Order, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, err
	}

	if err := c.bookLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	envelope, err := c.do(ctx, http.MethodGet, orderBookEndpoint, nil, token)
	if err != nil {
		return nil, err
	}

	if !envelope.Status {
		return nil, &FetchError{Op: orderBookEndpoint, Err: fmt.Errorf("%s", envelope.Message)}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, nil
	}

	var orders []models.Order
	if err := json.Unmarshal(envelope.Data, &orders); err != nil {
		return nil, &FetchError{Op: orderBookEndpoint, Err: err}
	}

	return orders, nil
}

// TradeBook запрашивает книгу сделок аккаунта
func (c *Client) TradeBook(ctx context.Context) ([]models.Trade, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, err
	}

	if err := c.bookLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	envelope, err := c.do(ctx, http.MethodGet, tradeBookEndpoint, nil, token)
	if err != nil {
		return nil, err
	}

	if !envelope.Status {
		return nil, &FetchError{Op: tradeBookEndpoint, Err: fmt.Errorf("%s", envelope.Message)}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, nil
	}

	var trades []models.Trade
	if err := json.Unmarshal(envelope.Data, &trades); err != nil {
		return nil, &FetchError{Op: tradeBookEndpoint, Err: err}
	}

	return trades, nil
}

type placeOrderData struct {
	OrderID string `json:"orderid"`
	Script  string `json:"script"`
}

// PlaceOrder размещает ордер и возвращает orderid брокера
func (c *Client) PlaceOrder(ctx context.Context, params models.OrderParams) (string, error) {
	token, err := c.authToken()
	if err != nil {
		return "", err
	}

	if err := c.orderLimiter.Wait(ctx); err != nil {
		return "", err
	}

	envelope, err := c.do(ctx, http.MethodPost, placeOrderEndpoint, params, token)
	if err != nil {
		return "", err
	}

	if !envelope.Status {
		c.logger.Error("PlaceOrder API error",
			slog.String("account", c.creds.Name),
			slog.String("errorcode", envelope.ErrorCode),
			slog.String("message", envelope.Message))

		return "", &PlacementError{Message: envelope.Message, ErrorCode: envelope.ErrorCode}
	}

	var data placeOrderData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", &FetchError{Op: placeOrderEndpoint, Err: err}
	}

	c.logger.Info("✅ PlaceOrder success",
		slog.String("account", c.creds.Name),
		slog.String("order_id", data.OrderID))

	return data.OrderID, nil
}
