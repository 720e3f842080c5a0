package api

// RegisterRequest представляет запрос на регистрацию пользователя
type RegisterRequest struct {
	Username string `json:"username"`
}

// RegisterResponse возвращает id нового пользователя и выданный ключ
// доступа. Ключ показывается ровно один раз, сервер хранит только хеш.
type RegisterResponse struct {
	UserID    string `json:"user_id"`
	AccessKey string `json:"access_key"`
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Username  string `json:"username"`
	AccessKey string `json:"access_key"`
}

// TokenResponse представляет ответ с access token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
