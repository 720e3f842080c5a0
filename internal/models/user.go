package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учетная запись, которой выданы права администрирования турниров.
// Пользователи создаются при развертывании, регистрации через API нет.
type User struct {
	CreatedAt     time.Time
	Username      string
	AccessKeyHash string // SHA256 hex от access key
	UUID          uuid.UUID
}
