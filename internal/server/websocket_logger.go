package server

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebSocketLogger tags every socket log line with the connection
// identity, so one user's devices can be told apart in the output.
type WebSocketLogger struct {
	logger *zap.Logger
}

func NewWebSocketLogger() *WebSocketLogger {
	return &WebSocketLogger{
		logger: zap.L().With(zap.String("component", "websocket")),
	}
}

func (l *WebSocketLogger) with(event string, userID uuid.UUID, clientID string, fields []zap.Field) []zap.Field {
	tagged := make([]zap.Field, 0, len(fields)+3)
	tagged = append(tagged,
		zap.String("event", event),
		zap.String("user_id", userID.String()),
		zap.String("client_id", clientID),
	)
	return append(tagged, fields...)
}

func (l *WebSocketLogger) Info(event string, userID uuid.UUID, clientID string, fields ...zap.Field) {
	l.logger.Info("websocket_event", l.with(event, userID, clientID, fields)...)
}

func (l *WebSocketLogger) Warn(event string, userID uuid.UUID, clientID string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", l.with(event, userID, clientID, fields)...)
}

func (l *WebSocketLogger) Error(event string, userID uuid.UUID, clientID string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", l.with(event, userID, clientID, append(fields, zap.Error(err)))...)
}
