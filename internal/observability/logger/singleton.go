package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el logger global. Idempotente: solo la primera llamada
// tiene efecto. Se llama una vez desde main.
func Init(cfg Config) {
	once.Do(func() { instance = build(cfg) })
}

// L retorna el logger global. Sin Init previo arma uno de desarrollo, así
// los tests no necesitan bootstrap.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// With retorna el logger global con campos extra.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes; para el defer de main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
