package logger

import (
	"time"

	"go.uber.org/zap"
)

// Helpers de campos tipados: mantienen las keys consistentes en todo el
// servicio para poder filtrar logs por request, usuario u operación.

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// Dominio

func Username(v string) zap.Field { return zap.String("username", v) }
func UserID(v string) zap.Field   { return zap.String("user_id", v) }

// Outcome es el resultado de un intento de login (authenticated, denied,
// fail_open, ...).
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

// Failmode es la política configurada ante proveedor caído (open|secure).
func Failmode(v string) zap.Field { return zap.String("failmode", v) }

// ProviderStatus es la clasificación del health check del proveedor MFA.
func ProviderStatus(v string) zap.Field { return zap.String("provider_status", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }

// Layer identifica la capa (controller, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field            { return zap.Error(err) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Genéricos

func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
