// Package logger arma el logger zap del servicio: un singleton global
// (Init/L/Sync), scoping por request vía contexto (ToContext/From) y helpers
// de campos tipados para que las keys queden consistentes entre capas.
//
// Inicialización, una vez en main:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
//	defer logger.Sync()
//
// En cualquier capa con contexto:
//
//	logger.From(ctx).Info("login attempt", logger.Username(username))
package logger
