package middleware

import (
	"auction-engine/internal/config"
	"auction-engine/pkg/logger"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Setup installs the middleware chain shared by every route.
func Setup(e *echo.Echo, cfg config.ServerConfig, log logger.Logger) {
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(RequestLogger(log))
	e.Use(CORS(cfg.AllowOrigins))
}

func CORS(allowOrigins []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID,
		},
		MaxAge: 86400,
	})
}

// RequestLogger writes one structured line per request through the service
// logger instead of echo's own writer.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			kv := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond).String(),
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Error("Request failed", append(kv, "error", v.Error)...)
				return nil
			}
			if v.Status >= http.StatusInternalServerError {
				log.Warn("Request completed", kv...)
				return nil
			}
			log.Info("Request completed", kv...)
			return nil
		},
	})
}
