package logger

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ctxKey = "logger"

var log *zap.Logger = zap.NewNop()

// Init builds the global logger. Production gets JSON, anything else gets
// the colored development encoder.
func Init() {
	var cfg zap.Config
	if os.Getenv("GIN_MODE") == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level.SetLevel(level)

	l, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log = l
}

func L() *zap.Logger {
	return log
}

// Middleware attaches a request-scoped logger carrying a request id.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set(ctxKey, log.With(zap.String("request_id", requestID)))
		c.Next()
	}
}

// FromContext returns the request-scoped logger, or the global one.
func FromContext(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(ctxKey); ok {
		if zl, ok := l.(*zap.Logger); ok {
			return zl
		}
	}
	return log
}
