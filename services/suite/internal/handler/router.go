package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/business-suite/pkg/logger"
	"example.com/business-suite/pkg/metrics"
)

// Заголовки сквозных идентификаторов.
const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"
)

// RouterConfig — зависимости роутера.
type RouterConfig struct {
	Handler *Handler
	Debug   bool
}

// NewRouter создаёт настроенный gin.Engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestContextMiddleware())
	router.Use(metrics.GinMetricsMiddleware("suite"))

	v1 := router.Group("/v1")
	{
		v1.POST("/loyalty/redeem", cfg.Handler.RedeemPoints)
		v1.POST("/packages/consume", cfg.Handler.ConsumeUnits)
	}

	return router
}

// requestContextMiddleware прокидывает request_id и correlation_id
// из заголовков в контекст запроса. Отсутствующий request_id генерируется,
// correlation_id по умолчанию совпадает с request_id — он же попадёт
// в события outbox, порождённые запросом.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		correlationID := c.GetHeader(headerCorrelationID)
		if correlationID == "" {
			correlationID = requestID
		}

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		ctx = logger.WithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(headerRequestID, requestID)
		c.Next()
	}
}
