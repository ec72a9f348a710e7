package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger создаёт middleware для логирования HTTP запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Время начала запроса
		startTime := time.Now()

		// Обрабатываем запрос
		c.Next()

		// Время выполнения запроса
		latencyTime := time.Since(startTime)

		logrus.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": latencyTime,
			"ip":      c.ClientIP(),
			"method":  c.Request.Method,
			"uri":     c.Request.RequestURI,
		}).Info("HTTP запрос")
	}
}
