package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/middleware"
)

// Login обрабатывает авторизацию агентов
func Login(c *gin.Context) {
	var credentials struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&credentials); err != nil {
		logrus.Warnf("Login: ошибка парсинга данных для авторизации: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logrus.Infof("Login: попытка авторизации для %s", credentials.Email)

	// Аутентификация агента
	token, err := middleware.Authenticate(credentials.Email, credentials.Password)
	if err != nil {
		logrus.Warnf("Login: ошибка аутентификации для %s: %v", credentials.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	// Получаем данные агента
	agent, err := database.GetAgentByEmail(credentials.Email)
	if err != nil || agent == nil {
		logrus.Errorf("Login: ошибка получения данных агента %s: %v", credentials.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения данных пользователя"})
		return
	}

	agent.PasswordHash = ""

	logrus.Infof("Login: успешная авторизация агента %s (ID: %s)", agent.Email, agent.ID)
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"agent": agent,
	})
}
