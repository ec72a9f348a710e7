package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/egor/ticklegramserver/database"
	"github.com/egor/ticklegramserver/models"
)

// GetAgents возвращает список агентов (только для администратора)
func GetAgents(c *gin.Context) {
	agents, err := database.ListAgents()
	if err != nil {
		logrus.Errorf("GetAgents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения списка агентов"})
		return
	}
	for i := range agents {
		agents[i].PasswordHash = ""
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// CreateAgent создает нового агента (только для администратора)
func CreateAgent(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	role := models.RoleAgent
	if req.Role != "" {
		if req.Role != models.RoleAgent && req.Role != models.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестная роль: " + req.Role})
			return
		}
		role = req.Role
	}

	agent, err := database.CreateAgent(req.Name, req.Email, req.Password, role)
	if err != nil {
		logrus.Errorf("CreateAgent: %v", err)
		if strings.Contains(err.Error(), "уже занят") {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка создания агента"})
		return
	}

	agent.PasswordHash = ""
	logrus.Infof("CreateAgent: создан агент %s (%s, роль %s)", agent.Name, agent.Email, agent.Role)
	c.JSON(http.StatusCreated, agent)
}

// UpdateAgent изменяет атрибуты агента. Деактивация сразу освобождает чаты
// агента для переназначения; запрет новых чатов существующие чаты не трогает.
func UpdateAgent(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат agentID"})
		return
	}

	var upd database.AgentUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}
	if upd.Role != nil && *upd.Role != models.RoleAgent && *upd.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестная роль: " + *upd.Role})
		return
	}

	agent, err := database.UpdateAgent(agentID, upd)
	if err != nil {
		logrus.Errorf("UpdateAgent: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка обновления агента"})
		return
	}
	if agent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Агент не найден"})
		return
	}

	// Деактивированный агент не должен держать чаты до планового прохода
	if upd.Active != nil && !*upd.Active {
		count, err := database.ReassignFromInactiveAgents(c.Request.Context())
		if err != nil {
			logrus.WithError(err).Warn("UpdateAgent: переназначение чатов деактивированного агента")
		} else if count > 0 {
			logrus.Infof("UpdateAgent: переназначено чатов после деактивации %s: %d", agentID, count)
		}
	}

	agent.PasswordHash = ""
	c.JSON(http.StatusOK, agent)
}

// ReassignChats вручную запускает переназначение чатов неактивных агентов
func ReassignChats(c *gin.Context) {
	count, err := database.ReassignFromInactiveAgents(c.Request.Context())
	if err != nil {
		logrus.Errorf("ReassignChats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка переназначения чатов"})
		return
	}
	logrus.Infof("ReassignChats: переназначено чатов: %d", count)
	c.JSON(http.StatusOK, gin.H{"reassigned": count})
}
