// Package users carries the minimal application-account surface: enough to
// own a User row and issue the bearer token the linking endpoints require.
package users

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lionlink/lionlink/gateway"
	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Service struct {
	Db     *gorm.DB
	Auth   *gateway.JWTAuth
	Logger *logrus.Logger
}

type credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates an application account.
//
// POST /users/register
func (s *Service) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error(), "code": "validation_error"})
		return
	}
	user := store.User{Email: req.Email, Password: req.Password}
	if err := user.HashPassword(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error(), "code": "internal_error"})
		return
	}
	if res := s.Db.Create(&user); res.Error != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "email already registered", "code": "duplication_error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"id": user.ID}})
}

// Login checks the password and issues a bearer token.
//
// POST /users/login
func (s *Service) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error(), "code": "validation_error"})
		return
	}
	user, err := store.GetUserByEmail(req.Email, s.Db)
	if err != nil || !user.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "wrong email or password", "code": "unauthorized"})
		return
	}
	token, err := s.Auth.GenerateJWT(user.ID, user.Email)
	if err != nil {
		s.Logger.WithField("error", err.Error()).Error("token signing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not issue token", "code": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"token": token}})
}
