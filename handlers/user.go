package handlers

import (
	"flipbook/auth"
	"flipbook/models"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
)

type UserSignupRequest struct {
	Name     string `form:"name" binding:"required"`
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required,min=8"`
}

type UserLoginRequest struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type UserInfo struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

func userInfo(u *models.User) UserInfo {
	return UserInfo{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Credits: u.Credits,
	}
}

// UserSignup creates an account with the given number of starting credits and logs it in
func UserSignup(credits int) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := UserSignupRequest{}
		if err := c.ShouldBindWith(&r, binding.Form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.UserCreate(r.Name, r.Email, r.Password, credits)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") || strings.Contains(err.Error(), "Duplicate") {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			log.Error().Err(err).Msg("signup failed")
			c.JSON(http.StatusInternalServerError, DBError1Response)
			return
		}
		if err = auth.LoadSession(c).LoginUser(&user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, userInfo(&user))
	}
}

func UserLogin(c *gin.Context) {
	r := UserLoginRequest{}
	err := c.ShouldBindWith(&r, binding.Form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := models.UserLogin(r.Email, r.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err = auth.LoadSession(c).LoginUser(&user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, userInfo(&user))
}

func UserLogout(c *gin.Context, user *models.User) {
	auth.LoadSession(c).LogoutUser()
	c.JSON(http.StatusOK, OKResponse)
}

func UserStatus(c *gin.Context, user *models.User) {
	c.JSON(http.StatusOK, userInfo(user))
}
