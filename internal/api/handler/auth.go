package handler

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gopherchat/backend/internal/models"
	"gopherchat/backend/internal/storage"
)

var isAlphaNumeric = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9_-]*[A-Za-z0-9])?$`).MatchString

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// issueToken mints a JWT whose subject is the user ID.
func (h *Handler) issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(h.Auth.TokenTTL).Unix(),
		"iss": "gopherchat",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.Auth.JWTSecret))
}

// validateToken parses a JWT and returns its subject user ID.
func (h *Handler) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.Auth.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("missing subject")
	}
	return sub, nil
}

// Registration creates an account and returns its identity plus a session
// token.
func (h *Handler) Registration(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "username and password are required",
		})
		return
	}
	if !isAlphaNumeric(req.Username) {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "invalid username",
		})
		return
	}

	if _, err := h.Storage.GetUserByUsername(req.Username); err == nil {
		c.JSON(http.StatusConflict, APIResponse{
			Code: http.StatusConflict, Status: http.StatusText(http.StatusConflict),
			Message: "username is taken",
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "registration failed",
		})
		return
	}

	user := models.User{Username: req.Username, PasswordHash: string(hash)}
	if err := h.Storage.CreateUser(&user); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "registration failed",
		})
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "registration failed",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message:  "registration completed",
		Response: authResponse{UserID: user.ID, Username: user.Username, Token: token},
	})
}

// Login verifies credentials and returns a session token.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "username and password are required",
		})
		return
	}

	user, err := h.Storage.GetUserByUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{
			Code: http.StatusNotFound, Status: http.StatusText(http.StatusNotFound),
			Message: "user not found",
		})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, APIResponse{
			Code: http.StatusUnauthorized, Status: http.StatusText(http.StatusUnauthorized),
			Message: "wrong password",
		})
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{
			Code: http.StatusInternalServerError, Status: http.StatusText(http.StatusInternalServerError),
			Message: "login failed",
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Message:  "login completed",
		Response: authResponse{UserID: user.ID, Username: user.Username, Token: token},
	})
}

// IsUsernameAvailable checks whether a username can still be registered.
func (h *Handler) IsUsernameAvailable(c *gin.Context) {
	username := c.Param("username")
	if !isAlphaNumeric(username) {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code: http.StatusBadRequest, Status: http.StatusText(http.StatusBadRequest),
			Message: "invalid username",
		})
		return
	}

	_, err := h.Storage.GetUserByUsername(username)
	available := errors.Is(err, storage.ErrNotFound)
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: gin.H{"isUsernameAvailable": available},
	})
}

// UserSessionCheck reports whether a user ID belongs to a known account.
// Existence is enough: a dropped socket must not invalidate the session.
func (h *Handler) UserSessionCheck(c *gin.Context) {
	userID := c.Param("userID")
	_, err := h.Storage.GetUserByID(userID)
	c.JSON(http.StatusOK, APIResponse{
		Code: http.StatusOK, Status: http.StatusText(http.StatusOK),
		Response: err == nil,
	})
}
