package handler

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"kutter-server/internal/auth"
	"kutter-server/internal/mailer"
	"kutter-server/internal/middleware"
	"kutter-server/internal/store"
)

var (
	emailPattern    = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,20}$`)
)

const verificationCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateVerificationCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = verificationCharset[int(b)%len(verificationCharset)]
	}
	return string(buf), nil
}

type AuthHandler struct {
	Store       *store.Store
	Mailer      mailer.Mailer
	TokenConfig auth.TokenConfig
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("token", token, int(h.TokenConfig.Expiry.Seconds()), "/", "", true, true)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email, and password are required"})
		return
	}
	if !emailPattern.MatchString(body.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email format"})
		return
	}
	if !usernamePattern.MatchString(body.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 2-20 characters, lowercase letters, digits, _ or -"})
		return
	}
	if len(body.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters long"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	code, err := generateVerificationCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate verification code"})
		return
	}

	user, err := h.Store.CreateUser(c.Request.Context(), body.Username, body.Email, string(hash), code)
	if errors.Is(err, store.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already exists"})
		return
	}
	if err != nil {
		slog.Error("creating user", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	if err := h.Mailer.SendVerificationCode(c.Request.Context(), user.Email, user.Username, code); err != nil {
		slog.Error("sending verification code", "email", user.Email, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send verification email"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "user": user.Username})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.Store.UserByEmail(c.Request.Context(), body.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		slog.Error("fetching user", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := auth.CreateToken(user.Email, user.Username, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	h.setTokenCookie(c, token)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"token":  token,
		"user":   gin.H{"username": user.Username, "email": user.Email},
	})
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body verifyEmailBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.Store.UserByEmail(c.Request.Context(), body.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		slog.Error("fetching user", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	if user.Verified {
		c.JSON(http.StatusConflict, gin.H{"error": "user already verified"})
		return
	}
	if user.VerificationCode == nil || *user.VerificationCode != body.Code {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		return
	}

	if err := h.Store.VerifyEmail(c.Request.Context(), body.Email); err != nil {
		slog.Error("verifying user", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify user"})
		return
	}

	token, err := auth.CreateToken(user.Email, user.Username, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	h.setTokenCookie(c, token)

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "user verified successfully"})
}

// Verify answers "who am I" for the current cookie.
func (h *AuthHandler) Verify(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := h.Store.UserByEmail(c.Request.Context(), claims.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		slog.Error("fetching user", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"user": gin.H{
			"email":     user.Email,
			"username":  user.Username,
			"verified":  user.Verified,
			"biography": user.Biography,
		},
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("token", "", -1, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "user logged out"})
}
