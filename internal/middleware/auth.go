package middleware

import (
	"fmt"
	"strings"
	"time"

	apierrors "github.com/commongroundz/backend/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs a 24-hour HS256 token for the given user
func GenerateToken(jwtSecret []byte, userID, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// validateToken parses an HS256 token and returns the user ID claim
func validateToken(jwtSecret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("invalid user_id in token")
	}
	return userID, nil
}

// AuthMiddleware requires a valid Bearer token and stores the caller's
// user ID under "user_id" in the gin context.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apiErr := apierrors.Unauthorized("missing bearer token")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			c.Abort()
			return
		}

		userID, err := validateToken(jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			apiErr := apierrors.Unauthorized("invalid or expired token")
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
