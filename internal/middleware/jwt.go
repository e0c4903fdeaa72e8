package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const UserIDKey = "userId"

// GenerateJWT issues an HS256 token carrying the user id.
func GenerateJWT(secret string, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// JWTMiddleware rejects requests without a valid Bearer token and stores the
// user id from its claims in c.Locals(UserIDKey) as int64.
func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return JsonError(c, fiber.StatusUnauthorized, "Missing or invalid Authorization header")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return JsonError(c, fiber.StatusUnauthorized, "Invalid Authorization header format")
		}
		tokenString := authHeader[len("Bearer "):]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return JsonError(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return JsonError(c, fiber.StatusUnauthorized, "Invalid token payload")
		}
		// JSON numbers decode as float64.
		rawID, ok := claims["userId"].(float64)
		if !ok || rawID <= 0 {
			return JsonError(c, fiber.StatusUnauthorized, "Invalid token payload")
		}

		c.Locals(UserIDKey, int64(rawID))
		return c.Next()
	}
}

// UserID returns the authenticated user id, or 0 outside JWTMiddleware.
func UserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(UserIDKey).(int64)
	return id
}

func JsonError(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
