package webserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/talkincode/nextshop/internal/domain"
	"github.com/talkincode/nextshop/internal/order"
)

const actorContextKey = "nextshop_actor"

// IssueToken signs a session token for an account. Snowflake ids exceed the
// float64-safe integer range, so the uid claim travels as a string.
func IssueToken(secret string, u *domain.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"uid":   cast.ToString(u.ID),
		"email": u.Email,
		"level": u.Level,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// actorMiddleware converts verified JWT claims into the explicit order.Actor
// threaded through every handler. Requests without a valid token never reach
// this point.
func actorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, okToken := c.Get("user").(*jwt.Token)
			if !okToken {
				return next(c)
			}
			claims, okClaims := token.Claims.(jwt.MapClaims)
			if !okClaims {
				return next(c)
			}
			actor := order.Actor{
				ID:              cast.ToInt64(claims["uid"]),
				Email:           cast.ToString(claims["email"]),
				IsAdmin:         cast.ToString(claims["level"]) == domain.UserLevelAdmin,
				IsAuthenticated: true,
			}
			c.Set(actorContextKey, actor)
			return next(c)
		}
	}
}

// CurrentActor returns the request actor; a zero Actor means anonymous.
func CurrentActor(c echo.Context) order.Actor {
	if actor, okActor := c.Get(actorContextKey).(order.Actor); okActor {
		return actor
	}
	return order.Actor{}
}

// SetTestActor injects an actor directly, bypassing JWT (handler tests).
func SetTestActor(c echo.Context, actor order.Actor) {
	c.Set(actorContextKey, actor)
}
