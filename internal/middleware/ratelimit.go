package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session/internal/config"
	"github.com/iliyamo/auth-session/internal/observability"
)

// takeToken refills the bucket for the time elapsed since the last refill
// and tries to take one token, atomically.
//
//	KEYS[1]  bucket hash
//	ARGV     now_ms, burst, every_ms, ttl_ms
//	returns  {allowed (0|1), remaining, retry_after_ms}
var takeToken = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local every = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled_at')
local tokens = tonumber(state[1])
local refilled_at = tonumber(state[2])
if tokens == nil or refilled_at == nil then
  tokens = burst
  refilled_at = now
end

local steps = math.floor(math.max(0, now - refilled_at) / every)
if steps > 0 then
  tokens = math.min(burst, tokens + steps)
  refilled_at = refilled_at + steps * every
end

local allowed = 0
local retry = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.max(0, every - (now - refilled_at))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled_at', refilled_at)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, tokens, retry}
`)

// LoginLimiter throttles credential attempts per client address before any
// password hashing happens.  Buckets live in Redis so every replica shares
// them.  A nil client or a disabled config yields a pass-through; Redis
// errors let the request through.
func LoginLimiter(cfg config.LoginLimit, rdb *redis.Client, logger *log.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if logger == nil {
		logger = observability.Discard()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := loginBucketKey(cfg.Prefix, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Burst,
				cfg.Every.Milliseconds(),
				cfg.TTL().Milliseconds(),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				logger.Warnj(log.JSON{"event": "rate_limit_unavailable", "key": key, "error": errString(err)})
				return next(c)
			}
			allowed, remaining, retryMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(retryMs) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			logger.Infoj(log.JSON{"event": "login_rate_limited", "ip": c.RealIP(), "retry_after": secs})
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

// loginBucketKey is <prefix>:<client ip>:<method> <route>.
func loginBucketKey(prefix string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return prefix + ":" + ip + ":" + c.Request().Method + " " + c.Path()
}

func errString(err error) string {
	if err == nil {
		return "unexpected script result"
	}
	return err.Error()
}
