package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelic wraps each request in an APM transaction named after the route
// and tags it with the correlation id. A nil app makes it a no-op.
func NewRelic(app *newrelic.Application, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if app == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			txn := app.StartTransaction(req.Method + " " + c.Path())
			defer txn.End()

			txn.SetWebRequestHTTP(req)
			if id, ok := CorrelationID(c, key); ok {
				txn.AddAttribute(key, id)
			}

			res := c.Response()
			original := res.Writer
			res.Writer = txn.SetWebResponse(original)
			defer func() { res.Writer = original }()

			c.SetRequest(req.WithContext(newrelic.NewContext(req.Context(), txn)))
			defer c.SetRequest(req)

			err := next(c)
			if err != nil {
				txn.NoticeError(err)
			}
			return err
		}
	}
}
