package http

import "github.com/labstack/echo/v4"

// Handler registers routes on the Echo instance owned by Server. The board
// handler is the only implementation; the indirection keeps the server
// package free of application imports.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
