package runs

import "github.com/labstack/echo/v4"

type Handler interface {
	Create() echo.HandlerFunc
	GetByID() echo.HandlerFunc
	List() echo.HandlerFunc
}
