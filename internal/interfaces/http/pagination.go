package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
)

const maxListLimit = 100

// pageFrom lee limit/offset de la query con los valores por defecto de dto.PageRequest.
func pageFrom(c *fiber.Ctx) dto.PageRequest {
	var p dto.PageRequest
	_ = c.QueryParser(&p)
	p.DefaultPage()
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	return p
}
