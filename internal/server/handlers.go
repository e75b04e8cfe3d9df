package server

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/model"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// startHook launches a hook and answers with the instance id as plain text.
func (s *Server) startHook(c *fiber.Ctx) error {
	// the name outlives the request buffer in the supervisor and in metric labels
	name := utils.CopyString(c.Params("name"))

	create := &model.CreateConfig{}
	if body := bytes.TrimSpace(c.Body()); len(body) > 0 {
		if err := c.App().Config().JSONDecoder(body, create); err != nil {
			return BadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		}
	}

	req := Snapshot(c.Request(), c.Context().RemoteAddr())
	id, err := s.engine.Start(c.UserContext(), name, create, req)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(id.String())
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "instance not found")
	}

	info, err := s.engine.Status(c.UserContext(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(info)
}

// getLog serves stdout or stderr, honouring a single-range Range header.
func (s *Server) getLog(c *fiber.Ctx) error {
	stream, err := model.ParseStream(c.Params("stream"))
	if err != nil {
		return NotFound(c, err.Error())
	}
	id, ok := parseID(c)
	if !ok {
		return NotFound(c, "instance not found")
	}

	rng, err := ParseRange(c.Get(fiber.HeaderRange))
	if err != nil {
		return s.writeError(c, err)
	}

	chunk, err := s.engine.ReadLog(c.UserContext(), stream, id, rng)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Set(fiber.HeaderAcceptRanges, "bytes")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	if s.metrics != nil {
		s.metrics.LogBytesServed(stream, len(chunk.Content))
	}

	if chunk.Range == nil {
		return c.SendString(chunk.Content)
	}
	if chunk.Range.Len() == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", chunk.Range.Start, chunk.Range.End-1, chunk.Size))
	return c.Status(fiber.StatusPartialContent).SendString(chunk.Content)
}

func (s *Server) listInstances(c *fiber.Ctx) error {
	if s.lister == nil {
		return NotFound(c, "instance index is disabled")
	}
	name := c.Params("name")
	if _, ok := s.engine.Hook(name); !ok {
		return NotFound(c, fmt.Sprintf("hook %q is not configured", name))
	}

	entries, err := s.lister.Recent(c.UserContext(), name, c.QueryInt("limit", 0))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(entries)
}

// writeError maps engine errors to HTTP responses. Internal causes are
// logged and never sent to the client.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	e, ok := hook.AsError(err)
	if !ok {
		e = hook.NewInternalError("unclassified", err)
	}

	switch e.Code {
	case hook.ErrCodeNotFound:
		return NotFound(c, e.Message)
	case hook.ErrCodeInvalidRange:
		return BadRequest(c, e.Message)
	case hook.ErrCodeRangeNotSatisfiable:
		c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes */%d", e.Size))
		return Fail(c, fiber.StatusRequestedRangeNotSatisfiable, e.Message)
	default:
		rid, _ := c.Locals("requestid").(string)
		s.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", rid),
			zap.Error(err),
		)
		return ServerError(c)
	}
}

func parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}
