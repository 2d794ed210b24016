package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/store"
)

// GetData returns the stored knowledge document.
// GET /api/v1/admin/data
func (s *APIV1Service) GetData(c echo.Context) error {
	doc, err := s.Knowledge.Load()
	if err != nil {
		return fail(c, aierrors.Wrap(err, aierrors.ErrCodeInternal, "failed to load knowledge"))
	}
	return ok(c, "", doc)
}

// UpdateData replaces the knowledge document and reloads it.
// POST /api/v1/admin/data
func (s *APIV1Service) UpdateData(c echo.Context) error {
	doc := store.DefaultDocument()
	if err := c.Bind(doc); err != nil {
		return badRequest(c, "Invalid knowledge document")
	}
	if err := s.Knowledge.Validate(doc); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.Knowledge.Save(doc); err != nil {
		return fail(c, aierrors.Wrap(err, aierrors.ErrCodeInternal, "failed to save knowledge"))
	}
	if err := s.Chat.Reload(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	slog.Info("knowledge document updated",
		"company", doc.CompanyData.CompanyName,
		"services", len(doc.CompanyData.Services),
		"faq", len(doc.CompanyData.FAQ))
	return ok(c, "Data updated successfully", nil)
}

// UpdateBotConfig replaces only the bot configuration and reloads.
// POST /api/v1/admin/bot-config
func (s *APIV1Service) UpdateBotConfig(c echo.Context) error {
	cfg := store.DefaultBotConfig()
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "Invalid bot configuration")
	}
	if err := s.validate.Struct(&cfg); err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.Knowledge.UpdateBotConfig(cfg); err != nil {
		return fail(c, aierrors.Wrap(err, aierrors.ErrCodeInternal, "failed to update bot configuration"))
	}
	if err := s.Chat.Reload(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return ok(c, "Bot configuration updated", nil)
}

// ListBackups lists knowledge backups, newest first.
// GET /api/v1/admin/backups
func (s *APIV1Service) ListBackups(c echo.Context) error {
	backups, err := s.Knowledge.ListBackups()
	if err != nil {
		return fail(c, aierrors.Wrap(err, aierrors.ErrCodeInternal, "failed to list backups"))
	}
	return ok(c, "", backups)
}
