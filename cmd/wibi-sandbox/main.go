// main.go - stub backend for local engine development
package main

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"wibi/internal/backend"
)

// sandboxConfig is the canned widget configuration served to every
// request, close to a typical production setup.
var sandboxConfig = backend.WidgetConfig{
	Position:        "right",
	Label:           "Contact Us",
	ColorCode:       "#007bff",
	PhoneShow:       true,
	PNumber:         "27115550100",
	WhatsAppShow:    true,
	WNumber:         "27115550100",
	WhatsAppMessage: "Hi, may you provide me a quote for ...",
	EmailShow:       true,
	Email:           "hello@example.com",
	BrandingShow:    true,
	BusinessHours: &backend.BusinessHoursConfig{
		Enabled:   true,
		StartDay:  int(time.Monday),
		EndDay:    int(time.Friday),
		StartHour: 9,
		EndHour:   13,
		EndMinute: 30,
	},
}

func main() {
	app := fiber.New(fiber.Config{
		AppName:               "wibi-sandbox",
		DisableStartupMessage: false,
	})

	app.Get(backend.OptionsPath, func(c *fiber.Ctx) error {
		log.Printf("options request: id=%s pg=%s", c.Query("id"), c.Query("pg"))
		return c.JSON(sandboxConfig)
	})

	app.Get(backend.GTMIDPath, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"gtm_container_id": "GTM-SANDBOX1"})
	})

	for _, path := range []string{
		backend.PageViewPath,
		backend.InteractionPath,
		backend.SourceAttributionPath,
		backend.ConsentPath,
		backend.ErrorPath,
	} {
		path := path
		app.Post(path, func(c *fiber.Ctx) error {
			log.Printf("tracked %s: %s", path, c.Body())
			return c.SendStatus(fiber.StatusNoContent)
		})
	}

	port := os.Getenv("WIBI_SANDBOX_PORT")
	if port == "" {
		port = "8787"
	}
	log.Printf("sandbox backend listening on :%s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("sandbox server failed: %v", err)
	}
}
