package widget

import (
	"fmt"
	"net/url"
	"time"

	"wibi/internal/backend"
)

// Default message bodies when the operator has not customized them.
const (
	defaultQuoteMessage = "Hi, may you provide me a quote for ..."
	defaultSubject      = "Request a quote"
	defaultLabel        = "Contact Us"
)

// Channel is one contact option the host can present: a label, the URL
// that opens the conversation, and the action name reported on click.
type Channel struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	Href   string `json:"href"`
	Color  string `json:"color,omitempty"`
	NewTab bool   `json:"newTab,omitempty"`
}

// RenderModel is the widget described as data. The host decides how to
// draw it; the engine decides what it contains.
type RenderModel struct {
	Position  string    `json:"position"`
	Label     string    `json:"label"`
	ColorCode string    `json:"colorCode,omitempty"`
	Channels  []Channel `json:"channels"`
	Branding  bool      `json:"branding"`
}

// BuildRenderModel assembles the widget contents from the backend
// configuration. Channel order is fixed; the call channel additionally
// requires the current time to fall within business hours.
func BuildRenderModel(cfg *backend.WidgetConfig, now time.Time) RenderModel {
	model := RenderModel{
		Position:  cfg.Position,
		Label:     cfg.Label,
		ColorCode: cfg.ColorCode,
		Branding:  cfg.BrandingShow,
	}
	if model.Position == "" {
		model.Position = "right"
	}
	if model.Label == "" {
		model.Label = defaultLabel
	}

	hours := defaultBusinessHours
	if cfg.BusinessHours != nil {
		hours = *cfg.BusinessHours
	}

	if cfg.PhoneShow && withinBusinessHours(hours, now) {
		label := cfg.PhoneText
		if label == "" {
			label = "Call Now"
		}
		model.Channels = append(model.Channels, Channel{
			Action: "call",
			Label:  label,
			Href:   "tel:" + FormatPhone(cfg.PNumber, "27"),
			Color:  "#28a745",
		})
	}

	if cfg.WhatsAppShow {
		message := cfg.WhatsAppMessage
		if message == "" {
			message = defaultQuoteMessage
		}
		model.Channels = append(model.Channels, Channel{
			Action: "whatsapp",
			Label:  "WhatsApp",
			Href: fmt.Sprintf("https://api.whatsapp.com/send?phone=%s&text=%s",
				FormatPhone(cfg.WNumber, "27"), url.QueryEscape(message)),
			Color: "#25d366",
		})
	}

	if cfg.EmailShow {
		subject := cfg.Subject
		if subject == "" {
			subject = defaultSubject
		}
		body := cfg.Body
		if body == "" {
			body = defaultQuoteMessage
		}
		model.Channels = append(model.Channels, Channel{
			Action: "email",
			Label:  "Email",
			Href: fmt.Sprintf("mailto:%s?subject=%s&body=%s",
				cfg.Email, url.QueryEscape(subject), url.QueryEscape(body)),
			Color: "#dc3545",
		})
	}

	if cfg.MessengerShow {
		href := cfg.MessengerURL
		if href == "" {
			href = "https://m.me/yourid"
		}
		model.Channels = append(model.Channels, Channel{
			Action: "messenger",
			Label:  "Messenger",
			Href:   href,
			Color:  "#0084ff",
		})
	}

	if cfg.TextShow {
		body := cfg.SMSBody
		if body == "" {
			body = defaultQuoteMessage
		}
		model.Channels = append(model.Channels, Channel{
			Action: "sms",
			Label:  "Send SMS",
			Href:   fmt.Sprintf("sms:%s?body=%s", FormatPhone(cfg.PNumberSMS, "27"), url.QueryEscape(body)),
			Color:  "#ffc107",
		})
	}

	if cfg.TelegramShow {
		model.Channels = append(model.Channels, Channel{
			Action: "telegram",
			Label:  "Telegram",
			Href:   "https://t.me/" + cfg.TelegramNum,
			Color:  "#0088cc",
		})
	}

	if cfg.ViberShow {
		model.Channels = append(model.Channels, Channel{
			Action: "viber",
			Label:  "Viber",
			Href:   "viber://chat?number=" + cfg.ViberNum,
			Color:  "#665cac",
		})
	}

	if cfg.SkypeShow {
		model.Channels = append(model.Channels, Channel{
			Action: "skype",
			Label:  "Skype",
			Href:   "skype:" + cfg.SkypeNameEmail + "?chat",
			Color:  "#00aff0",
		})
	}

	if cfg.LineShow {
		model.Channels = append(model.Channels, Channel{
			Action: "line",
			Label:  "Line",
			Href:   "https://line.me/R/ti/p/@" + cfg.Line,
			Color:  "#00c300",
		})
	}

	if cfg.BookingShow {
		href := cfg.BookingFormURL
		if href == "" {
			href = "#"
		}
		model.Channels = append(model.Channels, Channel{
			Action: "book_technician",
			Label:  "Book a Technician",
			Href:   href,
			Color:  "#6f42c1",
		})
	}

	for i, custom := range cfg.CustomButtons {
		model.Channels = append(model.Channels, Channel{
			Action: fmt.Sprintf("custom_%d", i),
			Label:  custom.Label,
			Href:   custom.URL,
			Color:  custom.ColorCode,
			NewTab: custom.NewTab,
		})
	}

	return model
}

// ChannelByAction finds a channel in the model, for interaction handling.
func (m RenderModel) ChannelByAction(action string) (Channel, bool) {
	for _, ch := range m.Channels {
		if ch.Action == action {
			return ch, true
		}
	}
	return Channel{}, false
}
