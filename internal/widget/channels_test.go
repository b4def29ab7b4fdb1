package widget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wibi/internal/backend"
	"wibi/internal/widget"
)

// mondayMorning falls inside the default business hours window.
var mondayMorning = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

// sundayNight falls outside it.
var sundayNight = time.Date(2026, time.March, 1, 22, 0, 0, 0, time.UTC)

func TestBuildRenderModelDefaults(t *testing.T) {
	model := widget.BuildRenderModel(&backend.WidgetConfig{}, mondayMorning)

	assert.Equal(t, "right", model.Position)
	assert.Equal(t, "Contact Us", model.Label)
	assert.Empty(t, model.Channels)
	assert.False(t, model.Branding)
}

func TestBuildRenderModelChannelOrder(t *testing.T) {
	cfg := &backend.WidgetConfig{
		PhoneShow:    true,
		PNumber:      "0115550100",
		WhatsAppShow: true,
		WNumber:      "27115550100",
		EmailShow:    true,
		Email:        "hello@example.com",
		TelegramShow: true,
		TelegramNum:  "wibi_support",
		BrandingShow: true,
	}

	model := widget.BuildRenderModel(cfg, mondayMorning)

	require.Len(t, model.Channels, 4)
	assert.Equal(t, "call", model.Channels[0].Action)
	assert.Equal(t, "whatsapp", model.Channels[1].Action)
	assert.Equal(t, "email", model.Channels[2].Action)
	assert.Equal(t, "telegram", model.Channels[3].Action)
	assert.True(t, model.Branding)
}

func TestBuildRenderModelPhoneNumberNormalized(t *testing.T) {
	cfg := &backend.WidgetConfig{PhoneShow: true, PNumber: "011 555 0100"}

	model := widget.BuildRenderModel(cfg, mondayMorning)

	require.Len(t, model.Channels, 1)
	assert.Equal(t, "tel:27115550100", model.Channels[0].Href)
}

func TestBuildRenderModelCallHiddenOutsideBusinessHours(t *testing.T) {
	cfg := &backend.WidgetConfig{
		PhoneShow:    true,
		PNumber:      "27115550100",
		WhatsAppShow: true,
		WNumber:      "27115550100",
	}

	model := widget.BuildRenderModel(cfg, sundayNight)

	require.Len(t, model.Channels, 1)
	assert.Equal(t, "whatsapp", model.Channels[0].Action)
}

func TestBuildRenderModelCustomSchedule(t *testing.T) {
	cfg := &backend.WidgetConfig{
		PhoneShow: true,
		PNumber:   "27115550100",
		BusinessHours: &backend.BusinessHoursConfig{
			Enabled:   true,
			StartDay:  int(time.Sunday),
			EndDay:    int(time.Saturday),
			StartHour: 0,
			EndHour:   23,
			EndMinute: 59,
		},
	}

	model := widget.BuildRenderModel(cfg, sundayNight)
	require.Len(t, model.Channels, 1)
	assert.Equal(t, "call", model.Channels[0].Action)
}

func TestBuildRenderModelDisabledScheduleAlwaysOpen(t *testing.T) {
	cfg := &backend.WidgetConfig{
		PhoneShow:     true,
		PNumber:       "27115550100",
		BusinessHours: &backend.BusinessHoursConfig{Enabled: false},
	}

	model := widget.BuildRenderModel(cfg, sundayNight)
	require.Len(t, model.Channels, 1)
}

func TestBuildRenderModelEndMinuteBoundary(t *testing.T) {
	cfg := &backend.WidgetConfig{PhoneShow: true, PNumber: "27115550100"}

	// Default window closes Monday 13:30; 13:30 itself is still open.
	atClose := time.Date(2026, time.March, 2, 13, 30, 0, 0, time.UTC)
	pastClose := time.Date(2026, time.March, 2, 13, 31, 0, 0, time.UTC)

	assert.Len(t, widget.BuildRenderModel(cfg, atClose).Channels, 1)
	assert.Empty(t, widget.BuildRenderModel(cfg, pastClose).Channels)
}

func TestBuildRenderModelWhatsAppURL(t *testing.T) {
	cfg := &backend.WidgetConfig{
		WhatsAppShow:    true,
		WNumber:         "27115550100",
		WhatsAppMessage: "Hello there",
	}

	model := widget.BuildRenderModel(cfg, mondayMorning)

	require.Len(t, model.Channels, 1)
	assert.Equal(t,
		"https://api.whatsapp.com/send?phone=27115550100&text=Hello+there",
		model.Channels[0].Href)
}

func TestBuildRenderModelCustomButtons(t *testing.T) {
	cfg := &backend.WidgetConfig{
		WhatsAppShow: true,
		WNumber:      "27115550100",
		CustomButtons: []backend.CustomButton{
			{Label: "Get a Quote", URL: "https://example.com/quote", NewTab: true},
		},
	}

	model := widget.BuildRenderModel(cfg, mondayMorning)

	require.Len(t, model.Channels, 2)
	custom := model.Channels[1]
	assert.Equal(t, "custom_0", custom.Action)
	assert.Equal(t, "Get a Quote", custom.Label)
	assert.True(t, custom.NewTab)
}

func TestChannelByAction(t *testing.T) {
	cfg := &backend.WidgetConfig{EmailShow: true, Email: "x@example.com"}
	model := widget.BuildRenderModel(cfg, mondayMorning)

	channel, ok := model.ChannelByAction("email")
	require.True(t, ok)
	assert.Contains(t, channel.Href, "mailto:x@example.com")

	_, ok = model.ChannelByAction("fax")
	assert.False(t, ok)
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already international", input: "27115550100", want: "27115550100"},
		{name: "national with leading zero", input: "0115550100", want: "27115550100"},
		{name: "bare nine digits", input: "115550100", want: "27115550100"},
		{name: "formatted", input: "(011) 555-0100", want: "27115550100"},
		{name: "plus prefix", input: "+27 11 555 0100", want: "27115550100"},
		{name: "unrecognized length", input: "12345", want: "12345"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, widget.FormatPhone(tt.input, "27"))
		})
	}
}

func TestFormatPhoneOtherCountryPassesThrough(t *testing.T) {
	assert.Equal(t, "442071234567", widget.FormatPhone("+44 20 7123 4567", "44"))
}
