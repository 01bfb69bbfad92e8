package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
)

func Test_sendgridService_prepare(t *testing.T) {
	conf := &core.Config{
		AppName:          "Darasa",
		DefaultFromEmail: mail.Address{Name: "Darasa", Address: "noreply@darasa.test"},
	}
	msg := core.EmailMessage{
		To:           []mail.Address{{Name: "Alice", Address: "alice@darasa.test"}},
		Bcc:          []mail.Address{{Address: "audit@darasa.test"}},
		Subject:      "Lab moved",
		TemplateName: "new_announcement",
		TextContent:  "text",
	}

	t.Run("live", func(t *testing.T) {
		svc := NewSendgridService(conf, nil).(*sendgridService)
		m := svc.prepare(msg)

		assert.Equal(t, "noreply@darasa.test", m.From.Address)
		require.Len(t, m.Personalizations, 1)
		p := m.Personalizations[0]
		assert.Equal(t, "[Darasa] Lab moved", p.Subject)
		require.Len(t, p.To, 1)
		assert.Equal(t, "alice@darasa.test", p.To[0].Address)
		require.Len(t, p.BCC, 1)
		assert.Equal(t, "audit@darasa.test", p.BCC[0].Address)
		require.Len(t, m.Content, 1) // no html part
		assert.Equal(t, "text/plain", m.Content[0].Type)
		assert.Equal(t, []string{"new_announcement"}, m.Categories)
		assert.Nil(t, m.MailSettings)
	})

	t.Run("test mode", func(t *testing.T) {
		testConf := *conf
		testConf.TestMode = true
		svc := NewSendgridService(&testConf, nil).(*sendgridService)

		plain := msg
		plain.TemplateName = ""
		plain.HTMLContent = "<p>html</p>"
		m := svc.prepare(plain)

		assert.Len(t, m.Content, 2)
		assert.Empty(t, m.Categories)
		require.NotNil(t, m.MailSettings)
		require.NotNil(t, m.MailSettings.SandboxMode)
		require.NotNil(t, m.MailSettings.SandboxMode.Enable)
		assert.True(t, *m.MailSettings.SandboxMode.Enable)
	})
}
