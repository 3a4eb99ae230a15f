package mailer

import (
	"fmt"
	"net/smtp"
)

// Mailer sends transactional email through SMTP
type Mailer struct {
	host     string
	port     string
	user     string
	password string
	from     string
	appURL   string
}

var sender *Mailer

// Initialize configures the package-level mailer
func Initialize(host, port, user, password, from, appURL string) {
	sender = &Mailer{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		appURL:   appURL,
	}
}

// SendVerificationEmail sends the account verification link for a freshly
// registered organization
func SendVerificationEmail(to, name, token string) error {
	if sender == nil {
		return fmt.Errorf("mailer not initialized")
	}
	verifyURL := fmt.Sprintf("%s/api/auth/verify/%s", sender.appURL, token)

	body := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>¡Hola %s!</h2>
			<p>Gracias por registrarte en GeoMun. Haz clic en el siguiente botón para verificar tu cuenta:</p>
			<p style="text-align: center; margin: 30px 0;">
				<a href="%s"
					 style="background: #6366f1; color: white; padding: 12px 30px; border-radius: 8px; text-decoration: none; font-weight: bold;">
					Verificar mi cuenta
				</a>
			</p>
			<p style="color: #666; font-size: 14px;">Este enlace expira en 24 horas.</p>
			<p style="color: #666; font-size: 14px;">Si no creaste esta cuenta, ignora este correo.</p>
		</div>
	`, name, verifyURL)

	return sender.send(to, "Verifica tu cuenta en Mapas by Pixel", body)
}

// send delivers an HTML email with subject and body
func (m *Mailer) send(to, subject, body string) error {
	if m.host == "" || m.port == "" || m.user == "" || m.password == "" {
		return fmt.Errorf("missing SMTP configuration")
	}

	// Compose the email message (with Subject + HTML Body)
	msg := []byte(fmt.Sprintf(
		"From: GeoMun <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		m.from, to, subject, body,
	))

	auth := smtp.PlainAuth("", m.user, m.password, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg)
}
