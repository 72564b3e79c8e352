package utils

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"cedra_storefront/internal/models"
)

type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer envoie les e-mails transactionnels. Sans SMTP_HOST il est désactivé.
type Mailer struct {
	cfg MailerConfig
}

func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

var orderConfirmationTmpl = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirmation de votre commande n°{{.Order.ID}}</h2>
		<p>Bonjour {{.Name}},</p>
		<p>Votre commande du {{.Date}} a bien été enregistrée (statut : {{.Order.Status}}).</p>
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 10px; text-align: left;">Produit</th>
					<th style="padding: 10px; text-align: left;">Quantité</th>
					<th style="padding: 10px; text-align: left;">Prix unitaire</th>
					<th style="padding: 10px; text-align: left;">Total</th>
				</tr>
			</thead>
			<tbody>
			{{range .Lines}}<tr>
				<td style="padding: 10px;">{{.Title}}</td>
				<td style="padding: 10px;">{{.Quantity}}</td>
				<td style="padding: 10px;">{{.Price}} €</td>
				<td style="padding: 10px;">{{.Total}} €</td>
			</tr>{{end}}
			</tbody>
			<tfoot>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total :</td>
					<td style="padding: 10px; font-weight: bold;">{{.Total}} €</td>
				</tr>
			</tfoot>
		</table>
		<p style="margin-top: 30px; color: #555;">Cordialement,<br><strong>L'équipe Cedra</strong></p>
	</div>
</body>
</html>`))

type confirmationLine struct {
	Title    string
	Quantity int
	Price    string
	Total    string
}

// RenderOrderConfirmation produit le corps HTML. titles associe product_id → titre;
// une ligne sans titre connu affiche "Produit #id".
func RenderOrderConfirmation(name string, order models.Order, titles map[int64]string) (string, error) {
	lines := make([]confirmationLine, 0, len(order.Items))
	for _, item := range order.Items {
		title := "Produit retiré du catalogue"
		if item.ProductID != nil {
			title = fmt.Sprintf("Produit #%d", *item.ProductID)
			if t, ok := titles[*item.ProductID]; ok {
				title = t
			}
		}
		lines = append(lines, confirmationLine{
			Title:    title,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
			Total:    item.LineTotal().StringFixed(2),
		})
	}

	var buf bytes.Buffer
	err := orderConfirmationTmpl.Execute(&buf, map[string]any{
		"Name":  name,
		"Order": order,
		"Date":  order.CreatedAt.Format("02/01/2006 15:04"),
		"Lines": lines,
		"Total": order.Total.StringFixed(2),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildOrderConfirmation assemble le message complet avec le QR du reçu en pièce jointe
func (m *Mailer) BuildOrderConfirmation(to, name string, order models.Order, titles map[int64]string) (*mail.Msg, error) {
	body, err := RenderOrderConfirmation(name, order, titles)
	if err != nil {
		return nil, fmt.Errorf("rendu e-mail: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(fmt.Sprintf("Confirmation de votre commande n°%d", order.ID))
	msg.SetBodyString(mail.TypeTextHTML, body)
	msg.AddAlternativeString(mail.TypeTextPlain, fmt.Sprintf(
		"Votre commande n°%d d'un total de %s € a bien été enregistrée.", order.ID, order.Total.StringFixed(2)))

	qr, err := OrderReceiptQR(order, 256)
	if err != nil {
		return nil, err
	}
	if err := msg.AttachReader(fmt.Sprintf("commande_%d.png", order.ID), bytes.NewReader(qr)); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendOrderConfirmation envoie la confirmation; l'appelant le lance en arrière-plan
func (m *Mailer) SendOrderConfirmation(ctx context.Context, to, name string, order models.Order, titles map[int64]string) error {
	if !m.Enabled() {
		return nil
	}
	msg, err := m.BuildOrderConfirmation(to, name, order, titles)
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

// SendWelcome envoie l'e-mail de bienvenue après inscription
func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	if !m.Enabled() {
		return nil
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject("🎉 Bienvenue sur Cedra !")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Bonjour %s,\n\nVotre compte Cedra est prêt.\n\nL'équipe Cedra", name))
	return m.send(ctx, msg)
}

func (m *Mailer) send(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("client smtp: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("envoi e-mail: %w", err)
	}
	return nil
}

