package reminder

import (
	"strings"
	"text/template"
	"time"

	"github.com/aliskhannn/shipping-reminder/internal/model"
)

const defaultTemplate = `Hello {{.CustomerName}}, a friendly reminder that your shipment registered on {{.CreatedAt.Format "2006-01-02"}} is still waiting for you. Please contact us to arrange delivery.`

// TemplateData is what a reminder template can reference.
type TemplateData struct {
	ID           string
	CustomerName string
	Phone        string
	CreatedAt    time.Time
}

// ParseTemplate parses a reminder template; an empty text selects the default.
func ParseTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultTemplate
	}

	return template.New("reminder").Option("missingkey=error").Parse(text)
}

// Render executes tmpl for n.
func Render(tmpl *template.Template, n model.Notification) (string, error) {
	var b strings.Builder
	err := tmpl.Execute(&b, TemplateData{
		ID:           n.ID,
		CustomerName: n.CustomerName,
		Phone:        n.PhoneNumber,
		CreatedAt:    n.CreatedAt,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(b.String()), nil
}
