package auth

import (
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateSuccess       = "success.html"
	templateError         = "error.html"
	templateSecurityError = "security_error.html"
	templateTokenError    = "token_error.html"
)

// pageData is rendered into every callback page; Account is display-only
type pageData struct {
	Title    string
	Theme    string
	Platform string
	Account  string
	Message  string
}

func loadTemplates() *template.Template {
	return template.Must(template.New("pages").ParseFS(templateFS, "templates/*.html"))
}

func newPageData(provider Provider, account, title, message string) pageData {
	return pageData{
		Title:    title,
		Theme:    strings.ToLower(string(provider.Platform())),
		Platform: provider.DisplayName(),
		Account:  account,
		Message:  message,
	}
}
