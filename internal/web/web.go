// Package web embeds the dashboard's html templates and static assets.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"
	"unicode/utf8"

	"email-monitor-go/internal/models"
)

//go:embed templates static
var assets embed.FS

// FuncMap holds the helpers available to every template
var FuncMap = template.FuncMap{
	"toJSON": func(v interface{}) template.JS {
		data, err := json.Marshal(v)
		if err != nil {
			return template.JS("null")
		}
		return template.JS(data)
	},
	"truncate": func(s string, n int) string {
		if utf8.RuneCountInString(s) <= n {
			return s
		}
		return string([]rune(s)[:n]) + "…"
	},
	"formatTime": func(t interface{}) string {
		switch v := t.(type) {
		case time.Time:
			if v.IsZero() {
				return ""
			}
			return v.UTC().Format("2006-01-02 15:04:05")
		case models.Timestamp:
			if v.IsZero() {
				return ""
			}
			return v.UTC().Format("2006-01-02 15:04:05")
		default:
			return fmt.Sprint(v)
		}
	},
	"thousands": func(n int64) string {
		s := fmt.Sprintf("%d", n)
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		var b strings.Builder
		for i, r := range s {
			if i > 0 && (len(s)-i)%3 == 0 {
				b.WriteByte(',')
			}
			b.WriteRune(r)
		}
		if neg {
			return "-" + b.String()
		}
		return b.String()
	},
}

// Templates parses all embedded templates
func Templates() (*template.Template, error) {
	t, err := template.New("").Funcs(FuncMap).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return t, nil
}

// Static returns the embedded static directory
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static directory missing: %v", err))
	}
	return sub
}
