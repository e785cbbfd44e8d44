// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package email

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

//go:embed templates/*.html
var templateFS embed.FS

// supported lists the locales with translations; the first is the default.
var supported = []language.Tag{language.English, language.Spanish}

// messages holds every localized string, keyed by message key.
var messages = map[string]map[language.Tag]string{
	"email.common.greeting":             {language.English: "Hello %s,", language.Spanish: "Hola %s,"},
	"email.common.recipientFallback":    {language.English: "there", language.Spanish: "inversor"},
	"email.common.details":              {language.English: "Details", language.Spanish: "Detalles"},
	"email.alert.subject":               {language.English: "Alert: %s", language.Spanish: "Alerta: %s"},
	"email.alert.intro":                 {language.English: "We detected a new alert for %s.", language.Spanish: "Detectamos una nueva alerta para %s."},
	"email.alert.summary":               {language.English: "We spotted unusual activity affecting %s. Here is the snapshot so you can respond confidently.", language.Spanish: "Registramos actividad inusual en %s. A continuación, un resumen para que puedas actuar con rapidez."},
	"email.alert.severity":              {language.English: "Severity", language.Spanish: "Severidad"},
	"email.alert.occurredAt":            {language.English: "Detected at", language.Spanish: "Detectada el"},
	"email.alert.holdings.title":        {language.English: "Your holdings in this asset", language.Spanish: "Tus posiciones en este activo"},
	"email.alert.holdings.empty":        {language.English: "You currently have no holdings for %s.", language.Spanish: "Actualmente no tienes posiciones en %s."},
	"email.alert.holdings.portfolio":    {language.English: "Portfolio", language.Spanish: "Cartera"},
	"email.alert.holdings.quantity":     {language.English: "Quantity", language.Spanish: "Cantidad"},
	"email.alert.holdings.avgCost":      {language.English: "Average cost", language.Spanish: "Costo promedio"},
	"email.alert.holdings.updatedAt":    {language.English: "Updated", language.Spanish: "Actualizado"},
	"email.alert.footer":                {language.English: "You received this alert based on your current notification preferences.", language.Spanish: "Recibiste este aviso según tus preferencias de notificación vigentes."},
	"email.recommendation.subject":      {language.English: "Recommendation: %s", language.Spanish: "Recomendación: %s"},
	"email.recommendation.intro":        {language.English: "Here is a new recommendation for %s.", language.Spanish: "Tenemos una nueva recomendación para %s."},
	"email.recommendation.kind":         {language.English: "Recommendation type", language.Spanish: "Tipo de recomendación"},
	"email.recommendation.highlights":   {language.English: "Highlights", language.Spanish: "Puntos clave"},
	"email.recommendation.cta":          {language.English: "Review your dashboard to take action.", language.Spanish: "Consulta tu panel para tomar acción."},
}

// TemplateRenderer renders the embedded HTML templates with subjects and
// copy localized through an x/text message catalog.
type TemplateRenderer struct {
	templates *template.Template
	catalog   *catalog.Builder
	matcher   language.Matcher
}

// NewTemplateRenderer parses the embedded templates and builds the catalog.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	b := catalog.NewBuilder(catalog.Fallback(supported[0]))
	for key, byLang := range messages {
		for tag, msg := range byLang {
			if err := b.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("catalog %s/%s: %w", tag, key, err)
			}
		}
	}

	return &TemplateRenderer{
		templates: tmpl,
		catalog:   b,
		matcher:   language.NewMatcher(supported),
	}, nil
}

// view is the template context.
type view struct {
	Data          map[string]any
	RecipientName string
	SubjectTarget string
	HasHoldings   bool
	Holdings      []any
	printer       *message.Printer
}

// T returns the localized message for key.
func (v view) T(key string, args ...any) string {
	return v.printer.Sprintf(key, args...)
}

// Render resolves the template from the key prefix before the first '.',
// falling back to the part before a '-' variant suffix.
func (r *TemplateRenderer) Render(_ context.Context, templateKey, locale string, data json.RawMessage) (Rendered, error) {
	name, tmpl := r.lookup(templateKey)
	if tmpl == nil {
		return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateKey)
	}

	vars, err := toVariables(data)
	if err != nil {
		return Rendered{}, err
	}

	p := message.NewPrinter(r.match(locale), message.Catalog(r.catalog))
	v := view{
		Data:          vars,
		SubjectTarget: subjectTarget(vars),
		printer:       p,
	}
	v.RecipientName = stringVar(vars, "recipientName")
	if v.RecipientName == "" {
		v.RecipientName = p.Sprintf("email.common.recipientFallback")
	}
	if h, ok := vars["holdings"]; ok {
		v.HasHoldings = true
		v.Holdings, _ = h.([]any)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, v); err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", name, err)
	}

	return Rendered{
		Subject: r.subject(p, name, v.SubjectTarget, vars),
		Body:    body.String(),
	}, nil
}

func (r *TemplateRenderer) lookup(templateKey string) (string, *template.Template) {
	name, _, _ := strings.Cut(templateKey, ".")
	if t := r.templates.Lookup(name + ".html"); t != nil {
		return name, t
	}
	if base, _, ok := strings.Cut(name, "-"); ok {
		if t := r.templates.Lookup(base + ".html"); t != nil {
			return base, t
		}
	}
	return name, nil
}

func (r *TemplateRenderer) match(locale string) language.Tag {
	if locale == "" {
		return supported[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return supported[0]
	}
	_, idx, _ := r.matcher.Match(tag)
	return supported[idx]
}

// subject formats email.<name>.subject. Templates other than alert and
// recommendation prefer data.title over the subject target. A missing key
// yields the key itself.
func (r *TemplateRenderer) subject(p *message.Printer, name, target string, vars map[string]any) string {
	key := "email." + name + ".subject"
	if _, ok := messages[key]; !ok {
		return key
	}
	arg := target
	if name != "alert" && name != "recommendation" {
		if title := stringVar(vars, "title"); title != "" {
			arg = title
		}
	}
	return p.Sprintf(key, arg)
}

func toVariables(data json.RawMessage) (map[string]any, error) {
	vars := map[string]any{}
	if len(data) == 0 {
		return vars, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode template data: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return vars, nil
}

func subjectTarget(vars map[string]any) string {
	for _, k := range []string{"symbol", "title"} {
		if v, ok := vars[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return "item"
}

func stringVar(vars map[string]any, key string) string {
	s, _ := vars[key].(string)
	return strings.TrimSpace(s)
}
