package probe

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// pageSurvey is the result of one discovery pass over served markup. All
// strategies parse HTML the same way; only interaction differs.
type pageSurvey struct {
	Fields  []fieldCandidate
	Buttons []domain.ElementCandidate
	Links   []linkCandidate
	Forms   []formCandidate
	Text    string
}

type fieldCandidate struct {
	domain.ElementCandidate
	Intent string
	Name   string
}

type linkCandidate struct {
	domain.ElementCandidate
	Href string
}

type formCandidate struct {
	domain.ElementCandidate
	Action string
	Method string
	Fields []fieldCandidate
}

func (s *pageSurvey) allCandidates() []domain.ElementCandidate {
	out := make([]domain.ElementCandidate, 0,
		len(s.Forms)+len(s.Fields)+len(s.Buttons)+len(s.Links))
	for _, f := range s.Forms {
		out = append(out, f.ElementCandidate)
	}
	for _, f := range s.Fields {
		out = append(out, f.ElementCandidate)
	}
	out = append(out, s.Buttons...)
	for _, l := range s.Links {
		out = append(out, l.ElementCandidate)
	}
	return out
}

// surveyDocument discovers forms, fields, buttons and links in document
// order, scoring each candidate with the signal weights from match.go.
func surveyDocument(doc *goquery.Document) *pageSurvey {
	s := &pageSurvey{Text: strings.TrimSpace(doc.Find("body").Text())}
	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		fc := formCandidate{
			ElementCandidate: domain.ElementCandidate{
				Role:       domain.RoleForm,
				Selector:   cssSelector(sel),
				Confidence: 1.0,
				Signals:    []string{"tag:form"},
			},
			Action: sel.AttrOr("action", ""),
			Method: strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", "GET"))),
		}
		if fc.Method == "" {
			fc.Method = "GET"
		}
		sel.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
			if f, ok := surveyField(doc, in); ok {
				fc.Fields = append(fc.Fields, f)
			}
		})
		s.Forms = append(s.Forms, fc)
		s.Fields = append(s.Fields, fc.Fields...)
	})

	// Fields outside any form still count for rendering and interaction.
	doc.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
		if in.Closest("form").Length() > 0 {
			return
		}
		if f, ok := surveyField(doc, in); ok {
			s.Fields = append(s.Fields, f)
		}
	})

	doc.Find("button, input[type=submit], input[type=button], [role=button]").Each(func(_ int, b *goquery.Selection) {
		text := strings.TrimSpace(b.Text())
		if text == "" {
			text = b.AttrOr("value", "")
		}
		conf, matched := classifyButton(buttonSignals{
			Type: b.AttrOr("type", ""),
			Text: text,
			Role: b.AttrOr("role", ""),
		})
		s.Buttons = append(s.Buttons, domain.ElementCandidate{
			Role:       domain.RoleButton,
			Selector:   cssSelector(b),
			Confidence: conf,
			Signals:    matched,
		})
	})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		conf := weightRoleAttr
		signals := []string{"tag:a"}
		if strings.TrimSpace(a.Text()) != "" {
			conf = weightLabel
			signals = append(signals, "text")
		}
		s.Links = append(s.Links, linkCandidate{
			ElementCandidate: domain.ElementCandidate{
				Role:       domain.RoleLink,
				Selector:   cssSelector(a),
				Confidence: conf,
				Signals:    signals,
			},
			Href: href,
		})
	})

	return s
}

func surveyField(doc *goquery.Document, in *goquery.Selection) (fieldCandidate, bool) {
	typ := strings.ToLower(in.AttrOr("type", "text"))
	switch typ {
	case "hidden", "submit", "button", "reset", "image", "file":
		return fieldCandidate{}, false
	}

	id := in.AttrOr("id", "")
	label := ""
	if id != "" {
		label = strings.TrimSpace(doc.Find(fmt.Sprintf("label[for=%q]", id)).Text())
	}
	if label == "" {
		label = strings.TrimSpace(in.Closest("label").Text())
	}

	sig := fieldSignals{
		Name:        in.AttrOr("name", ""),
		ID:          id,
		Placeholder: in.AttrOr("placeholder", ""),
		Label:       label,
		Type:        typ,
		Nearby:      strings.TrimSpace(in.Parent().Text()),
	}
	intent, conf, matched := classifyField(sig)
	return fieldCandidate{
		ElementCandidate: domain.ElementCandidate{
			Role:       domain.RoleField,
			Selector:   cssSelector(in),
			Confidence: conf,
			Signals:    matched,
		},
		Intent: intent,
		Name:   sig.Name,
	}, true
}

// cssSelector builds a selector usable both by goquery and by a real
// browser: #id when present, otherwise name-qualified, otherwise the
// element's nth-of-type position under its parent.
func cssSelector(sel *goquery.Selection) string {
	tag := goquery.NodeName(sel)
	if id := sel.AttrOr("id", ""); id != "" {
		return "#" + id
	}
	if name := sel.AttrOr("name", ""); name != "" {
		return fmt.Sprintf("%s[name=%q]", tag, name)
	}
	idx := sel.PrevAll().Filter(tag).Length() + 1
	if pid := sel.Parent().AttrOr("id", ""); pid != "" {
		return fmt.Sprintf("#%s > %s:nth-of-type(%d)", pid, tag, idx)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, idx)
}

// requirementEvidence counts the requirements whose keywords appear in the
// page text. Requirements with no keywords are not countable and are skipped.
func requirementEvidence(text string, reqs []domain.Requirement) (found, countable int) {
	lower := strings.ToLower(text)
	for _, r := range reqs {
		if len(r.Keywords) == 0 {
			continue
		}
		countable++
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				found++
				break
			}
		}
	}
	return found, countable
}
