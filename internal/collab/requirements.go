package collab

import (
	"regexp"
	"strings"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// RequirementsParser turns free-form assignment text into the expectations
// that steer element discovery.
type RequirementsParser interface {
	Parse(doc string) (domain.Expectations, error)
}

type keywordParser struct{}

func NewRequirementsParser() RequirementsParser { return &keywordParser{} }

var (
	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	wordRe   = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9-]{3,}`)

	formHints = []string{"form", "input", "submit", "register", "login", "sign up", "field", "cadastro", "formul"}
	navHints  = []string{"navigat", "page", "link", "menu", "route", "rota", "pagina", "página"}
	btnHints  = []string{"button", "click", "botão", "botao", "clic"}

	stopwords = map[string]bool{
		"must": true, "should": true, "will": true, "have": true, "with": true,
		"that": true, "this": true, "when": true, "user": true, "users": true,
		"application": true, "include": true, "allow": true, "display": true,
		"shall": true, "least": true, "each": true, "from": true, "into": true,
	}
)

func (p *keywordParser) Parse(doc string) (domain.Expectations, error) {
	exp := domain.Expectations{}
	lower := strings.ToLower(doc)
	exp.HasForm = containsAny(lower, formHints)
	exp.HasNavigation = containsAny(lower, navHints)
	exp.HasButtons = containsAny(lower, btnHints)

	for _, line := range strings.Split(doc, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[1])
		exp.Requirements = append(exp.Requirements, domain.Requirement{
			Text:     text,
			Keywords: significantWords(text),
		})
	}
	return exp, nil
}

func significantWords(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
