package probe

import (
	"sort"
	"strings"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// Signal weights for adaptive element matching. A candidate's confidence is
// its strongest matching signal, so an exact attribute hit always outranks
// nearby static text.
const (
	weightAttr        = 1.0
	weightPlaceholder = 0.9
	weightLabel       = 0.85
	weightType        = 0.7
	weightNearby      = 0.5

	weightSubmitType = 1.0
	weightActionVerb = 0.85
	weightRoleAttr   = 0.7

	genericFieldConfidence  = 0.3
	genericButtonConfidence = 0.4
)

// fieldSynonyms maps canonical field intents to the spellings seen in student
// markup. Matching is case-insensitive substring.
var fieldSynonyms = map[string][]string{
	"email":    {"email", "e-mail", "mail", "correo"},
	"password": {"password", "passwd", "pwd", "senha"},
	"name":     {"name", "nome", "fullname", "full-name", "username", "user"},
	"phone":    {"phone", "tel", "telefone", "mobile", "celular"},
	"search":   {"search", "query", "busca", "pesquisa"},
	"message":  {"message", "comment", "mensagem", "description", "body"},
	"date":     {"date", "data", "birthday", "dob"},
}

// Input types that directly name an intent.
var typeIntents = map[string]string{
	"email":    "email",
	"password": "password",
	"tel":      "phone",
	"search":   "search",
	"date":     "date",
}

var actionVerbs = []string{
	"submit", "send", "save", "add", "create", "login", "log in", "sign in",
	"sign up", "register", "search", "go", "ok", "enviar", "salvar", "entrar",
	"cadastrar", "buscar",
}

// fieldSignals is everything a strategy could observe about one input-like
// element, normalized to plain strings so browser and DOM strategies share
// the same scoring.
type fieldSignals struct {
	Name        string
	ID          string
	Placeholder string
	Label       string
	Type        string
	Nearby      string
}

// classifyField returns the best-matching intent for the field, the
// confidence of that match and the signal names that contributed. Fields with
// no intent match still come back as generic text fields at low confidence.
func classifyField(sig fieldSignals) (intent string, confidence float64, matched []string) {
	type hit struct {
		intent  string
		weight  float64
		signals []string
	}
	var best hit

	consider := func(intent string, weight float64, signal string) {
		if weight > best.weight || (weight == best.weight && best.intent == "") {
			best = hit{intent: intent, weight: weight, signals: []string{signal}}
		} else if weight == best.weight && intent == best.intent {
			best.signals = append(best.signals, signal)
		}
	}

	intents := make([]string, 0, len(fieldSynonyms))
	for it := range fieldSynonyms {
		intents = append(intents, it)
	}
	sort.Strings(intents)

	for _, it := range intents {
		for _, syn := range fieldSynonyms[it] {
			if containsFold(sig.Name, syn) || containsFold(sig.ID, syn) {
				consider(it, weightAttr, "attr:"+syn)
			}
			if containsFold(sig.Placeholder, syn) {
				consider(it, weightPlaceholder, "placeholder:"+syn)
			}
			if containsFold(sig.Label, syn) {
				consider(it, weightLabel, "label:"+syn)
			}
			if containsFold(sig.Nearby, syn) {
				consider(it, weightNearby, "nearby:"+syn)
			}
		}
	}
	if it, ok := typeIntents[strings.ToLower(strings.TrimSpace(sig.Type))]; ok {
		consider(it, weightType, "type:"+sig.Type)
	}

	if best.intent == "" {
		return "generic", genericFieldConfidence, nil
	}
	return best.intent, best.weight, best.signals
}

type buttonSignals struct {
	Type string
	Text string
	Role string
}

func classifyButton(sig buttonSignals) (confidence float64, matched []string) {
	if strings.EqualFold(strings.TrimSpace(sig.Type), "submit") {
		matched = append(matched, "type:submit")
		confidence = weightSubmitType
	}
	for _, verb := range actionVerbs {
		if containsFold(sig.Text, verb) {
			matched = append(matched, "text:"+verb)
			if confidence < weightActionVerb {
				confidence = weightActionVerb
			}
			break
		}
	}
	if strings.EqualFold(strings.TrimSpace(sig.Role), "button") {
		matched = append(matched, "role:button")
		if confidence < weightRoleAttr {
			confidence = weightRoleAttr
		}
	}
	if confidence == 0 {
		confidence = genericButtonConfidence
	}
	return confidence, matched
}

// pickBest selects the highest-confidence candidate. Candidates arrive in
// document order, so on equal confidence the earlier one wins.
func pickBest(cands []domain.ElementCandidate) *domain.ElementCandidate {
	var best *domain.ElementCandidate
	for i := range cands {
		if best == nil || cands[i].Confidence > best.Confidence {
			best = &cands[i]
		}
	}
	return best
}

func filterRole(cands []domain.ElementCandidate, role domain.ElementRole) []domain.ElementCandidate {
	var out []domain.ElementCandidate
	for _, c := range cands {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
