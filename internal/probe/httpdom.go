package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// httpDOMStrategy exercises the instance without a browser: it fetches the
// served markup, discovers elements in it, replays form submissions as plain
// HTTP requests and follows the first navigation link. JavaScript-rendered
// apps score poorly here; that is what the browser strategy is for.
type httpDOMStrategy struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPDOM(logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &httpDOMStrategy{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

func (s *httpDOMStrategy) ID() domain.StrategyID { return domain.StrategyHTTPDOM }

func (s *httpDOMStrategy) Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) (*domain.ProbeOutcome, error) {
	base, err := url.Parse(inst.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	home, homeHTML, err := s.fetch(ctx, inst.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("page load: %w", err)
	}

	survey := surveyDocument(home)
	out := &domain.ProbeOutcome{
		Strategy: s.ID(),
		Elements: survey.allCandidates(),
	}
	out.SubScores.AppLoads = maxAppLoads
	out.SubScores.Renders = scaleScore(maxRenders, len(out.Elements), 5)

	pageText := survey.Text

	// Forms: replay the best form as the HTTP request the browser would send.
	switch {
	case len(survey.Forms) > 0:
		formOK := s.submitForm(ctx, base, survey.Forms[0], out)
		if formOK {
			out.SubScores.Forms = maxForms
		} else {
			out.SubScores.Forms = maxForms / 2
			out.Evidence = truncateEvidence(homeHTML)
		}
	case exp.HasForm:
		out.Notes = append(out.Notes, "expected a form, none found")
	default:
		out.SubScores.Forms = maxForms
		out.Notes = append(out.Notes, "no form present or expected")
	}

	// Buttons: without a JS runtime a click is observable only through the
	// form it submits, so button credit follows the form interaction.
	switch {
	case len(survey.Buttons) > 0 && out.SubScores.Forms == maxForms:
		out.SubScores.Buttons = maxButtons
	case len(survey.Buttons) > 0:
		out.SubScores.Buttons = maxButtons / 2
	case exp.HasButtons:
		out.Notes = append(out.Notes, "expected buttons, none found")
	default:
		out.SubScores.Buttons = maxButtons
	}

	// Navigation: follow the first link and require different content.
	switch {
	case len(survey.Links) > 0:
		navText, navOK := s.followLink(ctx, base, survey.Links[0], pageText, out)
		if navOK {
			out.SubScores.Navigation = maxNavigation
			pageText += "\n" + navText
		} else {
			out.SubScores.Navigation = maxNavigation / 2
		}
	case exp.HasNavigation:
		out.Notes = append(out.Notes, "expected navigation links, none found")
	default:
		out.SubScores.Navigation = maxNavigation
	}

	found, countable := requirementEvidence(pageText, exp.Requirements)
	if countable == 0 {
		out.SubScores.Requirements = maxRequirements
	} else {
		out.SubScores.Requirements = scaleScore(maxRequirements, found, countable)
	}

	return out, nil
}

func (s *httpDOMStrategy) fetch(ctx context.Context, rawURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, "", err
	}
	return doc, string(body), nil
}

func (s *httpDOMStrategy) submitForm(ctx context.Context, base *url.URL, form formCandidate, out *domain.ProbeOutcome) bool {
	out.Attempted++
	values := url.Values{}
	for _, f := range form.Fields {
		if f.Name == "" {
			continue
		}
		values.Set(f.Name, syntheticValue(f.Intent))
	}

	target := base
	if form.Action != "" {
		if ref, err := url.Parse(form.Action); err == nil {
			target = base.ResolveReference(ref)
		}
	}

	var req *http.Request
	var err error
	if form.Method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		u := *target
		u.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("form %s: %v", form.Selector, err))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("form %s: %v", form.Selector, err))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		out.Errors = append(out.Errors, fmt.Sprintf("form %s: status %d", form.Selector, resp.StatusCode))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "rejected").Inc()
		return false
	}
	out.Succeeded++
	metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "ok").Inc()
	return true
}

func (s *httpDOMStrategy) followLink(ctx context.Context, base *url.URL, link linkCandidate, homeText string, out *domain.ProbeOutcome) (string, bool) {
	ref, err := url.Parse(link.Href)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("link %s: %v", link.Selector, err))
		return "", false
	}
	target := base.ResolveReference(ref)
	if target.Host != base.Host {
		out.Notes = append(out.Notes, "first link leaves the app, navigation not verified")
		return "", false
	}

	out.Attempted++
	doc, _, err := s.fetch(ctx, target.String())
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("link %s: %v", link.Selector, err))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
		return "", false
	}
	text := strings.TrimSpace(doc.Find("body").Text())
	if text == strings.TrimSpace(homeText) && target.Path == base.Path {
		out.Notes = append(out.Notes, "navigation target served identical content")
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "rejected").Inc()
		return text, false
	}
	out.Succeeded++
	metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "ok").Inc()
	return text, true
}
