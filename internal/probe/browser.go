package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

const (
	interactionTimeout = 5 * time.Second
	mutationWait       = 3 * time.Second
	maxFieldFills      = 5
)

var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

// browserStrategy drives a real headless browser over the DevTools protocol.
// It is the only strategy that exercises JavaScript-rendered apps, so it sits
// first in the default ladder.
type browserStrategy struct {
	logger   *slog.Logger
	execPath string
}

func NewBrowser(logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &browserStrategy{logger: logger, execPath: findChrome()}
}

func findChrome() string {
	for _, bin := range chromeBinaries {
		if p, err := exec.LookPath(bin); err == nil {
			return p
		}
	}
	return ""
}

func (s *browserStrategy) ID() domain.StrategyID { return domain.StrategyBrowser }

func (s *browserStrategy) Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) (*domain.ProbeOutcome, error) {
	if s.execPath == "" {
		return nil, fmt.Errorf("%w: no chrome binary on PATH", domain.ErrEngineUnavailable)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(s.execPath),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var html string
	if err := chromedp.Run(bctx,
		chromedp.Navigate(inst.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: initial page load", domain.ErrProbeTimeout)
		}
		return nil, fmt.Errorf("browser page load: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	survey := surveyDocument(doc)
	out := &domain.ProbeOutcome{
		Strategy: s.ID(),
		Elements: survey.allCandidates(),
	}
	out.SubScores.AppLoads = maxAppLoads
	out.SubScores.Renders = scaleScore(maxRenders, len(out.Elements), 5)

	filled := s.fillFields(bctx, survey.Fields, out)

	// Submit / click the best button and watch for a reaction.
	buttonOK := false
	if best := pickBest(survey.Buttons); best != nil {
		buttonOK = s.clickAndObserve(bctx, best.Selector, out)
		if !buttonOK && out.Evidence == "" {
			out.Evidence = truncateEvidence(html)
		}
	}

	switch {
	case len(survey.Forms) > 0 && filled > 0 && buttonOK:
		out.SubScores.Forms = maxForms
	case len(survey.Forms) > 0:
		out.SubScores.Forms = maxForms / 2
	case exp.HasForm:
		out.Notes = append(out.Notes, "expected a form, none found")
	default:
		out.SubScores.Forms = maxForms
	}

	switch {
	case buttonOK:
		out.SubScores.Buttons = maxButtons
	case len(survey.Buttons) > 0:
		out.SubScores.Buttons = maxButtons / 2
	case exp.HasButtons:
		out.Notes = append(out.Notes, "expected buttons, none found")
	default:
		out.SubScores.Buttons = maxButtons
	}

	// Return home before trying navigation; the click above may have moved us.
	navText := ""
	navOK := false
	if len(survey.Links) > 0 {
		navText, navOK = s.followLink(bctx, inst.BaseURL, survey.Links[0].Selector, out)
	}
	switch {
	case navOK:
		out.SubScores.Navigation = maxNavigation
	case len(survey.Links) > 0:
		out.SubScores.Navigation = maxNavigation / 2
	case exp.HasNavigation:
		out.Notes = append(out.Notes, "expected navigation links, none found")
	default:
		out.SubScores.Navigation = maxNavigation
	}

	found, countable := requirementEvidence(survey.Text+"\n"+navText, exp.Requirements)
	if countable == 0 {
		out.SubScores.Requirements = maxRequirements
	} else {
		out.SubScores.Requirements = scaleScore(maxRequirements, found, countable)
	}

	return out, nil
}

func (s *browserStrategy) fillFields(bctx context.Context, fields []fieldCandidate, out *domain.ProbeOutcome) int {
	filled := 0
	for i, f := range fields {
		if i >= maxFieldFills {
			break
		}
		out.Attempted++
		actx, cancel := context.WithTimeout(bctx, interactionTimeout)
		err := chromedp.Run(actx, chromedp.SendKeys(f.Selector, syntheticValue(f.Intent), chromedp.ByQuery))
		cancel()
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("fill %s: %v", f.Selector, err))
			metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
			continue
		}
		out.Succeeded++
		filled++
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "ok").Inc()
	}
	return filled
}

// clickAndObserve clicks the selector and reports whether the page visibly
// reacted: a navigation, a DOM text change, or a success/error indicator.
func (s *browserStrategy) clickAndObserve(bctx context.Context, selector string, out *domain.ProbeOutcome) bool {
	out.Attempted++

	var beforeText, beforeLoc string
	actx, cancel := context.WithTimeout(bctx, interactionTimeout)
	err := chromedp.Run(actx,
		chromedp.Location(&beforeLoc),
		chromedp.Text("body", &beforeText, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("click %s: %v", selector, err))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
		return false
	}

	deadline := time.Now().Add(mutationWait)
	for time.Now().Before(deadline) {
		var text, loc string
		actx, cancel := context.WithTimeout(bctx, interactionTimeout)
		err := chromedp.Run(actx,
			chromedp.Location(&loc),
			chromedp.Text("body", &text, chromedp.ByQuery),
		)
		cancel()
		if err == nil && (loc != beforeLoc || text != beforeText || hasIndicator(text)) {
			out.Succeeded++
			metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "ok").Inc()
			return true
		}
		select {
		case <-bctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
	out.Errors = append(out.Errors, fmt.Sprintf("click %s: no observable reaction", selector))
	metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "rejected").Inc()
	return false
}

func (s *browserStrategy) followLink(bctx context.Context, baseURL, selector string, out *domain.ProbeOutcome) (string, bool) {
	out.Attempted++
	var beforeLoc, afterLoc, text string
	actx, cancel := context.WithTimeout(bctx, interactionTimeout)
	defer cancel()
	err := chromedp.Run(actx,
		chromedp.Navigate(baseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&beforeLoc),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&afterLoc),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("navigate %s: %v", selector, err))
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "error").Inc()
		return "", false
	}
	if afterLoc == beforeLoc {
		out.Notes = append(out.Notes, "link click did not change location")
		metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "rejected").Inc()
		return text, false
	}
	out.Succeeded++
	metrics.ProbeInteractionsTotal.WithLabelValues(string(s.ID()), "ok").Inc()
	return text, true
}

func hasIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range []string{"success", "thank", "sucesso", "obrigado", "error", "erro", "invalid"} {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
