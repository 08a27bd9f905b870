package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// staticStrategy is the last rung of the ladder: one GET, markup inspection,
// zero interactions. Interactive sub-scores are capped at half credit because
// nothing was actually exercised.
type staticStrategy struct {
	client *http.Client
	logger *slog.Logger
}

func NewStatic(logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &staticStrategy{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *staticStrategy) ID() domain.StrategyID { return domain.StrategyStatic }

func (s *staticStrategy) Run(ctx context.Context, inst *domain.RunningInstance, exp domain.Expectations) (*domain.ProbeOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page load: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page load: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("page load: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	survey := surveyDocument(doc)
	out := &domain.ProbeOutcome{
		Strategy: s.ID(),
		Elements: survey.allCandidates(),
		Notes:    []string{"static inspection only, no interactions performed"},
	}
	out.SubScores.AppLoads = maxAppLoads
	out.SubScores.Renders = scaleScore(maxRenders, len(out.Elements), 5)

	if len(survey.Forms) > 0 {
		out.SubScores.Forms = maxForms / 2
	} else if exp.HasForm {
		out.Notes = append(out.Notes, "expected a form, none found")
	}
	if len(survey.Buttons) > 0 {
		out.SubScores.Buttons = maxButtons / 2
	} else if exp.HasButtons {
		out.Notes = append(out.Notes, "expected buttons, none found")
	}
	if len(survey.Links) > 0 {
		out.SubScores.Navigation = maxNavigation / 2
	} else if exp.HasNavigation {
		out.Notes = append(out.Notes, "expected navigation links, none found")
	}

	found, countable := requirementEvidence(survey.Text, exp.Requirements)
	if countable == 0 {
		out.SubScores.Requirements = maxRequirements / 2
	} else {
		out.SubScores.Requirements = scaleScore(maxRequirements, found, countable)
	}

	return out, nil
}
