package report

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/resilience"
	"github.com/tikun-labs/sefirot-cli/pkg/notion"
)

// Publisher posts run summaries to a Notion database, one page per run.
// Pages are keyed by run ID, so republishing a run updates its existing
// page instead of creating a duplicate.
type Publisher struct {
	client notion.Client
	dbID   string
	retry  resilience.RetryConfig
}

// PublisherOption configures the publisher.
type PublisherOption func(*Publisher)

// WithRetry overrides the retry policy for page writes.
func WithRetry(cfg resilience.RetryConfig) PublisherOption {
	return func(p *Publisher) {
		p.retry = cfg
	}
}

// NewPublisher creates a publisher targeting the given database.
func NewPublisher(client notion.Client, dbID string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client: client,
		dbID:   dbID,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish upserts a page titled with the case name and carrying the run's
// status, quality, average score and go/no-go decision as properties. The
// lookup and write happen inside one retry unit so a transient failure
// anywhere in the sequence retries the whole upsert.
func (p *Publisher) Publish(ctx context.Context, result *model.PipelineResult) error {
	props := buildRunProperties(result)

	cfg := p.retry
	cfg.OnRetry = resilience.RetryLogger("report", "notion publish")

	var updated bool
	page, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*notionapi.Page, error) {
		existing, err := notion.FindRunPage(ctx, p.client, p.dbID, result.Metadata.RunID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			updated = true
			return p.client.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
				Properties: props,
			})
		}
		updated = false
		return p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(p.dbID),
			},
			Properties: props,
		})
	})
	if err != nil {
		return eris.Wrap(err, "report: publish run to notion")
	}

	zap.L().Info("report: run published to notion",
		zap.String("case", result.Metadata.CaseName),
		zap.String("run_id", result.Metadata.RunID),
		zap.String("page_id", string(page.ID)),
		zap.Bool("updated", updated),
	)
	return nil
}

func buildRunProperties(result *model.PipelineResult) notionapi.Properties {
	title := result.Metadata.CaseName
	if title == "" {
		title = result.Metadata.RunID
	}

	timestamp := notionapi.Date(result.Metadata.Timestamp)

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: title}},
			},
		},
		"Run ID": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: result.Metadata.RunID}},
			},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: runStatusName(result.Metrics),
			},
		},
		"Average Score": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: result.Metrics.AverageScore,
		},
		"Decision": notionapi.SelectProperty{
			Type: notionapi.PropertyTypeSelect,
			Select: notionapi.Option{
				Name: runDecision(result),
			},
		},
		"Analyzed": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &timestamp,
			},
		},
	}

	if q := result.Metrics.PipelineQuality; q != "" {
		props["Quality"] = notionapi.SelectProperty{
			Type: notionapi.PropertyTypeSelect,
			Select: notionapi.Option{
				Name: q,
			},
		}
	}

	return props
}

func runStatusName(m model.PipelineMetrics) string {
	switch {
	case m.SuccessfulStages == m.TotalStages:
		return "Complete"
	case m.SuccessfulStages == 0:
		return "Failed"
	default:
		return "Partial"
	}
}

// runDecision reads yesod's go/no-go recommendation, defaulting to UNKNOWN
// when the stage failed or the record is absent.
func runDecision(result *model.PipelineResult) string {
	yesod, ok := result.Stage(model.StageYesod)
	if !ok || !yesod.OK() {
		return "UNKNOWN"
	}
	rec := yesod.MapField("go_no_go_recommendation")
	if decision, ok := rec["decision"].(string); ok && decision != "" {
		return decision
	}
	return "UNKNOWN"
}
