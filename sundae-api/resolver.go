package sundaeapi

import (
	"context"
	_ "embed"

	sundaegql "github.com/SundaeSwap-finance/sundae-slides/sundae-gql"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	sundaeslide "github.com/SundaeSwap-finance/sundae-slides/sundae-slide"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
)

//go:embed schema.gql
var schema string

type Resolver struct {
	api    *API
	config sundaegql.BaseConfig
}

func NewResolver(api *API, config sundaegql.BaseConfig) *Resolver {
	return &Resolver{
		api:    api,
		config: config,
	}
}

func (r *Resolver) Schema() string {
	return sundaegql.MergeSchemas(schema, sundaegql.Common)
}

func (r *Resolver) Config() *sundaegql.BaseConfig {
	return &r.config
}

func (r *Resolver) Presentations(ctx context.Context) ([]*Presentation, error) {
	entries, err := r.api.Presentations.Entries(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Presentation, 0, len(entries))
	for _, e := range entries {
		results = append(results, &Presentation{entry: e})
	}
	return results, nil
}

func (r *Resolver) Feedback(ctx context.Context, args struct{ SlideKey string }) ([]*SlideFeedback, error) {
	rows, err := r.api.Feedback.ListFeedback(ctx, sundaeslide.NormalizeKey(args.SlideKey))
	if err != nil {
		return nil, err
	}

	results := make([]*SlideFeedback, 0, len(rows))
	for _, row := range rows {
		results = append(results, &SlideFeedback{row: row})
	}
	return results, nil
}

func (r *Resolver) LiveConnections(args struct{ SlideKey string }) int32 {
	if r.api.Hub == nil {
		return 0
	}
	return int32(len(r.api.Hub.WebSockets(sundaeslide.NormalizeKey(args.SlideKey))))
}

type Presentation struct {
	entry presentationdao.Entry
}

func (p *Presentation) Number() int32 { return int32(p.entry.Number) }
func (p *Presentation) Title() string { return p.entry.Title }
func (p *Presentation) Slug() string  { return p.entry.Slug }

type SlideFeedback struct {
	row feedbackdao.Row
}

func (f *SlideFeedback) SlideNumber() int32 { return int32(f.row.SlideNumber) }
func (f *SlideFeedback) Title() string      { return f.row.SlideTitle }
func (f *SlideFeedback) Okay() int32        { return int32(f.row.Okay) }
func (f *SlideFeedback) Good() int32        { return int32(f.row.Good) }
func (f *SlideFeedback) Great() int32       { return int32(f.row.Great) }
func (f *SlideFeedback) MindBlown() int32   { return int32(f.row.MindBlown) }

func (f *SlideFeedback) Total() int32 {
	var total int64
	for _, c := range feedbackdao.Categories {
		total += f.row.Count(c)
	}
	return int32(total)
}

func (f *SlideFeedback) Count(args struct{ Category string }) int32 {
	return int32(f.row.Count(feedbackdao.Category(args.Category)))
}

func (f *SlideFeedback) Counts() sundaegql.JSON {
	counts := make(map[string]int64, len(feedbackdao.Categories))
	for _, c := range feedbackdao.Categories {
		counts[string(c)] = f.row.Count(c)
	}
	return sundaegql.NewJSON(counts)
}
