package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/logmedic/internal/grouper"
	"github.com/ppiankov/logmedic/internal/logging"
	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/metrics"
	"github.com/ppiankov/logmedic/internal/parser"
	"github.com/ppiankov/logmedic/internal/selector"
	"github.com/ppiankov/logmedic/internal/source"
)

// Input is a parsed and grouped log, ready for the model stages.
type Input struct {
	Source   string
	Lines    int
	Entries  []logtypes.LogEntry // every parsed entry, for thread context
	Selected int
	Warnings []parser.Warning
	Groups   *grouper.Groups
}

// PrepareConfig wires the front half of the pipeline. Nil fields get
// defaults.
type PrepareConfig struct {
	Source   string
	Parser   *parser.Parser
	Selector *selector.Selector
	Grouper  *grouper.Grouper
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Prepare parses the source, selects error events and groups them. Only
// an unreadable source is an error.
func Prepare(open source.Opener, cfg PrepareConfig) (Input, error) {
	logger := logging.OrNop(cfg.Logger)
	p := cfg.Parser
	if p == nil {
		p = parser.New()
	}
	sel := cfg.Selector
	if sel == nil {
		var err error
		if sel, err = selector.Compile(""); err != nil {
			return Input{}, err
		}
	}
	g := cfg.Grouper
	if g == nil {
		g = grouper.New()
	}

	parsed, err := p.ParseAll(open)
	if err != nil {
		return Input{}, fmt.Errorf("read %s: %w", cfg.Source, err)
	}
	for _, w := range parsed.Warnings {
		logger.Debug("line skipped", zap.Int("line", w.Line), zap.String("reason", w.Reason))
	}

	selected, failed := sel.Filter(parsed.Entries)
	if failed > 0 {
		logger.Warn("selector failed on some entries", zap.Int("entries", failed), zap.String("where", sel.String()))
	}
	groups := g.GroupSlice(selected)

	if m := cfg.Metrics; m != nil {
		m.EntriesParsed.Add(float64(len(parsed.Entries)))
		m.ParseWarnings.Add(float64(len(parsed.Warnings)))
		m.EntriesSelected.Add(float64(len(selected)))
		m.Groups.Set(float64(groups.Len()))
	}
	logger.Info("log prepared",
		zap.String("source", cfg.Source),
		zap.Int("lines", parsed.Lines),
		zap.Int("entries", len(parsed.Entries)),
		zap.Int("warnings", len(parsed.Warnings)),
		zap.Int("selected", len(selected)),
		zap.Int("groups", groups.Len()),
	)

	return Input{
		Source:   cfg.Source,
		Lines:    parsed.Lines,
		Entries:  parsed.Entries,
		Selected: len(selected),
		Warnings: parsed.Warnings,
		Groups:   groups,
	}, nil
}
