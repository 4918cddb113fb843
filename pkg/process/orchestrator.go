package process

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/extraction/wind"
	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/llm"
	"github.com/renewmap/compass/pkg/llm/dtree"
	"github.com/renewmap/compass/pkg/logger"
	"github.com/renewmap/compass/pkg/usage"
	"github.com/renewmap/compass/pkg/validation"
	"github.com/renewmap/compass/pkg/web"
)

// Result is the outcome of one jurisdiction task. A nil Result means the
// task failed; a non-nil Result with Found false means retrieval or
// narrowing came up empty.
type Result struct {
	Jurisdiction jurisdiction.Jurisdiction
	Found        bool

	Document     *web.Document
	CleanedText  string
	DistrictText string
	Rows         []extraction.Row
	Districts    []wind.DistrictRow

	OrdFilename string
	Cost        float64
	Seconds     float64
}

// OrdYear returns the effective year of the source document, 0 if unknown.
func (r *Result) OrdYear() int {
	if r.Document == nil {
		return 0
	}
	return r.Document.Date.Year
}

// Source returns the source URL or path of the document.
func (r *Result) Source() string {
	if r.Document == nil {
		return ""
	}
	return r.Document.Source
}

// Orchestrator runs the full pipeline for one jurisdiction: retrieval
// funnel, text narrowing, structured extraction, and artifact persistence.
// One orchestrator serves the whole run; per-jurisdiction state (usage
// tracker, log sink, dialogs) is created inside Process.
type Orchestrator struct {
	// ServiceName is the LLM service the dialogs submit to.
	ServiceName string
	Options     llm.CallOptions

	Splitter *extraction.TextSplitter

	// Retrieval funnel configuration, shared across jurisdictions.
	Strategies     []web.Strategy
	QueryTemplates []string
	NumURLs        int
	Searcher       *web.FallbackSearcher
	Fetcher        *web.Fetcher
	Crawler        *web.Crawler
	KnownDocs      map[string][]string

	// AdderCap clamps implausible setback adders; 0 uses the default.
	AdderCap float64

	Layout *Layout

	// Logs routes this jurisdiction's records into its own file. Optional.
	Logs *logger.Listener
}

// Process runs the pipeline for one jurisdiction. Failures are contained:
// the error is logged to the jurisdiction's log, usage accumulated so far is
// flushed, and nil is returned so sibling jurisdictions keep running.
func (o *Orchestrator) Process(ctx context.Context, j jurisdiction.Jurisdiction) *Result {
	name := j.FullName()
	ctx = logger.WithJurisdiction(ctx, name)
	o.attachLogSink(ctx, name)
	defer o.detachLogSink(name)

	start := time.Now()
	tracker := usage.NewTracker(name, llm.ParseUsage)

	res, err := o.run(ctx, j, tracker)

	elapsed := time.Since(start)
	tracker.TotalTimeSeconds = elapsed.Seconds()
	tracker.TotalTime = elapsed.Round(time.Second).String()
	o.flushUsage(ctx, tracker)

	if err != nil {
		slog.ErrorContext(ctx, "jurisdiction processing failed",
			"jurisdiction", name, "error", err)
		o.recordManifest(ctx, JurisdictionRecord{
			FullName:         name,
			Cost:             tracker.TotalCost(),
			TotalTimeSeconds: tracker.TotalTimeSeconds,
		})
		return nil
	}

	res.Cost = tracker.TotalCost()
	res.Seconds = tracker.TotalTimeSeconds
	o.recordManifest(ctx, manifestRecord(res))
	slog.InfoContext(ctx, "jurisdiction processed",
		"jurisdiction", name, "found", res.Found,
		"cost", res.Cost, "seconds", res.Seconds)
	return res
}

func (o *Orchestrator) run(ctx context.Context, j jurisdiction.Jurisdiction, tracker *usage.Tracker) (*Result, error) {
	res := &Result{Jurisdiction: j}
	structured := llm.NewStructuredCaller(o.ServiceName, tracker, o.Options)

	doc, err := o.retrieve(ctx, j, tracker, structured)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		slog.InfoContext(ctx, "no ordinance document found", "jurisdiction", j.FullName())
		return res, nil
	}
	res.Document = doc

	if date, err := extraction.NewDateExtractor(structured).Extract(ctx, doc); err != nil {
		return nil, err
	} else if date.Year > 0 {
		doc.Date = date
	}
	o.cacheDocument(ctx, doc)

	cleaned, err := o.narrow(ctx, doc, tracker)
	if err != nil {
		return nil, err
	}
	if cleaned == "" {
		slog.InfoContext(ctx, "document has no usable ordinance text",
			"source", doc.Source)
		return res, nil
	}
	res.Found = true
	res.CleanedText = cleaned

	parser := wind.NewParser(o.ServiceName, tracker, o.Options)
	parser.AdderCap = o.AdderCap
	res.Rows, err = parser.Parse(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	doc.SetAttr(web.AttrOrdinanceValues, res.Rows)
	doc.SetAttr(web.AttrNumOrdinances, extraction.NumOrdinances(res.Rows))

	res.DistrictText, err = o.collectDistrictText(ctx, doc, structured)
	if err != nil {
		return nil, err
	}
	if res.DistrictText != "" {
		res.Districts, err = parser.ParsePermittedUses(ctx, res.DistrictText)
		if err != nil {
			return nil, err
		}
	}

	if err := o.persist(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// retrieve runs the funnel with per-jurisdiction validators bound to the
// given tracker and returns the best surviving document, nil when none.
func (o *Orchestrator) retrieve(ctx context.Context, j jurisdiction.Jurisdiction, tracker *usage.Tracker, structured *llm.StructuredCaller) (*web.Document, error) {
	funnel := &web.Funnel{
		Strategies:     o.Strategies,
		QueryTemplates: o.QueryTemplates,
		NumURLs:        o.NumURLs,
		Searcher:       o.Searcher,
		Fetcher:        o.Fetcher,
		Crawler:        o.Crawler,
		KnownDocs:      o.KnownDocs,
		NewLocationValidator: func(target jurisdiction.Jurisdiction) *validation.JurisdictionValidator {
			return validation.NewJurisdictionValidator(target, func(system string) dtree.Chatter {
				chat := llm.NewChatCaller(o.ServiceName, tracker, o.Options, system)
				chat.Category = usage.CategoryLocationFilter
				return chat
			})
		},
		Checker: wind.NewContentChecker(structured, o.Splitter),
	}

	docs, err := funnel.Retrieve(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("document retrieval for %q: %w", j.FullName(), err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// narrow runs the staged wind narrowing over the document's collected
// ordinance text (full text when the content check left none behind).
func (o *Orchestrator) narrow(ctx context.Context, doc *web.Document, tracker *usage.Tracker) (string, error) {
	text := doc.StringAttr(web.AttrOrdinanceText)
	if text == "" {
		text = doc.Text()
	}
	pipeline := extraction.NewPipeline(llm.NewCaller(o.ServiceName, tracker, o.Options), o.Splitter)
	cleaned, err := pipeline.Narrow(ctx, doc, wind.OrdinanceTextExtractor{}, text)
	if err != nil {
		return "", fmt.Errorf("ordinance text narrowing: %w", err)
	}
	return cleaned, nil
}

// collectDistrictText gathers the chunks that list permitted-use districts.
func (o *Orchestrator) collectDistrictText(ctx context.Context, doc *web.Document, structured *llm.StructuredCaller) (string, error) {
	text := doc.StringAttr(web.AttrOrdinanceText)
	if text == "" {
		text = doc.Text()
	}
	chunks := o.Splitter.Split(text)
	collector := wind.NewDistrictTextCollector(structured, chunks)
	for i := range chunks {
		if _, err := collector.CheckChunk(ctx, i); err != nil {
			return "", fmt.Errorf("district text collection: %w", err)
		}
	}
	if !collector.Found() {
		return "", nil
	}
	districtText := collector.DistrictText()
	doc.SetAttr(web.AttrPermittedDistricts, districtText)
	return districtText, nil
}

// cacheDocument writes the raw document bytes into the cache directory so a
// successful jurisdiction can move them into the ordinance directory.
func (o *Orchestrator) cacheDocument(ctx context.Context, doc *web.Document) {
	if o.Layout == nil || len(doc.Raw) == 0 {
		return
	}
	path := filepath.Join(o.Layout.Cache, uuid.NewString()+docExt(doc))
	if err := WriteFile(ctx, path, doc.Raw); err != nil {
		slog.WarnContext(ctx, "failed to cache document",
			"source", doc.Source, "error", err)
		return
	}
	doc.SetAttr(web.AttrCachePath, path)
}

// persist writes the jurisdiction's artifacts through the file-writer
// service: cleaned text, districts text, the values CSV, and the source
// document moved out of the cache.
func (o *Orchestrator) persist(ctx context.Context, res *Result) error {
	if o.Layout == nil {
		return nil
	}
	name := res.Jurisdiction.FullName()

	cleanedPath := filepath.Join(o.Layout.Cleaned, name+" ordinance summary.txt")
	if err := WriteFile(ctx, cleanedPath, []byte(res.CleanedText)); err != nil {
		return fmt.Errorf("failed to persist cleaned text: %w", err)
	}

	if res.DistrictText != "" {
		districtPath := filepath.Join(o.Layout.Cleaned, name+" permitted use districts.txt")
		if err := WriteFile(ctx, districtPath, []byte(res.DistrictText)); err != nil {
			return fmt.Errorf("failed to persist district text: %w", err)
		}
	}

	values, _, err := BuildCSVs([]*Result{res}, time.Now().Format("2006-01-02"))
	if err != nil {
		return err
	}
	valuesPath := filepath.Join(o.Layout.Cleaned, name+" ordinance values.csv")
	if err := WriteFile(ctx, valuesPath, values); err != nil {
		return fmt.Errorf("failed to persist values CSV: %w", err)
	}

	if cached := res.Document.StringAttr(web.AttrCachePath); cached != "" {
		res.OrdFilename = name + " ordinance" + docExt(res.Document)
		dst := filepath.Join(o.Layout.Ordinances, res.OrdFilename)
		if err := MoveFile(ctx, cached, dst); err != nil {
			return fmt.Errorf("failed to move source document: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) flushUsage(ctx context.Context, tracker *usage.Tracker) {
	if o.Layout == nil {
		return
	}
	if err := FlushUsage(ctx, tracker, o.Layout.UsageFile()); err != nil {
		slog.WarnContext(ctx, "failed to flush usage",
			"jurisdiction", tracker.Jurisdiction(), "error", err)
	}
}

func (o *Orchestrator) recordManifest(ctx context.Context, record JurisdictionRecord) {
	if o.Layout == nil {
		return
	}
	if err := UpdateManifest(ctx, o.Layout.JurisdictionsFile(), record); err != nil {
		slog.WarnContext(ctx, "failed to update jurisdictions manifest",
			"jurisdiction", record.FullName, "error", err)
	}
}

func (o *Orchestrator) attachLogSink(ctx context.Context, name string) {
	if o.Logs == nil || o.Layout == nil {
		return
	}
	f, err := logger.OpenLogFile(o.Layout.JurisdictionLog(name))
	if err != nil {
		slog.WarnContext(ctx, "failed to open jurisdiction log",
			"jurisdiction", name, "error", err)
		return
	}
	o.Logs.AddSink(name, f)
}

func (o *Orchestrator) detachLogSink(name string) {
	if o.Logs != nil {
		o.Logs.RemoveSink(name)
	}
}

func manifestRecord(res *Result) JurisdictionRecord {
	record := JurisdictionRecord{
		FullName:         res.Jurisdiction.FullName(),
		Found:            res.Found,
		Cost:             res.Cost,
		TotalTimeSeconds: res.Seconds,
	}
	if doc := res.Document; doc != nil {
		score, _ := doc.Attrs[web.AttrContainmentScore].(float64)
		record.Documents = append(record.Documents, DocumentRecord{
			Source:        doc.Source,
			OrdFilename:   res.OrdFilename,
			EffectiveYear: doc.Date.Year,
			NumPages:      len(doc.Pages),
			Checksum:      doc.Checksum,
			FromOCR:       doc.FromOCR,
			NgramScore:    score,
		})
	}
	return record
}

func docExt(doc *web.Document) string {
	if doc.IsPDF {
		return ".pdf"
	}
	return ".txt"
}
