// Package core defines the data carried between pipeline stages.
// Each stage transition has its own envelope type, so stages can only be
// composed in pipeline order.
package core

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Role tags the stage that produced an envelope.
type Role string

const (
	RoleRaw      Role = "raw"
	RoleParsed   Role = "parsed"
	RoleInsights Role = "insights"
	RoleOutline  Role = "outline"
	RoleDraft    Role = "tutorial_draft"
	RoleRefined  Role = "tutorial_refined"
)

// Envelope is the metadata shared by every stage value.
type Envelope struct {
	Role   Role              `json:"role"`
	Source string            `json:"source"`
	RunID  string            `json:"run_id,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// NewEnvelope creates an envelope for the first stage of a run.
func NewEnvelope(role Role, source, runID string) Envelope {
	return Envelope{Role: role, Source: source, RunID: runID, Attrs: map[string]string{}}
}

// Next derives the envelope of the following stage. Attributes are copied,
// never shared.
func (e Envelope) Next(role Role) Envelope {
	attrs := make(map[string]string, len(e.Attrs))
	maps.Copy(attrs, e.Attrs)
	return Envelope{Role: role, Source: e.Source, RunID: e.RunID, Attrs: attrs}
}

// SourceFormat is the detected format of a retrieved source.
type SourceFormat string

const (
	FormatPDF      SourceFormat = "pdf"
	FormatHTML     SourceFormat = "html"
	FormatMarkdown SourceFormat = "markdown"
)

// RawSource is the output of retrieval. PDFs are referenced by Path, text
// formats are carried inline in Text.
type RawSource struct {
	Envelope
	Format      SourceFormat
	URL         string // final URL for remote sources, used to resolve relative references
	Path        string
	Text        string
	ContentType string
}

// BlockKind classifies a content block.
type BlockKind string

const (
	KindText  BlockKind = "text"
	KindTable BlockKind = "table"
	KindImage BlockKind = "image"
	KindCode  BlockKind = "code"
)

// Valid reports whether k is one of the fixed block kinds.
func (k BlockKind) Valid() bool {
	switch k {
	case KindText, KindTable, KindImage, KindCode:
		return true
	}
	return false
}

// Block is one ordered unit of parsed content.
type Block struct {
	Text     string    `json:"text"`
	Kind     BlockKind `json:"kind"`
	Order    int       `json:"order"`
	Level    int       `json:"level,omitempty"`
	Language string    `json:"language,omitempty"`
	Source   string    `json:"source,omitempty"`
}

// ParsedBlocks is the output of the document parser.
type ParsedBlocks struct {
	Envelope
	Blocks []Block `json:"blocks"`
}

// InsightRole is the classified role of a block.
type InsightRole string

const (
	RoleTitle   InsightRole = "title"
	RoleStep    InsightRole = "step"
	RoleConcept InsightRole = "concept"
	RoleCode    InsightRole = "code"
	RoleOther   InsightRole = "other"
)

// Insight is the analyzer's view of a single block.
type Insight struct {
	BlockRef int         `json:"block_ref"`
	Role     InsightRole `json:"role"`
	Summary  string      `json:"summary"`
	Kind     BlockKind   `json:"kind"`
	Caption  string      `json:"caption,omitempty"`
	Fallback bool        `json:"fallback,omitempty"`
}

// AnalyzedInsights is the output of the content analyzer.
type AnalyzedInsights struct {
	Envelope
	Insights []Insight `json:"insights"`
	Blocks   []Block   `json:"-"`
}

// Slot is one of the fixed top-level outline sections.
type Slot string

const (
	SlotIntroduction  Slot = "Introduction"
	SlotPrerequisites Slot = "Prerequisites"
	SlotSteps         Slot = "Steps"
	SlotExamples      Slot = "Examples"
	SlotConclusion    Slot = "Conclusion"
)

// SlotCount is the number of outline slots.
const SlotCount = 5

// Slots lists the outline slots in document order.
var Slots = [SlotCount]Slot{SlotIntroduction, SlotPrerequisites, SlotSteps, SlotExamples, SlotConclusion}

// ParseSlot matches a slot name case-insensitively.
func ParseSlot(s string) (Slot, bool) {
	s = strings.TrimSpace(s)
	for _, slot := range Slots {
		if strings.EqualFold(s, string(slot)) {
			return slot, true
		}
	}
	return "", false
}

// Entry is a single outline bullet derived from an insight.
type Entry struct {
	BlockRef int         `json:"block_ref"`
	Role     InsightRole `json:"role"`
	Text     string      `json:"text"`
}

// Section is one outline slot and its entries.
type Section struct {
	Slot    Slot    `json:"slot"`
	Entries []Entry `json:"entries"`
}

// Outline holds exactly SlotCount sections in Slots order.
type Outline struct {
	Envelope
	Sections [SlotCount]Section `json:"sections"`
}

// NewOutline returns an outline with every slot present and empty.
func NewOutline(env Envelope) *Outline {
	o := &Outline{Envelope: env}
	for i, slot := range Slots {
		o.Sections[i] = Section{Slot: slot, Entries: []Entry{}}
	}
	return o
}

// Section returns the section for slot.
func (o *Outline) Section(slot Slot) *Section {
	for i := range o.Sections {
		if o.Sections[i].Slot == slot {
			return &o.Sections[i]
		}
	}
	return nil
}

// Markdown renders the outline as a Markdown document.
func (o *Outline) Markdown() string {
	var b strings.Builder
	b.WriteString("# Tutorial Outline\n")
	for _, sec := range o.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.Slot)
		if len(sec.Entries) == 0 {
			b.WriteString("_No content identified._\n")
			continue
		}
		for i, e := range sec.Entries {
			if sec.Slot == SlotSteps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, e.Text)
			} else {
				fmt.Fprintf(&b, "- %s\n", e.Text)
			}
		}
	}
	return b.String()
}

// Status tags the quality of a tutorial artifact.
type Status string

const (
	StatusGenerated   Status = "generated"
	StatusPlaceholder Status = "placeholder"
	StatusRefined     Status = "refined"
	StatusRefinedMock Status = "refined_mock"
	StatusUnrefined   Status = "unrefined"
)

// Degraded reports whether the artifact came from a recovered failure.
func (s Status) Degraded() bool {
	return s == StatusPlaceholder || s == StatusUnrefined
}

// Draft is the output of the Markdown generator.
type Draft struct {
	Envelope
	Markdown string `json:"markdown"`
	Status   Status `json:"status"`
}

// Refined is the output of the reviewer.
type Refined struct {
	Envelope
	Markdown string `json:"markdown"`
	Status   Status `json:"status"`
}

// StageTiming records how long a stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Result collects everything a run produced, up to the requested stage.
type Result struct {
	RunID    string
	Source   string
	Blocks   []Block
	Insights []Insight
	Outline  *Outline
	Draft    *Draft
	Tutorial *Refined
	Timings  []StageTiming
}

// Markdown returns the most complete Markdown artifact of the run.
func (r *Result) Markdown() string {
	switch {
	case r.Tutorial != nil:
		return r.Tutorial.Markdown
	case r.Draft != nil:
		return r.Draft.Markdown
	case r.Outline != nil:
		return r.Outline.Markdown()
	}
	return ""
}

// Status returns the status of the most complete artifact, or "" for
// outline-only runs.
func (r *Result) Status() Status {
	switch {
	case r.Tutorial != nil:
		return r.Tutorial.Status
	case r.Draft != nil:
		return r.Draft.Status
	}
	return ""
}
