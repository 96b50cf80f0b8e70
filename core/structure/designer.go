// Package structure implements the Designer interface. Insights with an
// unambiguous role are bucketed directly; concepts and other material are
// placed by one batched model call.
package structure

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/llm"
	"github.com/gaurav-prasanna/tutorialpipe/core/prompt"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
	"github.com/gaurav-prasanna/tutorialpipe/metrics"
)

// fixedSlots are the roles whose slot never needs the model.
var fixedSlots = map[core.InsightRole]core.Slot{
	core.RoleTitle: core.SlotIntroduction,
	core.RoleStep:  core.SlotSteps,
	core.RoleCode:  core.SlotExamples,
}

// FallbackSlot is where an ambiguous insight goes when the model cannot
// place it.
func FallbackSlot(role core.InsightRole) core.Slot {
	if slot, ok := fixedSlots[role]; ok {
		return slot
	}
	if role == core.RoleConcept {
		return core.SlotIntroduction
	}
	return core.SlotExamples
}

// Options configures a Designer.
type Options struct {
	// Client may be nil, in which case ambiguous insights use FallbackSlot.
	Client  llm.Client
	Prompts *prompt.Catalog
	Metrics *metrics.Metrics
}

// Designer buckets insights into the five outline slots.
type Designer struct {
	client  llm.Client
	prompts *prompt.Catalog
	metrics *metrics.Metrics
}

// New creates a Designer.
func New(opts Options) *Designer {
	d := &Designer{client: opts.Client, prompts: opts.Prompts, metrics: opts.Metrics}
	if d.prompts == nil {
		d.prompts = prompt.Default()
	}
	return d
}

// Design returns an outline with all five slots present. Entries keep block
// order within each slot.
func (d *Designer) Design(ctx context.Context, in *core.AnalyzedInsights) (*core.Outline, error) {
	log := logger.FromContext(ctx).With("component", "structure")

	slots := make([]core.Slot, len(in.Insights))
	var ambiguous []prompt.AssignItem
	for i, ins := range in.Insights {
		if slot, ok := fixedSlots[ins.Role]; ok {
			slots[i] = slot
			continue
		}
		ambiguous = append(ambiguous, prompt.AssignItem{Index: i, Role: ins.Role, Summary: ins.Summary})
	}

	mode := "rules"
	if len(ambiguous) > 0 {
		assigned, err := d.assign(ctx, ambiguous)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		missing := 0
		for _, it := range ambiguous {
			slot, ok := assigned[it.Index]
			if !ok {
				slot = FallbackSlot(it.Role)
				missing++
			}
			slots[it.Index] = slot
		}
		switch {
		case err != nil:
			mode = "fallback"
			log.Warn("slot assignment failed, using role defaults",
				"error", fmt.Errorf("%w: slot assignment: %w", core.ErrGeneration, err), "insights", len(ambiguous))
		case missing > 0:
			mode = "partial"
			log.Warn("slot assignment incomplete, using role defaults",
				"error", fmt.Errorf("%w: %d of %d insights unassigned", core.ErrGeneration, missing, len(ambiguous)))
		default:
			mode = "model"
		}
		if missing > 0 {
			d.metrics.ObserveFallback("structure")
		}
	}

	outline := core.NewOutline(in.Next(core.RoleOutline))
	for i, ins := range in.Insights {
		sec := outline.Section(slots[i])
		sec.Entries = append(sec.Entries, core.Entry{BlockRef: ins.BlockRef, Role: ins.Role, Text: ins.Summary})
	}
	outline.Attrs["assignment"] = mode
	log.Info("outline designed", "insights", len(in.Insights), "ambiguous", len(ambiguous), "assignment", mode)
	return outline, nil
}

// assign asks the model to place ambiguous insights. Entries that are
// missing, out of range or name an unknown slot are left out of the result.
func (d *Designer) assign(ctx context.Context, items []prompt.AssignItem) (map[int]core.Slot, error) {
	if d.client == nil {
		return nil, fmt.Errorf("no model client configured")
	}
	resp, err := d.client.Chat(ctx, llm.Prompt{
		Task:   llm.TaskAssign,
		System: d.prompts.Structure.System,
		User:   prompt.AssignInput(items),
	})
	if err != nil {
		return nil, err
	}
	obj, ok := llm.ExtractJSON(resp)
	if !ok {
		return nil, fmt.Errorf("assignment response contains no JSON object")
	}

	wanted := make(map[int]bool, len(items))
	for _, it := range items {
		wanted[it.Index] = true
	}
	out := make(map[int]core.Slot, len(items))
	gjson.Parse(obj).ForEach(func(key, value gjson.Result) bool {
		idx, err := strconv.Atoi(key.String())
		if err != nil || !wanted[idx] {
			return true
		}
		if slot, ok := core.ParseSlot(value.String()); ok {
			out[idx] = slot
		}
		return true
	})
	return out, nil
}
