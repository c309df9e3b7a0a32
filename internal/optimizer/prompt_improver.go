package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/llm"
	"github.com/univtimetable/optimizer-api/internal/models"
)

// maxReportedViolations bounds the prompt size.
const maxReportedViolations = 20

// ChatClient is the slice of the LLM client the improvers need.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// PromptImprover asks the LLM for lesson moves fixing preference violations
// and applies the valid ones to a copy. It is advisory: any transport or
// parse failure returns the input unchanged.
type PromptImprover struct {
	client ChatClient
	eval   *Evaluator
	p      *Problem
	logger *zap.Logger
}

// NewPromptImprover wires the prompt-based improver.
func NewPromptImprover(client ChatClient, p *Problem, logger *zap.Logger) *PromptImprover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptImprover{
		client: client,
		eval:   NewEvaluator(p),
		p:      p,
		logger: logger,
	}
}

type violation struct {
	lessonIndex int
	teacherName string
	priority    int
	day         int
	slot        int
	discipline  string
}

type suggestion struct {
	LessonID *int `json:"lesson_id"`
	NewDay   *int `json:"new_day"`
	NewSlot  *int `json:"new_slot"`
}

// Improve implements Improver.
func (pi *PromptImprover) Improve(ctx context.Context, c *Chromosome) (*Chromosome, []models.AgentAction, error) {
	violations := pi.collectViolations(c)
	if len(violations) == 0 {
		return c, nil, nil
	}

	if !c.Evaluated() {
		pi.eval.Evaluate(c)
	}
	scoreBefore := c.Score()

	started := time.Now()
	reply, err := pi.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: promptSystemInstruction},
		{Role: llm.RoleUser, Content: pi.buildListing(violations)},
	})
	if err != nil {
		pi.logger.Warn("prompt improver chat failed", zap.Error(err))
		return c, []models.AgentAction{failedAction(models.ActionImprove, scoreBefore, started, err.Error())}, nil
	}

	suggestions := parseSuggestions(extractJSONObject(reply))
	if len(suggestions) == 0 {
		pi.logger.Warn("prompt improver returned no usable suggestions")
		return c, []models.AgentAction{failedAction(models.ActionImprove, scoreBefore, started, "no usable suggestions")}, nil
	}

	candidate := c.Clone()
	applied := 0
	for _, s := range suggestions {
		if s.LessonID == nil || s.NewDay == nil || s.NewSlot == nil {
			continue
		}
		idx := *s.LessonID
		if idx < 0 || idx >= len(candidate.Lessons) {
			continue
		}
		if *s.NewDay < 1 || *s.NewDay > Days || *s.NewSlot < 1 || *s.NewSlot > Slots {
			continue
		}
		candidate.Lessons[idx].Day = *s.NewDay
		candidate.Lessons[idx].Slot = *s.NewSlot
		applied++
	}
	if applied == 0 {
		return c, []models.AgentAction{failedAction(models.ActionImprove, scoreBefore, started, "all suggestions out of range")}, nil
	}

	pi.eval.Evaluate(candidate)
	scoreAfter := candidate.Score()
	delta := scoreAfter - scoreBefore

	action := models.AgentAction{
		ActionType: models.ActionImprove,
		ActionParams: models.ActionParams{
			"suggestions_applied": applied,
			"violations_reported": len(violations),
		},
		Success:         delta >= 0,
		ScoreBefore:     &scoreBefore,
		ScoreAfter:      &scoreAfter,
		ScoreDelta:      &delta,
		ExecutionTimeMs: elapsedMs(started),
	}

	if scoreAfter < scoreBefore {
		pi.logger.Warn("prompt improver regressed the score, discarding",
			zap.Float64("before", scoreBefore),
			zap.Float64("after", scoreAfter))
		return c, []models.AgentAction{action}, nil
	}

	return candidate, []models.AgentAction{action}, nil
}

const promptSystemInstruction = `You optimize a university timetable. ` +
	`Reply with exactly one JSON object of the form ` +
	`{"suggestions":[{"lesson_id":N,"new_day":D,"new_slot":S}]} ` +
	`where day and slot are integers from 1 to 6. No other text.`

// collectViolations lists lessons sitting in disliked cells, most
// constrained teachers first, capped at maxReportedViolations.
func (pi *PromptImprover) collectViolations(c *Chromosome) []violation {
	var out []violation
	for i, l := range c.Lessons {
		cell, ok := pi.p.Cell(l.TeacherID, l.Day, l.Slot)
		if !ok || cell.IsPreferred {
			continue
		}
		out = append(out, violation{
			lessonIndex: i,
			teacherName: l.TeacherName,
			priority:    pi.p.TeacherPriority(l.TeacherID),
			day:         l.Day,
			slot:        l.Slot,
			discipline:  l.DisciplineName,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority < out[j].priority
	})
	if len(out) > maxReportedViolations {
		out = out[:maxReportedViolations]
	}
	return out
}

func (pi *PromptImprover) buildListing(violations []violation) string {
	var b strings.Builder
	b.WriteString("These lessons are placed in slots their teachers dislike:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "lesson %d: %s (priority %d) at day %d slot %d, %s\n",
			v.lessonIndex, v.teacherName, v.priority, v.day, v.slot, v.discipline)
	}
	b.WriteString("\nPropose moves as JSON: {\"suggestions\":[{\"lesson_id\":N,\"new_day\":D,\"new_slot\":S}]}")
	return b.String()
}

func parseSuggestions(raw string) []suggestion {
	if raw == "" {
		return nil
	}
	var parsed struct {
		Suggestions []suggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed.Suggestions
}

// extractJSONObject returns the first balanced top-level JSON object in the
// text, ignoring anything around it. String literals are skipped so braces
// inside them do not unbalance the scan.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func failedAction(actionType string, scoreBefore float64, started time.Time, reason string) models.AgentAction {
	return models.AgentAction{
		ActionType:      actionType,
		Success:         false,
		ScoreBefore:     &scoreBefore,
		Reasoning:       &reason,
		ExecutionTimeMs: elapsedMs(started),
	}
}

func elapsedMs(started time.Time) *int64 {
	ms := time.Since(started).Milliseconds()
	return &ms
}
