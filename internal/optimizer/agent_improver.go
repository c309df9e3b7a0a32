package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/llm"
	"github.com/univtimetable/optimizer-api/internal/models"
)

const (
	defaultToolBudget        = 5
	maxConsecutiveRejections = 3
)

// toolCall is the parsed form of one LLM tool choice. The LLM's string
// output is parsed once at this boundary and never re-stringified.
type toolCall interface {
	actionType() string
	params() models.ActionParams
}

type moveLessonCall struct {
	LessonID int
	NewDay   int
	NewSlot  int
}

func (c moveLessonCall) actionType() string { return models.ActionMoveLesson }
func (c moveLessonCall) params() models.ActionParams {
	return models.ActionParams{"lesson_id": c.LessonID, "new_day": c.NewDay, "new_slot": c.NewSlot}
}

type swapLessonsCall struct {
	LessonA int
	LessonB int
}

func (c swapLessonsCall) actionType() string { return models.ActionSwapLessons }
func (c swapLessonsCall) params() models.ActionParams {
	return models.ActionParams{"lesson_id_a": c.LessonA, "lesson_id_b": c.LessonB}
}

type reassignRoomCall struct {
	LessonID int
	RoomID   string
}

func (c reassignRoomCall) actionType() string { return models.ActionReassignRoom }
func (c reassignRoomCall) params() models.ActionParams {
	return models.ActionParams{"lesson_id": c.LessonID, "new_room_id": c.RoomID}
}

type stopCall struct{}

func (stopCall) actionType() string          { return models.ActionStop }
func (stopCall) params() models.ActionParams { return models.ActionParams{} }

// AgentImprover runs a bounded local-search loop where the LLM picks one
// tool per iteration, native code executes it on a trial copy, and the move
// is kept only when it strictly improves the score.
type AgentImprover struct {
	client ChatClient
	eval   *Evaluator
	p      *Problem
	budget int
	logger *zap.Logger
}

// NewAgentImprover wires the tool-calling improver. A non-positive budget
// falls back to the default of 5 tool calls.
func NewAgentImprover(client ChatClient, p *Problem, budget int, logger *zap.Logger) *AgentImprover {
	if budget <= 0 {
		budget = defaultToolBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentImprover{
		client: client,
		eval:   NewEvaluator(p),
		p:      p,
		budget: budget,
		logger: logger,
	}
}

// Improve implements Improver. The returned chromosome is never worse than
// the input: only strictly improving moves are accepted.
func (ai *AgentImprover) Improve(ctx context.Context, c *Chromosome) (*Chromosome, []models.AgentAction, error) {
	working := c.Clone()
	ai.eval.Evaluate(working)

	var actions []models.AgentAction
	var history []string
	rejections := 0

	for step := 0; step < ai.budget; step++ {
		if ctx.Err() != nil {
			break
		}

		started := time.Now()
		reply, err := ai.client.Chat(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: agentSystemInstruction},
			{Role: llm.RoleUser, Content: ai.buildSituationReport(working, history)},
		})
		if err != nil {
			ai.logger.Warn("agent improver chat failed", zap.Error(err))
			break
		}

		call, reasoning, err := ai.parseToolCall(working, reply)
		if err != nil {
			ai.logger.Warn("agent improver produced an invalid tool call", zap.Error(err))
			rejections++
			history = append(history, fmt.Sprintf("step %d: invalid tool call rejected", step+1))
			if rejections >= maxConsecutiveRejections {
				break
			}
			continue
		}

		if _, isStop := call.(stopCall); isStop {
			scoreNow := working.Score()
			actions = append(actions, models.AgentAction{
				ActionType:      models.ActionStop,
				Success:         true,
				ScoreBefore:     &scoreNow,
				ScoreAfter:      &scoreNow,
				Reasoning:       reasoning,
				ExecutionTimeMs: elapsedMs(started),
			})
			break
		}

		trial := working.Clone()
		ai.execute(trial, call)
		ai.eval.Evaluate(trial)

		scoreBefore := working.Score()
		scoreAfter := trial.Score()
		delta := scoreAfter - scoreBefore
		accepted := delta > 0

		actions = append(actions, models.AgentAction{
			ActionType:      call.actionType(),
			ActionParams:    call.params(),
			Success:         accepted,
			ScoreBefore:     &scoreBefore,
			ScoreAfter:      &scoreAfter,
			ScoreDelta:      &delta,
			Reasoning:       reasoning,
			ExecutionTimeMs: elapsedMs(started),
		})

		if accepted {
			working = trial
			rejections = 0
			history = append(history, fmt.Sprintf("step %d: %s accepted, delta %+.1f", step+1, call.actionType(), delta))
		} else {
			rejections++
			history = append(history, fmt.Sprintf("step %d: %s rejected, delta %+.1f", step+1, call.actionType(), delta))
			if rejections >= maxConsecutiveRejections {
				break
			}
		}
	}

	return working, actions, nil
}

const agentSystemInstruction = `You improve a university timetable one move at a time. ` +
	`Reply with exactly one JSON object: ` +
	`{"tool":"move_lesson|swap_lessons|reassign_room|stop","params":{...},"reasoning":"..."}. ` +
	`move_lesson params: lesson_id, new_day (1-6), new_slot (1-6). ` +
	`swap_lessons params: lesson_id_a, lesson_id_b. ` +
	`reassign_room params: lesson_id, new_room_id. ` +
	`stop takes no params. No other text.`

func (ai *AgentImprover) buildSituationReport(working *Chromosome, history []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current score: %.1f, hard violations: %d\n",
		working.Score(), working.Fitness.HardViolations)

	violations := ai.topViolations(working, 3)
	if len(violations) > 0 {
		b.WriteString("Worst preference violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "lesson %d: %s (priority %d) at day %d slot %d, %s\n",
				v.lessonIndex, v.teacherName, v.priority, v.day, v.slot, v.discipline)
		}
	} else {
		b.WriteString("No preference violations remain.\n")
	}

	if len(history) > 0 {
		b.WriteString("Previous moves:\n")
		for _, h := range history {
			b.WriteString(h)
			b.WriteByte('\n')
		}
	}

	b.WriteString("Choose one tool call.")
	return b.String()
}

func (ai *AgentImprover) topViolations(c *Chromosome, n int) []violation {
	pi := PromptImprover{p: ai.p}
	violations := pi.collectViolations(c)
	if len(violations) > n {
		violations = violations[:n]
	}
	return violations
}

// parseToolCall extracts and validates one tool call against the chromosome
// and the problem instance.
func (ai *AgentImprover) parseToolCall(working *Chromosome, reply string) (toolCall, *string, error) {
	raw := extractJSONObject(reply)
	if raw == "" {
		return nil, nil, fmt.Errorf("reply contains no JSON object")
	}

	var parsed struct {
		Tool      string          `json:"tool"`
		Params    json.RawMessage `json:"params"`
		Reasoning string          `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode tool call: %w", err)
	}

	var reasoning *string
	if parsed.Reasoning != "" {
		reasoning = &parsed.Reasoning
	}

	inRange := func(lessonID int) bool {
		return lessonID >= 0 && lessonID < len(working.Lessons)
	}

	switch parsed.Tool {
	case models.ActionStop:
		return stopCall{}, reasoning, nil

	case models.ActionMoveLesson:
		var p struct {
			LessonID *int `json:"lesson_id"`
			NewDay   *int `json:"new_day"`
			NewSlot  *int `json:"new_slot"`
		}
		if err := json.Unmarshal(parsed.Params, &p); err != nil {
			return nil, nil, fmt.Errorf("decode move_lesson params: %w", err)
		}
		if p.LessonID == nil || p.NewDay == nil || p.NewSlot == nil {
			return nil, nil, fmt.Errorf("move_lesson params incomplete")
		}
		if !inRange(*p.LessonID) || *p.NewDay < 1 || *p.NewDay > Days || *p.NewSlot < 1 || *p.NewSlot > Slots {
			return nil, nil, fmt.Errorf("move_lesson params out of range")
		}
		return moveLessonCall{LessonID: *p.LessonID, NewDay: *p.NewDay, NewSlot: *p.NewSlot}, reasoning, nil

	case models.ActionSwapLessons:
		var p struct {
			LessonA *int `json:"lesson_id_a"`
			LessonB *int `json:"lesson_id_b"`
		}
		if err := json.Unmarshal(parsed.Params, &p); err != nil {
			return nil, nil, fmt.Errorf("decode swap_lessons params: %w", err)
		}
		if p.LessonA == nil || p.LessonB == nil {
			return nil, nil, fmt.Errorf("swap_lessons params incomplete")
		}
		if !inRange(*p.LessonA) || !inRange(*p.LessonB) || *p.LessonA == *p.LessonB {
			return nil, nil, fmt.Errorf("swap_lessons params out of range")
		}
		return swapLessonsCall{LessonA: *p.LessonA, LessonB: *p.LessonB}, reasoning, nil

	case models.ActionReassignRoom:
		var p struct {
			LessonID *int    `json:"lesson_id"`
			RoomID   *string `json:"new_room_id"`
		}
		if err := json.Unmarshal(parsed.Params, &p); err != nil {
			return nil, nil, fmt.Errorf("decode reassign_room params: %w", err)
		}
		if p.LessonID == nil || p.RoomID == nil {
			return nil, nil, fmt.Errorf("reassign_room params incomplete")
		}
		if !inRange(*p.LessonID) || !ai.roomExists(*p.RoomID) {
			return nil, nil, fmt.Errorf("reassign_room params out of range")
		}
		return reassignRoomCall{LessonID: *p.LessonID, RoomID: *p.RoomID}, reasoning, nil

	default:
		return nil, nil, fmt.Errorf("unknown tool %q", parsed.Tool)
	}
}

func (ai *AgentImprover) roomExists(roomID string) bool {
	for _, room := range ai.p.Classrooms {
		if room.ID == roomID {
			return true
		}
	}
	return false
}

func (ai *AgentImprover) execute(trial *Chromosome, call toolCall) {
	switch c := call.(type) {
	case moveLessonCall:
		trial.Lessons[c.LessonID].Day = c.NewDay
		trial.Lessons[c.LessonID].Slot = c.NewSlot
	case swapLessonsCall:
		a, b := &trial.Lessons[c.LessonA], &trial.Lessons[c.LessonB]
		a.Day, b.Day = b.Day, a.Day
		a.Slot, b.Slot = b.Slot, a.Slot
	case reassignRoomCall:
		trial.Lessons[c.LessonID].ClassroomID = c.RoomID
	}
}
