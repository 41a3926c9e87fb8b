package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/llm"
)

// stripCodeFence removes ```hcl / ``` markdown fences a model sometimes
// wraps its repaired code in, matching the original implementation's
// equivalent replace-and-strip.
func stripCodeFence(s string) string {
	s = strings.ReplaceAll(s, "```hcl", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Result is the pipeline's terminal outcome, mirroring the original
// implementation's PipelineResult.
type Result struct {
	Success          bool              `json:"success"`
	HCLCode          string            `json:"hcl_code"`
	Stages           []StageResult     `json:"stages"`
	FinalMessage     string            `json:"final_message"`
	ResourceStatuses map[string]string `json:"resource_statuses"`
}

// Pipeline runs the five-stage verification sequence with bounded
// self-healing retry. The subprocess work happens on a worker goroutine;
// Run drains its stage-completion channel and re-emits each into the
// session's Emitter, decoupling subprocess I/O from the request's
// streaming context (§9 "Worker/emitter decoupling").
type Pipeline struct {
	Model   *llm.Client
	Emitter *events.Emitter

	WorkDir      string
	MaxRetries   int
	StageTimeout time.Duration
	Simulate     bool
}

// New builds a Pipeline. maxRetries<=0 defaults to 3; stageTimeout<=0
// defaults to 300s (§4.6 Apply).
func New(model *llm.Client, emitter *events.Emitter, workDir string, maxRetries int, stageTimeout time.Duration, simulate bool) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if stageTimeout <= 0 {
		stageTimeout = 300 * time.Second
	}
	return &Pipeline{
		Model:        model,
		Emitter:      emitter,
		WorkDir:      workDir,
		MaxRetries:   maxRetries,
		StageTimeout: stageTimeout,
		Simulate:     simulate,
	}
}

// stageEvent is one item on the worker's bounded completion channel: a
// finished StageResult, or (with done=true) the pipeline's terminal
// Result.
type stageEvent struct {
	stage *StageResult
	final *Result
	err   error
	done  bool
}

// Run executes the pipeline for the given HCL and test script.
// executionMode is "draft" or "deploy"; simulateApply synthesizes the
// Apply/Verify stages under draft mode instead of skipping them, per
// §4.6's Plan section. resourceIDs is the full set of ids the
// implementation graph expects to see verified — per P9, any id missing
// from the verifier's trailing JSON is treated as failed, not ignored.
func (p *Pipeline) Run(ctx context.Context, hcl, testScript, executionMode string, simulateApply bool, resourceIDs []string) (*Result, error) {
	ch := make(chan stageEvent, 8)
	go p.worker(ctx, hcl, testScript, executionMode, simulateApply, resourceIDs, ch)

	var stages []StageResult
	for ev := range ch {
		if ev.stage != nil {
			stages = append(stages, *ev.stage)
			status := events.StageSuccess
			if ev.stage.Status == StatusFailed {
				status = events.StageFailed
			}
			p.Emitter.Stage(string(ev.stage.Name), status)
			for _, line := range ev.stage.Logs {
				p.Emitter.Log(line)
			}
		}
		if ev.done {
			if ev.err != nil {
				return nil, ev.err
			}
			return ev.final, nil
		}
	}
	return nil, fmt.Errorf("pipeline: worker closed without a terminal result")
}

// worker performs the actual Setup + retry loop, writing each finished
// stage and the terminal result onto ch, then closing it. Cancellation
// is honored only at stage boundaries: the current subprocess is always
// allowed to finish (§5's "pipelines are not interrupted mid-subprocess").
func (p *Pipeline) worker(ctx context.Context, hcl, testScript, executionMode string, simulateApply bool, resourceIDs []string, ch chan<- stageEvent) {
	defer close(ch)

	if err := p.writeFiles(hcl, testScript); err != nil {
		ch <- stageEvent{done: true, err: fmt.Errorf("pipeline: setup: %w", err)}
		return
	}
	ch <- stageEvent{stage: &StageResult{Name: StageSetup, Status: StatusSuccess, Logs: []string{"workspace written"}}}

	run := newRunner(p.WorkDir, p.StageTimeout)
	currentHCL := hcl

	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		validate := p.runValidate(ctx, run, currentHCL)
		ch <- stageEvent{stage: &validate}
		if validate.Status == StatusFailed {
			fixed, err := p.repair(ctx, currentHCL, validate.Error, "terraform validate")
			if err != nil {
				ch <- stageEvent{done: true, err: err}
				return
			}
			currentHCL = fixed
			if err := p.writeFiles(currentHCL, testScript); err != nil {
				ch <- stageEvent{done: true, err: fmt.Errorf("pipeline: rewrite after validate repair: %w", err)}
				return
			}
			continue
		}

		plan := p.runStageIfNotSimulated(ctx, run, StagePlan, nil)
		ch <- stageEvent{stage: &plan}
		if plan.Status == StatusFailed {
			fixed, err := p.repair(ctx, currentHCL, plan.Error, "terraform plan")
			if err != nil {
				ch <- stageEvent{done: true, err: err}
				return
			}
			currentHCL = fixed
			if err := p.writeFiles(currentHCL, testScript); err != nil {
				ch <- stageEvent{done: true, err: fmt.Errorf("pipeline: rewrite after plan repair: %w", err)}
				return
			}
			continue
		}

		if executionMode == "draft" && !simulateApply {
			ch <- stageEvent{done: true, final: &Result{
				Success:      true,
				HCLCode:      currentHCL,
				FinalMessage: "Draft plan complete. (stopped before apply)",
			}}
			return
		}

		var apply, verify StageResult
		if executionMode == "draft" && simulateApply {
			apply = simulatedStage(StageApply, resourceIDs)
			verify = simulatedStage(StageVerify, resourceIDs)
		} else {
			apply = p.runStageIfNotSimulated(ctx, run, StageApply, resourceIDs)
		}
		ch <- stageEvent{stage: &apply}
		if apply.Status == StatusFailed {
			fixed, err := p.repair(ctx, currentHCL, apply.Error, "terraform apply")
			if err != nil {
				ch <- stageEvent{done: true, err: err}
				return
			}
			currentHCL = fixed
			if err := p.writeFiles(currentHCL, testScript); err != nil {
				ch <- stageEvent{done: true, err: fmt.Errorf("pipeline: rewrite after apply repair: %w", err)}
				return
			}
			continue
		}

		if executionMode != "draft" {
			verify = p.runStageIfNotSimulated(ctx, run, StageVerify, resourceIDs)
		}
		ch <- stageEvent{stage: &verify}

		statuses, statusErr := llm.LastJSONLine(verify.Logs)
		if verify.Status == StatusSuccess {
			if statusErr != nil {
				verify.Status = StatusFailed
				verify.Error = "no status map"
			} else {
				markMissingAsFailed(statuses, resourceIDs)
				if failed := failedResources(statuses); len(failed) > 0 {
					verify.Status = StatusFailed
					verify.Error = fmt.Sprintf("verification failed for: %s", joinComma(failed))
				}
			}
		}

		if verify.Status == StatusSuccess {
			ch <- stageEvent{done: true, final: &Result{
				Success:          true,
				HCLCode:          currentHCL,
				FinalMessage:     "Infrastructure deployed and verified successfully.",
				ResourceStatuses: statuses,
			}}
			return
		}

		// Verify failures are surfaced directly — no repair, per §4.6's
		// "a failing verifier means a design error, not a code typo".
		ch <- stageEvent{done: true, final: &Result{
			Success:          false,
			HCLCode:          currentHCL,
			FinalMessage:     "Deployment succeeded, but verification failed.",
			ResourceStatuses: statuses,
		}}
		return
	}

	ch <- stageEvent{done: true, final: &Result{
		Success:      false,
		HCLCode:      currentHCL,
		FinalMessage: "Pipeline failed after maximum retries.",
	}}
}

// runValidate performs the subprocess result plus the additional static
// regex check forbidding inline ingress/egress blocks (§4.6 Validate).
func (p *Pipeline) runValidate(ctx context.Context, run *runner, hcl string) StageResult {
	if HasInlineSecurityGroupRules(hcl) {
		return StageResult{
			Name:   StageValidate,
			Status: StatusFailed,
			Logs:   []string{"static policy check failed"},
			Error:  "inline ingress/egress block inside a security group; use separate rule resources",
		}
	}
	return p.runStageIfNotSimulated(ctx, run, StageValidate, nil)
}

func (p *Pipeline) runStageIfNotSimulated(ctx context.Context, run *runner, stage StageName, resourceIDs []string) StageResult {
	if p.Simulate {
		return simulatedStage(stage, resourceIDs)
	}
	return run.run(ctx, stage)
}

// simulatedStage fabricates a StageResult standing in for a subprocess
// run. For StageVerify it reports "success" for every id in resourceIDs
// so a simulated pipeline's Verify output matches the graph it was asked
// to verify instead of a fixed, unrelated id set.
func simulatedStage(stage StageName, resourceIDs []string) StageResult {
	logs := []string{fmt.Sprintf("simulated %s complete.", stage)}
	if stage == StageVerify {
		ids := resourceIDs
		if len(ids) == 0 {
			ids = []string{"vpc-main", "subnet-public", "web-server"}
		}
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%q: \"success\"", id))
		}
		logs = append(logs, "{"+strings.Join(parts, ", ")+"}")
	}
	return StageResult{Name: stage, Status: StatusSuccess, Logs: logs}
}

const repairPromptTemplate = `You are an expert Terraform debugger.
STAGE: %s
ERROR: %s
CODE:
%s
Return ONLY the fixed HCL code, no commentary, no markdown fences.`

// repair applies the deterministic textual fixers and then asks the
// model for a corrected HCL body.
func (p *Pipeline) repair(ctx context.Context, hcl, stageError, stageLabel string) (string, error) {
	hcl = ApplyDeterministicFixers(hcl)

	prompt := fmt.Sprintf(repairPromptTemplate, stageLabel, stageError, hcl)
	resp, err := p.Model.Generate(ctx, prompt, llm.Options{Mode: llm.ModeText})
	if err != nil {
		return "", fmt.Errorf("pipeline: repair call for %s: %w", stageLabel, err)
	}
	return stripCodeFence(resp.Content), nil
}

func (p *Pipeline) writeFiles(hcl, testScript string) error {
	if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.WorkDir, "main.tf"), []byte(hcl), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.WorkDir, "test_infra.py"), []byte(testScript), 0o644)
}

// markMissingAsFailed fills in a "failed" entry for every id expected
// from the implementation graph but absent from the verifier's status
// map (P9: "any missing id is treated as failed").
func markMissingAsFailed(statuses map[string]string, resourceIDs []string) {
	for _, id := range resourceIDs {
		if _, ok := statuses[id]; !ok {
			statuses[id] = "failed"
		}
	}
}

func failedResources(statuses map[string]string) []string {
	var out []string
	for id, status := range statuses {
		if status != "success" {
			out = append(out, id)
		}
	}
	return out
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
