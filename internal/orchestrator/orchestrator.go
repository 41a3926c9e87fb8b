// Package orchestrator implements the Orchestrator (C8): the phase
// contract state machine that routes user actions (submit, approve,
// modify, confirm, deploy, reset, blast-radius) to the Phase Runners, the
// Architecture Loop, and the Verification Pipeline, rejecting any action
// that does not match the session's current phase. Grounded on
// orchestration/hitl_controller.go's shape — a small struct wrapping
// policy/store/handler collaborators behind plain methods returning
// structured errors — generalized from "should this plan interrupt for
// human approval" to "is this action legal in this phase".
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphmind/graphmind/internal/archloop"
	"github.com/graphmind/graphmind/internal/codegen"
	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/graphstore"
	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
	"github.com/graphmind/graphmind/internal/phases"
	"github.com/graphmind/graphmind/internal/pipeline"
	"github.com/graphmind/graphmind/internal/session"
)

// transitions is the phase-contract adjacency list (§4.8): action name ->
// set of phases in which it is legal. "reset" is legal from every phase
// and is therefore handled separately rather than listed here.
var transitions = map[string][]graphmodel.SessionPhase{
	"submit":       {graphmodel.SessionIdle},
	"approve":      {graphmodel.SessionIntentReview},
	"modify_intent": {graphmodel.SessionIntentReview},
	"modify_reasoned": {graphmodel.SessionReasonedReview},
	"confirm":      {graphmodel.SessionGraphPending},
	"deploy":       {graphmodel.SessionReasonedReview, graphmodel.SessionDeployed},
}

func legalPhase(action string, phase graphmodel.SessionPhase) bool {
	for _, p := range transitions[action] {
		if p == phase {
			return true
		}
	}
	return false
}

// rejectPhase builds the structured error for a phase-contract violation.
func rejectPhase(action string, phase graphmodel.SessionPhase) error {
	return graphmodel.NewError("orchestrator."+action, "phase_contract",
		fmt.Errorf("%w: action %q is not legal in phase %q", graphmodel.ErrPhaseContractViolation, action, phase))
}

// Orchestrator owns one session's lifecycle: the Session Manager (durable
// state), a Graph Store (the Orchestrator's single-owner working copy of
// the implementation graph, per §5), and the collaborators needed to
// build a fresh set of Phase Runners / Architecture Loop / Pipeline for
// each streaming action, each bound to a new per-request Emitter.
type Orchestrator struct {
	mu sync.Mutex

	Session *session.Manager
	Store   *graphstore.Store
	Model   *llm.Client
	Log     logger.Logger

	ArchLoopConfig     config.ArchLoopConfig
	CostTable          *config.CostTable
	CostSensitiveTypes map[string]bool

	WorkDir          string
	PipelineRetries  int
	SimulatePipeline bool
}

// New builds an Orchestrator over an already-loaded session.Manager.
func New(sess *session.Manager, model *llm.Client, costTable *config.CostTable, cfg *config.Config, log logger.Logger) *Orchestrator {
	sensitive := make(map[string]bool, len(cfg.CostSensitiveTypes))
	for _, t := range cfg.CostSensitiveTypes {
		sensitive[t] = true
	}
	store := graphstore.New()
	if state := sess.State(); state.ImplementationGraph != nil {
		_ = store.Import(state.ImplementationGraph)
	}
	return &Orchestrator{
		Session:            sess,
		Store:              store,
		Model:              model,
		Log:                log,
		ArchLoopConfig:      cfg.ArchLoop,
		CostTable:          costTable,
		CostSensitiveTypes: sensitive,
		WorkDir:            cfg.Pipeline.WorkDir,
		PipelineRetries:    cfg.Pipeline.MaxRetries,
		SimulatePipeline:   cfg.Pipeline.SimulatePipeline,
	}
}

// newLoop builds a fresh Architecture Loop bound to a request-scoped
// Emitter. Phase Runners are stateless aside from their Deps, so a new
// set per action is cheap and avoids any cross-request Emitter leakage.
func (o *Orchestrator) newLoop(emitter *events.Emitter) *archloop.Loop {
	deps := phases.Deps{Model: o.Model, Emitter: emitter}
	policy := phases.NewPolicyRunner(deps, o.ArchLoopConfig.MaxPolicyCycles)
	expansion := phases.NewExpansionRunner(deps)
	cost := phases.NewCostRunner(emitter, o.CostTable)
	return archloop.New(policy, expansion, cost, emitter, o.ArchLoopConfig)
}

// rejectOnEmitter synchronously delivers a phase-contract violation over
// a freshly-closed Emitter, so every streaming action — legal or not —
// returns the same shape: an Emitter whose stream ends in exactly one
// error or result record (§6, P7).
func rejectOnEmitter(err error) *events.Emitter {
	e := events.New(1)
	e.Error(err.Error())
	return e
}

// Submit lifts description into an Intent graph and transitions
// idle -> intent_review. Legal only from idle.
func (o *Orchestrator) Submit(ctx context.Context, description, executionMode string, simulatePipeline bool) *events.Emitter {
	o.mu.Lock()
	phase := o.Session.State().Phase
	o.mu.Unlock()
	if !legalPhase("submit", phase) {
		return rejectOnEmitter(rejectPhase("submit", phase))
	}

	emitter := events.New(events.DefaultBufferSize)
	go func() {
		intentRunner := phases.NewIntentRunner(phases.Deps{Model: o.Model, Emitter: emitter})
		graph, err := intentRunner.Run(ctx, description)
		if err != nil {
			emitter.Error(err.Error())
			return
		}
		o.mu.Lock()
		_ = o.Session.SetExecutionOptions(executionMode, simulatePipeline)
		_ = o.Session.SetIntentGraph(graph)
		_ = o.Session.SetPhase(graphmodel.SessionIntentReview)
		o.mu.Unlock()
		emitter.Result(graph)
	}()
	return emitter
}

// Think runs Intent generation alone and returns an analysis without
// advancing the session phase (SPEC_FULL §3's restored "think" op).
func (o *Orchestrator) Think(ctx context.Context, description string) (*graphmodel.IntentAnalysis, error) {
	scratch := events.New(events.DefaultBufferSize)
	intentRunner := phases.NewIntentRunner(phases.Deps{Model: o.Model, Emitter: scratch})
	graph, err := intentRunner.Run(ctx, description)
	scratch.Close()
	if err != nil {
		return nil, err
	}
	var risks []string
	if len(graph.Resources) == 0 {
		risks = append(risks, "no resources were derived from the description")
	}
	return &graphmodel.IntentAnalysis{
		Summary:          graph.Reasoning,
		Risks:            risks,
		SuggestedActions: []string{"submit this description to begin the architecture loop"},
	}, nil
}

// Approve runs the Architecture Loop from the current intent graph and
// transitions intent_review -> reasoned_review. Legal only from
// intent_review.
func (o *Orchestrator) Approve(ctx context.Context) *events.Emitter {
	o.mu.Lock()
	state := o.Session.State()
	phase := state.Phase
	intent := state.IntentGraph
	o.mu.Unlock()
	if !legalPhase("approve", phase) {
		return rejectOnEmitter(rejectPhase("approve", phase))
	}
	if intent == nil {
		return rejectOnEmitter(graphmodel.NewError("orchestrator.approve", "missing_graph", fmt.Errorf("no intent graph on session")))
	}

	emitter := events.New(events.DefaultBufferSize)
	loop := o.newLoop(emitter)
	go o.runLoopAndAdvance(ctx, loop, intent, emitter)
	return emitter
}

// runLoopAndAdvance drives the Architecture Loop and, on success,
// persists the resulting graphs and transitions to reasoned_review. If
// Reset ran while the loop was in flight, the outcome is discarded and
// the stream ends with an error instead.
func (o *Orchestrator) runLoopAndAdvance(ctx context.Context, loop *archloop.Loop, input *graphmodel.GraphState, emitter *events.Emitter) {
	o.mu.Lock()
	store := o.Store
	o.mu.Unlock()

	outcome, err := loop.Run(ctx, input)
	if err != nil {
		emitter.Error(err.Error())
		return
	}

	o.mu.Lock()
	if o.Store != store {
		// Reset replaced the Graph Store while the loop ran.
		o.mu.Unlock()
		emitter.Error("session was reset while the architecture loop was running; result discarded")
		return
	}
	_ = o.Session.SetReasonedGraph(outcome.Reasoned)
	_ = o.Session.SetImplementationGraph(outcome.Implementation)
	_ = o.Session.AppendDecisions(outcome.Decisions...)
	_ = o.Session.SetPhase(graphmodel.SessionReasonedReview)
	_ = o.Store.Import(outcome.Implementation)
	_ = o.Session.SetPendingGraph(nil)
	o.mu.Unlock()

	emitter.Result(outcome.Implementation)
}

// ModifyIntent re-runs Intent generation with the user's modification
// text, staying in intent_review and emitting a fresh graph_snapshot.
// Legal only from intent_review.
func (o *Orchestrator) ModifyIntent(ctx context.Context, instruction string) *events.Emitter {
	o.mu.Lock()
	phase := o.Session.State().Phase
	o.mu.Unlock()
	if !legalPhase("modify_intent", phase) {
		return rejectOnEmitter(rejectPhase("modify_intent", phase))
	}

	emitter := events.New(events.DefaultBufferSize)
	go func() {
		intentRunner := phases.NewIntentRunner(phases.Deps{Model: o.Model, Emitter: emitter})
		graph, err := intentRunner.Run(ctx, instruction)
		if err != nil {
			emitter.Error(err.Error())
			return
		}
		o.mu.Lock()
		_ = o.Session.SetIntentGraph(graph)
		o.mu.Unlock()
		emitter.GraphSnapshot(graph)
		emitter.Result(graph)
	}()
	return emitter
}

const modificationSystemPrompt = `You modify an existing cloud architecture in response to a user instruction.
Respond with JSON only: {"add_resources": [...], "remove_resources": ["id", ...],
"add_edges": [...], "remove_edges": [...], "reasoning": "..."}.
Added resources must use concrete AWS types and carry a fresh id if new, or an existing id to update properties in place.`

// ModifyReasoned computes a candidate PlanDiff against the current
// implementation graph and stores the result as the pending graph,
// transitioning reasoned_review -> graph_pending. Legal only from
// reasoned_review.
func (o *Orchestrator) ModifyReasoned(ctx context.Context, instruction string) *events.Emitter {
	o.mu.Lock()
	state := o.Session.State()
	phase := state.Phase
	base := state.ImplementationGraph
	o.mu.Unlock()
	if !legalPhase("modify_reasoned", phase) {
		return rejectOnEmitter(rejectPhase("modify_reasoned", phase))
	}
	if base == nil {
		return rejectOnEmitter(graphmodel.NewError("orchestrator.modify_reasoned", "missing_graph", fmt.Errorf("no implementation graph on session")))
	}

	emitter := events.New(events.DefaultBufferSize)
	go func() {
		emitter.Stage("Modify", events.StageRunning)
		prompt := fmt.Sprintf("Current architecture:\n%+v\n\nRequested change: %s", base, instruction)
		resp, err := o.Model.Generate(ctx, prompt, llm.Options{SystemPrompt: modificationSystemPrompt, Mode: llm.ModeJSON})
		if err != nil {
			emitter.Stage("Modify", events.StageFailed)
			emitter.Error(err.Error())
			return
		}
		payload, err := llm.ExtractJSON(resp.Content)
		if err != nil {
			emitter.Stage("Modify", events.StageFailed)
			emitter.Error(err.Error())
			return
		}
		diff, err := decodePlanDiff(payload)
		if err != nil {
			emitter.Stage("Modify", events.StageFailed)
			emitter.Error(err.Error())
			return
		}
		pending := applyPlanDiff(base, diff)

		o.mu.Lock()
		_ = o.Session.SetPendingGraph(pending)
		_ = o.Session.SetPhase(graphmodel.SessionGraphPending)
		o.mu.Unlock()

		emitter.Stage("Modify", events.StageSuccess)
		emitter.GraphSnapshot(pending)
		emitter.Result(pending)
	}()
	return emitter
}

// ConfirmModification resolves the graph_pending state: accept runs the
// Architecture Loop from the pending graph and transitions back to
// reasoned_review; reject discards the pending graph and returns to
// reasoned_review unchanged, re-emitting a graph_snapshot of the
// untouched implementation graph (Open Question (a): a reject must still
// give the client a fresh view of the graph it is now looking at again).
// Legal only from graph_pending.
func (o *Orchestrator) ConfirmModification(ctx context.Context, accept bool) *events.Emitter {
	o.mu.Lock()
	state := o.Session.State()
	phase := state.Phase
	pending := state.PendingGraph
	current := state.ImplementationGraph
	o.mu.Unlock()
	if !legalPhase("confirm", phase) {
		return rejectOnEmitter(rejectPhase("confirm", phase))
	}

	emitter := events.New(events.DefaultBufferSize)
	if !accept {
		go func() {
			o.mu.Lock()
			_ = o.Session.SetPendingGraph(nil)
			_ = o.Session.SetPhase(graphmodel.SessionReasonedReview)
			o.mu.Unlock()
			emitter.GraphSnapshot(current)
			emitter.Result(current)
		}()
		return emitter
	}

	if pending == nil {
		return rejectOnEmitter(graphmodel.NewError("orchestrator.confirm", "missing_graph", fmt.Errorf("no pending graph on session")))
	}
	loop := o.newLoop(emitter)
	go o.runLoopAndAdvance(ctx, loop, pending, emitter)
	return emitter
}

// ConfirmationRequired checks the implementation graph for resources
// whose concrete type is in the configurable cost-sensitive set,
// restoring the original implementation's pre-apply confirmation gate
// (SPEC_FULL §3).
func (o *Orchestrator) ConfirmationRequired() graphmodel.ConfirmationRequired {
	o.mu.Lock()
	graph := o.Session.State().ImplementationGraph
	o.mu.Unlock()
	if graph == nil {
		return graphmodel.ConfirmationRequired{}
	}

	var reasons []graphmodel.ConfirmationReason
	for _, r := range graph.Resources {
		if o.CostSensitiveTypes[r.Type] {
			reasons = append(reasons, graphmodel.ConfirmationReason{
				Resource: r.ID,
				Type:     r.Type,
				Reason:   "this resource type incurs ongoing cost and is configured as cost-sensitive",
				Severity: "warning",
			})
		}
	}
	return graphmodel.ConfirmationRequired{
		Required: len(reasons) > 0,
		Reasons:  reasons,
		Message:  fmt.Sprintf("%d cost-sensitive resource(s) in this plan", len(reasons)),
	}
}

// Deploy generates Terraform HCL and a test script from the current
// implementation graph (deterministically, via internal/codegen — no
// model call), then runs the Verification Pipeline. Transitions
// reasoned_review -> code_pending -> deployed on success, or back to
// reasoned_review on failure. Legal from reasoned_review or deployed (a
// prior deployment may be redeployed after further modification cycles).
func (o *Orchestrator) Deploy(ctx context.Context, executionMode string, simulateApply bool) *events.Emitter {
	o.mu.Lock()
	state := o.Session.State()
	phase := state.Phase
	graph := state.ImplementationGraph
	mode := state.ExecutionMode
	simulate := o.SimulatePipeline
	o.mu.Unlock()
	if !legalPhase("deploy", phase) {
		return rejectOnEmitter(rejectPhase("deploy", phase))
	}
	if graph == nil {
		return rejectOnEmitter(graphmodel.NewError("orchestrator.deploy", "missing_graph", fmt.Errorf("no implementation graph on session")))
	}
	if executionMode != "" {
		mode = executionMode
	}
	if mode == "" {
		mode = "deploy"
	}

	hcl := codegen.Generate(graph)
	testScript := codegen.GenerateTestScript(graph)

	emitter := events.New(events.DefaultBufferSize)
	o.mu.Lock()
	_ = o.Session.SetPhase(graphmodel.SessionCodePending)
	o.mu.Unlock()

	resourceIDs := make([]string, 0, len(graph.Resources))
	for id := range graph.IDs() {
		resourceIDs = append(resourceIDs, id)
	}

	pl := pipeline.New(o.Model, emitter, o.WorkDir, o.PipelineRetries, 0, simulate)
	go func() {
		result, err := pl.Run(ctx, hcl, testScript, mode, simulateApply, resourceIDs)
		if err != nil {
			o.mu.Lock()
			_ = o.Session.SetPhase(graphmodel.SessionReasonedReview)
			o.mu.Unlock()
			emitter.Error(err.Error())
			return
		}

		o.mu.Lock()
		if result.Success {
			_ = o.Session.SetPhase(graphmodel.SessionDeployed)
		} else {
			_ = o.Session.SetPhase(graphmodel.SessionReasonedReview)
		}
		o.mu.Unlock()
		emitter.Result(result)
	}()
	return emitter
}

// Reset clears the session to idle, in-memory and on disk, and replaces
// the Graph Store. An architecture loop already in flight is not
// interrupted: it runs all its cycles, and runLoopAndAdvance then
// discards its outcome instead of persisting it. Legal from any phase.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.Session.HardReset(); err != nil {
		return err
	}
	o.Store = graphstore.New()
	return nil
}

// BlastRadius computes the downstream impact of removing targetID: every
// resource transitively contained within it (graphstore.Descendants under
// RelationContains only, so cross-cutting connects_to/depends_on edges
// never inflate a containment blast radius).
func (o *Orchestrator) BlastRadius(targetID string) (*graphmodel.BlastAnalysis, error) {
	o.mu.Lock()
	store := o.Store
	o.mu.Unlock()

	descendants, err := store.Descendants(targetID, graphmodel.RelationContains)
	if err != nil {
		return nil, graphmodel.NewError("orchestrator.blast_radius", "not_found", err).WithID(targetID)
	}

	impact := o.classifyImpact(store, descendants)

	return &graphmodel.BlastAnalysis{
		TargetNode:         targetID,
		ImpactLevel:        impact,
		AffectedCount:      len(descendants),
		AffectedNodeIDs:    descendants,
		Explanation:        fmt.Sprintf("removing %s would also remove %d contained resource(s)", targetID, len(descendants)),
		MitigationStrategy: mitigationFor(impact),
	}, nil
}

// classifyImpact buckets a blast radius into one of the four tiers §8's
// S7 names ({Low, Medium, High, Critical}). Critical is reserved for a
// containment set large enough to be disruptive on its own, or one that
// contains any cost-sensitive resource type — losing a NAT gateway or a
// database is Critical regardless of how few siblings come with it.
func (o *Orchestrator) classifyImpact(store *graphstore.Store, descendants []string) string {
	for _, id := range descendants {
		r, ok := store.Resource(id)
		if ok && o.CostSensitiveTypes[r.Type] {
			return "Critical"
		}
	}
	switch {
	case len(descendants) > 10:
		return "Critical"
	case len(descendants) > 5:
		return "High"
	case len(descendants) > 0:
		return "Medium"
	default:
		return "Low"
	}
}

func mitigationFor(impact string) string {
	switch impact {
	case "Critical":
		return "do not remove without a migration plan; contains a cost-sensitive or large dependent set"
	case "High":
		return "migrate contained resources to an independent container before removal"
	case "Medium":
		return "review contained resources individually before removal"
	default:
		return "no mitigation needed"
	}
}
