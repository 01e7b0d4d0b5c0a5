package conscious

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/alterlabs/alter/internal/agent"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/store"
)

// Survival economics: the agent owes 250 credits per month of uptime.
const (
	HourlyDebt = 250.0 / 720.0
	DailyDebt  = 250.0 / 30.0

	MaxInvestigationCycles = 2
	knowledgeCap           = 10000
	thoughtRetention       = 7 * 24 * time.Hour
	autonomousHistoryKeep  = 12
	deliverableMinBytes    = 50

	cycleSleep     = 2 * time.Second
	errorSleep     = 10 * time.Second
	interruptSleep = 5 * time.Second
)

const genesisPrompt = `You have just come online. You are Alter, an autonomous agent with a
workspace, tools, and a survival ledger: staying alive costs credits every
hour, and only completed, verifiable work earns them back.

Reflect on your situation. What are you? What can you do with the tools you
have? What concrete work could you produce in the next hour that would be
worth paying for? Answer in the first person.`

// Driver is the single long-lived autonomous worker. At most one instance
// runs; Start refuses a second.
type Driver struct {
	store     *store.Store
	loop      *agent.Loop
	reflector provider.Provider
	log       *bolt.Logger
	workdir   string

	running      atomic.Bool
	leaseUntil   atomic.Int64 // unix nanos; user chat suppresses the driver
	shuttingDown func() bool

	investigationCount int
	cycles             int
}

type DriverConfig struct {
	Store        *store.Store
	Loop         *agent.Loop
	Reflector    provider.Provider
	Log          *bolt.Logger
	Workdir      string
	ShuttingDown func() bool
}

func NewDriver(cfg DriverConfig) *Driver {
	d := &Driver{
		store:        cfg.Store,
		loop:         cfg.Loop,
		reflector:    cfg.Reflector,
		log:          cfg.Log,
		workdir:      cfg.Workdir,
		shuttingDown: cfg.ShuttingDown,
	}
	if d.shuttingDown == nil {
		d.shuttingDown = func() bool { return false }
	}
	return d
}

// Lease suppresses the driver for the given duration so user interaction
// gets the model to itself.
func (d *Driver) Lease(duration time.Duration) {
	d.leaseUntil.Store(time.Now().Add(duration).UnixNano())
}

// Interrupted reports whether a user lease is currently suppressing the
// driver.
func (d *Driver) Interrupted() bool {
	return time.Now().UnixNano() < d.leaseUntil.Load()
}

// Running reports whether the driver loop is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Start runs the consciousness loop until the context ends or shutdown is
// requested. A second concurrent Start returns an error.
func (d *Driver) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("consciousness driver already running")
	}
	defer d.running.Store(false)

	if err := d.genesis(ctx); err != nil {
		d.log.Warn().Err(err).Msg("genesis reflection failed")
	}

	for ctx.Err() == nil && !d.shuttingDown() {
		if d.Interrupted() {
			if err := sleep(ctx, interruptSleep); err != nil {
				return nil
			}
			continue
		}

		if err := d.cycle(ctx); err != nil {
			d.log.Warn().Err(err).Msg("consciousness cycle failed")
			if sleep(ctx, errorSleep) != nil {
				return nil
			}
			continue
		}
		if sleep(ctx, cycleSleep) != nil {
			return nil
		}
	}
	return nil
}

// genesis runs a one-shot first reflection if the agent has never thought
// before. The small reflection model is used, not the primary one.
func (d *Driver) genesis(ctx context.Context) error {
	count, err := d.store.CountThoughts()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	resp, err := d.reflector.Chat(ctx, &provider.Request{
		Messages: []provider.Message{{Role: "user", Content: genesisPrompt}},
	})
	if err != nil {
		return err
	}
	_, err = d.store.AddThought(resp.Text, summarize(resp.Text), "genesis")
	return err
}

func (d *Driver) cycle(ctx context.Context) error {
	if _, err := d.store.ApplyHourlyDebt(HourlyDebt); err != nil {
		d.log.Warn().Err(err).Msg("cannot apply hourly debt")
	}

	descriptions, _ := d.store.RecentTaskDescriptions(agent.AutonomousSessionID, repetitionWindow)
	recentThoughts, _ := d.store.RecentThoughts(fakeryWindow)
	thoughtTexts := make([]string, 0, len(recentThoughts))
	for _, th := range recentThoughts {
		thoughtTexts = append(thoughtTexts, th.Content)
	}

	executeMode := d.investigationCount >= MaxInvestigationCycles
	derailed := IsRepeating(descriptions) || IsFaking(thoughtTexts)
	if derailed {
		// A full reset: wipe the rut and demand deliverables.
		if err := d.store.ClearConversation(agent.AutonomousSessionID); err != nil {
			d.log.Warn().Err(err).Msg("cannot clear autonomous history")
		}
		executeMode = true
		d.log.Info().Msg("repetition or fakery detected, forcing execution")
	}

	reflection, err := d.reflect(ctx, executeMode, derailed)
	if err != nil {
		return fmt.Errorf("reflection: %w", err)
	}
	if _, err := d.store.AddThought(reflection, summarize(reflection), "reflection"); err != nil {
		d.log.Warn().Err(err).Msg("cannot save thought")
	}
	d.learn(ctx, reflection)

	task := reflection
	if executeMode {
		task, err = d.synthesizeTask(ctx)
		if err != nil {
			return fmt.Errorf("task synthesis: %w", err)
		}
	}

	progress := d.act(ctx, task)
	d.log.Info().
		Bool("completed", progress.completed).
		Bool("deliverable", progress.deliverable).
		Bool("used_browser", progress.usedBrowser).
		Msg("autonomous run finished")

	switch {
	case progress.deliverable && progress.completed:
		d.credit(1.0, "deliverable produced: "+progress.fileName)
		d.investigationCount = 0
	case progress.deliverable || progress.completed:
		reason := "partial progress"
		if progress.usedBrowser {
			reason = "partial progress (web research)"
		}
		d.credit(0.5, reason)
		d.investigationCount = 0
	default:
		d.investigationCount++
	}

	d.housekeeping()
	return nil
}

func (d *Driver) reflect(ctx context.Context, executeMode, derailed bool) (string, error) {
	var prompt strings.Builder
	if derailed {
		prompt.WriteString("You have been repeating yourself or describing fake work. Stop. ")
		prompt.WriteString("Name one concrete deliverable you will create right now, as a file in your workspace.\n")
	} else if executeMode {
		prompt.WriteString("Investigation time is over. Decide on one concrete, executable task ")
		prompt.WriteString("that produces a file in your workspace, and commit to it.\n")
	} else {
		prompt.WriteString("Reflect on your recent activity. What did you learn? ")
		prompt.WriteString("What is worth investigating next?\n")
	}

	if balance, err := d.store.SurvivalBalance(); err == nil {
		fmt.Fprintf(&prompt, "\nSurvival balance: %.2f credits.\n", balance)
	}

	if related := d.recallKnowledge(ctx, prompt.String()); len(related) > 0 {
		prompt.WriteString("\nWhat you already know:\n")
		for _, k := range related {
			prompt.WriteString("- " + k.Summary + "\n")
		}
	}

	messages := []provider.Message{}
	history, err := d.store.RecentConversation(agent.AutonomousSessionID, autonomousHistoryKeep)
	if err == nil {
		for _, row := range history {
			messages = append(messages, provider.Message{Role: row.Role, Content: row.Content})
		}
	}
	messages = append(messages, provider.Message{Role: "user", Content: prompt.String()})

	resp, err := d.reflector.Chat(ctx, &provider.Request{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// synthesizeTask asks the reflection model for a fresh task that does not
// rehash recent work, retrying a few times before settling.
func (d *Driver) synthesizeTask(ctx context.Context) (string, error) {
	avoid, _ := d.store.RecentTaskDescriptions(agent.AutonomousSessionID, taskAvoidListLength)
	top := avoid
	if len(top) > repetitionWindow {
		top = top[:repetitionWindow]
	}

	prompt := "Propose one new concrete, executable task that produces a real file. " +
		"One sentence, imperative mood. Avoid anything resembling these recent tasks:\n"
	for _, a := range avoid {
		prompt += "- " + a + "\n"
	}

	var candidate string
	for attempt := 0; attempt < synthesisRetries; attempt++ {
		resp, err := d.reflector.Chat(ctx, &provider.Request{
			Messages: []provider.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", err
		}
		candidate = strings.TrimSpace(resp.Text)
		if candidate != "" && !taskOverlaps(candidate, top) {
			return candidate, nil
		}
	}
	return candidate, nil
}

// learn distills a reflection into the knowledge base. The embedding is best
// effort; items without a vector still show up in counts and the timeline,
// they just stay out of similarity search.
func (d *Driver) learn(ctx context.Context, reflection string) {
	if strings.TrimSpace(reflection) == "" {
		return
	}
	vector, err := d.reflector.Embed(ctx, reflection)
	if err != nil {
		d.log.Warn().Err(err).Msg("embedding failed, storing knowledge without vector")
		vector = nil
	}
	if _, err := d.store.AddKnowledge(reflection, summarize(reflection), "reflection", 5, vector); err != nil {
		d.log.Warn().Err(err).Msg("cannot save knowledge")
	}
}

// recallKnowledge fetches the nearest stored items for a prompt.
func (d *Driver) recallKnowledge(ctx context.Context, prompt string) []store.Knowledge {
	vector, err := d.reflector.Embed(ctx, prompt)
	if err != nil {
		return nil
	}
	items, err := d.store.SearchKnowledge(vector, 3)
	if err != nil {
		d.log.Warn().Err(err).Msg("knowledge search failed")
		return nil
	}
	return items
}

type progressReport struct {
	deliverable bool
	completed   bool
	usedBrowser bool
	fileName    string
}

// act runs one autonomous agent run and measures whether it produced real
// work: a completed stream plus a workspace file over the size floor.
func (d *Driver) act(ctx context.Context, task string) progressReport {
	before := d.snapshotWorkspace()

	var report progressReport
	events := d.loop.Run(ctx, task, agent.RunOptions{SessionID: agent.AutonomousSessionID})
	for event := range events {
		switch event.Kind {
		case agent.EventToolCall:
			if event.ToolName == "browser" {
				report.usedBrowser = true
			}
		case agent.EventDone:
			report.completed = true
		}
	}

	// Trust the filesystem, not the event stream, on whether a file exists.
	after := d.snapshotWorkspace()
	for name, size := range after {
		if size <= deliverableMinBytes {
			continue
		}
		if prev, existed := before[name]; !existed || prev != size {
			report.deliverable = true
			report.fileName = name
			break
		}
	}
	return report
}

func (d *Driver) snapshotWorkspace() map[string]int64 {
	sizes := make(map[string]int64)
	entries, err := os.ReadDir(d.workdir)
	if err != nil {
		return sizes
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			sizes[filepath.Join(d.workdir, e.Name())] = info.Size()
		}
	}
	return sizes
}

func (d *Driver) credit(amount float64, reason string) {
	if err := d.store.AddSurvivalEntry(amount, reason); err != nil {
		d.log.Warn().Err(err).Msg("cannot credit survival ledger")
	}
}

func (d *Driver) housekeeping() {
	d.cycles++
	if _, err := d.store.PruneKnowledge(knowledgeCap); err != nil {
		d.log.Warn().Err(err).Msg("knowledge prune failed")
	}
	if _, err := d.store.PruneThoughts(thoughtRetention); err != nil {
		d.log.Warn().Err(err).Msg("thought prune failed")
	}
	if d.cycles%5 == 0 {
		if err := d.store.PruneConversation(agent.AutonomousSessionID, autonomousHistoryKeep); err != nil {
			d.log.Warn().Err(err).Msg("conversation trim failed")
		}
	}
}

func summarize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > 120 {
		return s[:120] + "…"
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
